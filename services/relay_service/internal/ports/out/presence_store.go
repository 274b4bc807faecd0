package out

import (
	"context"

	"github.com/EthanQC/relay/services/relay_service/internal/domain/entity"
)

// PresenceStore 在线状态存储接口，单 key 原子，后写覆盖
type PresenceStore interface {
	// Get 获取用户在线状态，不存在时返回 ErrPresenceNotFound
	Get(ctx context.Context, userID entity.UserID) (*entity.PresenceRecord, error)
	// Set 覆盖写入用户在线状态
	Set(ctx context.Context, userID entity.UserID, record *entity.PresenceRecord) error
	// Delete 删除用户在线状态，key 不存在不算错误
	Delete(ctx context.Context, userID entity.UserID) error
	// Close 释放底层连接
	Close() error
}

// TokenVerifier 外部令牌校验接口
type TokenVerifier interface {
	// Verify 校验令牌并返回其中的用户标识
	Verify(ctx context.Context, token string) (entity.UserID, error)
}

// EventPublisher 事件发布接口
type EventPublisher interface {
	// PublishPresenceChange 发布状态变更事件
	PublishPresenceChange(ctx context.Context, change *entity.PresenceChange) error
	// Close 关闭生产者
	Close() error
}

// Metrics 会话与事件指标
type Metrics interface {
	SessionOpened()
	SessionClosed()
	// EventHandled 记录一次入站事件的处理结果
	EventHandled(event string, err error)
}
