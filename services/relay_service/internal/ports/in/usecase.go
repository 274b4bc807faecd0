package in

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/EthanQC/relay/services/relay_service/internal/domain/entity"
	"github.com/EthanQC/relay/services/relay_service/internal/domain/session"
	"github.com/EthanQC/relay/services/relay_service/internal/ports/out"
)

// IdentityResolver 握手阶段的身份解析接口
type IdentityResolver interface {
	// Resolve 从握手请求中取出令牌并校验，失败返回 *AuthError
	Resolve(r *http.Request) (entity.UserID, error)
}

// SessionUseCase 会话用例接口
type SessionUseCase interface {
	// Connect 身份确认后激活会话：加入个人房间、写在线状态、广播上线
	Connect(ctx context.Context, conn out.Connection, userID entity.UserID) (*session.Session, error)
	// HandleEvent 处理一条入站事件
	HandleEvent(ctx context.Context, connID entity.ConnectionID, name string, data json.RawMessage) error
	// Disconnect 连接断开后的清理，重复调用无副作用
	Disconnect(ctx context.Context, connID entity.ConnectionID)
	// Stats 获取统计信息
	Stats() map[string]int64
}
