package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/EthanQC/relay/pkg/zlog"
	"github.com/EthanQC/relay/services/relay_service/internal/domain/entity"
	"github.com/EthanQC/relay/services/relay_service/internal/domain/event"
	"github.com/EthanQC/relay/services/relay_service/internal/domain/session"
	"github.com/EthanQC/relay/services/relay_service/internal/ports/in"
	"github.com/EthanQC/relay/services/relay_service/internal/ports/out"
	relayerrors "github.com/EthanQC/relay/services/relay_service/pkg/errors"
)

type eventHandler func(ctx context.Context, s *session.Session, data json.RawMessage) error

// SessionCoordinator 会话用例实现：连接生命周期、在线状态、房间广播和呼叫振铃
type SessionCoordinator struct {
	store     out.PresenceStore
	router    out.RoomRouter
	registry  *SessionRegistry
	publisher out.EventPublisher // 可为 nil
	metrics   out.Metrics        // 可为 nil
	handlers  map[string]eventHandler

	// 尚未完成的异步发布
	inflight sync.WaitGroup
}

var _ in.SessionUseCase = (*SessionCoordinator)(nil)

// NewSessionCoordinator 创建会话用例
func NewSessionCoordinator(
	store out.PresenceStore,
	router out.RoomRouter,
	publisher out.EventPublisher,
	metrics out.Metrics,
) *SessionCoordinator {
	c := &SessionCoordinator{
		store:     store,
		router:    router,
		registry:  NewSessionRegistry(),
		publisher: publisher,
		metrics:   metrics,
	}
	c.handlers = map[string]eventHandler{
		event.JoinStatus:      c.joinStatus,
		event.UpdateStatus:    c.updateStatus,
		event.JoinChat:        c.joinChat,
		event.LeaveChat:       c.leaveChat,
		event.SendChatMessage: c.sendChatMessage,
		event.InputFocus:      c.inputFocus,
		event.InputBlur:       c.inputBlur,
		event.InitializeCall:  c.initializeCall,
		event.JoinCall:        c.joinCall,
		event.LeaveCall:       c.leaveCall,
		event.Ping:            c.ping,
	}
	return c
}

// Registry 当前会话表
func (c *SessionCoordinator) Registry() *SessionRegistry { return c.registry }

// Connect 激活会话。存储写失败不拒绝连接，只告知客户端并继续广播上线。
func (c *SessionCoordinator) Connect(ctx context.Context, conn out.Connection, userID entity.UserID) (*session.Session, error) {
	s := session.New(conn.ID())
	if err := s.Activate(userID); err != nil {
		_ = s.Reject()
		return nil, relayerrors.NewAuthError(relayerrors.ErrInvalidCredential, err)
	}
	if err := c.registry.Add(s); err != nil {
		s.Close()
		return nil, err
	}

	logger := zlog.C(ctx).With(zap.String("connID", conn.ID().String()), zap.String("userID", userID.String()))

	c.router.Attach(conn)
	c.router.Join(conn.ID(), userID.Room())

	record := &entity.PresenceRecord{Online: true, IsBusy: false, SocketID: conn.ID()}
	stored := true
	if err := c.store.Set(ctx, userID, record); err != nil {
		stored = false
		logger.Error("write presence on connect failed", zap.Error(err))
		c.sendError(ctx, conn.ID(), "", in.CodeStoreError, "presence could not be saved")
	}

	c.emit(ctx, conn.ID(), event.Connected, in.ConnectedPayload{
		UserID:     userID,
		SocketID:   conn.ID(),
		ServerTime: time.Now().UnixMilli(),
	})
	c.broadcast(ctx, userID.Room(), event.OnlineStatus(userID.String()), in.StatusPayload{UserID: userID, Online: true})
	// 只发布已经落库的状态
	if stored {
		c.publish(userID, record, entity.ReasonConnect)
	}

	if c.metrics != nil {
		c.metrics.SessionOpened()
	}
	logger.Info("session active")
	return s, nil
}

// HandleEvent 同一连接的事件由调用方串行投递
func (c *SessionCoordinator) HandleEvent(ctx context.Context, connID entity.ConnectionID, name string, data json.RawMessage) error {
	s, ok := c.registry.Get(connID)
	if !ok {
		return fmt.Errorf("handle %s: %w", name, relayerrors.ErrSessionNotFound)
	}
	if !s.IsActive() {
		return fmt.Errorf("handle %s: %w", name, relayerrors.ErrSessionNotActive)
	}

	var err error
	if h, ok := c.handlers[name]; ok {
		err = h(ctx, s, data)
		var protoErr *relayerrors.ProtocolError
		if errors.As(err, &protoErr) {
			c.sendError(ctx, connID, name, in.CodeProtocolError, protoErr.Reason)
		}
	} else {
		err = fmt.Errorf("handle %s: %w", name, relayerrors.ErrUnknownEvent)
		c.sendError(ctx, connID, name, in.CodeUnknownEvent, "unknown event")
	}

	if c.metrics != nil {
		c.metrics.EventHandled(name, err)
	}
	return err
}

// Disconnect 只有第一次调用执行清理：删除在线状态，通知离线，再退出全部房间
func (c *SessionCoordinator) Disconnect(ctx context.Context, connID entity.ConnectionID) {
	s, ok := c.registry.Get(connID)
	if !ok || !s.Close() {
		return
	}
	userID := s.UserID()
	logger := zlog.C(ctx).With(zap.String("connID", connID.String()), zap.String("userID", userID.String()))

	if err := c.store.Delete(ctx, userID); err != nil {
		logger.Error("delete presence on disconnect failed", zap.Error(err))
	}
	// 离线通知只发给该用户自己的其他连接，订阅了该用户的会话不会收到
	offline := in.StatusPayload{UserID: userID, Online: false}
	for _, other := range c.registry.ByUser(userID) {
		if other.ID() != connID {
			c.emit(ctx, other.ID(), event.OnlineStatus(userID.String()), offline)
		}
	}
	c.publish(userID, &entity.PresenceRecord{SocketID: connID}, entity.ReasonDisconnect)

	// 通话中断线等同于 leave:call
	for _, room := range s.CallRooms() {
		c.broadcast(ctx, room, event.CallLeft(string(room)), userID, connID)
	}

	c.router.LeaveAll(connID)
	c.router.Detach(connID)
	c.registry.Remove(connID)

	if c.metrics != nil {
		c.metrics.SessionClosed()
	}
	info := s.Info()
	logger.Info("session closed", zap.Duration("duration", info.ClosedAt.Sub(info.ConnectedAt)))
}

// Drain 等待已发起的状态变更发布完成
func (c *SessionCoordinator) Drain() {
	c.inflight.Wait()
}

// Stats 获取统计信息
func (c *SessionCoordinator) Stats() map[string]int64 {
	stats := map[string]int64{
		"sessions":     int64(c.registry.Len()),
		"online_users": int64(c.registry.Users()),
	}
	if rs, ok := c.router.(interface{ Stats() map[string]int64 }); ok {
		for k, v := range rs.Stats() {
			stats[k] = v
		}
	}
	return stats
}

func (c *SessionCoordinator) broadcast(ctx context.Context, room entity.RoomName, name string, payload interface{}, except ...entity.ConnectionID) {
	if _, err := c.router.Broadcast(room, name, payload, except...); err != nil {
		zlog.C(ctx).Warn("broadcast failed", zap.String("room", string(room)), zap.String("event", name), zap.Error(err))
	}
}

func (c *SessionCoordinator) emit(ctx context.Context, connID entity.ConnectionID, name string, payload interface{}) {
	if err := c.router.Emit(connID, name, payload); err != nil {
		zlog.C(ctx).Warn("emit failed", zap.String("connID", connID.String()), zap.String("event", name), zap.Error(err))
	}
}

func (c *SessionCoordinator) sendError(ctx context.Context, connID entity.ConnectionID, name, code, msg string) {
	c.emit(ctx, connID, event.Error, in.ErrorPayload{Event: name, Code: code, Message: msg})
}

// publish 异步发布状态变更，失败只记日志
func (c *SessionCoordinator) publish(userID entity.UserID, record *entity.PresenceRecord, reason entity.ChangeReason) {
	if c.publisher == nil {
		return
	}
	change := &entity.PresenceChange{
		UserID:    userID,
		Online:    record.Online,
		IsBusy:    record.IsBusy,
		SocketID:  record.SocketID,
		Reason:    reason,
		Timestamp: time.Now(),
	}
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		if err := c.publisher.PublishPresenceChange(context.Background(), change); err != nil {
			zap.L().Warn("publish presence change failed",
				zap.String("userID", userID.String()),
				zap.String("reason", string(reason)),
				zap.Error(err))
		}
	}()
}
