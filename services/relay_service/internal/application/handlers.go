package application

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/EthanQC/relay/pkg/zlog"
	"github.com/EthanQC/relay/services/relay_service/internal/domain/entity"
	"github.com/EthanQC/relay/services/relay_service/internal/domain/event"
	"github.com/EthanQC/relay/services/relay_service/internal/domain/session"
	"github.com/EthanQC/relay/services/relay_service/internal/ports/in"
	relayerrors "github.com/EthanQC/relay/services/relay_service/pkg/errors"
)

// decodeID 解析字符串载荷（用户 ID、聊天 ID、通话 ID）
func decodeID(name string, data json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(data, &id); err != nil || id == "" {
		return "", relayerrors.NewProtocolError(name, "expected a non-empty string")
	}
	return id, nil
}

// join 会话和路由两侧同时记录，重复加入无副作用
func (c *SessionCoordinator) join(s *session.Session, room entity.RoomName) {
	s.AddRoom(room)
	c.router.Join(s.ID(), room)
}

// joinCallRoom 加入并记为通话房间，断线时据此通知其他成员
func (c *SessionCoordinator) joinCallRoom(s *session.Session, room entity.RoomName) {
	c.join(s, room)
	s.MarkCall(room)
}

// joinStatus 订阅目标的在线状态，并把目标当前状态广播回目标房间
func (c *SessionCoordinator) joinStatus(ctx context.Context, s *session.Session, data json.RawMessage) error {
	id, err := decodeID(event.JoinStatus, data)
	if err != nil {
		return err
	}
	target := entity.UserID(id)
	c.join(s, target.Room())

	online := false
	record, err := c.store.Get(ctx, target)
	switch {
	case err == nil:
		online = record.Online
	case errors.Is(err, relayerrors.ErrPresenceNotFound):
		err = nil
	default:
		zlog.C(ctx).Warn("read presence failed, reporting offline", zap.String("targetID", id), zap.Error(err))
	}

	c.broadcast(ctx, target.Room(), event.OnlineStatus(id), in.StatusPayload{TargetID: target, Online: online})
	return err
}

// updateStatus 覆盖自己的在线标记并重置忙碌，写成功后才广播
func (c *SessionCoordinator) updateStatus(ctx context.Context, s *session.Session, data json.RawMessage) error {
	var online bool
	if err := json.Unmarshal(data, &online); err != nil {
		return relayerrors.NewProtocolError(event.UpdateStatus, "expected a boolean")
	}

	userID := s.UserID()
	record := &entity.PresenceRecord{Online: online, IsBusy: false, SocketID: s.ID()}
	if err := c.store.Set(ctx, userID, record); err != nil {
		zlog.C(ctx).Error("update presence failed", zap.String("userID", userID.String()), zap.Error(err))
		c.sendError(ctx, s.ID(), event.UpdateStatus, in.CodeStoreError, "status could not be saved")
		return err
	}

	c.broadcast(ctx, userID.Room(), event.OnlineStatus(userID.String()), in.StatusPayload{UserID: userID, Online: online})
	c.publish(userID, record, entity.ReasonUpdate)
	return nil
}

func (c *SessionCoordinator) joinChat(ctx context.Context, s *session.Session, data json.RawMessage) error {
	chatID, err := decodeID(event.JoinChat, data)
	if err != nil {
		return err
	}
	c.join(s, entity.RoomName(chatID))
	return nil
}

// leaveChat 个人房间不能通过它退出
func (c *SessionCoordinator) leaveChat(ctx context.Context, s *session.Session, data json.RawMessage) error {
	chatID, err := decodeID(event.LeaveChat, data)
	if err != nil {
		return err
	}
	room := entity.RoomName(chatID)
	if s.RemoveRoom(room) {
		c.router.Leave(s.ID(), room)
	}
	return nil
}

// sendChatMessage 不校验发送者是否在房间中，载荷原样转发
func (c *SessionCoordinator) sendChatMessage(ctx context.Context, s *session.Session, data json.RawMessage) error {
	var env in.ChatEnvelope
	if err := json.Unmarshal(data, &env); err != nil || env.ChatID == "" {
		return relayerrors.NewProtocolError(event.SendChatMessage, "expected an object with chat_id")
	}
	c.broadcast(ctx, entity.RoomName(env.ChatID), event.ChatMessage(env.ChatID), data)
	return nil
}

func (c *SessionCoordinator) inputFocus(ctx context.Context, s *session.Session, data json.RawMessage) error {
	chatID, err := decodeID(event.InputFocus, data)
	if err != nil {
		return err
	}
	c.broadcast(ctx, entity.RoomName(chatID), event.InputFocusIn(chatID), s.UserID())
	return nil
}

func (c *SessionCoordinator) inputBlur(ctx context.Context, s *session.Session, data json.RawMessage) error {
	chatID, err := decodeID(event.InputBlur, data)
	if err != nil {
		return err
	}
	c.broadcast(ctx, entity.RoomName(chatID), event.InputBlurIn(chatID), s.UserID())
	return nil
}

// initializeCall 呼叫：目标忙则只回 busy；否则加入通话房间，只向目标记录的那条连接振铃
func (c *SessionCoordinator) initializeCall(ctx context.Context, s *session.Session, data json.RawMessage) error {
	var invite in.CallInvite
	if err := json.Unmarshal(data, &invite); err != nil || invite.ID == "" {
		return relayerrors.NewProtocolError(event.InitializeCall, "expected an object with id and info")
	}
	var info in.CallInfo
	if len(invite.Info) == 0 || json.Unmarshal(invite.Info, &info) != nil || info.CallID == "" {
		return relayerrors.NewProtocolError(event.InitializeCall, "info.call_id is required")
	}

	target := invite.ID
	logger := zlog.C(ctx).With(zap.String("targetID", target.String()), zap.String("callID", info.CallID))

	record, err := c.store.Get(ctx, target)
	switch {
	case errors.Is(err, relayerrors.ErrPresenceNotFound):
		c.emit(ctx, s.ID(), event.Unavailable(target.String()), in.UnavailablePayload{TargetID: target, Reason: in.UnavailableNotFound})
		return nil
	case err != nil:
		logger.Warn("read callee presence failed", zap.Error(err))
		c.emit(ctx, s.ID(), event.Unavailable(target.String()), in.UnavailablePayload{TargetID: target, Reason: in.UnavailableStoreError})
		return err
	}

	if record.IsBusy {
		c.emit(ctx, s.ID(), event.Busy(target.String()), record)
		return nil
	}

	c.joinCallRoom(s, entity.RoomName(info.CallID))
	if err := c.router.Emit(record.SocketID, event.Ring(target.String()), invite.Info); err != nil {
		if errors.Is(err, relayerrors.ErrConnectionNotFound) {
			c.emit(ctx, s.ID(), event.Unavailable(target.String()), in.UnavailablePayload{TargetID: target, Reason: in.UnavailableNotConnected})
			return nil
		}
		logger.Warn("ring failed", zap.Error(err))
		return err
	}
	logger.Debug("ringing", zap.String("socketID", record.SocketID.String()))
	return nil
}

// joinCall 加入通话房间并标记忙碌，再通知房间内成员
func (c *SessionCoordinator) joinCall(ctx context.Context, s *session.Session, data json.RawMessage) error {
	callID, err := decodeID(event.JoinCall, data)
	if err != nil {
		return err
	}
	c.joinCallRoom(s, entity.RoomName(callID))

	err = c.setBusy(ctx, s, true, entity.ReasonCallJoin)
	c.broadcast(ctx, entity.RoomName(callID), event.CallJoined(callID), s.UserID())
	return err
}

// leaveCall 退出通话房间，通知剩下的成员并清除忙碌
func (c *SessionCoordinator) leaveCall(ctx context.Context, s *session.Session, data json.RawMessage) error {
	callID, err := decodeID(event.LeaveCall, data)
	if err != nil {
		return err
	}
	room := entity.RoomName(callID)
	if !s.RemoveRoom(room) {
		return nil
	}
	c.router.Leave(s.ID(), room)
	c.broadcast(ctx, room, event.CallLeft(callID), s.UserID())
	return c.setBusy(ctx, s, false, entity.ReasonCallLeave)
}

// setBusy 读改写自己的记录，保留 online；没有记录时按当前连接在线处理
func (c *SessionCoordinator) setBusy(ctx context.Context, s *session.Session, busy bool, reason entity.ChangeReason) error {
	userID := s.UserID()
	record, err := c.store.Get(ctx, userID)
	switch {
	case errors.Is(err, relayerrors.ErrPresenceNotFound):
		record = &entity.PresenceRecord{Online: true, SocketID: s.ID()}
	case err != nil:
		zlog.C(ctx).Warn("read own presence failed", zap.String("userID", userID.String()), zap.Error(err))
		return err
	}
	if record.IsBusy == busy {
		return nil
	}

	record.IsBusy = busy
	if err := c.store.Set(ctx, userID, record); err != nil {
		zlog.C(ctx).Warn("write busy flag failed", zap.String("userID", userID.String()), zap.Error(err))
		return err
	}
	c.publish(userID, record, reason)
	return nil
}

// ping 应用层心跳，载荷原样带回
func (c *SessionCoordinator) ping(ctx context.Context, s *session.Session, data json.RawMessage) error {
	var payload interface{}
	if len(data) > 0 {
		payload = data
	}
	c.emit(ctx, s.ID(), event.Pong, payload)
	return nil
}
