package in

import (
	"encoding/json"

	"github.com/EthanQC/relay/services/relay_service/internal/domain/entity"
)

// StatusPayload online:status:<uid> 的载荷。
// 自己的状态带 userId，订阅的目标带 targetId。
type StatusPayload struct {
	UserID   entity.UserID `json:"userId,omitempty"`
	TargetID entity.UserID `json:"targetId,omitempty"`
	Online   bool          `json:"online"`
}

// CallInvite initialize:call 的载荷
type CallInvite struct {
	ID   entity.UserID   `json:"id"`
	Info json.RawMessage `json:"info"`
}

// CallInfo 只取 info 中必需的 call_id，其余字段原样转发
type CallInfo struct {
	CallID string `json:"call_id"`
}

// ChatEnvelope send:chat:message 只校验 chat_id，整个对象原样转发
type ChatEnvelope struct {
	ChatID string `json:"chat_id"`
}

// 不可达原因
const (
	UnavailableNotFound     = "not_found"
	UnavailableNotConnected = "not_connected"
	UnavailableStoreError   = "store_error"
)

// UnavailablePayload unavailable:<id> 的载荷
type UnavailablePayload struct {
	TargetID entity.UserID `json:"targetId"`
	Reason   string        `json:"reason"`
}

// 错误码
const (
	CodeProtocolError = "protocol_error"
	CodeUnknownEvent  = "unknown_event"
	CodeStoreError    = "store_error"
)

// ErrorPayload error 帧的载荷，只发给出错的客户端
type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ConnectedPayload 激活后的欢迎帧
type ConnectedPayload struct {
	UserID     entity.UserID       `json:"userId"`
	SocketID   entity.ConnectionID `json:"socketId"`
	ServerTime int64               `json:"serverTime"`
}
