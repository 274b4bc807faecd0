package entity

import "time"

// UserID 认证后的用户标识，既是在线状态的 key，也是该用户的个人房间名
type UserID string

// ConnectionID 单条 WebSocket 连接的标识（即 socketId）
type ConnectionID string

// RoomName 房间名：用户 ID、聊天 ID 或通话 ID
type RoomName string

// Room 返回用户的个人房间
func (u UserID) Room() RoomName { return RoomName(u) }

func (u UserID) String() string { return string(u) }

func (c ConnectionID) String() string { return string(c) }

// PresenceRecord 外部 KV 中每个用户一条的在线状态，后写覆盖
type PresenceRecord struct {
	Online   bool         `json:"online"`
	IsBusy   bool         `json:"isBusy"`
	SocketID ConnectionID `json:"socketId"`
}

// ChangeReason 在线状态变更原因
type ChangeReason string

const (
	ReasonConnect    ChangeReason = "connect"
	ReasonUpdate     ChangeReason = "update"
	ReasonDisconnect ChangeReason = "disconnect"
	ReasonCallJoin   ChangeReason = "call_join"
	ReasonCallLeave  ChangeReason = "call_leave"
)

// PresenceChange 发布给下游（Kafka/NATS）的状态变更事件
type PresenceChange struct {
	UserID    UserID       `json:"userId"`
	Online    bool         `json:"online"`
	IsBusy    bool         `json:"isBusy"`
	SocketID  ConnectionID `json:"socketId,omitempty"`
	Reason    ChangeReason `json:"reason"`
	Timestamp time.Time    `json:"timestamp"`
}
