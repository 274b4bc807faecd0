package out

import (
	"github.com/EthanQC/relay/services/relay_service/internal/domain/entity"
)

// Connection 一条可写的客户端连接
type Connection interface {
	ID() entity.ConnectionID
	// Send 非阻塞写入发送缓冲，缓冲满或已关闭时返回错误
	Send(message []byte) error
	Close() error
}

// RoomRouter 房间成员关系与组播
type RoomRouter interface {
	// Attach 登记连接，之后才能加入房间
	Attach(conn Connection)
	// Detach 注销连接并退出它所在的全部房间
	Detach(connID entity.ConnectionID)
	// Join 加入房间，已在房间中返回 false
	Join(connID entity.ConnectionID, room entity.RoomName) bool
	// Leave 退出房间，不在房间中返回 false
	Leave(connID entity.ConnectionID, room entity.RoomName) bool
	// LeaveAll 退出全部房间，返回退出的房间列表
	LeaveAll(connID entity.ConnectionID) []entity.RoomName
	// Broadcast 向房间内当前成员投递，except 中的连接不投递，返回成功投递数
	Broadcast(room entity.RoomName, event string, payload interface{}, except ...entity.ConnectionID) (int, error)
	// Emit 只投递给一条连接
	Emit(connID entity.ConnectionID, event string, payload interface{}) error
}
