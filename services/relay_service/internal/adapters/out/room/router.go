package room

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/EthanQC/relay/services/relay_service/internal/domain/entity"
	"github.com/EthanQC/relay/services/relay_service/internal/domain/event"
	"github.com/EthanQC/relay/services/relay_service/internal/ports/out"
	relayerrors "github.com/EthanQC/relay/services/relay_service/pkg/errors"
)

// Router 进程内房间路由：room -> 成员连接，conn -> 所在房间，两份索引同锁维护
type Router struct {
	mu     sync.RWMutex
	conns  map[entity.ConnectionID]out.Connection
	rooms  map[entity.RoomName]map[entity.ConnectionID]struct{}
	joined map[entity.ConnectionID]map[entity.RoomName]struct{}

	// 统计
	frames  int64
	dropped int64
}

func NewRouter() *Router {
	return &Router{
		conns:  make(map[entity.ConnectionID]out.Connection),
		rooms:  make(map[entity.RoomName]map[entity.ConnectionID]struct{}),
		joined: make(map[entity.ConnectionID]map[entity.RoomName]struct{}),
	}
}

func (r *Router) Attach(conn out.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := conn.ID()
	r.conns[id] = conn
	if _, ok := r.joined[id]; !ok {
		r.joined[id] = make(map[entity.RoomName]struct{})
	}
}

func (r *Router) Detach(connID entity.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveAllLocked(connID)
	delete(r.conns, connID)
	delete(r.joined, connID)
}

func (r *Router) Join(connID entity.ConnectionID, room entity.RoomName) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms, ok := r.joined[connID]
	if !ok {
		return false
	}
	if _, ok := rooms[room]; ok {
		return false
	}
	rooms[room] = struct{}{}

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[entity.ConnectionID]struct{})
		r.rooms[room] = members
	}
	members[connID] = struct{}{}
	return true
}

func (r *Router) Leave(connID entity.ConnectionID, room entity.RoomName) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(connID, room)
}

func (r *Router) LeaveAll(connID entity.ConnectionID) []entity.RoomName {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveAllLocked(connID)
}

func (r *Router) leaveLocked(connID entity.ConnectionID, room entity.RoomName) bool {
	rooms, ok := r.joined[connID]
	if !ok {
		return false
	}
	if _, ok := rooms[room]; !ok {
		return false
	}
	delete(rooms, room)

	if members, ok := r.rooms[room]; ok {
		delete(members, connID)
		// 空房间直接回收
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	return true
}

func (r *Router) leaveAllLocked(connID entity.ConnectionID) []entity.RoomName {
	rooms := make([]entity.RoomName, 0, len(r.joined[connID]))
	for room := range r.joined[connID] {
		rooms = append(rooms, room)
	}
	for _, room := range rooms {
		r.leaveLocked(connID, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	return rooms
}

// Broadcast 按广播时刻的成员投递，帧只编码一次。
// 单个成员发送失败只计入 dropped，不影响其他成员。
func (r *Router) Broadcast(room entity.RoomName, name string, payload interface{}, except ...entity.ConnectionID) (int, error) {
	frame, err := event.Encode(name, payload)
	if err != nil {
		return 0, err
	}

	r.mu.RLock()
	targets := make([]out.Connection, 0, len(r.rooms[room]))
	for id := range r.rooms[room] {
		if containsID(except, id) {
			continue
		}
		if conn, ok := r.conns[id]; ok {
			targets = append(targets, conn)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, conn := range targets {
		if err := conn.Send(frame); err != nil {
			atomic.AddInt64(&r.dropped, 1)
			zap.L().Warn("broadcast send failed",
				zap.String("room", string(room)),
				zap.String("event", name),
				zap.String("connID", conn.ID().String()),
				zap.Error(err))
			continue
		}
		delivered++
	}
	atomic.AddInt64(&r.frames, int64(delivered))
	return delivered, nil
}

func (r *Router) Emit(connID entity.ConnectionID, name string, payload interface{}) error {
	r.mu.RLock()
	conn, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("emit %s to %s: %w", name, connID, relayerrors.ErrConnectionNotFound)
	}

	frame, err := event.Encode(name, payload)
	if err != nil {
		return err
	}
	if err := conn.Send(frame); err != nil {
		atomic.AddInt64(&r.dropped, 1)
		return fmt.Errorf("emit %s to %s: %w", name, connID, err)
	}
	atomic.AddInt64(&r.frames, 1)
	return nil
}

// Members 返回房间当前成员（排序后）
func (r *Router) Members(room entity.RoomName) []entity.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]entity.ConnectionID, 0, len(r.rooms[room]))
	for id := range r.rooms[room] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Stats 获取统计信息
func (r *Router) Stats() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string]int64{
		"attached_connections": int64(len(r.conns)),
		"rooms":                int64(len(r.rooms)),
		"frames_sent":          atomic.LoadInt64(&r.frames),
		"frames_dropped":       atomic.LoadInt64(&r.dropped),
	}
}

func containsID(ids []entity.ConnectionID, id entity.ConnectionID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
