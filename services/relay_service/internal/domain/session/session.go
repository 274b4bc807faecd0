package session

import (
	"sort"
	"sync"
	"time"

	"github.com/EthanQC/relay/services/relay_service/internal/domain/entity"
	relayerrors "github.com/EthanQC/relay/services/relay_service/pkg/errors"
)

// State 会话状态
type State string

const (
	StateUnauthenticated State = "unauthenticated" // 握手中，尚未确认身份
	StateActive          State = "active"          // 身份已确认，可处理事件
	StateClosed          State = "closed"          // 已关闭，终态
)

// Event 会话事件
type Event string

const (
	EventAuthenticate Event = "authenticate"
	EventReject       Event = "reject"
	EventClose        Event = "close"
)

type stateEvent struct {
	state State
	event Event
}

var transitions = map[stateEvent]State{
	{StateUnauthenticated, EventAuthenticate}: StateActive,
	{StateUnauthenticated, EventReject}:       StateClosed,
	{StateUnauthenticated, EventClose}:        StateClosed,
	{StateActive, EventClose}:                 StateClosed,
}

// Session 一条连接与一个用户身份的绑定，只属于这一条连接，不持久化
type Session struct {
	id          entity.ConnectionID
	userID      entity.UserID
	state       State
	rooms       map[entity.RoomName]struct{}
	calls       map[entity.RoomName]struct{} // rooms 中属于通话的部分
	connectedAt time.Time
	activeAt    time.Time
	closedAt    time.Time
	mu          sync.RWMutex
}

// New 创建一个未认证的会话
func New(id entity.ConnectionID) *Session {
	return &Session{
		id:          id,
		state:       StateUnauthenticated,
		rooms:       make(map[entity.RoomName]struct{}),
		calls:       make(map[entity.RoomName]struct{}),
		connectedAt: time.Now(),
	}
}

func (s *Session) transition(ev Event) error {
	next, ok := transitions[stateEvent{s.state, ev}]
	if !ok {
		return relayerrors.ErrInvalidTransition
	}
	s.state = next
	switch next {
	case StateActive:
		s.activeAt = time.Now()
	case StateClosed:
		s.closedAt = time.Now()
	}
	return nil
}

// Activate 绑定身份并进入 Active，个人房间同时记入已加入房间
func (s *Session) Activate(userID entity.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if userID == "" {
		return relayerrors.ErrInvalidCredential
	}
	if err := s.transition(EventAuthenticate); err != nil {
		return err
	}
	s.userID = userID
	s.rooms[userID.Room()] = struct{}{}
	return nil
}

// Reject 认证失败，直接关闭
func (s *Session) Reject() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(EventReject)
}

// Close 关闭会话。只有第一次调用返回 true，重复调用无副作用。
func (s *Session) Close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	return s.transition(EventClose) == nil
}

// AddRoom 记录加入的房间，已在房间中返回 false
func (s *Session) AddRoom(room entity.RoomName) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room]; ok {
		return false
	}
	s.rooms[room] = struct{}{}
	return true
}

// RemoveRoom 移除房间；个人房间不能移除
func (s *Session) RemoveRoom(room entity.RoomName) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room == s.userID.Room() {
		return false
	}
	if _, ok := s.rooms[room]; !ok {
		return false
	}
	delete(s.rooms, room)
	delete(s.calls, room)
	return true
}

// MarkCall 把已加入的房间标记为通话房间
func (s *Session) MarkCall(room entity.RoomName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room]; ok {
		s.calls[room] = struct{}{}
	}
}

// CallRooms 返回仍在其中的通话房间（排序后）
func (s *Session) CallRooms() []entity.RoomName {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]entity.RoomName, 0, len(s.calls))
	for r := range s.calls {
		rooms = append(rooms, r)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	return rooms
}

// HasRoom 是否已在房间中
func (s *Session) HasRoom(room entity.RoomName) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[room]
	return ok
}

// Rooms 返回已加入房间（排序后）
func (s *Session) Rooms() []entity.RoomName {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]entity.RoomName, 0, len(s.rooms))
	for r := range s.rooms {
		rooms = append(rooms, r)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i] < rooms[j] })
	return rooms
}

func (s *Session) ID() entity.ConnectionID { return s.id }

func (s *Session) UserID() entity.UserID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) IsActive() bool { return s.State() == StateActive }

// Info 会话快照
type Info struct {
	ConnectionID entity.ConnectionID `json:"connectionId"`
	UserID       entity.UserID       `json:"userId"`
	State        State               `json:"state"`
	Rooms        []entity.RoomName   `json:"rooms"`
	ConnectedAt  time.Time           `json:"connectedAt"`
	ActiveAt     time.Time           `json:"activeAt,omitempty"`
	ClosedAt     time.Time           `json:"closedAt,omitempty"`
}

func (s *Session) Info() Info {
	rooms := s.Rooms()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		ConnectionID: s.id,
		UserID:       s.userID,
		State:        s.state,
		Rooms:        rooms,
		ConnectedAt:  s.connectedAt,
		ActiveAt:     s.activeAt,
		ClosedAt:     s.closedAt,
	}
}
