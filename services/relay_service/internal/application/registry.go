package application

import (
	"fmt"
	"sort"
	"sync"

	"github.com/EthanQC/relay/services/relay_service/internal/domain/entity"
	"github.com/EthanQC/relay/services/relay_service/internal/domain/session"
)

// SessionRegistry connID -> 会话，连接建立时插入，断开时移除
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[entity.ConnectionID]*session.Session
	users    map[entity.UserID]map[entity.ConnectionID]struct{}
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[entity.ConnectionID]*session.Session),
		users:    make(map[entity.UserID]map[entity.ConnectionID]struct{}),
	}
}

// Add 登记已激活的会话，connID 重复返回错误
func (r *SessionRegistry) Add(s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID()]; ok {
		return fmt.Errorf("session %s already registered", s.ID())
	}
	r.sessions[s.ID()] = s
	conns, ok := r.users[s.UserID()]
	if !ok {
		conns = make(map[entity.ConnectionID]struct{})
		r.users[s.UserID()] = conns
	}
	conns[s.ID()] = struct{}{}
	return nil
}

func (r *SessionRegistry) Get(connID entity.ConnectionID) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	return s, ok
}

func (r *SessionRegistry) Remove(connID entity.ConnectionID) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	if !ok {
		return nil, false
	}
	delete(r.sessions, connID)
	uid := s.UserID()
	delete(r.users[uid], connID)
	if len(r.users[uid]) == 0 {
		delete(r.users, uid)
	}
	return s, true
}

func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Users 当前有会话的用户数
func (r *SessionRegistry) Users() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// ByUser 返回同一用户的全部会话（按 connID 排序）
func (r *SessionRegistry) ByUser(userID entity.UserID) []*session.Session {
	r.mu.RLock()
	list := make([]*session.Session, 0, len(r.users[userID]))
	for id := range r.users[userID] {
		list = append(list, r.sessions[id])
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ID() < list[j].ID() })
	return list
}

// All 返回全部会话（按 connID 排序）
func (r *SessionRegistry) All() []*session.Session {
	r.mu.RLock()
	all := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[i].ID() < all[j].ID() })
	return all
}
