package memory

import (
	"context"
	"sync"

	"github.com/EthanQC/relay/services/relay_service/internal/domain/entity"
	"github.com/EthanQC/relay/services/relay_service/internal/ports/out"
	relayerrors "github.com/EthanQC/relay/services/relay_service/pkg/errors"
)

// PresenceStoreMemory 进程内在线状态存储，单机开发与测试用
type PresenceStoreMemory struct {
	mu      sync.RWMutex
	records map[entity.UserID]entity.PresenceRecord
}

func NewPresenceStoreMemory() out.PresenceStore {
	return &PresenceStoreMemory{records: make(map[entity.UserID]entity.PresenceRecord)}
}

func (m *PresenceStoreMemory) Get(ctx context.Context, userID entity.UserID) (*entity.PresenceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[userID]
	if !ok {
		return nil, relayerrors.ErrPresenceNotFound
	}
	return &rec, nil
}

func (m *PresenceStoreMemory) Set(ctx context.Context, userID entity.UserID, record *entity.PresenceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[userID] = *record
	return nil
}

func (m *PresenceStoreMemory) Delete(ctx context.Context, userID entity.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, userID)
	return nil
}

func (m *PresenceStoreMemory) Close() error { return nil }
