package repository

import (
	"context"
	"sync"
	"time"

	"github.com/curtistech/unlock-server/internal/model"
)

type memoryStore struct {
	mu      sync.RWMutex
	records recordMap
}

// NewMemoryStore returns a store that lives for the lifetime of the process.
func NewMemoryStore() RedemptionStore {
	return &memoryStore{records: make(recordMap)}
}

func (s *memoryStore) FindByCode(ctx context.Context, code string) (*model.Redemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[code]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (s *memoryStore) FindBySessionID(ctx context.Context, sessionID string) (*model.Redemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.records.findBySessionID(sessionID), nil
}

func (s *memoryStore) List(ctx context.Context) ([]model.Redemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.records.list(), nil
}

func (s *memoryStore) Save(ctx context.Context, rec *model.Redemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records.save(rec)
	return nil
}

func (s *memoryStore) MarkUsed(ctx context.Context, code string, usedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.records.markUsed(code, usedAt), nil
}

func (s *memoryStore) Ping(ctx context.Context) error {
	return nil
}
