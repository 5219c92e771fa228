package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process. Expired records are dropped on read.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[string]Record
	now  func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]Record), now: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, rec Record, ttl time.Duration) error {
	if rec.ExpiresAt.IsZero() {
		rec.ExpiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.ID] = rec
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	if !s.now().Before(rec.ExpiresAt) {
		delete(s.recs, id)
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, id)
	return nil
}
