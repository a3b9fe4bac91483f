package quota

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. All operations run under one mutex,
// which serializes the check-and-increment sequence per process. Suitable
// for tests and single-node deployments.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*DayRecord
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*DayRecord)}
}

func recordKey(userID, day string) string { return userID + "|" + day }

// GetOrCreate implements Store.
func (s *MemoryStore) GetOrCreate(_ context.Context, seed DayRecord) (DayRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.getOrCreateLocked(seed), nil
}

// Increment implements Store.
func (s *MemoryStore) Increment(_ context.Context, seed DayRecord, delta Delta) (DayRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.getOrCreateLocked(seed)
	rec.Level1Count += delta.Level1
	rec.Level2Count += delta.Level2
	rec.Tokens += delta.Tokens
	rec.CostMicros += delta.CostMicros
	applyBlocked(rec)
	return *rec, nil
}

// PurgeBefore implements Store.
func (s *MemoryStore) PurgeBefore(_ context.Context, day string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, rec := range s.records {
		if rec.Day < day {
			delete(s.records, key)
		}
	}
	return nil
}

func (s *MemoryStore) getOrCreateLocked(seed DayRecord) *DayRecord {
	key := recordKey(seed.UserID, seed.Day)
	if rec, ok := s.records[key]; ok {
		return rec
	}
	rec := seed
	s.records[key] = &rec
	return &rec
}

var _ Store = (*MemoryStore)(nil)
