package revisit

import (
	"context"
	"sync"
	"time"

	"github.com/fwojciec/egress"
)

var _ egress.RevisitStore = (*MemoryStore)(nil)

// MemoryStore keeps revisit records in a map. Records expire a retention
// period after they were last seen; expired records are dropped on access
// and by Sweep.
type MemoryStore struct {
	mu        sync.Mutex
	records   map[string]egress.RevisitInfo
	retention time.Duration
	now       func() time.Time
}

// StoreOption configures a MemoryStore.
type StoreOption func(*MemoryStore)

// WithRetention keeps records for d after LastSeen instead of twice their TTL.
func WithRetention(d time.Duration) StoreOption {
	return func(s *MemoryStore) {
		s.retention = d
	}
}

// WithStoreClock replaces time.Now. Intended for tests.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]egress.RevisitInfo),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindRevisit returns a copy of the record for url.
func (s *MemoryStore) FindRevisit(_ context.Context, url string) (*egress.RevisitInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.records[url]
	if !ok {
		return nil, egress.Errorf(egress.ENOTFOUND, "no revisit record for %s", url)
	}
	if s.expired(info) {
		delete(s.records, url)
		return nil, egress.Errorf(egress.ENOTFOUND, "no revisit record for %s", url)
	}
	return &info, nil
}

// SaveRevisit stores a copy of info.
func (s *MemoryStore) SaveRevisit(_ context.Context, info *egress.RevisitInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[info.URL] = *info
	return nil
}

// DeleteRevisit removes the record for url.
func (s *MemoryStore) DeleteRevisit(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, url)
	return nil
}

// Sweep drops expired records and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for url, info := range s.records {
		if s.expired(info) {
			delete(s.records, url)
			n++
		}
	}
	return n
}

// Len returns the number of stored records, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *MemoryStore) expired(info egress.RevisitInfo) bool {
	keep := s.retention
	if keep <= 0 {
		keep = 2 * info.TTL
	}
	if keep <= 0 {
		return false
	}
	return s.now().Sub(info.LastSeen) > keep
}
