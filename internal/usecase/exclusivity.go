package usecase

import (
	"sync"

	"github.com/paramed/reconciler/internal/domain"
)

// ExclusivityStore is the run-wide set of consumed target records.
// It is shared by every partition worker of one run and safe for concurrent use.
type ExclusivityStore struct {
	mu   sync.Mutex
	used map[string]struct{}
}

// NewExclusivityStore creates an empty store
func NewExclusivityStore() *ExclusivityStore {
	return &ExclusivityStore{used: make(map[string]struct{})}
}

// TryConsume marks the record consumed and reports whether this call won it
func (s *ExclusivityStore) TryConsume(r domain.Record) bool {
	key := exclusivityKey(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.used[key]; taken {
		return false
	}
	s.used[key] = struct{}{}
	return true
}

// IsConsumed reports whether the record was already consumed
func (s *ExclusivityStore) IsConsumed(r domain.Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, taken := s.used[exclusivityKey(r)]
	return taken
}

// Len returns the number of consumed records
func (s *ExclusivityStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.used)
}

func exclusivityKey(r domain.Record) string {
	return recordKey(r.Source, r.ID)
}

// recordKey identifies a record across catalogs; ids are only unique per source
func recordKey(source, id string) string {
	return source + "\x00" + id
}
