package audit

import (
	"context"
	"sync"

	"github.com/pitabwire/signoff/model"
)

// MemoryStore is an in-memory audit Store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []model.AuditLogEntry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, entries ...model.AuditLogEntry) error {
	s.mu.Lock()
	s.entries = append(s.entries, entries...)
	s.mu.Unlock()
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, f model.AuditFilters) ([]model.AuditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.AuditLogEntry
	for _, e := range s.entries {
		if f.InstanceID != "" && e.InstanceID != f.InstanceID {
			continue
		}
		if f.DocumentID != "" && e.Document.ID != f.DocumentID {
			continue
		}
		if f.Collection != "" && e.Document.Collection != f.Collection {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of stored entries. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
