package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pitabwire/signoff/model"
)

// MemoryInstanceStore is an in-memory InstanceStore. Superseded instances of
// a key are retained as history.
type MemoryInstanceStore struct {
	mu    sync.RWMutex
	byKey map[string][]*model.WorkflowInstance // key: instance key, oldest first
}

// NewMemoryInstanceStore creates a new in-memory instance store.
func NewMemoryInstanceStore() *MemoryInstanceStore {
	return &MemoryInstanceStore{
		byKey: make(map[string][]*model.WorkflowInstance),
	}
}

// Create persists a new workflow instance.
func (s *MemoryInstanceStore) Create(_ context.Context, inst model.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := inst.Key()
	history := s.byKey[key]
	if n := len(history); n > 0 && history[n-1].IsActive {
		return model.NewConflictError(
			fmt.Sprintf("an active workflow already exists for document %q in %q", inst.DocumentID, inst.Collection),
		)
	}

	s.byKey[key] = append(history, inst.Clone())
	return nil
}

// Get returns the latest instance for the key.
func (s *MemoryInstanceStore) Get(_ context.Context, documentID, collection string) (model.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.byKey[model.InstanceKey(documentID, collection)]
	if len(history) == 0 {
		return model.WorkflowInstance{}, model.NewNotFoundError("No workflow found for this document")
	}
	return *history[len(history)-1].Clone(), nil
}

// Update persists an updated instance with optimistic locking.
func (s *MemoryInstanceStore) Update(_ context.Context, inst model.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.byKey[inst.Key()]
	idx := -1
	for i, h := range history {
		if h.ID == inst.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return model.NewNotFoundError(
			fmt.Sprintf("workflow instance %q not found", inst.ID),
		)
	}

	// Optimistic lock check.
	if history[idx].Version != inst.Version {
		return model.NewConflictError(
			fmt.Sprintf("workflow instance %q version conflict (expected %d, got %d)", inst.ID, inst.Version, history[idx].Version),
		)
	}

	next := inst.Clone()
	next.Version++
	history[idx] = next
	return nil
}

// List returns instances matching filters, newest first.
func (s *MemoryInstanceStore) List(_ context.Context, f model.InstanceFilters) ([]model.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.WorkflowInstance
	for _, history := range s.byKey {
		for _, inst := range history {
			if f.ActiveOnly && !inst.IsActive {
				continue
			}
			if f.WorkflowID != "" && inst.WorkflowID != f.WorkflowID {
				continue
			}
			if f.Collection != "" && inst.Collection != f.Collection {
				continue
			}
			result = append(result, *inst.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})

	if f.Limit > 0 && f.Limit < len(result) {
		result = result[:f.Limit]
	}
	return result, nil
}

// Len returns the total number of instances, including history. For testing.
func (s *MemoryInstanceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, h := range s.byKey {
		n += len(h)
	}
	return n
}
