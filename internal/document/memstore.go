// Package document provides model.DocumentStore implementations.
package document

import (
	"context"
	"sync"

	"github.com/pitabwire/signoff/model"
)

// StatusField is the document field written by update_status effects.
const StatusField = "status"

// MemoryStore is an in-memory document store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[docKey]model.Document
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[docKey]model.Document)}
}

type docKey struct {
	collection, id string
}

// Put stores a copy of doc.
func (s *MemoryStore) Put(collection, id string, doc model.Document) {
	cp := make(model.Document, len(doc))
	for k, v := range doc {
		cp[k] = v
	}
	s.mu.Lock()
	s.docs[docKey{collection, id}] = cp
	s.mu.Unlock()
}

// FindDocument implements model.DocumentStore. The returned document is a
// copy.
func (s *MemoryStore) FindDocument(_ context.Context, collection, id string) (model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[docKey{collection, id}]
	if !ok {
		return nil, model.NewNotFoundError("Document not found")
	}
	cp := make(model.Document, len(doc))
	for k, v := range doc {
		cp[k] = v
	}
	return cp, nil
}

// UpdateStatus implements model.DocumentUpdater.
func (s *MemoryStore) UpdateStatus(_ context.Context, collection, id, status string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[docKey{collection, id}]
	if !ok {
		return "", model.NewNotFoundError("Document not found")
	}
	prev, _ := doc[StatusField].(string)
	doc[StatusField] = status
	return prev, nil
}

// SaveDocument implements model.DocumentWriter.
func (s *MemoryStore) SaveDocument(_ context.Context, collection, id string, doc model.Document) error {
	s.Put(collection, id, doc)
	return nil
}
