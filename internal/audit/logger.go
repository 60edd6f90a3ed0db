// Package audit records the append-only audit trail of workflow instances.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pitabwire/signoff/model"
)

// Store persists audit entries. Entries are never updated or deleted.
type Store interface {
	Append(ctx context.Context, entries ...model.AuditLogEntry) error
	List(ctx context.Context, filters model.AuditFilters) ([]model.AuditLogEntry, error)
}

// Subject identifies the instance and document an event belongs to.
type Subject struct {
	InstanceID   string
	WorkflowID   string
	WorkflowName string
	Document     model.DocumentRef
}

// Logger builds audit entries from events and appends them to a Store.
// Timestamps come from the logger's clock and never decrease.
type Logger struct {
	store Store
	now   func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewLogger creates a Logger writing to store.
func NewLogger(store Store) *Logger {
	return &Logger{store: store, now: time.Now}
}

// WithClock replaces the logger's clock. For testing.
func (l *Logger) WithClock(now func() time.Time) *Logger {
	l.now = now
	return l
}

// Append stamps and writes events in order. Write failures are returned to
// the caller.
func (l *Logger) Append(ctx context.Context, subject Subject, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	return l.store.Append(ctx, l.build(subject, events)...)
}

func (l *Logger) build(subject Subject, events []Event) []model.AuditLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]model.AuditLogEntry, 0, len(events))
	for _, ev := range events {
		ts := l.now().UTC()
		if ts.Before(l.last) {
			ts = l.last
		}
		l.last = ts

		entry := model.AuditLogEntry{
			ID:           uuid.New().String(),
			InstanceID:   subject.InstanceID,
			WorkflowID:   subject.WorkflowID,
			WorkflowName: subject.WorkflowName,
			Document:     subject.Document,
			Action:       ev.Action(),
			Timestamp:    ts,
		}
		ev.fill(&entry)
		entries = append(entries, entry)
	}
	return entries
}

// List returns entries matching filters in append order.
func (l *Logger) List(ctx context.Context, filters model.AuditFilters) ([]model.AuditLogEntry, error) {
	return l.store.List(ctx, filters)
}
