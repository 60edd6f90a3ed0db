package workflow

import (
	"context"

	"github.com/pitabwire/signoff/model"
)

// InstanceStore persists workflow instances. At most one active instance may
// exist per (document, collection) key.
type InstanceStore interface {
	// Create persists a new instance. Returns CONFLICT if an active instance
	// already exists for the same document and collection.
	Create(ctx context.Context, instance model.WorkflowInstance) error

	// Get returns the most recently started instance for the document and
	// collection, active or not. Returns NOT_FOUND if none exists.
	Get(ctx context.Context, documentID, collection string) (model.WorkflowInstance, error)

	// Update persists an updated instance with optimistic locking. The
	// version must match the stored version. Returns CONFLICT if it has
	// changed.
	Update(ctx context.Context, instance model.WorkflowInstance) error

	// List returns instances matching filters, newest first.
	List(ctx context.Context, filters model.InstanceFilters) ([]model.WorkflowInstance, error)
}
