package model

import "context"

// Document is the subject of a workflow: an arbitrary record in a collection.
type Document map[string]any

// Title returns the document's title or name field, or "Untitled".
func (d Document) Title() string {
	for _, key := range []string{"title", "name"} {
		if s, ok := d[key].(string); ok && s != "" {
			return s
		}
	}
	return "Untitled"
}

// DocumentStore reads documents from the host content store.
type DocumentStore interface {
	// FindDocument returns NotFound when the document does not exist.
	FindDocument(ctx context.Context, collection, documentID string) (Document, error)
}

// DocumentUpdater is implemented by document stores that accept status
// writes from completed steps.
type DocumentUpdater interface {
	// UpdateStatus sets the document's status field and returns the value
	// it replaced.
	UpdateStatus(ctx context.Context, collection, documentID, status string) (previous string, err error)
}

// DocumentWriter is implemented by document stores that accept document
// bodies pushed with lifecycle events.
type DocumentWriter interface {
	SaveDocument(ctx context.Context, collection, documentID string, doc Document) error
}
