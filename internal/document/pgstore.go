package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitabwire/signoff/model"
)

// PgStore reads documents from the documents table, where each row holds a
// collection, an id and a jsonb body.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PgStore backed by pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// FindDocument implements model.DocumentStore.
func (s *PgStore) FindDocument(ctx context.Context, collection, id string) (model.Document, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.NewNotFoundError("Document not found")
	}
	if err != nil {
		return nil, fmt.Errorf("document: loading %s/%s: %w", collection, id, err)
	}

	var doc model.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("document: decoding %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// UpdateStatus implements model.DocumentUpdater.
func (s *PgStore) UpdateStatus(ctx context.Context, collection, id, status string) (string, error) {
	var prev *string
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`SELECT data->>'status' FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`,
			collection, id,
		).Scan(&prev)
		if errors.Is(err, pgx.ErrNoRows) {
			return model.NewNotFoundError("Document not found")
		}
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`UPDATE documents SET data = jsonb_set(data, '{status}', to_jsonb($3::text)), updated_at = now()
			 WHERE collection = $1 AND id = $2`,
			collection, id, status,
		)
		return err
	})
	if err != nil {
		if _, ok := err.(*model.ErrorEnvelope); ok {
			return "", err
		}
		return "", fmt.Errorf("document: updating status of %s/%s: %w", collection, id, err)
	}
	if prev == nil {
		return "", nil
	}
	return *prev, nil
}

// SaveDocument implements model.DocumentWriter. It inserts or replaces the
// document body.
func (s *PgStore) SaveDocument(ctx context.Context, collection, id string, doc model.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("document: encoding %s/%s: %w", collection, id, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (collection, id, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		collection, id, raw,
	)
	if err != nil {
		return fmt.Errorf("document: saving %s/%s: %w", collection, id, err)
	}
	return nil
}
