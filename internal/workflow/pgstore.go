package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitabwire/signoff/model"
)

const uniqueViolation = "23505"

// PgInstanceStore is a PostgreSQL-backed InstanceStore using pgx/v5. A
// partial unique index on (document_id, collection) WHERE is_active enforces
// the single active instance per key across processes.
type PgInstanceStore struct {
	pool *pgxpool.Pool
}

// NewPgInstanceStore creates a new PostgreSQL instance store.
func NewPgInstanceStore(pool *pgxpool.Pool) *PgInstanceStore {
	return &PgInstanceStore{pool: pool}
}

const instanceColumns = `
	id, workflow_id, document_id, collection,
	current_step, is_active, outcome, steps,
	started_at, updated_at, completed_at, version`

// Create inserts a new workflow instance.
func (s *PgInstanceStore) Create(ctx context.Context, inst model.WorkflowInstance) error {
	stepsJSON, err := json.Marshal(inst.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflow_instances (`+instanceColumns+`
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12
		)`,
		inst.ID, inst.WorkflowID, inst.DocumentID, inst.Collection,
		inst.CurrentStep, inst.IsActive, inst.Outcome, stepsJSON,
		inst.StartedAt, inst.UpdatedAt, inst.CompletedAt, inst.Version,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return model.NewConflictError(
			fmt.Sprintf("an active workflow already exists for document %q in %q", inst.DocumentID, inst.Collection),
		)
	}
	if err != nil {
		return fmt.Errorf("insert workflow instance: %w", err)
	}
	return nil
}

// Get returns the most recently started instance for the key.
func (s *PgInstanceStore) Get(ctx context.Context, documentID, collection string) (model.WorkflowInstance, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+instanceColumns+`
		FROM workflow_instances
		WHERE document_id = $1 AND collection = $2
		ORDER BY started_at DESC
		LIMIT 1`,
		documentID, collection,
	)
	inst, err := scanInstance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.WorkflowInstance{}, model.NewNotFoundError("No workflow found for this document")
	}
	if err != nil {
		return model.WorkflowInstance{}, fmt.Errorf("query workflow instance: %w", err)
	}
	return inst, nil
}

// Update persists an updated instance with optimistic locking.
func (s *PgInstanceStore) Update(ctx context.Context, inst model.WorkflowInstance) error {
	stepsJSON, err := json.Marshal(inst.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE workflow_instances SET
			current_step = $1,
			is_active = $2,
			outcome = $3,
			steps = $4,
			updated_at = $5,
			completed_at = $6,
			version = $7
		WHERE id = $8 AND version = $9`,
		inst.CurrentStep, inst.IsActive, inst.Outcome, stepsJSON,
		inst.UpdatedAt, inst.CompletedAt, inst.Version+1,
		inst.ID, inst.Version,
	)
	if err != nil {
		return fmt.Errorf("update workflow instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("workflow instance %q version conflict (expected %d)", inst.ID, inst.Version),
		)
	}
	return nil
}

// List returns instances matching filters, newest first.
func (s *PgInstanceStore) List(ctx context.Context, f model.InstanceFilters) ([]model.WorkflowInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM workflow_instances`

	var (
		where []string
		args  []any
	)
	if f.ActiveOnly {
		where = append(where, "is_active")
	}
	if f.WorkflowID != "" {
		args = append(args, f.WorkflowID)
		where = append(where, fmt.Sprintf("workflow_id = $%d", len(args)))
	}
	if f.Collection != "" {
		args = append(args, f.Collection)
		where = append(where, fmt.Sprintf("collection = $%d", len(args)))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query workflow instances: %w", err)
	}
	defer rows.Close()

	var result []model.WorkflowInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow instance: %w", err)
		}
		result = append(result, inst)
	}
	return result, rows.Err()
}

func scanInstance(row pgx.Row) (model.WorkflowInstance, error) {
	var (
		inst      model.WorkflowInstance
		stepsJSON []byte
		outcome   *string
	)
	err := row.Scan(
		&inst.ID, &inst.WorkflowID, &inst.DocumentID, &inst.Collection,
		&inst.CurrentStep, &inst.IsActive, &outcome, &stepsJSON,
		&inst.StartedAt, &inst.UpdatedAt, &inst.CompletedAt, &inst.Version,
	)
	if err != nil {
		return model.WorkflowInstance{}, err
	}
	if outcome != nil {
		inst.Outcome = *outcome
	}
	if stepsJSON != nil {
		if err := json.Unmarshal(stepsJSON, &inst.Steps); err != nil {
			return model.WorkflowInstance{}, fmt.Errorf("unmarshal steps: %w", err)
		}
	}
	inst.StartedAt = inst.StartedAt.UTC()
	inst.UpdatedAt = inst.UpdatedAt.UTC()
	return inst, nil
}
