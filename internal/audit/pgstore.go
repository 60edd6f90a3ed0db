package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitabwire/signoff/model"
)

// PgStore is a PostgreSQL-backed audit Store. The audit_log table rejects
// UPDATE and DELETE through a trigger installed by the migrations.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL audit store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const insertEntry = `
	INSERT INTO audit_log (
		id, instance_id, workflow_id, workflow_name,
		document_id, collection, document_title,
		step_index, step_id, step_name, step_type,
		user_id, action, created_at, comment,
		previous_status, new_status, duration_ms, metadata
	) VALUES (
		$1, $2, $3, $4,
		$5, $6, $7,
		$8, $9, $10, $11,
		$12, $13, $14, $15,
		$16, $17, $18, $19
	)`

// Append writes all entries in one transaction.
func (s *PgStore) Append(ctx context.Context, entries ...model.AuditLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		metaJSON, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		var (
			stepIndex                  *int
			stepID, stepName, stepType *string
		)
		if e.Step != nil {
			stepIndex = &e.Step.Index
			stepID, stepName, stepType = &e.Step.ID, &e.Step.Name, &e.Step.Type
		}
		batch.Queue(insertEntry,
			e.ID, e.InstanceID, e.WorkflowID, e.WorkflowName,
			e.Document.ID, e.Document.Collection, e.Document.Title,
			stepIndex, stepID, stepName, stepType,
			nullable(e.User), e.Action, e.Timestamp, nullable(e.Comment),
			nullable(e.PreviousStatus), nullable(e.NewStatus), e.DurationMS, metaJSON,
		)
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("insert audit entries: %w", err)
	}
	return nil
}

// List returns matching entries in append order.
func (s *PgStore) List(ctx context.Context, f model.AuditFilters) ([]model.AuditLogEntry, error) {
	query := `
		SELECT id, instance_id, workflow_id, workflow_name,
		       document_id, collection, document_title,
		       step_index, step_id, step_name, step_type,
		       user_id, action, created_at, comment,
		       previous_status, new_status, duration_ms, metadata
		FROM audit_log`

	var (
		where []string
		args  []any
	)
	add := func(col string, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("instance_id", f.InstanceID)
	add("document_id", f.DocumentID)
	add("collection", f.Collection)
	add("action", f.Action)

	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []model.AuditLogEntry
	for rows.Next() {
		var (
			e                                  model.AuditLogEntry
			stepIndex                          *int
			stepID, stepName, stepType         *string
			user, comment, prevStatus, newStat *string
			metaJSON                           []byte
		)
		if err := rows.Scan(
			&e.ID, &e.InstanceID, &e.WorkflowID, &e.WorkflowName,
			&e.Document.ID, &e.Document.Collection, &e.Document.Title,
			&stepIndex, &stepID, &stepName, &stepType,
			&user, &e.Action, &e.Timestamp, &comment,
			&prevStatus, &newStat, &e.DurationMS, &metaJSON,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if stepIndex != nil {
			e.Step = &model.StepRef{Index: *stepIndex, ID: deref(stepID), Name: deref(stepName), Type: deref(stepType)}
		}
		e.User, e.Comment = deref(user), deref(comment)
		e.PreviousStatus, e.NewStatus = deref(prevStatus), deref(newStat)
		if len(metaJSON) > 0 && string(metaJSON) != "null" {
			if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
