package directory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitabwire/signoff/model"
)

// PgDirectory reads users from the users table.
type PgDirectory struct {
	pool *pgxpool.Pool
}

// NewPgDirectory creates a directory backed by pool.
func NewPgDirectory(pool *pgxpool.Pool) *PgDirectory {
	return &PgDirectory{pool: pool}
}

// FindUsersByRole implements model.UserDirectory.
func (d *PgDirectory) FindUsersByRole(ctx context.Context, roles []string) ([]model.User, error) {
	return d.query(ctx,
		`SELECT id, name, email, role, department FROM users
		 WHERE role = ANY($1) ORDER BY created_at, id`, roles)
}

// FindUsersByDepartment implements model.UserDirectory.
func (d *PgDirectory) FindUsersByDepartment(ctx context.Context, department string) ([]model.User, error) {
	return d.query(ctx,
		`SELECT id, name, email, role, department FROM users
		 WHERE department = $1 ORDER BY created_at, id`, department)
}

func (d *PgDirectory) query(ctx context.Context, sql string, arg any) ([]model.User, error) {
	rows, err := d.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("directory: querying users: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.User, error) {
		var u model.User
		err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Department)
		return u, err
	})
	if err != nil {
		return nil, fmt.Errorf("directory: scanning users: %w", err)
	}
	return users, nil
}
