package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"medguard.org/internal/obs"
)

var _ Directory = (*PGDirectory)(nil)

// PGDirectory implements Directory over PostgreSQL.
type PGDirectory struct {
	db      *sql.DB
	metrics *obs.Registry
}

func NewPGDirectory(db *sql.DB, metrics *obs.Registry) *PGDirectory {
	return &PGDirectory{db: db, metrics: metrics}
}

func (d *PGDirectory) Lookup(ctx context.Context, username string) (*UserRecord, error) {
	row := d.db.QueryRowContext(ctx,
		`select id, username, password_hash, role from users where username=$1`,
		strings.ToLower(strings.TrimSpace(username)),
	)
	var (
		rec  UserRecord
		role string
	)
	if err := row.Scan(&rec.ID, &rec.Username, &rec.PasswordHash, &role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if d.metrics != nil {
			d.metrics.Increment("errors", obs.T("component", "database"))
		}
		return nil, err
	}
	rec.Role = ParseRole(role)
	return &rec, nil
}
