package health

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the Postgres store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore keeps the record in "<schema>".task_status.
type PostgresStore struct {
	db     DB
	schema string
}

var safeIdentRE = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

func isSafeIdent(s string) bool { return safeIdentRE.MatchString(s) }

func NewPostgresStore(db DB, schema string) (*PostgresStore, error) {
	if schema == "" {
		schema = "public"
	}
	if !isSafeIdent(schema) {
		return nil, fmt.Errorf("unsafe schema identifier %q", schema)
	}
	return &PostgresStore{db: db, schema: schema}, nil
}

func (s *PostgresStore) table() string { return fmt.Sprintf(`"%s".task_status`, s.schema) }

func (s *PostgresStore) Initialize(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS "%[1]s";

CREATE TABLE IF NOT EXISTS "%[1]s".task_status (
  name text PRIMARY KEY,
  status text NOT NULL CHECK (status IN ('running','completed','failed')),
  updated_at timestamptz NOT NULL DEFAULT now()
);`, s.schema)
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return &PersistenceError{Op: "initialize", Path: s.table(), Err: err}
	}
	return nil
}

// SetStatus is a single upsert; Postgres serializes concurrent writers on
// the row.
func (s *PostgresStore) SetStatus(ctx context.Context, name string, status Status) error {
	if !status.Valid() {
		return &PersistenceError{Op: "set", Path: s.table(), Err: fmt.Errorf("invalid status %q", status)}
	}
	q := fmt.Sprintf(`
INSERT INTO %s (name, status, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE
SET status = EXCLUDED.status,
    updated_at = EXCLUDED.updated_at`, s.table())
	if _, err := s.db.Exec(ctx, q, name, string(status)); err != nil {
		return &PersistenceError{Op: "set", Path: s.table(), Err: err}
	}
	return nil
}

func (s *PostgresStore) AnyRunning(ctx context.Context) (bool, error) {
	m, err := s.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	return anyRunning(m), nil
}

func (s *PostgresStore) Snapshot(ctx context.Context) (map[string]Status, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(`SELECT name, status FROM %s`, s.table()))
	if isUndefinedTable(err) {
		return map[string]Status{}, nil
	}
	if err != nil {
		return nil, &PersistenceError{Op: "read", Path: s.table(), Err: err}
	}
	defer rows.Close()

	out := make(map[string]Status)
	for rows.Next() {
		var name, status string
		if err := rows.Scan(&name, &status); err != nil {
			return nil, &PersistenceError{Op: "read", Path: s.table(), Err: err}
		}
		out[name] = Status(status)
	}
	if err := rows.Err(); err != nil {
		if isUndefinedTable(err) {
			return map[string]Status{}, nil
		}
		return nil, &PersistenceError{Op: "read", Path: s.table(), Err: err}
	}
	return out, nil
}

// isUndefinedTable reports SQLSTATE 42P01, i.e. the record was never
// initialized.
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	if err == nil || !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "42P01"
}
