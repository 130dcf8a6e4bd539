package ledger

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"
)

type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink writes entries to "<schema>".price_watch_results.
type PostgresSink struct {
	db     Execer
	schema string
}

var safeIdentRE = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

func NewPostgresSink(db Execer, schema string) (*PostgresSink, error) {
	if schema == "" {
		schema = "public"
	}
	if !safeIdentRE.MatchString(schema) {
		return nil, fmt.Errorf("unsafe schema identifier %q", schema)
	}
	return &PostgresSink{db: db, schema: schema}, nil
}

func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS "%[1]s";

CREATE TABLE IF NOT EXISTS "%[1]s".price_watch_results (
  id bigserial PRIMARY KEY,
  item text NOT NULL,
  title text,
  url text NOT NULL,
  target_price numeric(12,2) NOT NULL,
  final_price numeric(12,2) NOT NULL,
  proof_path text,
  notified boolean NOT NULL DEFAULT false,
  completed_at timestamptz NOT NULL,
  CONSTRAINT price_watch_results_item_completed_key UNIQUE (item, completed_at)
);

CREATE INDEX IF NOT EXISTS price_watch_results_completed_idx
  ON "%[1]s".price_watch_results (completed_at DESC);`, s.schema)
	_, err := s.db.Exec(ctx, ddl)
	return err
}

func (s *PostgresSink) Append(ctx context.Context, e Entry) error {
	q := fmt.Sprintf(`
INSERT INTO "%s".price_watch_results
  (item, title, url, target_price, final_price, proof_path, notified, completed_at)
VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7, $8)
ON CONFLICT ON CONSTRAINT price_watch_results_item_completed_key DO NOTHING`, s.schema)
	_, err := s.db.Exec(ctx, q,
		e.Item, e.Title, e.URL,
		e.Target.StringFixed(2), e.Price.StringFixed(2),
		e.ProofPath, e.Notified, e.CompletedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert result %s: %w", e.Item, err)
	}
	return nil
}
