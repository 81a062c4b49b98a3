package analytic

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/itskum47/dnsblsentry/internal/errs"
)

// PostgresStore upserts promoted rows via pgx/v5's pgxpool, the same
// driver and pooling pattern as the teacher's
// control_plane/store/postgres.go.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn (a postgres:// URL).
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, &errs.LedgerError{Op: "postgres_connect", Err: err}
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS blacklisted_tasks (
			ip_address TEXT NOT NULL,
			dns TEXT NOT NULL,
			status TEXT NOT NULL,
			result TEXT NOT NULL,
			check_date TEXT NOT NULL,
			last_updated TIMESTAMPTZ NOT NULL,
			UNIQUE(ip_address, dns, check_date)
		)
	`)
	if err != nil {
		return &errs.LedgerError{Op: "ensure_table", Err: err}
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, rows []Row) error {
	const query = `
		INSERT INTO blacklisted_tasks (ip_address, dns, status, result, check_date, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (ip_address, dns, check_date) DO UPDATE SET
			status = EXCLUDED.status,
			result = EXCLUDED.result,
			last_updated = EXCLUDED.last_updated
	`
	for attempt := 0; attempt < 2; attempt++ {
		ok := true
		for _, r := range rows {
			if _, err := s.pool.Exec(ctx, query, r.IP, r.DNS, r.Status, r.Result, r.CheckDate, r.LastUpdated); err != nil {
				if attempt == 0 {
					// Table may not exist yet; create it and retry once.
					if tErr := s.EnsureTable(ctx); tErr != nil {
						return &errs.LedgerError{Op: "upsert", Err: tErr}
					}
					ok = false
					break
				}
				return &errs.LedgerError{Op: "upsert", Err: err}
			}
		}
		if ok {
			return nil
		}
	}
	return &errs.LedgerError{Op: "upsert", Err: fmt.Errorf("upsert failed after table creation retry")}
}

func (s *PostgresStore) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}
