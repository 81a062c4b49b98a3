// Package analytic is the long-term sink for listed rows (C7's
// target). Grounded on the teacher's control_plane/store.Store
// interface (one contract, two drivers) and on its
// store/postgres.go INSERT ... ON CONFLICT DO UPDATE idiom, adapted to
// the blacklisted_tasks table. A MongoDB-backed alternative
// implementation is selected instead when POSTGRES_HOST is unset and
// MONGO_URL is set, per the source's mongoDB.py/postgre.py dual
// handler design.
package analytic

import (
	"context"
	"time"
)

// Row is one promoted listed task.
type Row struct {
	IP          string
	DNS         string
	Status      string
	Result      string
	CheckDate   string
	LastUpdated time.Time
}

// Store is the capability the Promoter depends on.
type Store interface {
	// EnsureTable creates blacklisted_tasks if it is absent.
	EnsureTable(ctx context.Context) error
	// Upsert inserts or updates each row keyed by (ip, dns, check_date).
	Upsert(ctx context.Context, rows []Row) error
	Close(ctx context.Context) error
}
