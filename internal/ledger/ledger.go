// Package ledger is the durable task store (C2): one sqlite table,
// ip_check, tracking every (ip, dns, check_date) probe task through
// pending -> completed/failed. Grounded on the teacher's
// control_plane/store/postgres.go for the upsert-via-ON-CONFLICT and
// transactional bulk-write idioms, adapted from pgx/pgxpool to
// database/sql + github.com/mattn/go-sqlite3, and on
// original_source/database/task_manager.py (the latest variant named
// authoritative by the source's own evolution) for the table shape and
// operation set.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/itskum47/dnsblsentry/internal/errs"
)

const schema = `
CREATE TABLE IF NOT EXISTS ip_check (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ip_address TEXT NOT NULL,
	dns TEXT NOT NULL,
	status TEXT NOT NULL,
	result TEXT,
	details TEXT,
	check_date TEXT NOT NULL,
	last_updated DATETIME NOT NULL,
	UNIQUE(ip_address, dns, check_date)
);
`

// Task is one ip_check row.
type Task struct {
	ID          int64
	IP          string
	DNS         string
	Status      string
	Result      string
	Details     string
	CheckDate   string
	LastUpdated time.Time
}

// TaskKey identifies a task independent of its mutable fields.
type TaskKey struct {
	IP  string
	DNS string
}

// UpdateRecord is one element of a BulkUpdate batch.
type UpdateRecord struct {
	IP      string
	DNS     string
	Status  string
	Result  string
	Details string
}

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Ledger wraps a sqlite-backed ip_check table. The zero value is not
// usable; construct with Open.
type Ledger struct {
	db *sql.DB
}

// Open opens (and does not yet initialize) the sqlite file at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, &errs.LedgerError{Op: "open", Err: err}
	}
	db.SetMaxOpenConns(1) // sqlite: one writer, serialize through a single connection
	return &Ledger{db: db}, nil
}

func (l *Ledger) Close() error { return l.db.Close() }

// Initialize creates the ip_check table if it is absent.
func (l *Ledger) Initialize(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return &errs.LedgerError{Op: "initialize", Err: err}
	}
	return nil
}

// PurgeOlderThan deletes every row with check_date < cutoff. This backs
// the optional LEDGER_RETENTION stale-record purge; by default the
// Orchestrator never calls it.
func (l *Ledger) PurgeOlderThan(ctx context.Context, cutoff string) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM ip_check WHERE check_date < ?`, cutoff)
	if err != nil {
		return 0, &errs.LedgerError{Op: "purge_older_than", Err: err}
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Insert adds each key as a pending row for checkDate. Duplicates on
// (ip_address, dns, check_date) are ignored, making the call
// idempotent under re-runs.
func (l *Ledger) Insert(ctx context.Context, checkDate string, keys []TaskKey) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return &errs.LedgerError{Op: "insert", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ip_check (ip_address, dns, status, result, check_date, last_updated)
		VALUES (?, ?, ?, NULL, ?, ?)
		ON CONFLICT(ip_address, dns, check_date) DO NOTHING
	`)
	if err != nil {
		return &errs.LedgerError{Op: "insert", Err: err}
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, k.IP, k.DNS, StatusPending, checkDate, now); err != nil {
			return &errs.LedgerError{Op: "insert", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &errs.LedgerError{Op: "insert", Err: err}
	}
	return nil
}

// FetchByDate returns every row with check_date = date.
func (l *Ledger) FetchByDate(ctx context.Context, date string) ([]Task, error) {
	return l.query(ctx, `SELECT id, ip_address, dns, status, COALESCE(result,''), COALESCE(details,''), check_date, last_updated
		FROM ip_check WHERE check_date = ?`, date)
}

// FetchPendingByDate returns the pending subset for date.
func (l *Ledger) FetchPendingByDate(ctx context.Context, date string) ([]Task, error) {
	return l.query(ctx, `SELECT id, ip_address, dns, status, COALESCE(result,''), COALESCE(details,''), check_date, last_updated
		FROM ip_check WHERE check_date = ? AND status = ?`, date, StatusPending)
}

// FetchByDateAndResult returns every row with check_date = date and
// result = resultFilter. This backs the Promoter's "today" policy
// (SPEC_FULL.md §9) as distinct from the MAX(check_date) convenience
// query below.
func (l *Ledger) FetchByDateAndResult(ctx context.Context, date, resultFilter string) ([]Task, error) {
	return l.query(ctx, `SELECT id, ip_address, dns, status, COALESCE(result,''), COALESCE(details,''), check_date, last_updated
		FROM ip_check WHERE check_date = ? AND result = ?`, date, resultFilter)
}

// FetchByLatestDate finds max(check_date) and returns every row for
// that date matching resultFilter.
func (l *Ledger) FetchByLatestDate(ctx context.Context, resultFilter string) ([]Task, error) {
	var latest sql.NullString
	if err := l.db.QueryRowContext(ctx, `SELECT MAX(check_date) FROM ip_check`).Scan(&latest); err != nil {
		return nil, &errs.LedgerError{Op: "fetch_by_latest_date", Err: err}
	}
	if !latest.Valid {
		return nil, nil
	}
	return l.query(ctx, `SELECT id, ip_address, dns, status, COALESCE(result,''), COALESCE(details,''), check_date, last_updated
		FROM ip_check WHERE check_date = ? AND result = ?`, latest.String, resultFilter)
}

// LatestCheckDate returns max(check_date), or "" if the table is empty.
func (l *Ledger) LatestCheckDate(ctx context.Context) (string, error) {
	var latest sql.NullString
	if err := l.db.QueryRowContext(ctx, `SELECT MAX(check_date) FROM ip_check`).Scan(&latest); err != nil {
		return "", &errs.LedgerError{Op: "latest_check_date", Err: err}
	}
	if !latest.Valid {
		return "", nil
	}
	return latest.String, nil
}

func (l *Ledger) query(ctx context.Context, q string, args ...interface{}) ([]Task, error) {
	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &errs.LedgerError{Op: "query", Err: err}
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.IP, &t.DNS, &t.Status, &t.Result, &t.Details, &t.CheckDate, &t.LastUpdated); err != nil {
			return nil, &errs.LedgerError{Op: "scan", Err: err}
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &errs.LedgerError{Op: "rows", Err: err}
	}
	return out, nil
}

// BulkUpdate applies every record keyed by (ip, dns, checkDate) inside
// a single transaction; partial failure aborts the whole batch so the
// caller can retain it for the next attempt.
func (l *Ledger) BulkUpdate(ctx context.Context, checkDate string, batch []UpdateRecord) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return &errs.LedgerError{Op: "bulk_update", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE ip_check SET status = ?, result = ?, details = ?, last_updated = ?
		WHERE ip_address = ? AND dns = ? AND check_date = ?
	`)
	if err != nil {
		return &errs.LedgerError{Op: "bulk_update", Err: err}
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range batch {
		res, err := stmt.ExecContext(ctx, r.Status, r.Result, r.Details, now, r.IP, r.DNS, checkDate)
		if err != nil {
			return &errs.LedgerError{Op: "bulk_update", Err: err}
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &errs.LedgerError{Op: "bulk_update", Err: fmt.Errorf("no row for (%s, %s, %s)", r.IP, r.DNS, checkDate)}
		}
	}
	if err := tx.Commit(); err != nil {
		return &errs.LedgerError{Op: "bulk_update", Err: err}
	}
	return nil
}
