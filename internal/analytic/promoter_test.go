package analytic

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/itskum47/dnsblsentry/internal/ledger"
	"github.com/itskum47/dnsblsentry/internal/reporter"
)

type fakeStore struct {
	ensured bool
	rows    []Row
}

func (f *fakeStore) EnsureTable(ctx context.Context) error { f.ensured = true; return nil }
func (f *fakeStore) Upsert(ctx context.Context, rows []Row) error {
	f.rows = append(f.rows, rows...)
	return nil
}
func (f *fakeStore) Close(ctx context.Context) error { return nil }

func TestPromoteUpsertsOnlyListedRows(t *testing.T) {
	ctx := context.Background()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()
	if err := l.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	keys := []ledger.TaskKey{
		{IP: "1.2.3.4", DNS: "zen.example"},
		{IP: "5.6.7.8", DNS: "zen.example"},
	}
	if err := l.Insert(ctx, "2026-07-29", keys); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := l.BulkUpdate(ctx, "2026-07-29", []ledger.UpdateRecord{
		{IP: "1.2.3.4", DNS: "zen.example", Status: ledger.StatusCompleted, Result: "listed"},
		{IP: "5.6.7.8", DNS: "zen.example", Status: ledger.StatusCompleted, Result: "not_listed"},
	}); err != nil {
		t.Fatalf("BulkUpdate: %v", err)
	}

	store := &fakeStore{}
	p := NewPromoter(l, store, reporter.NewStdio())

	n, err := p.Promote(ctx, "2026-07-29")
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if n != 1 {
		t.Fatalf("Promote returned %d, want 1", n)
	}
	if !store.ensured {
		t.Error("expected EnsureTable to be called")
	}
	if len(store.rows) != 1 || store.rows[0].IP != "1.2.3.4" {
		t.Fatalf("unexpected promoted rows: %+v", store.rows)
	}
}

func TestPromoteWithNilStoreIsNoop(t *testing.T) {
	ctx := context.Background()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()
	if err := l.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	p := NewPromoter(l, nil, reporter.NewStdio())
	n, err := p.Promote(ctx, "2026-07-29")
	if err != nil {
		t.Fatalf("Promote: %v", err)
	}
	if n != 0 {
		t.Fatalf("Promote with nil store returned %d, want 0", n)
	}
}
