package synchronizer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/itskum47/dnsblsentry/internal/generator"
	"github.com/itskum47/dnsblsentry/internal/ledger"
	"github.com/itskum47/dnsblsentry/internal/queue"
	"github.com/itskum47/dnsblsentry/internal/reporter"
)

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	if err := l.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return l
}

func TestSyncInsertsAndPublishesPending(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	broker := queue.NewFake()
	s := New(l, broker, "tasks", reporter.NewStdio())

	seeds := []generator.Seed{
		{IP: "1.2.3.4", DNS: "zen.example"},
		{IP: "5.6.7.8", DNS: "zen.example"},
	}

	summary, err := s.Sync(ctx, "2026-07-29", seeds)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if summary.Inserted != 2 || summary.Enqueued != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	n, _ := broker.MessageCount(ctx, "tasks")
	if n != 2 {
		t.Fatalf("queue depth = %d, want 2", n)
	}
}

func TestSyncIsIdempotentOnRerun(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	broker := queue.NewFake()
	s := New(l, broker, "tasks", reporter.NewStdio())

	seeds := []generator.Seed{{IP: "1.2.3.4", DNS: "zen.example"}}
	if _, err := s.Sync(ctx, "2026-07-29", seeds); err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	if _, err := s.Sync(ctx, "2026-07-29", seeds); err != nil {
		t.Fatalf("second Sync: %v", err)
	}

	rows, err := l.FetchByDate(ctx, "2026-07-29")
	if err != nil {
		t.Fatalf("FetchByDate: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1 (re-sync must not duplicate)", len(rows))
	}
}

func TestSyncSkipsQueueRebuildWhenNothingPending(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	broker := queue.NewFake()
	s := New(l, broker, "tasks", reporter.NewStdio())

	seeds := []generator.Seed{{IP: "1.2.3.4", DNS: "zen.example"}}
	if _, err := s.Sync(ctx, "2026-07-29", seeds); err != nil {
		t.Fatalf("first Sync: %v", err)
	}
	if err := l.BulkUpdate(ctx, "2026-07-29", []ledger.UpdateRecord{
		{IP: "1.2.3.4", DNS: "zen.example", Status: ledger.StatusCompleted, Result: "not_listed"},
	}); err != nil {
		t.Fatalf("BulkUpdate: %v", err)
	}

	summary, err := s.Sync(ctx, "2026-07-29", seeds)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if summary.Enqueued != 0 {
		t.Fatalf("Enqueued = %d, want 0 once everything is completed", summary.Enqueued)
	}
}

func TestSyncPurgesStaleQueueMessages(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	broker := queue.NewFake()
	broker.EnsureQueue(ctx, "tasks")
	broker.Publish(ctx, "tasks", []queue.Task{{IP: "9.9.9.9", DNS: "stale.example"}})

	s := New(l, broker, "tasks", reporter.NewStdio())
	seeds := []generator.Seed{{IP: "1.2.3.4", DNS: "zen.example"}}

	if _, err := s.Sync(ctx, "2026-07-29", seeds); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	n, _ := broker.MessageCount(ctx, "tasks")
	if n != 1 {
		t.Fatalf("queue depth = %d, want 1 (stale message should have been purged)", n)
	}
}
