package analytic

import (
	"context"
	"fmt"

	"github.com/itskum47/dnsblsentry/internal/ledger"
	"github.com/itskum47/dnsblsentry/internal/reporter"
)

// Promoter copies listed ledger rows into the analytic store (C7).
type Promoter struct {
	ledger *ledger.Ledger
	store  Store
	log    reporter.Reporter
}

// NewPromoter builds a Promoter. store may be nil, in which case
// Promote is a no-op that logs a warning — the selection policy for
// when that happens lives in cmd/dnsblsentry.
func NewPromoter(l *ledger.Ledger, store Store, log reporter.Reporter) *Promoter {
	return &Promoter{ledger: l, store: store, log: log}
}

// Promote fetches every listed row for checkDate (the run's "today",
// per spec.md §9's resolved open question) and upserts it into the
// analytic store.
func (p *Promoter) Promote(ctx context.Context, checkDate string) (int, error) {
	if p.store == nil {
		p.log.Warn("promoter: no analytic store configured, skipping promotion")
		return 0, nil
	}

	if err := p.store.EnsureTable(ctx); err != nil {
		return 0, fmt.Errorf("ensuring analytic table: %w", err)
	}

	rows, err := p.ledger.FetchByDateAndResult(ctx, checkDate, "listed")
	if err != nil {
		return 0, fmt.Errorf("fetching listed rows: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	out := make([]Row, len(rows))
	for i, t := range rows {
		out[i] = Row{
			IP:          t.IP,
			DNS:         t.DNS,
			Status:      t.Status,
			Result:      t.Result,
			CheckDate:   t.CheckDate,
			LastUpdated: t.LastUpdated,
		}
	}
	if err := p.store.Upsert(ctx, out); err != nil {
		return 0, fmt.Errorf("upserting promoted rows: %w", err)
	}
	return len(out), nil
}
