// Package synchronizer reconciles the Ledger and the Work Queue with
// today's generated task set (C5). Grounded on the teacher's
// Scheduler.RehydrateQueue (control_plane/scheduler/scheduler.go),
// which performs the same diff-against-durable-store-then-republish
// protocol on startup, and on original_source/controller.py's
// synchronize_tasks_with_rabbitmq / check_pending_tasks pair, whose
// "nothing pending" early return is folded in here, right after the
// insert of new tasks and before the queue is purged.
package synchronizer

import (
	"context"
	"fmt"

	"github.com/itskum47/dnsblsentry/internal/generator"
	"github.com/itskum47/dnsblsentry/internal/ledger"
	"github.com/itskum47/dnsblsentry/internal/queue"
	"github.com/itskum47/dnsblsentry/internal/reporter"
)

// publishBatchSize bounds each Publish call per spec.md §4.5 step 6.
const publishBatchSize = 10000

// Synchronizer makes the Ledger and Queue consistent with the
// generator's current task set for a given date.
type Synchronizer struct {
	ledger *ledger.Ledger
	broker queue.Broker
	queue  string
	log    reporter.Reporter
}

// New builds a Synchronizer over the given ledger and broker, targeting
// queueName.
func New(l *ledger.Ledger, b queue.Broker, queueName string, log reporter.Reporter) *Synchronizer {
	return &Synchronizer{ledger: l, broker: b, queue: queueName, log: log}
}

// Summary reports what the synchronization did, for the Run Summary.
type Summary struct {
	Inserted int
	Enqueued int
}

// Sync runs the full reconciliation protocol for checkDate against
// seeds, the in-memory task set produced by the generator.
func (s *Synchronizer) Sync(ctx context.Context, checkDate string, seeds []generator.Seed) (Summary, error) {
	existing, err := s.ledger.FetchByDate(ctx, checkDate)
	if err != nil {
		return Summary{}, fmt.Errorf("reading ledger for %s: %w", checkDate, err)
	}
	known := make(map[ledger.TaskKey]struct{}, len(existing))
	for _, t := range existing {
		known[ledger.TaskKey{IP: t.IP, DNS: t.DNS}] = struct{}{}
	}

	var toInsert []ledger.TaskKey
	for _, seed := range seeds {
		key := ledger.TaskKey{IP: seed.IP, DNS: seed.DNS}
		if _, ok := known[key]; !ok {
			toInsert = append(toInsert, key)
		}
	}
	if len(toInsert) > 0 {
		if err := s.ledger.Insert(ctx, checkDate, toInsert); err != nil {
			return Summary{}, fmt.Errorf("inserting new tasks: %w", err)
		}
	}

	pending, err := s.ledger.FetchPendingByDate(ctx, checkDate)
	if err != nil {
		return Summary{}, fmt.Errorf("reading pending tasks for %s: %w", checkDate, err)
	}

	if len(pending) == 0 {
		s.log.Info("synchronizer: no pending tasks for %s, skipping queue rebuild", checkDate)
		return Summary{Inserted: len(toInsert), Enqueued: 0}, nil
	}

	if err := s.broker.EnsureQueue(ctx, s.queue); err != nil {
		return Summary{}, fmt.Errorf("ensuring queue: %w", err)
	}
	if _, err := s.broker.Purge(ctx, s.queue); err != nil {
		return Summary{}, fmt.Errorf("purging queue: %w", err)
	}

	for start := 0; start < len(pending); start += publishBatchSize {
		end := start + publishBatchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := make([]queue.Task, 0, end-start)
		for _, t := range pending[start:end] {
			batch = append(batch, queue.Task{IP: t.IP, DNS: t.DNS})
		}
		if err := s.broker.Publish(ctx, s.queue, batch); err != nil {
			return Summary{}, fmt.Errorf("publishing batch: %w", err)
		}
	}

	count, err := s.broker.MessageCount(ctx, s.queue)
	if err != nil {
		s.log.Warn("synchronizer: could not verify queue depth: %v", err)
	} else if count != len(pending) {
		s.log.Warn("synchronizer: queue depth %d does not match pending count %d", count, len(pending))
	}

	return Summary{Inserted: len(toInsert), Enqueued: len(pending)}, nil
}
