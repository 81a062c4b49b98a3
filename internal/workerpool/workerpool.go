// Package workerpool runs the bounded set of N probing workers (C6).
// Grounded on the teacher's control_plane/scheduler/scheduler.go
// worker/poller loop and its mutex-guarded shared state, and on
// scheduler/limiter.go's token-bucket rate limiter, here repurposed to
// optionally pace outbound DNS queries rather than reconciliation
// submissions.
package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/itskum47/dnsblsentry/internal/errs"
	"github.com/itskum47/dnsblsentry/internal/ledger"
	"github.com/itskum47/dnsblsentry/internal/observability"
	"github.com/itskum47/dnsblsentry/internal/prober"
	"github.com/itskum47/dnsblsentry/internal/queue"
	"github.com/itskum47/dnsblsentry/internal/reporter"
)

// perProbeTimeout bounds a single worker iteration; a probe whose
// context has expired when it returns is recorded as timed_out, unless
// the Prober already classified it as listed or not_listed.
const perProbeTimeout = 60 * time.Second

// stopDrainTimeout bounds the final buffer drain once a stop signal
// is received.
const stopDrainTimeout = 5 * time.Second

// Pool runs N workers pulling from a queue.Broker, probing with a
// prober.Prober, and batching results into ledger.BulkUpdate calls.
type Pool struct {
	broker          queue.Broker
	queueName       string
	prober          *prober.Prober
	ledger          *ledger.Ledger
	checkDate       string
	workers         int
	bulkUpdateCount int
	limiter         *rate.Limiter
	metrics         *observability.Metrics
	log             reporter.Reporter

	mu       sync.Mutex
	toUpdate []ledger.UpdateRecord

	resultCounts map[prober.Result]int
}

// Option configures a Pool at construction.
type Option func(*Pool)

// WithQueryRate enables the optional DNS query pacing limiter.
// ratePerSec <= 0 leaves queries unpaced.
func WithQueryRate(ratePerSec float64) Option {
	return func(p *Pool) {
		if ratePerSec > 0 {
			p.limiter = rate.NewLimiter(rate.Limit(ratePerSec), 1)
		}
	}
}

// New builds a Pool. workers bounds concurrent probes; bulkUpdateCount
// is the threshold that triggers a buffer drain.
func New(b queue.Broker, queueName string, pr *prober.Prober, l *ledger.Ledger, checkDate string,
	workers, bulkUpdateCount int, m *observability.Metrics, log reporter.Reporter, opts ...Option) *Pool {
	p := &Pool{
		broker:          b,
		queueName:       queueName,
		prober:          pr,
		ledger:          l,
		checkDate:       checkDate,
		workers:         workers,
		bulkUpdateCount: bulkUpdateCount,
		metrics:         m,
		log:             log,
		resultCounts:    make(map[prober.Result]int),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run consumes from the queue and drives the worker pool to
// completion. Per spec.md §4.6, a task-tracker seeds total_tasks from
// the broker's message count observed at the start of drain; the
// worker that brings tasks_done up to total_tasks signals every other
// worker to stop by cancelling the pool's internal context. Run also
// returns if the caller's context is cancelled or the broker consumer
// is cancelled; in every case a final drain of the to-update buffer
// runs before Run returns.
func (p *Pool) Run(ctx context.Context) (map[prober.Result]int, error) {
	prefetch := queue.Prefetch(p.workers)

	totalTasks, err := p.broker.MessageCount(ctx, p.queueName)
	if err != nil {
		return nil, &errs.BrokerError{Op: "message_count", Err: err}
	}

	deliveries, err := p.broker.Consume(ctx, p.queueName, prefetch)
	if err != nil {
		return nil, &errs.BrokerError{Op: "consume", Err: err}
	}

	workCtx, stop := context.WithCancel(ctx)
	defer stop()
	if totalTasks <= 0 {
		stop()
	}

	var tasksDone int64
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.workerLoop(workCtx, workerID, deliveries, totalTasks, &tasksDone, stop)
		}(i)
	}
	wg.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), stopDrainTimeout)
	defer cancel()
	if err := p.finalDrain(drainCtx); err != nil {
		p.log.Error("workerpool: final drain failed: %v", err)
	}

	return p.resultCounts, nil
}

// workerLoop implements the per-worker state machine:
// IDLE -> PROBING -> BUFFERING -> (DRAINING) -> IDLE, stopping on
// channel close or context cancellation. Once the task-tracker sees
// tasksDone reach totalTasks, the worker that crossed the threshold
// calls stop, cancelling workCtx for every worker sharing it.
func (p *Pool) workerLoop(ctx context.Context, workerID int, deliveries <-chan queue.Delivery,
	totalTasks int, tasksDone *int64, stop context.CancelFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			p.processOne(ctx, d)
			if int(atomic.AddInt64(tasksDone, 1)) >= totalTasks {
				stop()
			}
		}
	}
}

func (p *Pool) processOne(ctx context.Context, d queue.Delivery) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, perProbeTimeout)
	outcome := p.safeProbe(probeCtx, d.Task.IP, d.Task.DNS)
	cancel()

	if p.metrics != nil {
		p.metrics.ProbeDuration.WithLabelValues(string(outcome.Result)).Observe(float64(outcome.LatencyMS) / 1000)
		p.metrics.ProbeResultsTotal.WithLabelValues(string(outcome.Result)).Inc()
	}

	record := ledger.UpdateRecord{
		IP:      d.Task.IP,
		DNS:     d.Task.DNS,
		Status:  ledger.StatusCompleted,
		Result:  string(outcome.Result),
		Details: outcome.Details,
	}

	p.mu.Lock()
	p.toUpdate = append(p.toUpdate, record)
	p.resultCounts[outcome.Result]++
	var batch []ledger.UpdateRecord
	if len(p.toUpdate) >= p.bulkUpdateCount {
		batch = p.toUpdate[:p.bulkUpdateCount]
		p.toUpdate = append([]ledger.UpdateRecord(nil), p.toUpdate[p.bulkUpdateCount:]...)
	}
	p.mu.Unlock()

	if err := p.broker.Ack(d.Tag); err != nil {
		p.log.Error("workerpool: ack failed for %s/%s: %v", d.Task.IP, d.Task.DNS, err)
	}

	if batch != nil {
		p.drainBatch(ctx, batch)
	}
}

// safeProbe never lets a Prober panic escape into the pool; any
// recovered panic is reported as the exception terminal result.
func (p *Pool) safeProbe(ctx context.Context, ip, dns string) (outcome prober.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = prober.Outcome{Result: prober.Exception, Details: "recovered panic in prober"}
		}
	}()
	outcome = p.prober.Probe(ctx, ip, dns)
	if ctx.Err() != nil && outcome.Result != prober.Listed && outcome.Result != prober.NotListed {
		outcome.Result = prober.TimedOut
	}
	return outcome
}

func (p *Pool) drainBatch(ctx context.Context, batch []ledger.UpdateRecord) {
	start := time.Now()
	err := p.ledger.BulkUpdate(ctx, p.checkDate, batch)
	if p.metrics != nil {
		p.metrics.LedgerBulkUpdateSeconds.Observe(time.Since(start).Seconds())
		p.metrics.LedgerBulkUpdateBatchSize.Observe(float64(len(batch)))
	}
	if err != nil {
		p.log.Error("workerpool: bulk update failed, retaining %d rows for next drain: %v", len(batch), err)
		p.mu.Lock()
		p.toUpdate = append(batch, p.toUpdate...)
		p.mu.Unlock()
	}
}

// finalDrain flushes whatever remains in the to-update buffer in
// bulkUpdateCount-sized chunks.
func (p *Pool) finalDrain(ctx context.Context) error {
	for {
		p.mu.Lock()
		if len(p.toUpdate) == 0 {
			p.mu.Unlock()
			return nil
		}
		n := p.bulkUpdateCount
		if n > len(p.toUpdate) {
			n = len(p.toUpdate)
		}
		batch := p.toUpdate[:n]
		p.toUpdate = append([]ledger.UpdateRecord(nil), p.toUpdate[n:]...)
		p.mu.Unlock()

		if err := p.ledger.BulkUpdate(ctx, p.checkDate, batch); err != nil {
			return err
		}
	}
}
