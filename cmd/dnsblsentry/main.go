// Command dnsblsentry is the Orchestrator (C8): a one-shot CLI that
// loads configuration, expands the configured CIDR prefixes into
// today's probe task set, reconciles the Ledger and Work Queue against
// it, runs the Worker Pool to exhaustion, promotes listed results into
// the analytic store, and exits. Grounded on the teacher's
// control_plane/main.go wiring style, trimmed of the HTTP
// API/leader-election/dashboard surface this process does not need.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/itskum47/dnsblsentry/internal/analytic"
	"github.com/itskum47/dnsblsentry/internal/config"
	"github.com/itskum47/dnsblsentry/internal/errs"
	"github.com/itskum47/dnsblsentry/internal/generator"
	"github.com/itskum47/dnsblsentry/internal/ledger"
	"github.com/itskum47/dnsblsentry/internal/observability"
	"github.com/itskum47/dnsblsentry/internal/prober"
	"github.com/itskum47/dnsblsentry/internal/queue"
	"github.com/itskum47/dnsblsentry/internal/reporter"
	"github.com/itskum47/dnsblsentry/internal/synchronizer"
	"github.com/itskum47/dnsblsentry/internal/workerpool"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "dnsblsentry: config error: %v\n", err)
		return 1
	}

	log, closeLog, err := reporter.Open(cfg.AppLogPath, cfg.ErrorLogPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dnsblsentry: %v\n", err)
		return 1
	}
	defer closeLog()

	metrics := observability.New()
	start := time.Now()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	counts, err := orchestrate(ctx, cfg, log, metrics)

	elapsed := time.Since(start)
	metrics.RunDurationSeconds.Set(elapsed.Seconds())
	if pushErr := metrics.Push(cfg.PrometheusPushgatewayURL, "dnsblsentry"); pushErr != nil {
		log.Warn("metrics push failed: %v", pushErr)
	}

	printSummary(counts, elapsed)

	if err != nil {
		log.Error("run failed: %v", err)
		var cancel *errs.TransientCancel
		if errors.As(err, &cancel) {
			return 130
		}
		return 1
	}
	return 0
}

func orchestrate(ctx context.Context, cfg *config.Config, log reporter.Reporter, metrics *observability.Metrics) (map[prober.Result]int, error) {
	today := time.Now().UTC().Format("2006-01-02")

	led, err := ledger.Open(cfg.Sqlite.DBPath)
	if err != nil {
		return nil, err
	}
	defer led.Close()
	if err := led.Initialize(ctx); err != nil {
		return nil, err
	}
	if cfg.LedgerRetention != "" && cfg.LedgerRetention != "keep forever" {
		if n, err := led.PurgeOlderThan(ctx, today); err != nil {
			log.Warn("stale record purge failed: %v", err)
		} else if n > 0 {
			log.Info("purged %d stale ledger rows older than %s", n, today)
		}
	}

	broker, err := connectBroker(cfg)
	if err != nil {
		return nil, err
	}
	defer broker.Close()

	zones := make([]generator.Zone, len(cfg.Blacklists))
	for i, z := range cfg.Blacklists {
		zones[i] = generator.Zone{Name: z.Name, DNS: z.DNS}
	}
	genResult := generator.Generate(cfg.Prefixes, zones)
	if len(genResult.SkippedPrefixes) > 0 {
		log.Warn("skipped %d invalid CIDR prefixes: %v", len(genResult.SkippedPrefixes), genResult.SkippedPrefixes)
	}
	seedsByZone := make(map[string]int, len(zones))
	for _, seed := range genResult.Seeds {
		seedsByZone[seed.DNS]++
	}
	for zoneDNS, n := range seedsByZone {
		metrics.TasksGenerated.WithLabelValues(zoneDNS).Add(float64(n))
	}

	sync := synchronizer.New(led, broker, cfg.RabbitMQDefaultQueue, log)
	syncSummary, err := sync.Sync(ctx, today, genResult.Seeds)
	if err != nil {
		return nil, err
	}
	metrics.TasksInserted.Add(float64(syncSummary.Inserted))
	metrics.QueueDepth.Set(float64(syncSummary.Enqueued))
	metrics.QueuePublishedTotal.Add(float64(syncSummary.Enqueued))

	pr, err := prober.New()
	if err != nil {
		return nil, err
	}

	var opts []workerpool.Option
	if cfg.QueryRatePerSec > 0 {
		opts = append(opts, workerpool.WithQueryRate(cfg.QueryRatePerSec))
	}
	pool := workerpool.New(broker, cfg.RabbitMQDefaultQueue, pr, led, today,
		cfg.RabbitMQConcurrencyLimit, cfg.Sqlite.BulkUpdateCount, metrics, log, opts...)

	counts, err := pool.Run(ctx)
	if err != nil {
		return counts, err
	}

	store, err := selectAnalyticStore(ctx, cfg)
	if err != nil {
		log.Warn("analytic store unavailable, promotion skipped: %v", err)
		store = nil
	}
	if store != nil {
		defer store.Close(ctx)
	}
	promoter := analytic.NewPromoter(led, store, log)
	promoted, err := promoter.Promote(ctx, today)
	if err != nil {
		return counts, err
	}
	metrics.PromotedRowsTotal.Add(float64(promoted))

	if ctx.Err() != nil {
		return counts, &errs.TransientCancel{Reason: ctx.Err().Error()}
	}
	return counts, nil
}

func connectBroker(cfg *config.Config) (queue.Broker, error) {
	url := fmt.Sprintf("amqp://%s:%s@%s:%d/", cfg.RabbitMQUsername, cfg.RabbitMQPassword, cfg.RabbitMQHost, cfg.RabbitMQPort)
	return queue.Dial(url)
}

// selectAnalyticStore implements the Postgres-first, Mongo-fallback
// policy documented in SPEC_FULL.md §6: Postgres when POSTGRES_HOST is
// set, else Mongo when MONGO_URL is set, else no analytic store.
func selectAnalyticStore(ctx context.Context, cfg *config.Config) (analytic.Store, error) {
	switch {
	case cfg.PostgresHost != "":
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s", cfg.PostgresUsername, cfg.PostgresPassword, cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDB)
		return analytic.NewPostgresStore(ctx, dsn)
	case cfg.MongoURL != "":
		return analytic.NewMongoStore(ctx, cfg.MongoURL, cfg.MongoDBName)
	default:
		return nil, nil
	}
}

func printSummary(counts map[prober.Result]int, elapsed time.Duration) {
	total := 0
	for _, n := range counts {
		total += n
	}
	rate := 0.0
	if elapsed.Seconds() > 0 {
		rate = float64(total) / elapsed.Seconds()
	}
	fmt.Printf("dnsbl run complete: total=%d not_listed=%d listed=%d timed_out=%d no_answer=%d no_nameservers=%d dns_error=%d invalid_ip=%d exception=%d elapsed=%s rate=%.2f/s\n",
		total,
		counts[prober.NotListed], counts[prober.Listed], counts[prober.TimedOut],
		counts[prober.NoAnswer], counts[prober.NoNameservers], counts[prober.DNSError],
		counts[prober.InvalidIP], counts[prober.Exception],
		elapsed.Round(time.Millisecond), rate,
	)
}
