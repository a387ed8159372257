package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nholik/munin-update/internal/config"
	"github.com/nholik/munin-update/internal/dispatch"
	"github.com/nholik/munin-update/internal/dump"
	"github.com/nholik/munin-update/internal/healthcheck"
	"github.com/nholik/munin-update/internal/lock"
	"github.com/nholik/munin-update/internal/metrics"
	"github.com/nholik/munin-update/internal/node"
	"github.com/nholik/munin-update/internal/registry"
	"github.com/nholik/munin-update/internal/stats"
	"github.com/rs/zerolog"
)

// RunLockName is the named lock serializing whole update cycles per
// installation.
const RunLockName = "munin-update.lock"

// DatafileName is the persisted configuration file within the data directory.
const DatafileName = "datafile"

// Ticker is the minimal interface needed for driving the update loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	ticker *time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.ticker.C
}

func (t timeTicker) Stop() {
	t.ticker.Stop()
}

// Collector performs the remote collection for one host. node.Client is the
// production implementation.
type Collector interface {
	Fetch(ctx context.Context, host registry.Host) (map[string]*dump.ServiceConfig, error)
}

// Reconciler is the hook invoked between loading the previous configuration
// and persisting the new one. Reconcile failures are tolerated: the cycle
// persists regardless.
type Reconciler interface {
	Reconcile(ctx context.Context, previous, current dump.HostConfigSet) error
}

// Updater orchestrates one full update pass: lock, collect, aggregate,
// reconcile, persist.
type Updater struct {
	logger        zerolog.Logger
	cfg           config.Config
	source        registry.Source
	collector     Collector
	dispatcher    dispatch.Dispatcher
	locks         *lock.Manager
	store         *dump.FileStore
	reconciler    Reconciler
	metrics       *metrics.Metrics
	tracker       *healthcheck.Tracker
	tickerFactory func(time.Duration) Ticker
}

// Option customizes updater behavior.
type Option func(*Updater)

// WithCollector overrides the per-host collection client.
func WithCollector(collector Collector) Option {
	return func(u *Updater) {
		u.collector = collector
	}
}

// WithDispatcher overrides the worker dispatch strategy.
func WithDispatcher(dispatcher dispatch.Dispatcher) Option {
	return func(u *Updater) {
		u.dispatcher = dispatcher
	}
}

// WithReconciler installs the reconcile hook.
func WithReconciler(reconciler Reconciler) Option {
	return func(u *Updater) {
		u.reconciler = reconciler
	}
}

// WithMetrics enables Prometheus metric observation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(u *Updater) {
		u.metrics = m
	}
}

// WithTracker enables health tracking of completed cycles.
func WithTracker(tracker *healthcheck.Tracker) Option {
	return func(u *Updater) {
		u.tracker = tracker
	}
}

// WithTickerFactory overrides how loop tickers are created.
func WithTickerFactory(factory func(time.Duration) Ticker) Option {
	return func(u *Updater) {
		u.tickerFactory = factory
	}
}

// New constructs an Updater from an explicit configuration value and host
// source.
func New(logger zerolog.Logger, cfg config.Config, source registry.Source, opts ...Option) *Updater {
	locks := lock.NewManager(cfg.RunDir)
	u := &Updater{
		logger:     logger,
		cfg:        cfg,
		source:     source,
		collector:  node.NewClient(logger, cfg.NodeTimeout),
		dispatcher: dispatch.New(cfg.Parallel),
		locks:      locks,
		store:      dump.NewFileStore(filepath.Join(cfg.DataDir, DatafileName), locks, logger),
		tickerFactory: func(d time.Duration) Ticker {
			return timeTicker{ticker: time.NewTicker(d)}
		},
	}

	for _, opt := range opts {
		opt(u)
	}

	return u
}

// RunOnce performs one full update pass and returns the cycle's elapsed
// time. Concurrent calls against the same installation serialize on the run
// lock. Directory, lock and datafile failures are fatal for the cycle;
// per-host collection failures are absorbed at the aggregation boundary.
func (u *Updater) RunOnce(ctx context.Context) (time.Duration, error) {
	start := time.Now()

	if err := os.MkdirAll(u.cfg.RunDir, 0o700); err != nil {
		return 0, fmt.Errorf("create run dir %s: %w", u.cfg.RunDir, err)
	}

	runLock, err := u.locks.Acquire(RunLockName)
	if err != nil {
		return 0, err
	}
	defer runLock.Release()

	statsWriter := stats.Open(u.cfg.DataDir, u.logger)
	defer statsWriter.Discard()

	hosts, err := u.source.Hosts(ctx)
	if err != nil {
		return 0, fmt.Errorf("enumerate hosts: %w", err)
	}
	selected := registry.Select(hosts, u.cfg.Hosts)

	workers := make([]dispatch.Worker, 0, len(selected))
	for _, host := range selected {
		workers = append(workers, hostWorker{host: host, collector: u.collector})
	}

	sink := &aggregateSink{
		logger:    u.logger,
		collected: dump.HostConfigSet{},
		stats:     statsWriter,
		metrics:   u.metrics,
	}
	u.dispatcher.Dispatch(ctx, workers, sink)

	previous, err := u.store.Load(ctx)
	if err != nil {
		return 0, err
	}

	merged := previous.Overlay(sink.collected)

	if u.reconciler != nil {
		if err := u.reconciler.Reconcile(ctx, previous, merged); err != nil {
			u.logger.Warn().Err(err).Msg("reconcile hook failed")
		}
	}

	if err := u.store.Save(ctx, merged); err != nil {
		return 0, err
	}

	elapsed := time.Since(start)
	statsWriter.TotalRecord(elapsed)
	statsWriter.Commit()

	u.metrics.ObserveCycleDuration(elapsed)
	u.metrics.SetHostsSelected(len(selected))
	u.metrics.SetLastSuccessfulCycleTimestamp(time.Now().UTC())
	u.tracker.RecordCycle(elapsed, len(selected)-sink.failed)

	u.logger.Info().
		Dur("elapsed", elapsed).
		Int("hosts", len(selected)).
		Int("failed", sink.failed).
		Msg("update cycle complete")

	return elapsed, nil
}

// Run starts the periodic update loop and blocks until the context is
// canceled. The first cycle runs immediately.
func (u *Updater) Run(ctx context.Context) error {
	if u.cfg.PollInterval <= 0 {
		return errors.New("poll interval must be greater than zero")
	}

	if _, err := u.RunOnce(ctx); err != nil {
		u.logger.Error().Err(err).Msg("initial update cycle failed")
	}

	ticker := u.tickerFactory(u.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			u.logger.Info().Msg("updater stopped")
			return nil
		case <-ticker.C():
			if _, err := u.RunOnce(ctx); err != nil {
				u.logger.Error().Err(err).Msg("update cycle failed")
			}
		}
	}
}
