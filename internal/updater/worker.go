package updater

import (
	"context"

	"github.com/nholik/munin-update/internal/dispatch"
	"github.com/nholik/munin-update/internal/dump"
	"github.com/nholik/munin-update/internal/metrics"
	"github.com/nholik/munin-update/internal/registry"
	"github.com/nholik/munin-update/internal/stats"
	"github.com/rs/zerolog"
)

// hostWorker binds one host to the collection client.
type hostWorker struct {
	host      registry.Host
	collector Collector
}

// ID implements dispatch.Worker.
func (w hostWorker) ID() string {
	return w.host.Name
}

// Collect implements dispatch.Worker.
func (w hostWorker) Collect(ctx context.Context) (map[string]*dump.ServiceConfig, error) {
	return w.collector.Fetch(ctx, w.host)
}

// aggregateSink folds worker results into the cycle's collected set and
// mirrors per-worker timing to the stats target. Dispatchers invoke it only
// from the dispatching goroutine, so it holds no locks; each worker owns a
// disjoint host key.
type aggregateSink struct {
	logger    zerolog.Logger
	collected dump.HostConfigSet
	stats     *stats.Writer
	metrics   *metrics.Metrics
	failed    int
}

// Record implements dispatch.Sink.
func (s *aggregateSink) Record(result dispatch.Result) {
	s.stats.WorkerRecord(result.ID, result.Elapsed)
	s.metrics.ObserveHostDuration(result.ID, result.Elapsed)

	if result.Err != nil {
		s.failed++
		s.metrics.IncCollectFailures(result.ID)
		s.logger.Warn().Err(result.Err).Str("host", result.ID).Msg("host collection failed")
		return
	}
	s.collected[result.ID] = result.Services
}
