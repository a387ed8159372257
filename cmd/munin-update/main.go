package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/nholik/munin-update/internal/config"
	"github.com/nholik/munin-update/internal/healthcheck"
	"github.com/nholik/munin-update/internal/logging"
	"github.com/nholik/munin-update/internal/metrics"
	"github.com/nholik/munin-update/internal/notify"
	"github.com/nholik/munin-update/internal/registry"
	"github.com/nholik/munin-update/internal/server"
	"github.com/nholik/munin-update/internal/updater"
)

func main() {
	once := flag.Bool("once", false, "run a single update cycle and exit")
	flag.Parse()

	logger := logging.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration error")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sources := make([]registry.Source, 0, 2)
	if cfg.NodesFile != "" {
		sources = append(sources, registry.NewFileSource(cfg.NodesFile))
	}
	if cfg.DockerDiscovery {
		dockerSource, err := registry.NewDockerSource(cfg.DockerHost, cfg.NodeTimeout, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("docker discovery initialization failed")
		}
		defer dockerSource.Close()
		if err := dockerSource.Ping(ctx); err != nil {
			logger.Fatal().Err(err).Msg("docker daemon unreachable")
		}
		sources = append(sources, dockerSource)
	}
	source := registry.NewMulti(sources...)

	metricsCollector := metrics.New()
	tracker := healthcheck.NewTracker()

	opts := []updater.Option{
		updater.WithMetrics(metricsCollector),
		updater.WithTracker(tracker),
	}

	if cfg.WebhookURL != "" || cfg.SlackWebhookURL != "" {
		notifiers := make([]notify.Notifier, 0, 2)
		if cfg.WebhookURL != "" {
			webhookNotifier, err := notify.NewWebhookNotifier(logger, cfg.WebhookURL, "")
			if err != nil {
				logger.Fatal().Err(err).Msg("webhook notifier initialization failed")
			}
			notifiers = append(notifiers, webhookNotifier)
		}
		if cfg.SlackWebhookURL != "" {
			notifiers = append(notifiers, notify.NewSlackNotifier(logger, cfg.SlackWebhookURL))
		}
		var notifier notify.Notifier = notify.NewMultiNotifier(notifiers...)
		if cfg.DryRun {
			notifier = notify.NewDryRunNotifier(logger, notifier)
		}
		opts = append(opts, updater.WithReconciler(updater.NewNotifyReconciler(logger, notifier)))
	}

	u := updater.New(logger, cfg, source, opts...)

	server.Start(ctx, logger, cfg.PollInterval, tracker, metricsCollector, cfg.HealthPort, cfg.MetricsPort)

	if *once {
		if _, err := u.RunOnce(ctx); err != nil {
			logger.Fatal().Err(err).Msg("update cycle failed")
		}
		return
	}

	if err := u.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("updater failed")
	}
}
