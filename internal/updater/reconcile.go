package updater

import (
	"context"

	"github.com/nholik/munin-update/internal/diff"
	"github.com/nholik/munin-update/internal/dump"
	"github.com/nholik/munin-update/internal/notify"
	"github.com/rs/zerolog"
)

// NotifyReconciler detects configuration transitions between the previous
// and freshly merged sets and emits them to a notifier.
type NotifyReconciler struct {
	logger   zerolog.Logger
	notifier notify.Notifier
}

// NewNotifyReconciler returns a reconciler backed by the given notifier.
func NewNotifyReconciler(logger zerolog.Logger, notifier notify.Notifier) *NotifyReconciler {
	return &NotifyReconciler{logger: logger, notifier: notifier}
}

// Reconcile implements Reconciler.
func (r *NotifyReconciler) Reconcile(ctx context.Context, previous, current dump.HostConfigSet) error {
	transitions := diff.Detect(previous, current)
	if len(transitions) == 0 {
		return nil
	}

	r.logger.Info().Int("transitions", len(transitions)).Msg("configuration changes detected")

	if r.notifier == nil {
		return nil
	}
	return r.notifier.Notify(ctx, transitions)
}
