package notify

import (
	"context"

	"github.com/nholik/munin-update/internal/diff"
	"github.com/rs/zerolog"
)

// DryRunNotifier logs transitions without sending notifications.
type DryRunNotifier struct {
	logger zerolog.Logger
	inner  Notifier
}

// NewDryRunNotifier returns a notifier that suppresses delivery and logs instead.
func NewDryRunNotifier(logger zerolog.Logger, inner Notifier) *DryRunNotifier {
	return &DryRunNotifier{logger: logger, inner: inner}
}

// Notify implements Notifier.
func (n *DryRunNotifier) Notify(_ context.Context, transitions []diff.Transition) error {
	for _, change := range transitions {
		n.logger.Info().
			Str("kind", string(change.Kind)).
			Str("host", change.Host).
			Str("service", change.Service).
			Str("attr", change.Attr).
			Str("previous", change.Previous).
			Str("current", change.Current).
			Msg("[DRY-RUN] Would notify")
	}
	return nil
}
