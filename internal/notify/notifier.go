package notify

import (
	"context"

	"github.com/nholik/munin-update/internal/diff"
)

// Notifier delivers configuration transitions to external systems.
type Notifier interface {
	Notify(ctx context.Context, transitions []diff.Transition) error
}
