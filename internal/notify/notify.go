package notify

import (
	"context"
	"log/slog"
)

// Kind classifies what went wrong (or right) for routing and filtering.
type Kind string

const (
	KindLockContention Kind = "lock-contention"
	KindActionError    Kind = "action-error"
	KindQuotaIO        Kind = "quota-io"
	KindCycleDone      Kind = "cycle-done"
)

// Notifier delivers operator-facing events. Implementations are
// fire-and-forget: they swallow their own failures and must never block
// scheduling.
type Notifier interface {
	Notify(ctx context.Context, account string, kind Kind, detail string)
}

// LogNotifier writes notifications to the structured log. It is the
// default when no external channel is configured.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, account string, kind Kind, detail string) {
	log := n.Log
	if log == nil {
		log = slog.Default()
	}
	log.Warn("notification",
		slog.String("account", account),
		slog.String("kind", string(kind)),
		slog.String("detail", detail))
}

// Multi fans out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, account string, kind Kind, detail string) {
	for _, n := range m {
		n.Notify(ctx, account, kind, detail)
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) Notify(context.Context, string, Kind, string) {}
