package quota

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/loykin/drover/internal/metrics"
	"github.com/loykin/drover/internal/store"
)

// Window is the trailing interval over which per-action counts are
// compared against their hourly limits.
const Window = time.Hour

// retention is how long records are kept before opportunistic GC. Records
// older than the window can no longer influence any decision; 24h leaves
// slack for offline inspection.
const retention = 24 * time.Hour

// gcInterval bounds how often Record attempts a purge.
const gcInterval = time.Hour

// Tracker answers "may this account act now" from the durable action log.
// It re-reads the store on every call so independently scheduled accounts
// observe recent writes; cross-process read-after-write is best-effort
// (the store offers no compare-and-swap).
//
// Failure policy: unreadable store counts as an empty log (fail open);
// write failures are logged and never block the caller.
type Tracker struct {
	st  store.Store
	log *slog.Logger
	now func() time.Time

	// onWriteError, when set, is told about failed appends so the caller
	// can surface them (the write itself is never retried here).
	onWriteError func(ctx context.Context, account, detail string)

	mu     sync.Mutex
	lastGC time.Time
}

func New(st store.Store, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	return &Tracker{st: st, log: log, now: time.Now}
}

// SetClock overrides the time source. Intended for tests.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

// SetWriteErrorHook registers a callback invoked after a failed append.
func (t *Tracker) SetWriteErrorHook(fn func(ctx context.Context, account, detail string)) {
	t.onWriteError = fn
}

// CanAct reports whether (account, actionType) has spare quota: fewer than
// limitPerHour records inside the trailing window.
func (t *Tracker) CanAct(ctx context.Context, account, actionType string, limitPerHour int) bool {
	recs := t.windowed(ctx, account, actionType)
	ok := len(recs) < limitPerHour
	if !ok {
		metrics.IncQuotaBlocked(account, actionType)
	}
	return ok
}

// Record appends an action record timestamped now. Persistence failure is
// logged and swallowed; the action already happened, so the caller must
// not be failed retroactively.
func (t *Tracker) Record(ctx context.Context, account, actionType string) {
	now := t.now()
	rec := store.Record{Account: account, ActionType: actionType, OccurredAt: now.UTC()}
	if err := t.st.Append(ctx, rec); err != nil {
		t.log.Error("quota record write failed",
			slog.String("account", account),
			slog.String("action_type", actionType),
			slog.Any("err", err))
		if t.onWriteError != nil {
			t.onWriteError(ctx, account, err.Error())
		}
	}
	metrics.IncActionRecorded(account, actionType)
	t.maybeGC(ctx, now)
}

// Remaining returns how many more actions fit in the current window,
// floored at zero.
func (t *Tracker) Remaining(ctx context.Context, account, actionType string, limitPerHour int) int {
	left := limitPerHour - len(t.windowed(ctx, account, actionType))
	if left < 0 {
		return 0
	}
	return left
}

// TimeUntilAvailable returns how long until the account may act again, or
// zero when it can act now. When blocked, the wait equals the expiry of
// the oldest in-window record, since that slot vacates first.
func (t *Tracker) TimeUntilAvailable(ctx context.Context, account, actionType string, limitPerHour int) time.Duration {
	recs := t.windowed(ctx, account, actionType)
	if len(recs) < limitPerHour {
		return 0
	}
	if len(recs) == 0 {
		// Blocked with an empty log only happens for limit<=0 (the type is
		// effectively disabled); a full window is the honest answer.
		return Window
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].OccurredAt.Before(recs[j].OccurredAt) })
	wait := recs[0].OccurredAt.Add(Window).Sub(t.now())
	if wait < 0 {
		return 0
	}
	return wait
}

func (t *Tracker) windowed(ctx context.Context, account, actionType string) []store.Record {
	cutoff := t.now().Add(-Window)
	recs, err := t.st.Since(ctx, account, actionType, cutoff)
	if err != nil {
		t.log.Warn("quota log unreadable, failing open",
			slog.String("account", account),
			slog.String("action_type", actionType),
			slog.Any("err", err))
		return nil
	}
	return recs
}

func (t *Tracker) maybeGC(ctx context.Context, now time.Time) {
	t.mu.Lock()
	due := now.Sub(t.lastGC) >= gcInterval
	if due {
		t.lastGC = now
	}
	t.mu.Unlock()
	if !due {
		return
	}
	n, err := t.st.PurgeOlderThan(ctx, now.Add(-retention))
	if err != nil {
		t.log.Warn("quota log purge failed", slog.Any("err", err))
		return
	}
	if n > 0 {
		t.log.Debug("purged expired quota records", slog.Int64("rows", n))
	}
}
