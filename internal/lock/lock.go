package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/loykin/drover/internal/detector"
	"github.com/loykin/drover/internal/metrics"
)

// ErrBusy is returned when the profile resource is still held after all
// acquisition attempts, including forced recovery.
var ErrBusy = errors.New("profile resource busy")

const (
	maxAttempts = 5
	backoffBase = 8 * time.Second
	backoffStep = 2 * time.Second
	// killGrace is how long a holder gets to exit after SIGTERM before
	// escalation to SIGKILL.
	killGrace = 3 * time.Second
)

// Lock is a named exclusive token bound to a durable profile directory.
// It is acquired at session creation and released at clean close. A lock
// left behind by a crashed holder is broken by terminating any process
// still bound to the profile path and deleting stale artifacts.
//
// Unlike an in-process mutex, Lock guards the resource across processes
// via flock(2); the kernel releases the flock itself when a holder dies,
// so breaking is about the holder's own leftovers, not the flock file.
type Lock struct {
	account    string
	profileDir string
	artifacts  []string // relative names removed from profileDir when breaking
	fl         *flock.Flock
	log        *slog.Logger

	// Backoff computes the pause before retry n (1-based). Tests override it.
	Backoff func(attempt int) time.Duration
}

func New(account, profileDir string, artifacts []string, log *slog.Logger) *Lock {
	if log == nil {
		log = slog.Default()
	}
	return &Lock{
		account:    account,
		profileDir: profileDir,
		artifacts:  artifacts,
		fl:         flock.New(filepath.Join(profileDir, "drover.lock")),
		log:        log,
		Backoff: func(attempt int) time.Duration {
			return backoffBase + backoffStep*time.Duration(attempt)
		},
	}
}

// Path returns the lock file path.
func (l *Lock) Path() string { return l.fl.Path() }

// Acquire takes the exclusive lock, retrying with increasing backoff and
// breaking stale state before each retry. Exhausting all attempts returns
// ErrBusy; the caller fails only the account's current cycle, never the
// process.
func (l *Lock) Acquire(ctx context.Context) error {
	if err := os.MkdirAll(l.profileDir, 0o755); err != nil {
		return fmt.Errorf("creating profile dir: %w", err)
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ok, err := l.fl.TryLock()
		if err == nil && ok {
			return nil
		}
		if err != nil {
			l.log.Warn("lock attempt failed",
				slog.String("account", l.account),
				slog.String("path", l.Path()),
				slog.Int("attempt", attempt),
				slog.Any("err", err))
		}
		if attempt == maxAttempts {
			break
		}
		l.breakStale()
		if err := sleepCtx(ctx, l.Backoff(attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("lock %s after %d attempts: %w", l.Path(), maxAttempts, ErrBusy)
}

// Release unlocks and is safe to call when not held.
func (l *Lock) Release() error { return l.fl.Unlock() }

// breakStale recovers from a holder that crashed or hung: terminate any
// process whose invocation references the profile path, then delete the
// artifacts it left behind.
func (l *Lock) breakStale() {
	det := detector.FragmentDetector{Fragment: l.profileDir}
	pids, err := det.Pids()
	if err != nil {
		l.log.Warn("stale holder scan failed",
			slog.String("account", l.account), slog.Any("err", err))
	}
	if len(pids) > 0 {
		l.log.Info("terminating stale lock holder",
			slog.String("account", l.account),
			slog.String("profile", l.profileDir),
			slog.Any("pids", pids))
		terminate(pids, killGrace)
		metrics.IncLockBreak(l.account)
	}
	for _, name := range l.artifacts {
		p := filepath.Join(l.profileDir, name)
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			l.log.Warn("stale artifact removal failed",
				slog.String("path", p), slog.Any("err", err))
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
