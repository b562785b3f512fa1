package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/drover/internal/lock"
	"github.com/loykin/drover/internal/metrics"
	"github.com/loykin/drover/internal/session"
)

// Handle is the registry's record of one live session. Ownership is
// exclusive to the registry: callers use the session through the handle
// but never close it themselves.
type Handle struct {
	ID       string
	Account  string
	LastUsed time.Time

	sess session.Session
	lk   *lock.Lock
}

// Session exposes the underlying capability for performing actions.
func (h *Handle) Session() session.Session { return h.sess }

// Connected reports whether the handle is still usable.
func (h *Handle) Connected() bool { return h.sess.Connected() }

// Registry holds at most one live session handle per account and decides
// create vs. reuse vs. discard. Sessions stay warm across scheduling
// cycles; closing is the scheduler's call (the backpressure valve), not
// the registry's.
type Registry struct {
	driver     session.Driver
	profileFor func(account string) string
	log        *slog.Logger

	mu      sync.Mutex
	handles map[string]*Handle
	// accountMu serializes Acquire per account so a slow launch never
	// races a concurrent Acquire into a second handle, while launches
	// for different accounts proceed in parallel.
	accountMu map[string]*sync.Mutex
}

func New(driver session.Driver, profileFor func(string) string, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		driver:     driver,
		profileFor: profileFor,
		log:        log,
		handles:    make(map[string]*Handle),
		accountMu:  make(map[string]*sync.Mutex),
	}
}

// Acquire returns the account's live handle, reusing a warm connected
// session unchanged. A disconnected entry is discarded and replaced with
// a fresh launch under the account's profile lock.
func (r *Registry) Acquire(ctx context.Context, account string) (*Handle, error) {
	mu := r.perAccount(account)
	mu.Lock()
	defer mu.Unlock()

	r.mu.Lock()
	h := r.handles[account]
	r.mu.Unlock()

	if h != nil {
		if h.Connected() {
			h.LastUsed = time.Now()
			metrics.IncSessionReuse(account)
			return h, nil
		}
		r.log.Info("discarding disconnected session", slog.String("account", account))
		r.discard(h, "disconnected")
	}

	lk := lock.New(account, r.profileFor(account), r.driver.StaleArtifacts(), r.log)
	if err := lk.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("profile lock for %s: %w", account, err)
	}
	sess, err := r.driver.Open(ctx, session.Account{ID: account, ProfileDir: r.profileFor(account)})
	if err != nil {
		_ = lk.Release()
		return nil, fmt.Errorf("open session for %s: %w", account, err)
	}

	h = &Handle{
		ID:       uuid.NewString(),
		Account:  account,
		LastUsed: time.Now(),
		sess:     sess,
		lk:       lk,
	}
	r.mu.Lock()
	r.handles[account] = h
	live := len(r.handles)
	r.mu.Unlock()
	metrics.IncSessionLaunch(account)
	metrics.SetSessionsActive(live)
	return h, nil
}

// Has reports whether a live entry exists for the account.
func (r *Registry) Has(account string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.handles[account]
	return ok
}

// LiveCount returns a snapshot of the number of live sessions. Decisions
// made against it are best-effort under concurrent cycles.
func (r *Registry) LiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Close evicts the account's session if one exists. reason labels the
// eviction for observability.
func (r *Registry) Close(account, reason string) {
	r.mu.Lock()
	h := r.handles[account]
	r.mu.Unlock()
	if h == nil {
		return
	}
	r.discard(h, reason)
}

// ReleaseAll closes every live session; called at shutdown.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	hs := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		hs = append(hs, h)
	}
	r.mu.Unlock()
	for _, h := range hs {
		r.discard(h, "shutdown")
	}
}

func (r *Registry) discard(h *Handle, reason string) {
	if err := h.sess.Close(); err != nil {
		r.log.Warn("session close failed",
			slog.String("account", h.Account), slog.Any("err", err))
	}
	if err := h.lk.Release(); err != nil {
		r.log.Warn("profile lock release failed",
			slog.String("account", h.Account), slog.Any("err", err))
	}
	r.mu.Lock()
	// Only delete if this exact handle is still current; Acquire may have
	// replaced it already.
	if cur := r.handles[h.Account]; cur == h {
		delete(r.handles, h.Account)
	}
	live := len(r.handles)
	r.mu.Unlock()
	metrics.IncSessionEviction(h.Account, reason)
	metrics.SetSessionsActive(live)
}

func (r *Registry) perAccount(account string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	mu, ok := r.accountMu[account]
	if !ok {
		mu = &sync.Mutex{}
		r.accountMu[account] = mu
	}
	return mu
}
