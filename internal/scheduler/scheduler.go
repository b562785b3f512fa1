package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/loykin/drover/internal/gate"
	"github.com/loykin/drover/internal/history"
	"github.com/loykin/drover/internal/lock"
	"github.com/loykin/drover/internal/metrics"
	"github.com/loykin/drover/internal/notify"
	"github.com/loykin/drover/internal/quota"
	"github.com/loykin/drover/internal/registry"
	"github.com/loykin/drover/internal/session"
)

// maxJitter is the upper bound of the random delay before each account's
// evaluation, so many simultaneously eligible accounts do not launch
// sessions at the same instant.
const maxJitter = 5 * time.Second

var (
	// ErrCycleRunning is returned when a cycle is requested while the
	// previous one has not finished.
	ErrCycleRunning = errors.New("cycle already running")
	// ErrPaused is returned when a cycle is requested while scheduling
	// is paused.
	ErrPaused = errors.New("scheduling paused")
)

// AccountSpec describes one managed account: its durable profile
// directory, which action types are enabled, and each type's hourly limit.
type AccountSpec struct {
	ID         string
	ProfileDir string
	Behaviors  []string
	Limits     map[string]int
}

// Action is the per-cycle verdict for one account.
type Action string

const (
	ActionRun  Action = "run"
	ActionWait Action = "wait"
	ActionSkip Action = "skip"
)

// Decision is the scheduler's per-cycle output for one account.
type Decision struct {
	Account string        `json:"account"`
	Action  Action        `json:"action"`
	Wait    time.Duration `json:"wait,omitempty"`
	Reason  string        `json:"reason,omitempty"`
	At      time.Time     `json:"at"`
}

// Orchestrator decides, each cycle and per account, whether to run now or
// wait, and drives execution through the concurrency gate. Accounts are
// evaluated independently; one account's failure never aborts another's.
type Orchestrator struct {
	accounts    []AccountSpec
	maxSessions int
	tracker     *quota.Tracker
	reg         *registry.Registry
	g           *gate.Gate
	notifier    notify.Notifier
	sinks       []history.Sink
	log         *slog.Logger

	jitter func() time.Duration
	now    func() time.Time

	running atomic.Bool
	paused  atomic.Bool

	mu   sync.Mutex
	last map[string]Decision
}

// Options wires an Orchestrator. Tracker and Registry are required;
// Notifier defaults to a no-op and Log to slog.Default().
type Options struct {
	Accounts    []AccountSpec
	MaxSessions int
	Tracker     *quota.Tracker
	Registry    *registry.Registry
	Notifier    notify.Notifier
	Sinks       []history.Sink
	Log         *slog.Logger
}

func New(opts Options) *Orchestrator {
	if opts.MaxSessions < 1 {
		opts.MaxSessions = 1
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	o := &Orchestrator{
		accounts:    opts.Accounts,
		maxSessions: opts.MaxSessions,
		tracker:     opts.Tracker,
		reg:         opts.Registry,
		g:           gate.New(opts.MaxSessions),
		notifier:    opts.Notifier,
		sinks:       opts.Sinks,
		log:         opts.Log,
		jitter:      func() time.Duration { return time.Duration(rand.Int63n(int64(maxJitter))) },
		now:         time.Now,
		last:        make(map[string]Decision),
	}
	o.tracker.SetWriteErrorHook(func(ctx context.Context, account, detail string) {
		o.notifier.Notify(ctx, account, notify.KindQuotaIO, detail)
	})
	return o
}

// SetJitter overrides the pre-evaluation delay. Intended for tests.
func (o *Orchestrator) SetJitter(fn func() time.Duration) { o.jitter = fn }

// SetClock overrides the time source. Intended for tests.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

// Pause stops future cycles from doing work until Resume.
func (o *Orchestrator) Pause() { o.paused.Store(true) }

// Resume re-enables cycles after Pause.
func (o *Orchestrator) Resume() { o.paused.Store(false) }

// Paused reports whether scheduling is paused.
func (o *Orchestrator) Paused() bool { return o.paused.Load() }

// Decisions returns the most recent decision per account.
func (o *Orchestrator) Decisions() []Decision {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Decision, 0, len(o.last))
	for _, d := range o.last {
		out = append(out, d)
	}
	return out
}

// LiveSessions returns the current number of live session handles.
func (o *Orchestrator) LiveSessions() int { return o.reg.LiveCount() }

// Accounts returns the configured account specs.
func (o *Orchestrator) Accounts() []AccountSpec { return o.accounts }

// Tracker exposes the quota tracker for read-only queries.
func (o *Orchestrator) Tracker() *quota.Tracker { return o.tracker }

// Start registers the cycle on the given cron schedule and runs it until
// ctx is cancelled. Overlapping ticks are skipped, not queued.
func (o *Orchestrator) Start(ctx context.Context, schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if err := o.RunCycle(ctx); err != nil && !errors.Is(err, ErrPaused) && !errors.Is(err, ErrCycleRunning) {
			o.log.Error("cycle failed", slog.Any("err", err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cycle schedule %q: %w", schedule, err)
	}
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return nil
}

// RunCycle evaluates every account once and drives the resulting Run
// decisions through the gate. It returns when all accounts have settled.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	if o.paused.Load() {
		return ErrPaused
	}
	if !o.running.CompareAndSwap(false, true) {
		return ErrCycleRunning
	}
	defer o.running.Store(false)

	o.cycle(ctx)
	return nil
}

// TriggerCycle claims the cycle slot like RunCycle but runs the work in
// the background, so an admin request is not held open (and its context
// not cancelled) for the duration of a full cycle.
func (o *Orchestrator) TriggerCycle(ctx context.Context) error {
	if o.paused.Load() {
		return ErrPaused
	}
	if !o.running.CompareAndSwap(false, true) {
		return ErrCycleRunning
	}
	go func() {
		defer o.running.Store(false)
		o.cycle(ctx)
	}()
	return nil
}

func (o *Orchestrator) cycle(ctx context.Context) {
	start := o.now()
	var wg sync.WaitGroup
	for _, a := range o.accounts {
		wg.Add(1)
		go func(a AccountSpec) {
			defer wg.Done()
			o.cycleAccount(ctx, a)
		}(a)
	}
	wg.Wait()
	metrics.ObserveCycleDuration(o.now().Sub(start).Seconds())
}

// cycleAccount is the whole per-cycle pipeline for one account. Every
// error is absorbed here so siblings are never affected.
func (o *Orchestrator) cycleAccount(ctx context.Context, a AccountSpec) {
	if !sleepCtx(ctx, o.jitter()) {
		return
	}
	if ctx.Err() != nil {
		return
	}

	d := o.evaluate(ctx, a)
	o.remember(d)
	metrics.IncDecision(string(d.Action))

	switch d.Action {
	case ActionWait:
		// Entering the cycle fully blocked closes a warm session right
		// away, independent of the end-of-cycle backpressure rule.
		if o.reg.Has(a.ID) {
			o.log.Info("closing warm session for blocked account",
				slog.String("account", a.ID),
				slog.Duration("wait", d.Wait))
			o.reg.Close(a.ID, "quota-blocked")
		}
	case ActionRun:
		err := <-o.g.Enqueue(ctx, func(ctx context.Context) error {
			return o.runAccount(ctx, a)
		})
		if err != nil {
			o.reportRunError(ctx, a.ID, err)
		}
	}
}

// evaluate computes CanAct for every enabled type. At least one available
// type means Run; none means Wait for the soonest slot to vacate.
func (o *Orchestrator) evaluate(ctx context.Context, a AccountSpec) Decision {
	d := Decision{Account: a.ID, At: o.now()}
	if len(a.Behaviors) == 0 {
		d.Action = ActionSkip
		d.Reason = "no behaviors enabled"
		return d
	}

	minWait := time.Duration(-1)
	for _, typ := range a.Behaviors {
		limit := a.Limits[typ]
		if o.tracker.CanAct(ctx, a.ID, typ, limit) {
			d.Action = ActionRun
			return d
		}
		w := o.tracker.TimeUntilAvailable(ctx, a.ID, typ, limit)
		if minWait < 0 || w < minWait {
			minWait = w
		}
	}
	d.Action = ActionWait
	d.Wait = minWait
	d.Reason = "all action types quota-blocked"
	return d
}

// runAccount executes inside a gate slot: acquire a session, perform the
// currently allowed actions, record successes, then apply the
// end-of-cycle eviction rule.
func (o *Orchestrator) runAccount(ctx context.Context, a AccountSpec) error {
	h, err := o.reg.Acquire(ctx, a.ID)
	if err != nil {
		return err
	}

	behaviors, budgets := o.allowed(ctx, a)
	if len(behaviors) == 0 {
		// Quota drained between Evaluate and this slot opening.
		o.evictIfContended(ctx, a)
		return nil
	}

	outcomes, performErr := h.Session().Perform(ctx, behaviors, budgets)

	// Successful outcomes count against quota even when the run as a
	// whole failed partway; those actions did happen.
	for _, out := range outcomes {
		if !out.OK {
			continue
		}
		o.tracker.Record(ctx, a.ID, out.ActionType)
	}
	o.export(ctx, a.ID, outcomes)

	if ctx.Err() == nil {
		o.evictIfContended(ctx, a)
	}
	if performErr != nil {
		return fmt.Errorf("perform for %s: %w", a.ID, performErr)
	}
	return nil
}

// allowed returns the enabled action types with spare quota right now and
// each one's remaining budget.
func (o *Orchestrator) allowed(ctx context.Context, a AccountSpec) ([]string, map[string]int) {
	var types []string
	budgets := make(map[string]int, len(a.Behaviors))
	for _, typ := range a.Behaviors {
		left := o.tracker.Remaining(ctx, a.ID, typ, a.Limits[typ])
		if left > 0 {
			types = append(types, typ)
			budgets[typ] = left
		}
	}
	return types, budgets
}

// evictIfContended closes the account's session only when every enabled
// type is now quota-blocked and the live-session count has reached the
// ceiling. With slack capacity the session stays warm for the next cycle.
func (o *Orchestrator) evictIfContended(ctx context.Context, a AccountSpec) {
	for _, typ := range a.Behaviors {
		if o.tracker.CanAct(ctx, a.ID, typ, a.Limits[typ]) {
			return
		}
	}
	if o.reg.LiveCount() < o.maxSessions {
		return
	}
	o.log.Info("evicting session under contention", slog.String("account", a.ID))
	o.reg.Close(a.ID, "contention")
}

func (o *Orchestrator) export(ctx context.Context, account string, outcomes []session.Outcome) {
	if len(o.sinks) == 0 || len(outcomes) == 0 {
		return
	}
	now := o.now().UTC()
	for _, out := range outcomes {
		e := history.Event{
			Account:    account,
			ActionType: out.ActionType,
			OK:         out.OK,
			Detail:     out.Detail,
			OccurredAt: now,
		}
		for _, s := range o.sinks {
			if err := s.Send(ctx, e); err != nil {
				o.log.Warn("history sink send failed", slog.Any("err", err))
			}
		}
	}
}

func (o *Orchestrator) reportRunError(ctx context.Context, account string, err error) {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		o.log.Debug("account run cancelled", slog.String("account", account))
	case errors.Is(err, lock.ErrBusy):
		o.log.Warn("profile lock busy, skipping account this cycle",
			slog.String("account", account), slog.Any("err", err))
		o.notifier.Notify(ctx, account, notify.KindLockContention, err.Error())
	default:
		o.log.Error("account run failed",
			slog.String("account", account), slog.Any("err", err))
		o.notifier.Notify(ctx, account, notify.KindActionError, err.Error())
	}
}

func (o *Orchestrator) remember(d Decision) {
	o.mu.Lock()
	o.last[d.Account] = d
	o.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
