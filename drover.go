package drover

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/drover/internal/config"
	"github.com/loykin/drover/internal/history"
	hfactory "github.com/loykin/drover/internal/history/factory"
	"github.com/loykin/drover/internal/metrics"
	"github.com/loykin/drover/internal/notify"
	"github.com/loykin/drover/internal/quota"
	"github.com/loykin/drover/internal/registry"
	"github.com/loykin/drover/internal/scheduler"
	iapi "github.com/loykin/drover/internal/server"
	"github.com/loykin/drover/internal/session"
	"github.com/loykin/drover/internal/session/chrome"
	"github.com/loykin/drover/internal/store"
	sfactory "github.com/loykin/drover/internal/store/factory"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type AccountSpec = scheduler.AccountSpec

type Decision = scheduler.Decision

type Outcome = session.Outcome

type Session = session.Session

type SessionDriver = session.Driver

type Notifier = notify.Notifier

type HistorySink = history.Sink

type StoreConfig = store.Config

type ChromeDriver = chrome.Driver

// Runner is a thin facade over the internal scheduler stack.
// It provides a stable public API for embedding.
type Runner struct{ inner *scheduler.Orchestrator }

// RunnerOptions configures an embedded Runner.
type RunnerOptions struct {
	Accounts    []AccountSpec
	MaxSessions int
	Store       store.Store
	Driver      session.Driver
	ProfileFor  func(account string) string
	Notifier    notify.Notifier
	Sinks       []history.Sink
}

func New(opts RunnerOptions) *Runner {
	tracker := quota.New(opts.Store, nil)
	reg := registry.New(opts.Driver, opts.ProfileFor, nil)
	return &Runner{inner: scheduler.New(scheduler.Options{
		Accounts:    opts.Accounts,
		MaxSessions: opts.MaxSessions,
		Tracker:     tracker,
		Registry:    reg,
		Notifier:    opts.Notifier,
		Sinks:       opts.Sinks,
	})}
}

func (r *Runner) RunCycle(ctx context.Context) error { return r.inner.RunCycle(ctx) }

// TriggerCycle starts a cycle in the background instead of waiting for it.
func (r *Runner) TriggerCycle(ctx context.Context) error { return r.inner.TriggerCycle(ctx) }
func (r *Runner) Start(ctx context.Context, schedule string) error {
	return r.inner.Start(ctx, schedule)
}
func (r *Runner) Pause()                { r.inner.Pause() }
func (r *Runner) Resume()               { r.inner.Resume() }
func (r *Runner) Decisions() []Decision { return r.inner.Decisions() }
func (r *Runner) LiveSessions() int     { return r.inner.LiveSessions() }

// Orchestrator exposes the underlying scheduler for the admin API.
func (r *Runner) Orchestrator() *scheduler.Orchestrator { return r.inner }

func LoadConfig(path string) (*cfg.FileConfig, error) {
	return cfg.Load(path)
}

// NewStore opens the durable action-history store described by c.
func NewStore(c StoreConfig) (store.Store, error) {
	return sfactory.New(c)
}

// NewHistorySink creates an analytics sink from a DSN (sqlite path,
// postgres://, clickhouse://).
func NewHistorySink(dsn string) (HistorySink, error) {
	return hfactory.NewSinkFromDSN(dsn)
}

// NewHTTPServer starts an HTTP server exposing the admin API for the given runner.
func NewHTTPServer(addr, basePath string, r *Runner, withMetrics bool) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, r.inner, withMetrics)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
