package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/drover/internal/metrics"
	"github.com/loykin/drover/internal/scheduler"
)

// Router provides embeddable HTTP handlers for operating the runner.
// Endpoints:
//
//	GET  {basePath}/status        per-account last decision and live sessions
//	GET  {basePath}/quota         query: account=...&type=... window usage
//	POST {basePath}/cycle         trigger one scheduling cycle now
//	POST {basePath}/pause         stop future cycles from doing work
//	POST {basePath}/resume        re-enable cycles
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	orch     *scheduler.Orchestrator
	basePath string
	metrics  bool
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/abc" results in /abc/status, /abc/cycle.
func NewRouter(orch *scheduler.Orchestrator, basePath string, withMetrics bool) *Router {
	return &Router{orch: orch, basePath: sanitizeBase(basePath), metrics: withMetrics}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/quota", r.handleQuota)
	group.POST("/cycle", r.handleCycle)
	group.POST("/pause", r.handlePause)
	group.POST("/resume", r.handleResume)
	if r.metrics {
		g.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// The listener is bound synchronously so an unusable addr (port in use,
// bad interface) surfaces here instead of dying in a goroutine.
// Shut it down via http.Server's Close or Shutdown.
func NewServer(addr, basePath string, orch *scheduler.Orchestrator, withMetrics bool) (*http.Server, error) {
	r := NewRouter(orch, basePath, withMetrics)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("admin api server stopped", slog.Any("err", err))
		}
	}()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

// StatusResp is the GET /status payload.
type StatusResp struct {
	Paused       bool                 `json:"paused"`
	LiveSessions int                  `json:"live_sessions"`
	Decisions    []scheduler.Decision `json:"decisions"`
	Accounts     []StatusAccountEntry `json:"accounts"`
}

type StatusAccountEntry struct {
	ID        string         `json:"id"`
	Behaviors []string       `json:"behaviors"`
	Limits    map[string]int `json:"limits"`
}

// QuotaResp is the GET /quota payload for one (account, type) pair.
type QuotaResp struct {
	Account    string        `json:"account"`
	ActionType string        `json:"action_type"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	Available  bool          `json:"available"`
	Wait       time.Duration `json:"wait"`
}

func (r *Router) handleStatus(c *gin.Context) {
	resp := StatusResp{
		Paused:       r.orch.Paused(),
		LiveSessions: r.orch.LiveSessions(),
		Decisions:    r.orch.Decisions(),
	}
	for _, a := range r.orch.Accounts() {
		resp.Accounts = append(resp.Accounts, StatusAccountEntry{
			ID:        a.ID,
			Behaviors: a.Behaviors,
			Limits:    a.Limits,
		})
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleQuota(c *gin.Context) {
	account := c.Query("account")
	actionType := c.Query("type")
	if account == "" || actionType == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "account and type query params required"})
		return
	}
	var spec *scheduler.AccountSpec
	for _, a := range r.orch.Accounts() {
		if a.ID == account {
			spec = &a
			break
		}
	}
	if spec == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown account: " + account})
		return
	}
	limit, ok := spec.Limits[actionType]
	if !ok {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "action type not enabled for account: " + actionType})
		return
	}

	ctx := c.Request.Context()
	tr := r.orch.Tracker()
	resp := QuotaResp{
		Account:    account,
		ActionType: actionType,
		Limit:      limit,
		Remaining:  tr.Remaining(ctx, account, actionType, limit),
		Available:  tr.CanAct(ctx, account, actionType, limit),
		Wait:       tr.TimeUntilAvailable(ctx, account, actionType, limit),
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleCycle(c *gin.Context) {
	// The cycle outlives the request: a slow HTTP client (or the server's
	// write timeout) must not cancel scheduling mid-flight, so the work is
	// detached from the request context and runs in the background.
	err := r.orch.TriggerCycle(context.WithoutCancel(c.Request.Context()))
	switch {
	case err == nil:
		writeJSON(c, http.StatusAccepted, okResp{OK: true})
	case errors.Is(err, scheduler.ErrCycleRunning), errors.Is(err, scheduler.ErrPaused):
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
	default:
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
	}
}

func (r *Router) handlePause(c *gin.Context) {
	r.orch.Pause()
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleResume(c *gin.Context) {
	r.orch.Resume()
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
