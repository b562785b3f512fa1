package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loykin/drover/internal/quota"
	"github.com/loykin/drover/internal/registry"
	"github.com/loykin/drover/internal/scheduler"
	"github.com/loykin/drover/internal/session"
	"github.com/loykin/drover/internal/store/sqlite"
)

type idleSession struct{}

func (idleSession) Connected() bool { return true }
func (idleSession) Perform(_ context.Context, behaviors session.Behaviors, _ session.Limits) ([]session.Outcome, error) {
	out := make([]session.Outcome, 0, len(behaviors))
	for _, typ := range behaviors {
		out = append(out, session.Outcome{ActionType: typ, OK: true})
	}
	return out, nil
}
func (idleSession) Close() error { return nil }

type idleDriver struct{}

func (idleDriver) Open(context.Context, session.Account) (session.Session, error) {
	return idleSession{}, nil
}
func (idleDriver) StaleArtifacts() []string { return nil }

func newTestRouter(t *testing.T) (*Router, *scheduler.Orchestrator) {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "quota.db"))
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}

	base := t.TempDir()
	reg := registry.New(idleDriver{}, func(account string) string {
		return filepath.Join(base, account)
	}, nil)
	t.Cleanup(reg.ReleaseAll)

	orch := scheduler.New(scheduler.Options{
		Accounts: []scheduler.AccountSpec{{
			ID:        "a1",
			Behaviors: []string{"engage"},
			Limits:    map[string]int{"engage": 2},
		}},
		MaxSessions: 1,
		Tracker:     quota.New(st, nil),
		Registry:    reg,
	})
	orch.SetJitter(func() time.Duration { return 0 })
	return NewRouter(orch, "", false), orch
}

func doReq(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestStatusEndpoint(t *testing.T) {
	r, orch := newTestRouter(t)
	h := r.Handler()

	if err := orch.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}

	w := doReq(t, h, http.MethodGet, "/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp StatusResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Paused {
		t.Error("should not be paused")
	}
	if len(resp.Accounts) != 1 || resp.Accounts[0].ID != "a1" {
		t.Errorf("accounts = %+v", resp.Accounts)
	}
	if len(resp.Decisions) != 1 || resp.Decisions[0].Action != scheduler.ActionRun {
		t.Errorf("decisions = %+v", resp.Decisions)
	}
}

func TestQuotaEndpoint(t *testing.T) {
	r, orch := newTestRouter(t)
	h := r.Handler()

	if w := doReq(t, h, http.MethodGet, "/quota"); w.Code != http.StatusBadRequest {
		t.Errorf("missing params: status = %d", w.Code)
	}
	if w := doReq(t, h, http.MethodGet, "/quota?account=nobody&type=engage"); w.Code != http.StatusNotFound {
		t.Errorf("unknown account: status = %d", w.Code)
	}
	if w := doReq(t, h, http.MethodGet, "/quota?account=a1&type=spam"); w.Code != http.StatusNotFound {
		t.Errorf("unknown type: status = %d", w.Code)
	}

	// One cycle performs one engage action, leaving one slot.
	if err := orch.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	w := doReq(t, h, http.MethodGet, "/quota?account=a1&type=engage")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp QuotaResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Limit != 2 || resp.Remaining != 1 || !resp.Available {
		t.Errorf("quota = %+v", resp)
	}
}

func TestCyclePauseResume(t *testing.T) {
	r, _ := newTestRouter(t)
	h := r.Handler()

	if w := doReq(t, h, http.MethodPost, "/cycle"); w.Code != http.StatusAccepted {
		t.Fatalf("cycle: status = %d, body %s", w.Code, w.Body.String())
	}

	if w := doReq(t, h, http.MethodPost, "/pause"); w.Code != http.StatusOK {
		t.Fatalf("pause: status = %d", w.Code)
	}
	if w := doReq(t, h, http.MethodPost, "/cycle"); w.Code != http.StatusConflict {
		t.Errorf("cycle while paused: status = %d", w.Code)
	}
	if w := doReq(t, h, http.MethodPost, "/resume"); w.Code != http.StatusOK {
		t.Fatalf("resume: status = %d", w.Code)
	}
	// The first triggered cycle may still be draining; retry until the
	// slot frees up.
	deadline := time.Now().Add(2 * time.Second)
	for {
		w := doReq(t, h, http.MethodPost, "/cycle")
		if w.Code == http.StatusAccepted {
			break
		}
		if w.Code != http.StatusConflict || !time.Now().Before(deadline) {
			t.Fatalf("cycle after resume: status = %d", w.Code)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type blockingSession struct {
	release     <-chan struct{}
	ctxDeadLate *atomic.Bool
}

func (blockingSession) Connected() bool { return true }
func (s blockingSession) Perform(ctx context.Context, behaviors session.Behaviors, _ session.Limits) ([]session.Outcome, error) {
	<-s.release
	s.ctxDeadLate.Store(ctx.Err() != nil)
	out := make([]session.Outcome, 0, len(behaviors))
	for _, typ := range behaviors {
		out = append(out, session.Outcome{ActionType: typ, OK: true})
	}
	return out, nil
}
func (blockingSession) Close() error { return nil }

type blockingDriver struct {
	release     <-chan struct{}
	ctxDeadLate *atomic.Bool
}

func (d blockingDriver) Open(context.Context, session.Account) (session.Session, error) {
	return blockingSession{release: d.release, ctxDeadLate: d.ctxDeadLate}, nil
}
func (blockingDriver) StaleArtifacts() []string { return nil }

// A triggered cycle must answer immediately and keep running after the
// requesting client goes away.
func TestCycleSurvivesClientDisconnect(t *testing.T) {
	st, err := sqlite.New(filepath.Join(t.TempDir(), "quota.db"))
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}

	release := make(chan struct{})
	var ctxDeadLate atomic.Bool
	base := t.TempDir()
	reg := registry.New(blockingDriver{release: release, ctxDeadLate: &ctxDeadLate}, func(account string) string {
		return filepath.Join(base, account)
	}, nil)
	t.Cleanup(reg.ReleaseAll)

	tracker := quota.New(st, nil)
	orch := scheduler.New(scheduler.Options{
		Accounts: []scheduler.AccountSpec{{
			ID:        "a1",
			Behaviors: []string{"engage"},
			Limits:    map[string]int{"engage": 2},
		}},
		MaxSessions: 1,
		Tracker:     tracker,
		Registry:    reg,
	})
	orch.SetJitter(func() time.Duration { return 0 })
	h := NewRouter(orch, "", false).Handler()

	reqCtx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/cycle", nil).WithContext(reqCtx)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("trigger: status = %d, body %s", w.Code, w.Body.String())
	}
	// Client disconnects while the session is still mid-action.
	cancel()

	if w := doReq(t, h, http.MethodPost, "/cycle"); w.Code != http.StatusConflict {
		t.Errorf("overlapping trigger: status = %d", w.Code)
	}

	close(release)
	deadline := time.Now().Add(2 * time.Second)
	for tracker.Remaining(context.Background(), "a1", "engage", 2) != 1 {
		if !time.Now().Before(deadline) {
			t.Fatal("triggered cycle never recorded its action")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if ctxDeadLate.Load() {
		t.Error("cycle context was cancelled by the client disconnect")
	}
}

func TestBasePathMounting(t *testing.T) {
	r, _ := newTestRouter(t)
	r.basePath = "/drover"
	h := r.Handler()

	if w := doReq(t, h, http.MethodGet, "/drover/status"); w.Code != http.StatusOK {
		t.Errorf("prefixed status = %d", w.Code)
	}
	if w := doReq(t, h, http.MethodGet, "/status"); w.Code != http.StatusNotFound {
		t.Errorf("unprefixed status = %d, want 404", w.Code)
	}
}

func TestNewServerBindErrors(t *testing.T) {
	_, orch := newTestRouter(t)

	srv, err := NewServer("127.0.0.1:0", "", orch, false)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	if _, err := NewServer(ln.Addr().String(), "", orch, false); err == nil {
		t.Fatal("occupied addr must fail at construction")
	}
}
