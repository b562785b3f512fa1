package chrome

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/loykin/drover/internal/session"
)

// ActionFunc executes up to budget actions of one type against a live
// browser and returns how many succeeded. Page selectors, pacing, and
// content generation are the implementor's business.
type ActionFunc func(ctx context.Context, browser *rod.Browser, budget int) (int, error)

// Driver opens Chromium sessions bound to per-account user-data
// directories. Page behavior is pluggable via Actions; the driver itself
// only manages browser lifecycle.
type Driver struct {
	Bin      string // optional explicit browser binary
	Headless bool
	Actions  map[string]ActionFunc
	Log      *slog.Logger
}

// Chromium singleton files left behind on crash; removed when a stale
// profile lock is broken.
var staleArtifacts = []string{"SingletonLock", "SingletonCookie", "SingletonSocket"}

func (d *Driver) StaleArtifacts() []string { return staleArtifacts }

func (d *Driver) logger() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}

func (d *Driver) Open(ctx context.Context, account session.Account) (session.Session, error) {
	l := launcher.New().
		UserDataDir(account.ProfileDir).
		Headless(d.Headless)
	if d.Bin != "" {
		l = l.Bin(d.Bin)
	}
	u, err := l.Context(ctx).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser for %s: %w", account.ID, err)
	}
	browser := rod.New().ControlURL(u).Context(ctx)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser for %s: %w", account.ID, err)
	}
	d.logger().Info("browser session opened",
		slog.String("account", account.ID),
		slog.String("profile", account.ProfileDir))
	return &chromeSession{
		account:  account,
		browser:  browser,
		launcher: l,
		driver:   d,
		opened:   time.Now(),
	}, nil
}

type chromeSession struct {
	account  session.Account
	browser  *rod.Browser
	launcher *launcher.Launcher
	driver   *Driver
	opened   time.Time
}

func (s *chromeSession) Connected() bool {
	// A cheap CDP round-trip; failure means the browser died or the
	// devtools socket is gone.
	_, err := s.browser.Pages()
	return err == nil
}

func (s *chromeSession) Perform(ctx context.Context, behaviors session.Behaviors, limits session.Limits) ([]session.Outcome, error) {
	log := s.driver.logger()
	outcomes := make([]session.Outcome, 0)
	for _, actionType := range behaviors {
		if err := ctx.Err(); err != nil {
			// Cancellation is honored between action types, never mid-action.
			return outcomes, err
		}
		budget := limits[actionType]
		if budget <= 0 {
			continue
		}
		fn, ok := s.driver.Actions[actionType]
		if !ok {
			log.Debug("no action registered for type",
				slog.String("account", s.account.ID),
				slog.String("action_type", actionType))
			continue
		}
		done, err := fn(ctx, s.browser, budget)
		for i := 0; i < done; i++ {
			outcomes = append(outcomes, session.Outcome{ActionType: actionType, OK: true})
		}
		if err != nil {
			outcomes = append(outcomes, session.Outcome{
				ActionType: actionType,
				OK:         false,
				Detail:     err.Error(),
			})
			return outcomes, fmt.Errorf("perform %s for %s: %w", actionType, s.account.ID, err)
		}
	}
	return outcomes, nil
}

func (s *chromeSession) Close() error {
	err := s.browser.Close()
	s.launcher.Kill()
	s.launcher.Cleanup()
	s.driver.logger().Info("browser session closed",
		slog.String("account", s.account.ID),
		slog.Duration("lifetime", time.Since(s.opened)))
	return err
}
