package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loykin/drover/internal/config"
	"github.com/loykin/drover/internal/history"
	hfactory "github.com/loykin/drover/internal/history/factory"
	"github.com/loykin/drover/internal/metrics"
	"github.com/loykin/drover/internal/notify"
	"github.com/loykin/drover/internal/quota"
	"github.com/loykin/drover/internal/registry"
	"github.com/loykin/drover/internal/scheduler"
	"github.com/loykin/drover/internal/server"
	"github.com/loykin/drover/internal/session/chrome"
	sfactory "github.com/loykin/drover/internal/store/factory"
)

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the drover daemon",
		Long: `Start the drover daemon: the scheduler runs cycles on the configured
schedule and the admin API serves status, quota, and control endpoints.

Examples:
  drover serve --config=drover.toml
  drover serve drover.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := globalFlags.ConfigPath
			if len(args) > 0 {
				configPath = args[0]
			}
			if configPath == "" {
				return fmt.Errorf("config file required. Use --config=drover.toml or provide as argument")
			}
			return runServe(configPath)
		},
	}
}

func runServe(configPath string) error {
	fc, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if len(fc.Accounts) == 0 {
		return fmt.Errorf("no accounts configured in %s", configPath)
	}

	log, logCloser := fc.Log.NewLogger()
	slog.SetDefault(log)
	if logCloser != nil {
		defer func() { _ = logCloser.Close() }()
	}

	st, err := sfactory.New(fc.Store)
	if err != nil {
		return fmt.Errorf("open quota store: %w", err)
	}
	defer func() { _ = st.Close() }()
	if err := st.EnsureSchema(context.Background()); err != nil {
		return fmt.Errorf("ensure quota schema: %w", err)
	}

	var sinks []history.Sink
	for _, dsn := range fc.History.DSNs {
		sink, err := hfactory.NewSinkFromDSN(dsn)
		if err != nil {
			return fmt.Errorf("open history sink %q: %w", dsn, err)
		}
		sinks = append(sinks, sink)
	}
	defer func() {
		for _, s := range sinks {
			if c, ok := s.(interface{ Close() error }); ok {
				_ = c.Close()
			}
		}
	}()

	notifier := buildNotifier(fc, log)

	driver := &chrome.Driver{
		Bin:      fc.Browser.Bin,
		Headless: fc.Browser.Headless,
		Actions:  map[string]chrome.ActionFunc{},
		Log:      log,
	}
	reg := registry.New(driver, fc.ProfileFor(), log)

	orch := scheduler.New(scheduler.Options{
		Accounts:    fc.AccountSpecs(),
		MaxSessions: fc.MaxConcurrentSessions,
		Tracker:     quota.New(st, log),
		Registry:    reg,
		Notifier:    notifier,
		Sinks:       sinks,
		Log:         log,
	})

	if fc.Server.Metrics {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			log.Warn("failed to register metrics", slog.Any("err", err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if fc.Server.Enabled {
		srv, err := server.NewServer(fc.Server.Listen, "", orch, fc.Server.Metrics)
		if err != nil {
			return fmt.Errorf("start admin server: %w", err)
		}
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutCtx)
		}()
		log.Info("admin API listening", slog.String("addr", fc.Server.Listen))
	}

	if err := orch.Start(ctx, fc.CycleSchedule); err != nil {
		return err
	}
	log.Info("drover started",
		slog.Int("accounts", len(fc.Accounts)),
		slog.Int("max_sessions", fc.MaxConcurrentSessions),
		slog.String("schedule", fc.CycleSchedule))

	<-ctx.Done()
	log.Info("shutting down, releasing sessions")
	reg.ReleaseAll()
	return nil
}

func buildNotifier(fc *config.FileConfig, log *slog.Logger) notify.Notifier {
	notifiers := notify.Multi{notify.LogNotifier{Log: log}}
	if fc.Notify.TelegramToken != "" && fc.Notify.TelegramChatID != 0 {
		tg, err := notify.NewTelegram(fc.Notify.TelegramToken, fc.Notify.TelegramChatID, log)
		if err != nil {
			log.Warn("telegram notifier disabled", slog.Any("err", err))
		} else {
			notifiers = append(notifiers, tg)
		}
	}
	return notifiers
}
