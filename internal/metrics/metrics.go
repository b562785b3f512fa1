package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	actionsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drover",
			Subsystem: "quota",
			Name:      "actions_recorded_total",
			Help:      "Number of side-effecting actions recorded in the quota log.",
		}, []string{"account", "action_type"},
	)
	quotaBlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drover",
			Subsystem: "quota",
			Name:      "blocked_total",
			Help:      "Number of quota checks that denied an action.",
		}, []string{"account", "action_type"},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "drover",
			Subsystem: "session",
			Name:      "active",
			Help:      "Current number of live sessions in the registry.",
		},
	)
	sessionReuses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drover",
			Subsystem: "session",
			Name:      "reuses_total",
			Help:      "Number of times a warm session was reused instead of relaunched.",
		}, []string{"account"},
	)
	sessionLaunches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drover",
			Subsystem: "session",
			Name:      "launches_total",
			Help:      "Number of fresh session launches.",
		}, []string{"account"},
	)
	sessionEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drover",
			Subsystem: "session",
			Name:      "evictions_total",
			Help:      "Number of sessions closed by the eviction rule.",
		}, []string{"account", "reason"},
	)
	lockBreaks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drover",
			Subsystem: "lock",
			Name:      "breaks_total",
			Help:      "Number of stale profile locks broken during acquisition.",
		}, []string{"account"},
	)
	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "drover",
			Subsystem: "scheduler",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a full scheduling cycle across all accounts.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "drover",
			Subsystem: "scheduler",
			Name:      "decisions_total",
			Help:      "Per-cycle scheduling decisions by kind.",
		}, []string{"action"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		actionsRecorded, quotaBlocked, sessionsActive, sessionReuses,
		sessionLaunches, sessionEvictions, lockBreaks, cycleDuration, decisions,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the
// default gatherer. The caller wires the route.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncActionRecorded(account, actionType string) {
	if regOK.Load() {
		actionsRecorded.WithLabelValues(account, actionType).Inc()
	}
}

func IncQuotaBlocked(account, actionType string) {
	if regOK.Load() {
		quotaBlocked.WithLabelValues(account, actionType).Inc()
	}
}

func SetSessionsActive(n int) {
	if regOK.Load() {
		sessionsActive.Set(float64(n))
	}
}

func IncSessionReuse(account string) {
	if regOK.Load() {
		sessionReuses.WithLabelValues(account).Inc()
	}
}

func IncSessionLaunch(account string) {
	if regOK.Load() {
		sessionLaunches.WithLabelValues(account).Inc()
	}
}

func IncSessionEviction(account, reason string) {
	if regOK.Load() {
		sessionEvictions.WithLabelValues(account, reason).Inc()
	}
}

func IncLockBreak(account string) {
	if regOK.Load() {
		lockBreaks.WithLabelValues(account).Inc()
	}
}

func ObserveCycleDuration(seconds float64) {
	if regOK.Load() {
		cycleDuration.Observe(seconds)
	}
}

func IncDecision(action string) {
	if regOK.Load() {
		decisions.WithLabelValues(action).Inc()
	}
}
