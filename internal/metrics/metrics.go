// Package metrics exposes Prometheus counters for routine sessions.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	sessionsStartedCounter   *prometheus.CounterVec
	sessionsCompletedCounter *prometheus.CounterVec
	stepsCompletedCounter    prometheus.Counter
	xpCounter                *prometheus.CounterVec
	skipsCounter             *prometheus.CounterVec
	activeSessionsGauge      prometheus.Gauge
	collaboratorErrors       *prometheus.CounterVec
	remindersCounter         prometheus.Counter
	httpDurationMetric       *prometheus.HistogramVec
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		sessionsStartedCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glowroutine_sessions_started_total",
				Help: "Routine sessions started, by section.",
			},
			[]string{"section"},
		)

		sessionsCompletedCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glowroutine_sessions_completed_total",
				Help: "Routine sessions run to the last step, by section.",
			},
			[]string{"section"},
		)

		stepsCompletedCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "glowroutine_steps_completed_total",
				Help: "Steps marked complete.",
			},
		)

		xpCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glowroutine_xp_total",
				Help: "Absolute XP moved, split into awards and penalties.",
			},
			[]string{"kind"},
		)

		skipsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glowroutine_skips_total",
				Help: "Skipped waits and steps.",
			},
			[]string{"kind"},
		)

		activeSessionsGauge = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "glowroutine_active_sessions",
				Help: "Sessions currently open.",
			},
		)

		collaboratorErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "glowroutine_collaborator_errors_total",
				Help: "Failed writes to stores and sinks, by operation.",
			},
			[]string{"op"},
		)

		remindersCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "glowroutine_deferral_reminders_total",
				Help: "Reminders sent for deferred products.",
			},
		)

		httpDurationMetric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "glowroutine_http_request_duration_seconds",
				Help:    "HTTP request latency by route pattern and status class.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "code"},
		)

		prometheus.MustRegister(
			sessionsStartedCounter,
			sessionsCompletedCounter,
			stepsCompletedCounter,
			xpCounter,
			skipsCounter,
			activeSessionsGauge,
			collaboratorErrors,
			remindersCounter,
			httpDurationMetric,
		)

		// Visible at /metrics before the first increment.
		for _, section := range []string{"morning", "evening", "exercises"} {
			sessionsStartedCounter.WithLabelValues(section)
			sessionsCompletedCounter.WithLabelValues(section)
		}
		for _, kind := range []string{"award", "penalty"} {
			xpCounter.WithLabelValues(kind)
		}
		for _, kind := range []string{"wait", "step"} {
			skipsCounter.WithLabelValues(kind)
		}
	})
}

func IncSessionStarted(section string) {
	Init()
	sessionsStartedCounter.WithLabelValues(section).Inc()
	activeSessionsGauge.Inc()
}

func IncSessionCompleted(section string) {
	Init()
	sessionsCompletedCounter.WithLabelValues(section).Inc()
}

func DecActiveSessions() {
	Init()
	activeSessionsGauge.Dec()
}

func IncStepCompleted() {
	Init()
	stepsCompletedCounter.Inc()
}

// AddXP records an award (positive) or penalty (negative).
func AddXP(amount int) {
	Init()
	switch {
	case amount > 0:
		xpCounter.WithLabelValues("award").Add(float64(amount))
	case amount < 0:
		xpCounter.WithLabelValues("penalty").Add(float64(-amount))
	}
}

func IncSkip(kind string) {
	Init()
	skipsCounter.WithLabelValues(kind).Inc()
}

func IncCollaboratorError(op string) {
	Init()
	collaboratorErrors.WithLabelValues(op).Inc()
}

func IncReminders(n int) {
	Init()
	remindersCounter.Add(float64(n))
}

func ObserveHTTPRequest(route, code string, d time.Duration) {
	Init()
	httpDurationMetric.WithLabelValues(route, code).Observe(d.Seconds())
}
