// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Per-authority call results.
const (
	resultVerified     = "verified"
	resultNotVerified  = "not_verified"
	resultNameMismatch = "name_mismatch"
	resultError        = "error"
	resultTimeout      = "timeout"
	resultPanic        = "panic"
)

// AuthAttempts counts join attempts by mode and outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var AuthAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "multilogin_auth_attempts_total",
		Help: "Total number of join authentication attempts",
	},
	[]string{"mode", "outcome"},
)

// AuthorityResults counts individual authority calls by result.
// Use RegisterMetrics to register this with a Prometheus registry.
var AuthorityResults = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "multilogin_authority_results_total",
		Help: "Total number of authority verification calls by result",
	},
	[]string{"authority", "result"},
)

// AuthDuration observes end-to-end attempt latency.
// Use RegisterMetrics to register this with a Prometheus registry.
var AuthDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "multilogin_auth_duration_seconds",
		Help:    "Join authentication duration in seconds",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 8, 10},
	},
	[]string{"mode"},
)

// RegisterMetrics registers pipeline metrics with reg.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(AuthAttempts)
	reg.MustRegister(AuthorityResults)
	reg.MustRegister(AuthDuration)
}

func recordAttempt(mode Mode, outcome Outcome, d time.Duration) {
	AuthAttempts.WithLabelValues(string(mode), string(outcome)).Inc()
	AuthDuration.WithLabelValues(string(mode)).Observe(d.Seconds())
}

func recordAuthorityResult(label, result string) {
	AuthorityResults.WithLabelValues(label, result).Inc()
}
