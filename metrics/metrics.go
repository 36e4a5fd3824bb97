// Package metrics exposes the worker/ingress counters and histograms
// spec.md §6 names: request counts, task durations, and task outcomes.
// Grounded on the teacher's go.mod choice of prometheus/client_golang
// (no teacher package exercised it directly; this gives it a home).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts ingress requests by route and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guideforge_http_requests_total",
		Help: "Total HTTP requests served by the ingress, by route and status code.",
	}, []string{"route", "status"})

	// TaskDuration tracks how long each phase handler takes end to end.
	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "guideforge_task_duration_seconds",
		Help:    "Phase handler execution time in seconds, by task type.",
		Buckets: prometheus.DefBuckets,
	}, []string{"task_type"})

	// TaskOutcomesTotal counts phase handler completions by outcome: "ok"
	// when the handler returned nil, "error" otherwise. A lost Claim has
	// no outcome of its own; it counts as "ok" or "error" depending on
	// what that phase returns for it.
	TaskOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "guideforge_task_outcomes_total",
		Help: "Phase handler completions, by task type and outcome (ok, error).",
	}, []string{"task_type", "outcome"})
)

// Handler serves the Prometheus exposition format for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
