// Package metrics exposes Griffin's Prometheus collectors: job queue depth
// per location, scheduler tick duration, and engine node outcome counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// QueueDepth reports the number of claimable jobs waiting per location, as
// last sampled by a periodic poller (see Sampler).
var QueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "griffin",
	Subsystem: "queue",
	Name:      "depth",
	Help:      "Number of claimable jobs waiting, by location.",
}, []string{"location"})

// SchedulerTickDuration measures how long each scheduler.Tick pass takes.
var SchedulerTickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "griffin",
	Subsystem: "scheduler",
	Name:      "tick_duration_seconds",
	Help:      "Duration of one scheduler tick pass, covering GetDue plus every enqueuePlan call.",
	Buckets:   prometheus.DefBuckets,
})

// SchedulerPlansEnqueued counts plans successfully fanned out into runs per
// tick, and separately the ones that failed to enqueue.
var SchedulerPlansEnqueued = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "griffin",
	Subsystem: "scheduler",
	Name:      "plans_enqueued_total",
	Help:      "Due plans processed by the scheduler, labeled by outcome.",
}, []string{"outcome"})

// EngineNodeResults counts node executions by node type and outcome
// (success, transport_error, assertion_failure, internal_error).
var EngineNodeResults = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "griffin",
	Subsystem: "engine",
	Name:      "node_results_total",
	Help:      "Node executions, labeled by node type and outcome.",
}, []string{"node_type", "outcome"})

func init() {
	prometheus.MustRegister(QueueDepth, SchedulerTickDuration, SchedulerPlansEnqueued, EngineNodeResults)
}

// Handler returns the HTTP handler serving the registered collectors in
// the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
