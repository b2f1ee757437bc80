// Package metrics provides Prometheus metrics for the leaderboard poller.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aoc"

// Poll cycle results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Fetch sources.
const (
	SourcePrivate = "private"
	SourceGlobal  = "global"
)

// Recorder holds the collectors of the ingestion cycle on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	pollCycles     *prometheus.CounterVec
	fetchDuration  *prometheus.HistogramVec
	newSolves      *prometheus.CounterVec
	heroesFound    prometheus.Counter
	trackedMembers prometheus.Gauge
	lastSuccess    prometheus.Gauge
}

// New creates a recorder backed by a fresh registry that also exposes the Go
// runtime and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	auto := promauto.With(reg)

	return &Recorder{
		registry: reg,
		pollCycles: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Poll cycles by scope and result",
		}, []string{"scope", "result"}),
		fetchDuration: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Leaderboard fetch latency by source",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		newSolves: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "new_solves_total",
			Help:      "Solves seen for the first time, by source",
		}, []string{"source"}),
		heroesFound: auto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heroes_found_total",
			Help:      "Tracked members found on the global leaderboard",
		}),
		trackedMembers: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_members",
			Help:      "Members of the private leaderboard",
		}),
		lastSuccess: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_poll_timestamp_seconds",
			Help:      "Unix time of the last poll cycle without errors",
		}),
	}
}

// PollCycle counts a finished cycle of one scope.
func (r *Recorder) PollCycle(scope string, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	r.pollCycles.WithLabelValues(scope, result).Inc()
}

// PollSucceeded records the completion time of an error-free cycle.
func (r *Recorder) PollSucceeded(at time.Time) {
	r.lastSuccess.Set(float64(at.Unix()))
}

// ObserveFetch records the latency of one leaderboard fetch.
func (r *Recorder) ObserveFetch(source string, d time.Duration) {
	r.fetchDuration.WithLabelValues(source).Observe(d.Seconds())
}

// NewSolves counts solves seen for the first time.
func (r *Recorder) NewSolves(source string, n int) {
	r.newSolves.WithLabelValues(source).Add(float64(n))
}

// HeroesFound counts tracked members found on the global leaderboard.
func (r *Recorder) HeroesFound(n int) {
	r.heroesFound.Add(float64(n))
}

// TrackedMembers sets the private leaderboard size.
func (r *Recorder) TrackedMembers(n int) {
	r.trackedMembers.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
