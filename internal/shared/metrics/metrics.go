package metrics

import (
	"database/sql"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	detectRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fridgechef_detect_requests_total",
		Help: "Ingredient detection requests by outcome",
	}, []string{"outcome"})

	recommendRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fridgechef_recommend_requests_total",
		Help: "Recipe recommendation requests by outcome",
	}, []string{"outcome"})

	upstreamDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fridgechef_upstream_duration_seconds",
		Help:    "Latency of calls to the recipe backend",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"endpoint"})

	staleResponses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fridgechef_stale_responses_total",
		Help: "Backend responses dropped because their flow moved on",
	})

	flowsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fridgechef_flows_active",
		Help: "Flows currently held in the session store",
	})

	rateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fridgechef_rate_limited_total",
		Help: "Requests rejected by the rate limiter by group",
	}, []string{"group"})
)

func init() {
	registry.MustRegister(
		detectRequests,
		recommendRequests,
		upstreamDuration,
		staleResponses,
		flowsActive,
		rateLimited,
		collectors.NewGoCollector(),
	)
}

// Outcome labels.
const (
	OutcomeSuccess      = "success"
	OutcomeInsufficient = "insufficient"
	OutcomeFailed       = "failed"
)

// IncDetect counts a resolved detection request.
func IncDetect(outcome string) {
	detectRequests.WithLabelValues(outcome).Inc()
}

// IncRecommend counts a resolved recommendation request.
func IncRecommend(outcome string) {
	recommendRequests.WithLabelValues(outcome).Inc()
}

// ObserveUpstream records the latency of one backend call.
func ObserveUpstream(endpoint string, d time.Duration) {
	if d < 0 {
		d = 0
	}
	upstreamDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// IncStaleResponse counts a response dropped by the late-response guard.
func IncStaleResponse() {
	staleResponses.Inc()
}

// AddActiveFlows adjusts the active flow gauge.
func AddActiveFlows(delta float64) {
	flowsActive.Add(delta)
}

// IncRateLimited counts a request rejected with 429.
func IncRateLimited(group string) {
	rateLimited.WithLabelValues(group).Inc()
}

// RegisterDB exports connection pool stats for db under name. Registering the
// same name twice is ignored.
func RegisterDB(db *sql.DB, name string) {
	err := registry.Register(collectors.NewDBStatsCollector(db, name))
	var already prometheus.AlreadyRegisteredError
	if err != nil && !errors.As(err, &already) {
		panic(err)
	}
}

// Registry exposes the process registry, mainly for tests.
func Registry() *prometheus.Registry {
	return registry
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
