package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DurationBuckets for relay and node round trips (10ms to 60s)
var DurationBuckets = []float64{
	.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60,
}

var (
	RelayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pkpauth_relay_requests_total",
		Help: "Relay requests by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	RelayPolls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pkpauth_relay_polls_total",
		Help: "Status requests issued while polling mint requests",
	})

	NodeRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pkpauth_node_request_duration_seconds",
		Help:    "Duration of sign-session-key requests per outcome",
		Buckets: DurationBuckets,
	}, []string{"outcome"})

	SessionSigsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pkpauth_session_sigs_issued_total",
		Help: "Session signature sets derived",
	})

	SessionCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pkpauth_session_cache_total",
		Help: "Session cache lookups by result (hit, miss, stale)",
	}, []string{"result"})

	Validations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pkpauth_session_validations_total",
		Help: "Session signature validations by result",
	}, []string{"result"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pkpauth_http_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"route", "code"})

	HTTPRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pkpauth_http_rate_limited_total",
		Help: "HTTP requests rejected by the per-client rate limit",
	})
)

// Outcome labels a call result
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
