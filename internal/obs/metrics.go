// Package obs holds the Prometheus instrumentation for the token pipeline.
package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	authTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_auth_total",
			Help: "Token authentication attempts by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	deniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_denied_total",
			Help: "Authorization denials by reason (ip, endpoint, permission).",
		},
		[]string{"reason"},
	)

	rateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_rate_limited_total",
			Help: "Rate-limit rejections by breached window.",
		},
		[]string{"window"},
	)

	auditErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "token_audit_errors_total",
			Help: "Usage ledger writes or counter increments that failed.",
		},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "token_request_duration_seconds",
			Help:    "Latency of token-authenticated requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind", "status"},
	)
)

// Init registers the collectors in the default registry. Call once at boot.
func Init() {
	prometheus.MustRegister(authTotal, deniedTotal, rateLimitedTotal, auditErrorsTotal, requestDuration)
}

// Handler serves the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func AuthSuccess(kind string) {
	authTotal.WithLabelValues(kind, "success").Inc()
}

// AuthFailure records one failed authentication. The outcome must come from a
// bounded set (the sentinel messages, or "error" for infrastructure failures)
// so label cardinality stays fixed.
func AuthFailure(kind, outcome string) {
	if outcome == "" {
		outcome = "error"
	}
	authTotal.WithLabelValues(kind, outcome).Inc()
}

func Denied(reason string) {
	deniedTotal.WithLabelValues(reason).Inc()
}

func RateLimited(window string) {
	rateLimitedTotal.WithLabelValues(window).Inc()
}

func AuditError() {
	auditErrorsTotal.Inc()
}

func ObserveRequest(kind string, status int, d time.Duration) {
	requestDuration.WithLabelValues(kind, strconv.Itoa(status)).Observe(d.Seconds())
}
