package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for crawler activity. All request
// counters are labeled by crawler_type (e.g. "sec_edgar"), source (the host),
// and endpoint (the logical API, not the full URL, to keep cardinality down).
type Metrics struct {
	Requests      *prometheus.CounterVec
	Duration      *prometheus.HistogramVec
	BytesFetched  *prometheus.CounterVec
	Errors        *prometheus.CounterVec
	RateLimitHits *prometheus.CounterVec
	Retries       *prometheus.CounterVec
	Timeouts      *prometheus.CounterVec
}

// NewMetrics registers the crawler collectors with reg. Tests pass their own
// prometheus.NewRegistry; production wiring uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xbrl_crawler_requests_total",
			Help: "Total HTTP requests issued by the crawler.",
		}, []string{"crawler_type", "source", "endpoint", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "xbrl_crawler_request_duration_seconds",
			Help:    "HTTP request latency observed by the crawler.",
			Buckets: prometheus.DefBuckets,
		}, []string{"crawler_type", "source", "endpoint"}),
		BytesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xbrl_crawler_bytes_fetched_total",
			Help: "Total response bytes downloaded.",
		}, []string{"crawler_type", "source", "endpoint"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xbrl_crawler_errors_total",
			Help: "Requests that ended in an error after all retries.",
		}, []string{"crawler_type", "source", "endpoint", "error_type"}),
		RateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xbrl_crawler_rate_limit_hits_total",
			Help: "HTTP 429 responses received from a source.",
		}, []string{"crawler_type", "source"}),
		Retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xbrl_crawler_retries_total",
			Help: "Retry attempts after a retryable failure.",
		}, []string{"crawler_type", "source", "endpoint"}),
		Timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xbrl_crawler_timeouts_total",
			Help: "Requests that exceeded their deadline.",
		}, []string{"crawler_type", "source", "endpoint"}),
	}
	reg.MustRegister(m.Requests, m.Duration, m.BytesFetched, m.Errors,
		m.RateLimitHits, m.Retries, m.Timeouts)
	return m
}
