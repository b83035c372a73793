package metrics

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "unlock"

var (
	once sync.Once

	redeemTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redeem_total",
			Help:      "Redeem attempts by result (ok or rejection reason).",
		},
		[]string{"result"},
	)

	ingestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Payment events by ingestion outcome.",
		},
		[]string{"outcome"},
	)

	issueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "codes_issued_total",
			Help:      "Codes issued by source (webhook/admin).",
		},
		[]string{"source"},
	)

	notifyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_total",
			Help:      "Purchaser notifications by result (sent/failed/dropped).",
		},
		[]string{"result"},
	)

	codesGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "codes",
			Help:      "Codes currently in the ledger by state.",
		},
		[]string{"state"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// MustRegister registers collectors with the default registry (idempotent).
func MustRegister() {
	once.Do(func() {
		prometheus.MustRegister(
			redeemTotal, ingestTotal, issueTotal,
			notifyTotal, codesGauge, httpDuration,
		)
	})
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func IncRedeem(result string) {
	redeemTotal.WithLabelValues(norm(result)).Inc()
}

func IncIngest(outcome string) {
	ingestTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncIssue(source string) {
	issueTotal.WithLabelValues(norm(source)).Inc()
}

func IncNotify(result string) {
	notifyTotal.WithLabelValues(norm(result)).Inc()
}

func SetCodes(unused, used int) {
	codesGauge.WithLabelValues("unused").Set(float64(unused))
	codesGauge.WithLabelValues("used").Set(float64(used))
}

func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// CodesGauge returns the gauge for one ledger state.
func CodesGauge(state string) prometheus.Gauge {
	return codesGauge.WithLabelValues(norm(state))
}
