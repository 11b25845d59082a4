// Package metrics registers the Prometheus collectors exported on /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fluxinsight"

var (
	HTTPRequests     *prometheus.CounterVec
	RPCCallDuration  *prometheus.HistogramVec
	RPCCallErrors    *prometheus.CounterVec
	CirculatingCoins prometheus.Gauge
	SupplyHeight     prometheus.Gauge
	TipHeight        prometheus.Gauge
)

var initOnce sync.Once

func init() {
	Init()
}

// Init registers all collectors with the default registry. It is safe to
// call more than once.
func Init() {
	initOnce.Do(initMetrics)
}

func initMetrics() {
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by route and status code",
		},
		[]string{"route", "code"},
	)

	RPCCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Latency of node RPC calls, by method",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method"},
	)

	RPCCallErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_errors_total",
			Help:      "Failed node RPC calls, by method",
		},
		[]string{"method"},
	)

	CirculatingCoins = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "supply",
			Name:      "circulating_coins",
			Help:      "Circulating supply of the last computed snapshot",
		},
	)

	SupplyHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "supply",
			Name:      "height",
			Help:      "Chain height of the last computed supply snapshot",
		},
	)

	TipHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "daemon",
			Name:      "tip_height",
			Help:      "Last chain tip height observed from the node",
		},
	)
}
