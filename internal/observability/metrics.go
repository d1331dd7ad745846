package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/branched-services/go-mempoolsync/pkg/mempool"
)

// Metrics implements mempool.MetricsRecorder on top of the default
// Prometheus registry.
type Metrics struct {
	cacheSize       prometheus.Gauge
	txPerSecond     prometheus.Gauge
	vBytesPerSecond prometheus.Gauge
	passDuration    prometheus.Histogram
	passTxAdded     prometheus.Counter
	passTxRemoved   prometheus.Counter
	latchState      prometheus.Gauge
}

// NewMetrics registers and returns the mempool sync metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		cacheSize: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "mempoolsync_cache_size",
			Help: "Number of transactions currently held in the mirrored mempool cache.",
		}),
		txPerSecond: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "mempoolsync_tx_per_second",
			Help: "Transactions entering the mempool per second, over the configured rate window.",
		}),
		vBytesPerSecond: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "mempoolsync_vbytes_per_second",
			Help: "Virtual bytes entering the mempool per second, over the configured rate window.",
		}),
		passDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "mempoolsync_pass_duration_seconds",
			Help:    "Wall-clock duration of a single reconciliation pass.",
			Buckets: prometheus.DefBuckets,
		}),
		passTxAdded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mempoolsync_pass_tx_added_total",
			Help: "Total number of transactions added across all reconciliation passes.",
		}),
		passTxRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "mempoolsync_pass_tx_removed_total",
			Help: "Total number of transactions removed across all reconciliation passes.",
		}),
		latchState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "mempoolsync_latch_state",
			Help: "Flush-protection latch state: 0=idle, 1=armed, 2=cooling.",
		}),
	}
}

// ObservePass implements mempool.MetricsRecorder.
func (m *Metrics) ObservePass(cacheSize int, added, removed int, duration time.Duration, latch mempool.LatchState) {
	m.cacheSize.Set(float64(cacheSize))
	m.passDuration.Observe(duration.Seconds())
	m.passTxAdded.Add(float64(added))
	m.passTxRemoved.Add(float64(removed))
	m.latchState.Set(float64(latch))
}

// ObserveRate implements mempool.MetricsRecorder.
func (m *Metrics) ObserveRate(rate mempool.Rate) {
	m.txPerSecond.Set(rate.TxPerSecond)
	m.vBytesPerSecond.Set(rate.VBytesPerSecond)
}

var _ mempool.MetricsRecorder = (*Metrics)(nil)

// Handler returns the HTTP handler serving the Prometheus exposition
// format, intended to be mounted on the health server's mux at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
