package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "handlemint"

// Metrics holds the service collectors. Every method is safe on a nil receiver so
// callers that don't export metrics can pass nil.
type Metrics struct {
	gatherer prometheus.Gatherer

	jobRuns       *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	decisions     *prometheus.CounterVec
	mintBatches   *prometheus.CounterVec
	mintedHandles prometheus.Counter
	confirmations *prometheus.CounterVec
	queue         *prometheus.GaugeVec
	chainLoad     prometheus.Gauge
	lockedWallets prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "runs_total",
			Help:      "Cron job runs segmented by job and outcome.",
		}, []string{"job", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "job",
			Name:      "duration_seconds",
			Help:      "Cron job latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "decisions_total",
			Help:      "Payment reconciliation decisions.",
		}, []string{"decision"}),
		mintBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mint",
			Name:      "batches_total",
			Help:      "Mint batch submissions segmented by outcome.",
		}, []string{"outcome"}),
		mintedHandles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mint",
			Name:      "submitted_handles_total",
			Help:      "Handles submitted in mint transactions.",
		}),
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "confirm",
			Name:      "transactions_total",
			Help:      "Submitted transactions resolved by the confirmation poller.",
		}, []string{"outcome"}),
		queue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Sessions waiting in each queue.",
		}, []string{"queue"}),
		chainLoad: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chain_load",
			Help:      "Last observed chain load in [0, 1].",
		}),
		lockedWallets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "locked_wallets",
			Help:      "Minting wallets currently locked.",
		}),
	}
	reg.MustRegister(
		m.jobRuns,
		m.jobDuration,
		m.decisions,
		m.mintBatches,
		m.mintedHandles,
		m.confirmations,
		m.queue,
		m.chainLoad,
		m.lockedWallets,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveJob records one job run. outcome is ok, benign or error.
func (m *Metrics) ObserveJob(job, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	m.jobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}

func (m *Metrics) Decision(decision string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) MintBatch(outcome string, handles int) {
	if m == nil {
		return
	}
	m.mintBatches.WithLabelValues(outcome).Inc()
	if outcome == "submitted" {
		m.mintedHandles.Add(float64(handles))
	}
}

func (m *Metrics) Confirmation(outcome string) {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetQueue(queue string, size int64) {
	if m == nil {
		return
	}
	m.queue.WithLabelValues(queue).Set(float64(size))
}

func (m *Metrics) SetChainLoad(load float64) {
	if m == nil {
		return
	}
	m.chainLoad.Set(load)
}

func (m *Metrics) SetLockedWallets(n int) {
	if m == nil {
		return
	}
	m.lockedWallets.Set(float64(n))
}
