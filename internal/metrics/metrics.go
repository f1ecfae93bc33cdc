// Package metrics exposes engine activity as Prometheus metrics.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "truthstamp"

// Label names.
const (
	OpLabel      = "op"
	ResultLabel  = "result"
	VerdictLabel = "verdict"
	KindLabel    = "kind"
)

var _ Metrics = (*metricsImpl)(nil)

// Metrics records engine activity.
type Metrics interface {
	// Mark that an operation finished with the given result class.
	ObserveOp(op, result string, took time.Duration)
	// Mark that a claim finalized.
	MarkFinalized(verdict string, confidencePct uint8)
	// Mark that a settlement moved pool units, slashed included.
	MarkSettled(pool, slashed uint64)
	// Mark that an appeal was decided.
	MarkAppeal(outcome string, deferred uint64)
	// Mark that an event was published.
	MarkEvent(kind string)
	// Set the insurance pool balance and its outstanding liabilities.
	SetInsurance(balance, deferred uint64)
}

type metricsImpl struct {
	ops        *prometheus.CounterVec
	opDuration *prometheus.HistogramVec
	finalized  *prometheus.CounterVec
	confidence prometheus.Histogram
	settled    prometheus.Counter
	slashed    prometheus.Counter
	appeals    *prometheus.CounterVec
	deferred   prometheus.Counter
	events     *prometheus.CounterVec
	insurance  prometheus.Gauge
	owed       prometheus.Gauge
}

// New registers the engine metrics with registerer.
func New(registerer prometheus.Registerer) (Metrics, error) {
	m := &metricsImpl{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Engine operations by name and result class.",
		}, []string{OpLabel, ResultLabel}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time spent in engine operations, locks included.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{OpLabel}),
		finalized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_finalized_total",
			Help:      "Claims finalized by verdict.",
		}, []string{VerdictLabel}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "consensus_confidence_percent",
			Help:      "Confidence percentage of finalized verdicts.",
			Buckets:   prometheus.LinearBuckets(50, 5, 11),
		}),
		settled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settled_units_total",
			Help:      "Base units distributed by settlements.",
		}),
		slashed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slashed_units_total",
			Help:      "Base units slashed from losing reviews.",
		}),
		appeals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appeals_decided_total",
			Help:      "Appeals decided by outcome.",
		}, []string{ResultLabel}),
		deferred: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appeal_deferred_units_total",
			Help:      "Appeal payouts deferred for lack of insurance funds.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Published engine events by kind.",
		}, []string{KindLabel}),
		insurance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "insurance_balance_units",
			Help:      "Insurance pool balance.",
		}),
		owed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "insurance_deferred_units",
			Help:      "Outstanding insurance liabilities.",
		}),
	}

	err := errors.Join(
		registerer.Register(m.ops),
		registerer.Register(m.opDuration),
		registerer.Register(m.finalized),
		registerer.Register(m.confidence),
		registerer.Register(m.settled),
		registerer.Register(m.slashed),
		registerer.Register(m.appeals),
		registerer.Register(m.deferred),
		registerer.Register(m.events),
		registerer.Register(m.insurance),
		registerer.Register(m.owed),
	)
	return m, err
}

func (m *metricsImpl) ObserveOp(op, result string, took time.Duration) {
	m.ops.WithLabelValues(op, result).Inc()
	m.opDuration.WithLabelValues(op).Observe(took.Seconds())
}

func (m *metricsImpl) MarkFinalized(verdict string, confidencePct uint8) {
	m.finalized.WithLabelValues(verdict).Inc()
	m.confidence.Observe(float64(confidencePct))
}

func (m *metricsImpl) MarkSettled(pool, slashed uint64) {
	m.settled.Add(float64(pool))
	m.slashed.Add(float64(slashed))
}

func (m *metricsImpl) MarkAppeal(outcome string, deferred uint64) {
	m.appeals.WithLabelValues(outcome).Inc()
	m.deferred.Add(float64(deferred))
}

func (m *metricsImpl) MarkEvent(kind string) {
	m.events.WithLabelValues(kind).Inc()
}

func (m *metricsImpl) SetInsurance(balance, deferred uint64) {
	m.insurance.Set(float64(balance))
	m.owed.Set(float64(deferred))
}

type noop struct{}

// Noop returns Metrics that discard everything.
func Noop() Metrics { return noop{} }

func (noop) ObserveOp(string, string, time.Duration) {}
func (noop) MarkFinalized(string, uint8) {}
func (noop) MarkSettled(uint64, uint64) {}
func (noop) MarkAppeal(string, uint64) {}
func (noop) MarkEvent(string) {}
func (noop) SetInsurance(uint64, uint64) {}
