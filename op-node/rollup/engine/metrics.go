package engine

import (
	"github.com/ethereum-optimism/optimism/op-service/eth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Task labels used for the engine_task_count counter, matching the
// per-task-kind engine task counter.
const (
	ConsolidateTaskLabel = "consolidate"
	BuildTaskLabel       = "build"
	InsertUnsafeTaskLabel = "insert_unsafe"
	ForkchoiceTaskLabel  = "forkchoice"
)

// Metrics is the observability surface the engine task queue and actor
// report through. Implementations back it with whatever metric sink the
// embedding node uses; NewMetrics below backs it with Prometheus
// counters directly, since the metrics-sink wiring itself is out of
// scope.
type Metrics interface {
	RecordEngineTask(label string)
	RecordL1ReorgCount()
	RecordDerivationL1Origin(origin eth.BlockInfo)
}

// PrometheusMetrics is a Metrics implementation backed by
// prometheus/client_golang counters and gauges, following op-node's
// convention of exposing Record* methods over raw collectors.
type PrometheusMetrics struct {
	engineTaskCount      *prometheus.CounterVec
	l1ReorgCount         prometheus.Counter
	derivationL1Origin   prometheus.Gauge
}

var _ Metrics = (*PrometheusMetrics)(nil)

// NewMetrics registers the engine's counters under the given namespace
// with reg, following op-node's per-subsystem metrics namespacing.
func NewMetrics(ns string, reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	m := &PrometheusMetrics{
		engineTaskCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "engine_task_count",
			Help:      "Number of engine tasks executed, by label",
		}, []string{"label"}),
		l1ReorgCount: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "l1_reorg_count",
			Help:      "Number of L1 reorgs observed by the derivation pipeline",
		}),
		derivationL1Origin: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "derivation_l1_origin",
			Help:      "L1 block number the derivation pipeline is currently reading from",
		}),
	}
	return m
}

func (m *PrometheusMetrics) RecordEngineTask(label string) {
	m.engineTaskCount.WithLabelValues(label).Inc()
}

func (m *PrometheusMetrics) RecordL1ReorgCount() {
	m.l1ReorgCount.Inc()
}

func (m *PrometheusMetrics) RecordDerivationL1Origin(origin eth.BlockInfo) {
	m.derivationL1Origin.Set(float64(origin.Number))
}

// NoopMetrics discards every recorded metric, for use in tests and
// embeddings that do not wire a Prometheus registry.
type NoopMetrics struct{}

var _ Metrics = NoopMetrics{}

func (NoopMetrics) RecordEngineTask(string)                  {}
func (NoopMetrics) RecordL1ReorgCount()                       {}
func (NoopMetrics) RecordDerivationL1Origin(eth.BlockInfo)   {}
