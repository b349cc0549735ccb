package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "cozo"

	ScopeRoot  = "root"
	ScopeLocal = "local"

	ResultGround   = "ground"
	ResultResidual = "residual"
	ResultError    = "error"
)

// Metrics holds all Prometheus metrics for the catalog engine. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Catalog metrics
	DefinitionsTotal      *prometheus.CounterVec
	DeletionsTotal        *prometheus.CounterVec
	DDLRejectedTotal      *prometheus.CounterVec
	TableIDsAllocated     *prometheus.CounterVec
	ScopePushesTotal      prometheus.Counter
	ScopePopsTotal        prometheus.Counter
	ScopePopDuration      prometheus.Histogram
	ScopeDepth            prometheus.Gauge
	TablesDroppedTotal    prometheus.Counter
	KeysDeletedOnPopTotal prometheus.Counter
	RowsWrittenTotal      prometheus.Counter

	// Evaluator metrics
	EvaluationsTotal   *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsTotal  *prometheus.CounterVec

	// System metrics
	DiskUsageBytes     prometheus.Gauge
	DiskAvailableBytes prometheus.Gauge
	DiskUsagePercent   prometheus.Gauge
	MemoryUsageBytes   prometheus.Gauge
	GoroutinesTotal    prometheus.Gauge
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// uses the default registerer.
func NewMetrics(instance string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	labels := prometheus.Labels{"instance_id": instance}

	return &Metrics{
		DefinitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "catalog",
			Name:        "definitions_total",
			Help:        "Total number of catalog definitions written",
			ConstLabels: labels,
		}, []string{"kind", "scope"}),
		DeletionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "catalog",
			Name:        "deletions_total",
			Help:        "Total number of catalog definitions explicitly deleted",
			ConstLabels: labels,
		}, []string{"scope"}),
		DDLRejectedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "catalog",
			Name:        "ddl_rejected_total",
			Help:        "Total number of rejected definitions by error code",
			ConstLabels: labels,
		}, []string{"code"}),
		TableIDsAllocated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "catalog",
			Name:        "table_ids_allocated_total",
			Help:        "Total number of table ids handed out",
			ConstLabels: labels,
		}, []string{"scope"}),
		ScopePushesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "catalog",
			Name:        "scope_pushes_total",
			Help:        "Total number of scope pushes",
			ConstLabels: labels,
		}),
		ScopePopsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "catalog",
			Name:        "scope_pops_total",
			Help:        "Total number of scope pops",
			ConstLabels: labels,
		}),
		ScopePopDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "catalog",
			Name:        "scope_pop_duration_seconds",
			Help:        "Histogram of scope teardown durations",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.00001, 4, 10), // 10us to ~2.6s
		}),
		ScopeDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "catalog",
			Name:        "scope_depth",
			Help:        "Nesting depth most recently reached by a session",
			ConstLabels: labels,
		}),
		TablesDroppedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "catalog",
			Name:        "tables_dropped_total",
			Help:        "Total number of tables whose row partitions were range-deleted",
			ConstLabels: labels,
		}),
		KeysDeletedOnPopTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "catalog",
			Name:        "scope_keys_deleted_total",
			Help:        "Total number of catalog keys removed by scope teardown",
			ConstLabels: labels,
		}),
		RowsWrittenTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "catalog",
			Name:        "rows_written_total",
			Help:        "Total number of table rows written",
			ConstLabels: labels,
		}),

		EvaluationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "eval",
			Name:        "evaluations_total",
			Help:        "Total number of partial evaluations by outcome",
			ConstLabels: labels,
		}, []string{"result"}),
		EvaluationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "eval",
			Name:        "evaluation_duration_seconds",
			Help:        "Histogram of partial evaluation durations",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.000001, 4, 10),
		}),

		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "engine",
			Name:        "sessions_active",
			Help:        "Number of open sessions",
			ConstLabels: labels,
		}),
		SessionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "engine",
			Name:        "sessions_total",
			Help:        "Total number of finished sessions by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),

		DiskUsageBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "system",
			Name:        "disk_usage_bytes",
			Help:        "Disk usage of the data directory filesystem",
			ConstLabels: labels,
		}),
		DiskAvailableBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "system",
			Name:        "disk_available_bytes",
			Help:        "Available disk space",
			ConstLabels: labels,
		}),
		DiskUsagePercent: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "system",
			Name:        "disk_usage_percent",
			Help:        "Disk usage percentage",
			ConstLabels: labels,
		}),
		MemoryUsageBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "system",
			Name:        "memory_usage_bytes",
			Help:        "Heap bytes allocated",
			ConstLabels: labels,
		}),
		GoroutinesTotal: f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "system",
			Name:        "goroutines_total",
			Help:        "Number of goroutines",
			ConstLabels: labels,
		}),
	}
}

func scopeLabel(inRoot bool) string {
	if inRoot {
		return ScopeRoot
	}
	return ScopeLocal
}

// RecordDefinition counts a written definition
func (m *Metrics) RecordDefinition(kind string, inRoot bool) {
	if m == nil {
		return
	}
	m.DefinitionsTotal.WithLabelValues(kind, scopeLabel(inRoot)).Inc()
}

// RecordDeletion counts an explicit delete
func (m *Metrics) RecordDeletion(inRoot bool) {
	if m == nil {
		return
	}
	m.DeletionsTotal.WithLabelValues(scopeLabel(inRoot)).Inc()
}

// RecordDDLRejected counts a rejected definition
func (m *Metrics) RecordDDLRejected(code string) {
	if m == nil {
		return
	}
	m.DDLRejectedTotal.WithLabelValues(code).Inc()
}

// RecordTableID counts an allocated table id
func (m *Metrics) RecordTableID(inRoot bool) {
	if m == nil {
		return
	}
	m.TableIDsAllocated.WithLabelValues(scopeLabel(inRoot)).Inc()
}

// RecordScopePush records a push to the given depth
func (m *Metrics) RecordScopePush(depth int) {
	if m == nil {
		return
	}
	m.ScopePushesTotal.Inc()
	m.ScopeDepth.Set(float64(depth))
}

// RecordScopePop records a finished teardown
func (m *Metrics) RecordScopePop(duration float64, depth, tablesDropped, keysDeleted int) {
	if m == nil {
		return
	}
	m.ScopePopsTotal.Inc()
	m.ScopePopDuration.Observe(duration)
	m.ScopeDepth.Set(float64(depth))
	m.TablesDroppedTotal.Add(float64(tablesDropped))
	m.KeysDeletedOnPopTotal.Add(float64(keysDeleted))
}

// RecordTableDropped counts a table dropped outside of scope teardown
func (m *Metrics) RecordTableDropped() {
	if m == nil {
		return
	}
	m.TablesDroppedTotal.Inc()
}

// RecordRowWrite counts a row write
func (m *Metrics) RecordRowWrite() {
	if m == nil {
		return
	}
	m.RowsWrittenTotal.Inc()
}

// RecordEvaluation records one top-level partial evaluation
func (m *Metrics) RecordEvaluation(result string, duration float64) {
	if m == nil {
		return
	}
	m.EvaluationsTotal.WithLabelValues(result).Inc()
	m.EvaluationDuration.Observe(duration)
}

// SessionOpened tracks a new session
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// SessionClosed tracks a finished session
func (m *Metrics) SessionClosed(outcome string) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(outcome).Inc()
}

// UpdateSystemStats updates system-level metrics
func (m *Metrics) UpdateSystemStats(diskUsage, diskAvailable, memoryUsage int64, goroutines int) {
	if m == nil {
		return
	}
	m.DiskUsageBytes.Set(float64(diskUsage))
	m.DiskAvailableBytes.Set(float64(diskAvailable))
	if diskUsage+diskAvailable > 0 {
		m.DiskUsagePercent.Set(float64(diskUsage) / float64(diskUsage+diskAvailable) * 100)
	}
	m.MemoryUsageBytes.Set(float64(memoryUsage))
	m.GoroutinesTotal.Set(float64(goroutines))
}
