package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the core. All methods are nil-safe so
// services can run without metrics in tests.
type Metrics struct {
	Upserts        *prometheus.CounterVec
	UpsertLatency  *prometheus.HistogramVec
	Revisions      *prometheus.CounterVec
	EdgeMutations  *prometheus.CounterVec
	DDLOperations  *prometheus.CounterVec
	OutboxRelayed  prometheus.Counter
	GraphCache     *prometheus.CounterVec
	ImportFailures *prometheus.CounterVec
	HTTPLatency    *prometheus.HistogramVec
	RateLimited    *prometheus.CounterVec
}

// New creates and registers all collectors with the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers collectors on reg; tests pass a fresh registry.
func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Upserts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bayanat_entity_upserts_total",
			Help: "Entity ingest calls by class, operation and outcome",
		}, []string{"class", "op", "outcome"}),
		UpsertLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bayanat_entity_upsert_duration_seconds",
			Help:    "Duration of entity ingest transactions",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"class"}),
		Revisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bayanat_revisions_total",
			Help: "History rows appended by subject and cause",
		}, []string{"subject", "cause"}), // cause: "direct", "cascade"
		EdgeMutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bayanat_edge_mutations_total",
			Help: "Relationship edge changes by edge kind and change",
		}, []string{"kind", "change"}),
		DDLOperations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bayanat_dynamic_field_ddl_total",
			Help: "Runtime schema operations for dynamic fields",
		}, []string{"entity", "action"}),
		OutboxRelayed: f.NewCounter(prometheus.CounterOpts{
			Name: "bayanat_outbox_relayed_total",
			Help: "Outbox rows published to Kafka",
		}),
		GraphCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bayanat_graph_cache_lookups_total",
			Help: "Graph cache lookups by result",
		}, []string{"result"}),
		ImportFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bayanat_import_row_failures_total",
			Help: "Rows rejected during CSV imports",
		}, []string{"table"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bayanat_http_request_duration_seconds",
			Help:    "HTTP request duration by route pattern and method",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		RateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bayanat_rate_limit_decisions_total",
			Help: "Rate limit checks by class and decision",
		}, []string{"class", "decision"}), // decision: "allowed", "rejected", "error"
	}
}

func (m *Metrics) ObserveUpsert(class, op, outcome string, d time.Duration) {
	if m != nil {
		m.Upserts.WithLabelValues(class, op, outcome).Inc()
		m.UpsertLatency.WithLabelValues(class).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementRevision(subject, cause string) {
	if m != nil {
		m.Revisions.WithLabelValues(subject, cause).Inc()
	}
}

func (m *Metrics) IncrementEdge(kind, change string) {
	if m != nil {
		m.EdgeMutations.WithLabelValues(kind, change).Inc()
	}
}

func (m *Metrics) IncrementDDL(entity, action string) {
	if m != nil {
		m.DDLOperations.WithLabelValues(entity, action).Inc()
	}
}

func (m *Metrics) AddOutboxRelayed(n int) {
	if m != nil {
		m.OutboxRelayed.Add(float64(n))
	}
}

func (m *Metrics) IncrementGraphCache(result string) {
	if m != nil {
		m.GraphCache.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncrementImportFailure(table string) {
	if m != nil {
		m.ImportFailures.WithLabelValues(table).Inc()
	}
}

func (m *Metrics) ObserveHTTP(route, method string, d time.Duration) {
	if m != nil {
		m.HTTPLatency.WithLabelValues(route, method).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementRateLimit(class, decision string) {
	if m != nil {
		m.RateLimited.WithLabelValues(class, decision).Inc()
	}
}
