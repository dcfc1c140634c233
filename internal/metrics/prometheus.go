package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cortex_query_duration_seconds",
			Help:    "Question processing duration in seconds",
			Buckets: []float64{0.005, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"intent"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortex_query_total",
			Help: "Total number of questions processed by outcome",
		},
		[]string{"outcome"},
	)

	IntentConfidence = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cortex_intent_confidence",
			Help:    "Detected intent confidence",
			Buckets: []float64{0.05, 0.1, 0.15, 0.2, 0.3, 0.4, 0.5, 0.6, 0.8, 1.0},
		},
		[]string{"intent"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortex_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortex_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	CacheInvalidations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cortex_cache_invalidated_entries_total",
			Help: "Total cache entries removed by invalidation",
		},
	)

	CoalescedQueries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cortex_coalesced_queries_total",
			Help: "Questions answered by sharing an in-flight computation",
		},
	)

	ConnectorDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cortex_connector_duration_seconds",
			Help:    "Grounding connector latency in seconds",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 3},
		},
		[]string{"route", "status"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortex_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	// CircuitState is 0 closed, 1 half-open, 2 open.
	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cortex_circuit_state",
			Help: "Circuit breaker state by dependency",
		},
		[]string{"name"},
	)

	InvalidationEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cortex_invalidation_events_total",
			Help: "Data change events consumed",
		},
		[]string{"entity", "status"},
	)
)

func Init() {
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(QueryTotal)
	prometheus.MustRegister(IntentConfidence)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(CacheInvalidations)
	prometheus.MustRegister(CoalescedQueries)
	prometheus.MustRegister(ConnectorDuration)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(CircuitState)
	prometheus.MustRegister(InvalidationEvents)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
