package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/54b3r/docchat-go/internal/chat"
	"github.com/54b3r/docchat-go/internal/ingestion"
	"github.com/54b3r/docchat-go/internal/rag"
)

// Metric label values shared across registrations.
const (
	// labelHandler is the "handler" label value used to partition metrics by
	// the route pattern rather than the raw URL path.
	labelHandler = "handler"

	// metricsNamespace prefixes every metric name.
	metricsNamespace = "docchat"
)

// Metrics holds all Prometheus collectors owned by docchat. A single instance
// is created per process; tests build one over a fresh prometheus.Registry
// so they do not pollute the default one. All methods are safe on a nil
// receiver.
type Metrics struct {
	// chatTurnsTotal counts answered chat turns, partitioned by composer branch.
	chatTurnsTotal *prometheus.CounterVec

	// chatDurationSeconds records how long each chat turn took to answer.
	chatDurationSeconds *prometheus.HistogramVec

	// retrievalsTotal counts retriever searches by the tier that produced
	// the result.
	retrievalsTotal *prometheus.CounterVec

	// ingestionsTotal counts ingestion attempts by outcome.
	ingestionsTotal *prometheus.CounterVec

	// ingestedChunksTotal counts chunks written to the vector index.
	ingestedChunksTotal prometheus.Counter

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, route pattern, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// NewMetrics registers all metrics against reg and returns them.
// promauto.With(reg) is used so that each call registers into the provided
// registry rather than the global default.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		chatTurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Total number of chat turns answered, partitioned by composer branch.",
		}, []string{"branch"}),

		chatDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "chat",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of answer composition per chat turn.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"branch"}),

		retrievalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "retrieval",
			Name:      "searches_total",
			Help:      "Total number of retrieval searches, partitioned by the tier that produced the result.",
		}, []string{"tier"}),

		ingestionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ingestion",
			Name:      "documents_total",
			Help:      "Total number of document ingestion attempts, partitioned by outcome.",
		}, []string{"outcome"}),

		ingestedChunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "ingestion",
			Name:      "chunks_total",
			Help:      "Total number of chunks written to the vector index.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),
	}
}

// ObserveBranch counts one chat turn. It matches chat.Config.Observe.
func (m *Metrics) ObserveBranch(b chat.Branch) {
	if m == nil {
		return
	}
	m.chatTurnsTotal.WithLabelValues(string(b)).Inc()
}

// ObserveTier counts one retrieval. It matches rag.RetrieverConfig.Observe.
func (m *Metrics) ObserveTier(t rag.Tier) {
	if m == nil {
		return
	}
	m.retrievalsTotal.WithLabelValues(string(t)).Inc()
}

// ObserveIngest counts one ingestion attempt. It matches ingestion.Config.Observe.
func (m *Metrics) ObserveIngest(o ingestion.Outcome, chunks int) {
	if m == nil {
		return
	}
	m.ingestionsTotal.WithLabelValues(string(o)).Inc()
	if chunks > 0 {
		m.ingestedChunksTotal.Add(float64(chunks))
	}
}

// observeChat records the duration of one answered turn.
func (m *Metrics) observeChat(b chat.Branch, d time.Duration) {
	if m == nil {
		return
	}
	m.chatDurationSeconds.WithLabelValues(string(b)).Observe(d.Seconds())
}

// instrument records request count and latency per route pattern. It must
// wrap the mux directly so the matched pattern is visible after dispatch.
func (m *Metrics) instrument(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw, ok := w.(*responseWriter)
		if !ok {
			rw = &responseWriter{ResponseWriter: w, status: http.StatusOK}
		}
		start := time.Now()
		next.ServeHTTP(rw, r)

		handler := r.Pattern
		if handler == "" {
			handler = "unmatched"
		}
		m.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
		m.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(time.Since(start).Seconds())
	})
}
