package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	toolCallTotal    *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
	orphanResults    prometheus.Counter

	toolServerRequests *prometheus.CounterVec
	toolServerClients  prometheus.Gauge

	agentRunTotal    *prometheus.CounterVec
	agentRunDuration *prometheus.HistogramVec
	agentRounds      prometheus.Histogram

	ragIndexDuration prometheus.Histogram
	ragQueryDuration prometheus.Histogram
	ragChunksTotal   prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			toolCallTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "metagen_tool_call_total",
					Help: "Total tool calls observed by the orchestrator by tool and status.",
				},
				[]string{"tool", "status"},
			),
			toolCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "metagen_tool_call_duration_seconds",
					Help:    "Tool call latency (result completed_at minus call issued_at) by tool.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"tool"},
			),
			orphanResults: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "metagen_tool_orphan_results_total",
					Help: "Tool results that arrived without a tracked call.",
				},
			),
			toolServerRequests: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "metagen_toolserver_requests_total",
					Help: "JSON-RPC requests handled by the tool server by method and status.",
				},
				[]string{"method", "status"},
			),
			toolServerClients: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "metagen_toolserver_clients",
					Help: "Currently connected tool server clients.",
				},
			),
			agentRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "metagen_agent_run_total",
					Help: "Total orchestration runs by provider and outcome.",
				},
				[]string{"provider", "outcome"},
			),
			agentRunDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "metagen_agent_run_duration_seconds",
					Help:    "Orchestration run duration in seconds by provider.",
					Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
				},
				[]string{"provider"},
			),
			agentRounds: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "metagen_agent_rounds",
					Help:    "Tool-calling rounds per session.",
					Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
				},
			),
			ragIndexDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "metagen_rag_index_duration_seconds",
					Help:    "Document indexing duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			ragQueryDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "metagen_rag_query_duration_seconds",
					Help:    "Index query duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			ragChunksTotal: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "metagen_rag_chunks_total",
					Help: "Chunks written by the last indexing pass.",
				},
			),
		}

		prometheus.MustRegister(
			m.toolCallTotal,
			m.toolCallDuration,
			m.orphanResults,
			m.toolServerRequests,
			m.toolServerClients,
			m.agentRunTotal,
			m.agentRunDuration,
			m.agentRounds,
			m.ragIndexDuration,
			m.ragQueryDuration,
			m.ragChunksTotal,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordToolCall(tool string, latency time.Duration, success bool) {
	m := getMetrics()
	m.toolCallTotal.WithLabelValues(tool, statusLabel(success)).Inc()
	m.toolCallDuration.WithLabelValues(tool).Observe(latency.Seconds())
}

func RecordOrphanResult() {
	getMetrics().orphanResults.Inc()
}

func RecordToolServerRequest(method string, success bool) {
	getMetrics().toolServerRequests.WithLabelValues(method, statusLabel(success)).Inc()
}

func SetToolServerClients(count int) {
	getMetrics().toolServerClients.Set(float64(count))
}

// RecordAgentRun records one orchestration run. outcome is "success" or the
// failure kind reported to the user.
func RecordAgentRun(provider string, duration time.Duration, outcome string) {
	m := getMetrics()
	m.agentRunTotal.WithLabelValues(provider, outcome).Inc()
	m.agentRunDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func RecordAgentRounds(rounds int) {
	getMetrics().agentRounds.Observe(float64(rounds))
}

func RecordRAGIndex(duration time.Duration, chunks int) {
	m := getMetrics()
	m.ragIndexDuration.Observe(duration.Seconds())
	m.ragChunksTotal.Set(float64(chunks))
}

func RecordRAGQuery(duration time.Duration) {
	getMetrics().ragQueryDuration.Observe(duration.Seconds())
}
