// Package telemetry implements prometheus-backed metrics and the
// observability HTTP server.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"mcpchat/internal/domain"
)

type PrometheusMetrics struct {
	chatDuration     *prometheus.HistogramVec
	modelLatency     *prometheus.HistogramVec
	modelTokens      *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
	toolsDiscovered  prometheus.Counter
	searchCalls      prometheus.Counter
	catalogRefresh   *prometheus.HistogramVec
	catalogToolCount prometheus.Gauge
}

func NewPrometheusMetrics(registerer prometheus.Registerer) *PrometheusMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &PrometheusMetrics{
		chatDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpchat_chat_duration_seconds",
				Help:    "Duration of chat requests in seconds",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"model", "outcome"},
		),
		modelLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpchat_model_latency_seconds",
				Help:    "Latency of individual model calls in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"model"},
		),
		modelTokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcpchat_model_tokens_total",
				Help: "Total number of tokens consumed by model calls",
			},
			[]string{"model", "kind"},
		),
		toolCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpchat_tool_call_duration_seconds",
				Help:    "Duration of tool dispatches in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"server", "tool", "outcome"},
		),
		toolsDiscovered: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mcpchat_tools_discovered_total",
				Help: "Total number of deferred tools loaded through search",
			},
		),
		searchCalls: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mcpchat_search_calls_total",
				Help: "Total number of tool search invocations",
			},
		),
		catalogRefresh: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mcpchat_catalog_refresh_duration_seconds",
				Help:    "Duration of tool catalog refreshes in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"status"},
		),
		catalogToolCount: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mcpchat_catalog_tools",
				Help: "Number of tools in the current catalog snapshot",
			},
		),
	}
}

func (p *PrometheusMetrics) ObserveChat(model string, outcome domain.ChatOutcome, duration time.Duration) {
	p.chatDuration.WithLabelValues(model, string(outcome)).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveModelCall(model string, duration time.Duration, usage domain.TokenUsage) {
	p.modelLatency.WithLabelValues(model).Observe(duration.Seconds())
	p.modelTokens.WithLabelValues(model, "prompt").Add(float64(usage.PromptTokens))
	p.modelTokens.WithLabelValues(model, "completion").Add(float64(usage.CompletionTokens))
}

func (p *PrometheusMetrics) ObserveToolCall(server string, tool string, outcome domain.ToolCallOutcome, duration time.Duration) {
	p.toolCallDuration.WithLabelValues(server, tool, string(outcome)).Observe(duration.Seconds())
}

func (p *PrometheusMetrics) ObserveSearchCall(discovered int) {
	p.searchCalls.Inc()
	p.toolsDiscovered.Add(float64(discovered))
}

func (p *PrometheusMetrics) ObserveCatalogRefresh(duration time.Duration, toolCount int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	p.catalogRefresh.WithLabelValues(status).Observe(duration.Seconds())
	if err == nil {
		p.catalogToolCount.Set(float64(toolCount))
	}
}

var _ domain.Metrics = (*PrometheusMetrics)(nil)
