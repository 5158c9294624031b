package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpchat/internal/domain"
)

func TestNewPrometheusMetrics(t *testing.T) {
	m := NewPrometheusMetrics(prometheus.NewRegistry())
	assert.NotNil(t, m)
	assert.NotNil(t, m.chatDuration)
	assert.NotNil(t, m.modelLatency)
	assert.NotNil(t, m.modelTokens)
	assert.NotNil(t, m.toolCallDuration)
	assert.NotNil(t, m.toolsDiscovered)
	assert.NotNil(t, m.searchCalls)
	assert.NotNil(t, m.catalogRefresh)
	assert.NotNil(t, m.catalogToolCount)
}

func TestPrometheusMetrics_UsesProvidedRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()

	m := NewPrometheusMetrics(registry)
	m.ObserveChat("gpt-4o", domain.ChatOutcomeCompleted, 2*time.Second)
	m.ObserveModelCall("gpt-4o", 500*time.Millisecond, domain.TokenUsage{PromptTokens: 100, CompletionTokens: 20})
	m.ObserveToolCall("weather", "forecast", domain.ToolCallOutcomeSuccess, 50*time.Millisecond)
	m.ObserveSearchCall(2)
	m.ObserveCatalogRefresh(100*time.Millisecond, 12, nil)
	m.ObserveCatalogRefresh(100*time.Millisecond, 0, errors.New("boom"))

	metrics, err := registry.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(metrics))
	for _, mf := range metrics {
		names = append(names, mf.GetName())
	}

	assert.Contains(t, names, "mcpchat_chat_duration_seconds")
	assert.Contains(t, names, "mcpchat_model_latency_seconds")
	assert.Contains(t, names, "mcpchat_model_tokens_total")
	assert.Contains(t, names, "mcpchat_tool_call_duration_seconds")
	assert.Contains(t, names, "mcpchat_tools_discovered_total")
	assert.Contains(t, names, "mcpchat_search_calls_total")
	assert.Contains(t, names, "mcpchat_catalog_refresh_duration_seconds")
	assert.Contains(t, names, "mcpchat_catalog_tools")
}

func TestPrometheusMetrics_ImplementsInterface(t *testing.T) {
	var _ domain.Metrics = (*PrometheusMetrics)(nil)
}

func TestPrometheusMetrics_CatalogToolCountHoldsOnError(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPrometheusMetrics(registry)

	m.ObserveCatalogRefresh(10*time.Millisecond, 7, nil)
	m.ObserveCatalogRefresh(10*time.Millisecond, 0, errors.New("fetch failed"))

	metrics, err := registry.Gather()
	require.NoError(t, err)

	for _, mf := range metrics {
		if mf.GetName() != "mcpchat_catalog_tools" {
			continue
		}
		require.Len(t, mf.GetMetric(), 1)
		assert.Equal(t, float64(7), mf.GetMetric()[0].GetGauge().GetValue())
		return
	}
	t.Fatal("mcpchat_catalog_tools not found")
}
