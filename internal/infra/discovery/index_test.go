package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpchat/internal/domain"
)

func indexTools() []domain.Tool {
	return []domain.Tool{
		{Server: "weather", Name: "forecast", WireName: "weather_forecast",
			Description: "Get the weather forecast for a city."},
		{Server: "weather", Name: "alerts", WireName: "weather_alerts",
			Description: "Get severe weather alerts for a region."},
		{Server: "search", Name: "brave_web_search", WireName: "search_brave_web_search",
			Description: "Search the web using the Brave search engine."},
		{Server: "fetch", Name: "get", WireName: "fetch_get",
			Description: "Fetch the contents of a URL."},
	}
}

func searchNames(tools []domain.Tool) []string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.WireName)
	}
	return names
}

func TestSearchRanksByRelevance(t *testing.T) {
	ix := NewIndex(indexTools())

	got := ix.Search("weather forecast", "", 5)
	require.NotEmpty(t, got)
	assert.Equal(t, "weather_forecast", got[0].WireName)
	for _, tool := range got {
		assert.NotEqual(t, "fetch_get", tool.WireName)
	}
}

func TestSearchMatchesIdentifierWords(t *testing.T) {
	ix := NewIndex(indexTools())

	// The underscored wire name must match a natural-language query.
	got := ix.Search("brave web", "", 5)
	require.NotEmpty(t, got)
	assert.Equal(t, "search_brave_web_search", got[0].WireName)
}

func TestSearchServerFilterRestrictsCandidates(t *testing.T) {
	ix := NewIndex(indexTools())

	got := ix.Search("get", "weather", 5)
	for _, tool := range got {
		assert.Equal(t, "weather", tool.Server)
	}
}

func TestSearchCapsResults(t *testing.T) {
	ix := NewIndex(indexTools())

	got := ix.Search("get weather search fetch", "", 2)
	assert.LessOrEqual(t, len(got), 2)
}

func TestSearchEmptyIndexReturnsNothing(t *testing.T) {
	ix := NewIndex(nil)

	assert.Empty(t, ix.Search("weather", "", 5))
	assert.Empty(t, ix.ByServer("weather"))

	found, missing := ix.ByNames([]string{"weather_forecast"})
	assert.Empty(t, found)
	assert.Equal(t, []string{"weather_forecast"}, missing)
}

func TestSearchEmptyQueryReturnsNothing(t *testing.T) {
	ix := NewIndex(indexTools())
	assert.Empty(t, ix.Search("", "", 5))
	assert.Empty(t, ix.Search("   ", "", 5))
}

func TestSearchNoMatchReturnsNothing(t *testing.T) {
	ix := NewIndex(indexTools())
	assert.Empty(t, ix.Search("quantum chromodynamics", "", 5))
}

func TestSearchFallsBackToTokenOverlapOnUniformCorpus(t *testing.T) {
	// Every document contains "weather", so its inverse document
	// frequency is zero and BM25 yields no positive score.
	tools := []domain.Tool{
		{Server: "weather", Name: "forecast", WireName: "forecast", Description: "weather forecast"},
		{Server: "weather", Name: "alerts", WireName: "alerts", Description: "weather alerts"},
	}
	ix := NewIndex(tools)

	got := ix.Search("weather", "", 5)
	assert.Equal(t, []string{"forecast", "alerts"}, searchNames(got))
}

func TestSearchSingleToolIndex(t *testing.T) {
	tools := []domain.Tool{
		{Server: "weather", Name: "forecast", WireName: "forecast",
			Description: "Get the weather forecast"},
	}
	ix := NewIndex(tools)

	got := ix.Search("weather", "", 5)
	require.Len(t, got, 1)
	assert.Equal(t, "forecast", got[0].WireName)
}

func TestSearchTiesKeepCatalogOrder(t *testing.T) {
	tools := []domain.Tool{
		{Server: "a", Name: "first", WireName: "first", Description: "shared token"},
		{Server: "a", Name: "second", WireName: "second", Description: "shared token"},
	}
	ix := NewIndex(tools)

	got := ix.Search("shared", "", 5)
	assert.Equal(t, []string{"first", "second"}, searchNames(got))
}

func TestByServer(t *testing.T) {
	ix := NewIndex(indexTools())

	got := ix.ByServer("weather")
	assert.Equal(t, []string{"weather_forecast", "weather_alerts"}, searchNames(got))
	assert.Empty(t, ix.ByServer("calendar"))
}

func TestByNames(t *testing.T) {
	ix := NewIndex(indexTools())

	found, missing := ix.ByNames([]string{"fetch_get", "no_such_tool", "weather_alerts"})
	assert.Equal(t, []string{"fetch_get", "weather_alerts"}, searchNames(found))
	assert.Equal(t, []string{"no_such_tool"}, missing)
}

func TestServerNamesKeepCatalogOrder(t *testing.T) {
	ix := NewIndex(indexTools())
	assert.Equal(t, []string{"weather", "search", "fetch"}, ix.ServerNames())
}
