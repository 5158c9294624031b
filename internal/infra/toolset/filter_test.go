package toolset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpchat/internal/domain"
)

var (
	testServers = []string{"math", "weather", "fetch"}

	testTools = []domain.Tool{
		{Server: "math", Name: "add", WireName: "math_add"},
		{Server: "math", Name: "multiply", WireName: "math_multiply"},
		{Server: "weather", Name: "forecast", WireName: "weather_forecast"},
		{Server: "weather", Name: "alerts", WireName: "weather_alerts"},
		{Server: "fetch", Name: "get", WireName: "fetch_get"},
	}
)

func wireNames(tools []domain.Tool) []string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.WireName)
	}
	return names
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name string
		spec domain.ToolsetSpec
		want []string
	}{
		{
			name: "all tools from one server",
			spec: domain.ToolsetSpec{
				Name:    "math-only",
				Servers: map[string]domain.ToolSelection{"math": {All: true}},
			},
			want: []string{"math_add", "math_multiply"},
		},
		{
			name: "include list keeps only named tools",
			spec: domain.ToolsetSpec{
				Name:    "basic",
				Servers: map[string]domain.ToolSelection{"math": {Include: []string{"add"}}},
			},
			want: []string{"math_add"},
		},
		{
			name: "exclude list drops named tools",
			spec: domain.ToolsetSpec{
				Name:    "no-alerts",
				Servers: map[string]domain.ToolSelection{"weather": {Exclude: []string{"alerts"}}},
			},
			want: []string{"weather_forecast"},
		},
		{
			name: "unmentioned servers are dropped entirely",
			spec: domain.ToolsetSpec{
				Name: "mixed",
				Servers: map[string]domain.ToolSelection{
					"math":    {All: true},
					"weather": {Include: []string{"forecast"}},
				},
			},
			want: []string{"math_add", "math_multiply", "weather_forecast"},
		},
		{
			name: "empty selection yields nothing from that server",
			spec: domain.ToolsetSpec{
				Name:    "none",
				Servers: map[string]domain.ToolSelection{"math": {}},
			},
			want: nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Filter(testTools, tc.spec, testServers, true)
			require.NoError(t, err)
			assert.Equal(t, tc.want, wireNames(got))
		})
	}
}

func TestFilterPreservesCatalogOrder(t *testing.T) {
	spec := domain.ToolsetSpec{
		Name: "everything",
		Servers: map[string]domain.ToolSelection{
			"math": {All: true}, "weather": {All: true}, "fetch": {All: true},
		},
	}
	got, err := Filter(testTools, spec, testServers, true)
	require.NoError(t, err)
	assert.Equal(t, wireNames(testTools), wireNames(got))
}

func TestFilterIsIdempotent(t *testing.T) {
	spec := domain.ToolsetSpec{
		Name: "subset",
		Servers: map[string]domain.ToolSelection{
			"math":    {Include: []string{"add"}},
			"weather": {Exclude: []string{"alerts"}},
		},
	}
	once, err := Filter(testTools, spec, testServers, true)
	require.NoError(t, err)
	twice, err := Filter(once, spec, testServers, true)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestValidateUnknownServer(t *testing.T) {
	spec := domain.ToolsetSpec{
		Name:    "broken",
		Servers: map[string]domain.ToolSelection{"calendar": {All: true}},
	}
	_, err := Filter(testTools, spec, testServers, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `server "calendar" not found`)

	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeInvalidArgument, code)
}

func TestValidateUnknownIncludeToolListsAvailable(t *testing.T) {
	spec := domain.ToolsetSpec{
		Name:    "broken",
		Servers: map[string]domain.ToolSelection{"math": {Include: []string{"subtract"}}},
	}
	_, err := Filter(testTools, spec, testServers, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `tool "subtract" not found in server "math"`)
	assert.Contains(t, err.Error(), "[add, multiply]")
}

func TestValidateUnknownExcludeTool(t *testing.T) {
	spec := domain.ToolsetSpec{
		Name:    "broken",
		Servers: map[string]domain.ToolSelection{"weather": {Exclude: []string{"radar"}}},
	}
	_, err := Filter(testTools, spec, testServers, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `tool "radar" not found in server "weather" (listed in exclude)`)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	spec := domain.ToolsetSpec{
		Name: "broken",
		Servers: map[string]domain.ToolSelection{
			"calendar": {All: true},
			"math":     {Include: []string{"subtract"}},
		},
	}
	err := Validate(spec, testTools, testServers)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "calendar")
	assert.Contains(t, err.Error(), "subtract")
}

func TestFilterSkipsValidationWhenDisabled(t *testing.T) {
	spec := domain.ToolsetSpec{
		Name:    "broken",
		Servers: map[string]domain.ToolSelection{"calendar": {All: true}},
	}
	got, err := Filter(testTools, spec, testServers, false)
	require.NoError(t, err)
	assert.Empty(t, got)
}
