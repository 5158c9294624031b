package app

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpchat/internal/domain"
)

type stubConn struct {
	name   string
	tools  []domain.Tool
	closed bool
}

func (s *stubConn) Name() string { return s.name }

func (s *stubConn) ListTools(context.Context) ([]domain.Tool, error) {
	return s.tools, nil
}

func (s *stubConn) CallTool(_ context.Context, name string, _ json.RawMessage) (string, error) {
	return "ok:" + name, nil
}

func (s *stubConn) Close() error {
	s.closed = true
	return nil
}

type stubConnector struct {
	conns map[string]domain.ServerConn
}

func (s *stubConnector) ConnectAll(_ context.Context, specs []domain.ServerSpec) (map[string]domain.ServerConn, error) {
	out := make(map[string]domain.ServerConn, len(specs))
	for _, spec := range specs {
		if conn, ok := s.conns[spec.Name]; ok {
			out[spec.Name] = conn
		}
	}
	return out, nil
}

const testConfig = `
servers:
  - name: math
    command: ./math-server
  - name: weather
    command: ./weather-server
    deferLoading: true
models:
  default:
    model: gpt-4o-mini
    apiKey: sk-test
discovery:
  enabled: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestApp(t *testing.T) (*App, *stubConn, *stubConn) {
	t.Helper()

	math := &stubConn{name: "math", tools: []domain.Tool{
		{Server: "math", Name: "add", Description: "Add two numbers."},
	}}
	weather := &stubConn{name: "weather", tools: []domain.Tool{
		{Server: "weather", Name: "forecast", Description: "Get a forecast."},
	}}

	a, err := New(context.Background(), Options{
		ConfigPath: writeConfig(t, testConfig),
		Connector: &stubConnector{conns: map[string]domain.ServerConn{
			"math":    math,
			"weather": weather,
		}},
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, math, weather
}

func TestNewWiresCatalog(t *testing.T) {
	a, _, _ := newTestApp(t)

	snap, err := a.Tools(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Tools, 2)

	// Two servers, so wire names carry the server prefix.
	names := []string{snap.Tools[0].WireName, snap.Tools[1].WireName}
	assert.Contains(t, names, "math_add")
	assert.Contains(t, names, "weather_forecast")
}

func TestRefreshToolsBumpsVersion(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()

	first, err := a.Tools(ctx)
	require.NoError(t, err)

	second, err := a.RefreshTools(ctx)
	require.NoError(t, err)
	assert.Greater(t, second.Version, first.Version)
}

func TestCloseShutsDownConnections(t *testing.T) {
	a, math, weather := newTestApp(t)

	require.NoError(t, a.Close())
	assert.True(t, math.closed)
	assert.True(t, weather.closed)
}

func TestConfigExposed(t *testing.T) {
	a, _, _ := newTestApp(t)

	cfg := a.Config()
	assert.True(t, cfg.Discovery.Enabled)
	assert.Equal(t, []string{"math", "weather"}, cfg.ServerNames())
}

func TestNewRejectsBrokenConfig(t *testing.T) {
	_, err := New(context.Background(), Options{
		ConfigPath: writeConfig(t, "servers: []\nmodels: {}\n"),
		Connector:  &stubConnector{},
		Registerer: prometheus.NewRegistry(),
	})
	require.Error(t, err)
}

func TestSearchTools(t *testing.T) {
	a, _, _ := newTestApp(t)

	results, err := a.SearchTools(context.Background(), "forecast", "", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "weather_forecast", results[0].WireName)

	scoped, err := a.SearchTools(context.Background(), "forecast", "math", 5)
	require.NoError(t, err)
	assert.Empty(t, scoped)
}

func TestValidate(t *testing.T) {
	cfg, err := Validate(context.Background(), writeConfig(t, testConfig), nil)
	require.NoError(t, err)
	assert.Len(t, cfg.Servers, 2)

	_, err = Validate(context.Background(), writeConfig(t, "servers: []\nmodels: {}\n"), nil)
	require.Error(t, err)
}
