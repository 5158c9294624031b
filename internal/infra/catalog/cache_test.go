package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcpchat/internal/domain"
)

type stubConn struct {
	name    string
	tools   []domain.Tool
	listErr error
	calls   atomic.Int32
}

func (s *stubConn) Name() string { return s.name }

func (s *stubConn) ListTools(ctx context.Context) ([]domain.Tool, error) {
	s.calls.Add(1)
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]domain.Tool, len(s.tools))
	copy(out, s.tools)
	return out, nil
}

func (s *stubConn) CallTool(ctx context.Context, name string, args json.RawMessage) (string, error) {
	return "", errors.New("not implemented")
}

func (s *stubConn) Close() error { return nil }

func mathConn() *stubConn {
	return &stubConn{
		name: "math",
		tools: []domain.Tool{
			{Name: "add", Description: "Add two numbers"},
			{Name: "multiply", Description: "Multiply two numbers"},
		},
	}
}

func weatherConn() *stubConn {
	return &stubConn{
		name: "weather",
		tools: []domain.Tool{
			{Name: "forecast", Description: "Get the weather forecast"},
		},
	}
}

func TestSnapshotCachesWithinTTL(t *testing.T) {
	conn := mathConn()
	cache := New(Options{Conns: []domain.ServerConn{conn}, TTL: time.Minute})

	first, err := cache.Snapshot(context.Background())
	require.NoError(t, err)
	second, err := cache.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), conn.calls.Load())
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, uint64(1), first.Version)
}

func TestSnapshotRefreshesAfterTTL(t *testing.T) {
	conn := mathConn()
	cache := New(Options{Conns: []domain.ServerConn{conn}, TTL: 10 * time.Millisecond})

	first, err := cache.Snapshot(context.Background())
	require.NoError(t, err)

	time.Sleep(25 * time.Millisecond)

	second, err := cache.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), conn.calls.Load())
	assert.Equal(t, first.Version+1, second.Version)
}

func TestSnapshotNeverExpiresWithZeroTTL(t *testing.T) {
	conn := mathConn()
	cache := New(Options{Conns: []domain.ServerConn{conn}, TTL: 0})

	_, err := cache.Snapshot(context.Background())
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	_, err = cache.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), conn.calls.Load())
}

func TestInvalidateForcesRefetch(t *testing.T) {
	conn := mathConn()
	cache := New(Options{Conns: []domain.ServerConn{conn}, TTL: time.Hour})

	first, err := cache.Snapshot(context.Background())
	require.NoError(t, err)

	cache.Invalidate()

	second, err := cache.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), conn.calls.Load())
	assert.Greater(t, second.Version, first.Version)
}

func TestFetchFailureKeepsPreviousSnapshot(t *testing.T) {
	conn := mathConn()
	cache := New(Options{Conns: []domain.ServerConn{conn}, TTL: time.Hour})

	first, err := cache.Snapshot(context.Background())
	require.NoError(t, err)

	conn.listErr = errors.New("connection refused")
	cache.Invalidate()

	second, err := cache.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, first.Tools, second.Tools)
}

func TestFetchFailureWithoutSnapshotPropagates(t *testing.T) {
	conn := mathConn()
	conn.listErr = errors.New("connection refused")
	cache := New(Options{Conns: []domain.ServerConn{conn}, TTL: time.Hour})

	_, err := cache.Snapshot(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCatalogUnavailable)

	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeUnavailable, code)
}

func TestPartialFetchFailureFailsWholeRefresh(t *testing.T) {
	math := mathConn()
	weather := weatherConn()
	weather.listErr = errors.New("boom")
	cache := New(Options{Conns: []domain.ServerConn{math, weather}, TTL: time.Hour})

	_, err := cache.Snapshot(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCatalogUnavailable)
}

func TestConcurrentSnapshotCoalescesRefresh(t *testing.T) {
	conn := mathConn()
	cache := New(Options{Conns: []domain.ServerConn{conn}, TTL: time.Hour})

	const workers = 16
	versions := make([]uint64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snap, err := cache.Snapshot(context.Background())
			assert.NoError(t, err)
			versions[i] = snap.Version
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), conn.calls.Load())
	for _, v := range versions {
		assert.Equal(t, uint64(1), v)
	}
}

func TestWireNamesPrefixedWithMultipleServers(t *testing.T) {
	cache := New(Options{Conns: []domain.ServerConn{mathConn(), weatherConn()}, TTL: time.Hour})

	snap, err := cache.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Tools, 3)

	byWire := snap.ToolsByWireName()
	assert.Contains(t, byWire, "math_add")
	assert.Contains(t, byWire, "math_multiply")
	assert.Contains(t, byWire, "weather_forecast")
	assert.Equal(t, "weather", byWire["weather_forecast"].Server)
	assert.Equal(t, "forecast", byWire["weather_forecast"].Name)
}

func TestWireNamesBareWithSingleServer(t *testing.T) {
	cache := New(Options{Conns: []domain.ServerConn{mathConn()}, TTL: time.Hour})

	snap, err := cache.Snapshot(context.Background())
	require.NoError(t, err)

	byWire := snap.ToolsByWireName()
	assert.Contains(t, byWire, "add")
	assert.NotContains(t, byWire, "math_add")
}

func TestNamespaceToolsForcesPrefix(t *testing.T) {
	cache := New(Options{
		Conns:          []domain.ServerConn{mathConn()},
		TTL:            time.Hour,
		NamespaceTools: true,
	})

	snap, err := cache.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Contains(t, snap.ToolsByWireName(), "math_add")
}

func TestPrimeInstallsSnapshotWithoutFetching(t *testing.T) {
	conn := mathConn()
	cache := New(Options{Conns: []domain.ServerConn{conn}, TTL: time.Hour})

	primed := cache.Prime([]domain.Tool{{Server: "math", Name: "add"}})
	assert.Equal(t, uint64(1), primed.Version)
	assert.Equal(t, int32(0), conn.calls.Load())

	snap, err := cache.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, primed.Version, snap.Version)
	assert.Equal(t, int32(0), conn.calls.Load())
}
