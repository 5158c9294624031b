package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"mcpchat/internal/domain"
)

// Options configures a Cache.
type Options struct {
	// Conns are the connected tool servers, in configuration order.
	Conns []domain.ServerConn

	// TTL bounds how long a snapshot stays current. Zero or negative
	// means snapshots never expire automatically.
	TTL time.Duration

	// NamespaceTools forces server-prefixed wire names even when a
	// single server is configured. With two or more servers the prefix
	// is always applied.
	NamespaceTools bool

	Logger  *zap.Logger
	Metrics domain.Metrics
}

// Cache holds the current catalog snapshot for all connected tool servers
// and refreshes it when the TTL elapses. Safe for concurrent use across
// conversations; concurrent callers during an expired TTL coalesce into a
// single refresh, and snapshots are replaced atomically, never mutated.
type Cache struct {
	conns     []domain.ServerConn
	ttl       time.Duration
	namespace bool
	logger    *zap.Logger
	metrics   domain.Metrics

	refreshMu sync.Mutex // serializes fetch-and-install

	mu      sync.RWMutex // guards the fields below
	current *domain.CatalogSnapshot
	version uint64
	stale   bool
}

// New builds a Cache over the given server connections.
func New(opts Options) *Cache {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	return &Cache{
		conns:     opts.Conns,
		ttl:       opts.TTL,
		namespace: opts.NamespaceTools || len(opts.Conns) > 1,
		logger:    logger.Named("catalog"),
		metrics:   metrics,
	}
}

// Snapshot returns the current catalog snapshot, refreshing it first when
// none exists, the TTL has elapsed, or Invalidate was called. A refresh
// failure keeps the previous snapshot current; the error is surfaced only
// when there is no prior snapshot to fall back on.
func (c *Cache) Snapshot(ctx context.Context) (domain.CatalogSnapshot, error) {
	if snap, ok := c.fresh(); ok {
		return snap, nil
	}

	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	// A waiter that queued behind the refresher sees its result here.
	if snap, ok := c.fresh(); ok {
		return snap, nil
	}
	if err := ctx.Err(); err != nil {
		return domain.CatalogSnapshot{}, domain.Wrap(domain.CodeCanceled, "catalog.Snapshot", err)
	}

	start := time.Now()
	tools, err := c.fetchAll(ctx)
	c.metrics.ObserveCatalogRefresh(time.Since(start), len(tools), err)
	if err != nil {
		if prev, ok := c.installed(); ok {
			c.logger.Warn("catalog refresh failed, serving previous snapshot",
				zap.Uint64("version", prev.Version),
				zap.Error(err))
			return prev, nil
		}
		return domain.CatalogSnapshot{}, domain.E(domain.CodeUnavailable, "catalog.Snapshot", "",
			fmt.Errorf("%w: %w", domain.ErrCatalogUnavailable, err))
	}

	snap := c.install(tools)
	c.logger.Info("catalog refreshed",
		zap.Uint64("version", snap.Version),
		zap.Int("tools", len(snap.Tools)),
		zap.Duration("elapsed", time.Since(start)))
	return snap, nil
}

// Version returns the version of the currently installed snapshot, zero
// when none has been installed yet. It never triggers a refresh.
func (c *Cache) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return 0
	}
	return c.current.Version
}

// Invalidate forces the next Snapshot call to refetch regardless of TTL.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.stale = true
	c.mu.Unlock()
}

// Prime installs the given tools as the current snapshot without talking
// to any server. Wire names are assigned the same way a fetch would.
func (c *Cache) Prime(tools []domain.Tool) domain.CatalogSnapshot {
	named := make([]domain.Tool, len(tools))
	for i, t := range tools {
		named[i] = domain.CloneTool(t)
		named[i].WireName = c.wireName(t.Server, t.Name)
	}
	return c.install(named)
}

func (c *Cache) fresh() (domain.CatalogSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.current == nil || c.stale {
		return domain.CatalogSnapshot{}, false
	}
	if c.ttl > 0 && time.Since(c.current.FetchedAt) > c.ttl {
		return domain.CatalogSnapshot{}, false
	}
	return *c.current, true
}

func (c *Cache) installed() (domain.CatalogSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return domain.CatalogSnapshot{}, false
	}
	return *c.current, true
}

func (c *Cache) install(tools []domain.Tool) domain.CatalogSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.version++
	snap := &domain.CatalogSnapshot{
		Tools:     tools,
		Version:   c.version,
		FetchedAt: time.Now(),
	}
	c.current = snap
	c.stale = false
	return *snap
}

// fetchAll enumerates every server; any single failure fails the whole
// refresh so a snapshot never mixes fetch generations.
func (c *Cache) fetchAll(ctx context.Context) ([]domain.Tool, error) {
	var all []domain.Tool
	for _, conn := range c.conns {
		tools, err := conn.ListTools(ctx)
		if err != nil {
			return nil, fmt.Errorf("list tools on %q: %w", conn.Name(), err)
		}
		for _, t := range tools {
			t.Server = conn.Name()
			t.WireName = c.wireName(conn.Name(), t.Name)
			all = append(all, t)
		}
	}
	return all, nil
}

func (c *Cache) wireName(server, tool string) string {
	if c.namespace {
		return server + "_" + tool
	}
	return tool
}
