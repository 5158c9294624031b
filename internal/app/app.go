// Package app wires configuration, server connections, the tool catalog,
// model providers, and the chat engine into a running application.
package app

import (
	"context"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"mcpchat/internal/domain"
	"mcpchat/internal/infra/catalog"
	"mcpchat/internal/infra/chat"
	"mcpchat/internal/infra/config"
	"mcpchat/internal/infra/discovery"
	"mcpchat/internal/infra/mcpclient"
	"mcpchat/internal/infra/prompts"
	"mcpchat/internal/infra/provider"
	"mcpchat/internal/infra/telemetry"
)

// ServerConnector opens sessions to the configured tool servers.
type ServerConnector interface {
	ConnectAll(ctx context.Context, specs []domain.ServerSpec) (map[string]domain.ServerConn, error)
}

// Options configures application startup.
type Options struct {
	ConfigPath string

	// PromptDir holds optional system prompt templates.
	PromptDir string

	// SystemPrompt is the default system message when neither the caller
	// nor the model's template provides one.
	SystemPrompt string

	Logger *zap.Logger

	// Connector overrides how tool servers are reached. Nil uses the MCP
	// connector.
	Connector ServerConnector

	// Registerer receives the prometheus metrics. Nil uses the default
	// registerer.
	Registerer prometheus.Registerer
}

// App is a fully wired chat application.
type App struct {
	cfg     domain.Config
	conns   map[string]domain.ServerConn
	catalog *catalog.Cache
	engine  *chat.Engine
	metrics *telemetry.PrometheusMetrics
	logger  *zap.Logger
}

// New loads configuration, connects every server, and assembles the engine.
func New(ctx context.Context, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	loader := config.NewLoader(logger)
	cfg, err := loader.Load(ctx, opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	logger.Info("configuration loaded",
		zap.String("config", opts.ConfigPath),
		zap.Int("servers", len(cfg.Servers)),
		zap.Int("models", len(cfg.Models)),
		zap.Bool("discovery", cfg.Discovery.Enabled))

	connector := opts.Connector
	if connector == nil {
		connector = mcpclient.NewConnector(mcpclient.ConnectorOptions{Logger: logger})
	}
	conns, err := connector.ConnectAll(ctx, cfg.Servers)
	if err != nil {
		return nil, err
	}

	metrics := telemetry.NewPrometheusMetrics(opts.Registerer)

	ordered := orderedConns(conns, cfg.Servers)
	cache := catalog.New(catalog.Options{
		Conns:          ordered,
		TTL:            cfg.CatalogTTL,
		NamespaceTools: cfg.NamespaceTools,
		Logger:         logger,
		Metrics:        metrics,
	})

	renderer, err := prompts.NewRenderer(prompts.RendererOptions{
		Dir:    opts.PromptDir,
		Logger: logger,
	})
	if err != nil {
		closeConns(conns)
		return nil, err
	}

	factory := provider.NewFactory(provider.FactoryOptions{
		Models: cfg.Models,
		Logger: logger,
	})

	engine := chat.New(chat.Options{
		Catalog:      cache,
		Conns:        ordered,
		Models:       factory,
		Config:       cfg,
		Prompts:      renderer,
		SystemPrompt: opts.SystemPrompt,
		Logger:       logger,
		Metrics:      metrics,
	})

	return &App{
		cfg:     cfg,
		conns:   conns,
		catalog: cache,
		engine:  engine,
		metrics: metrics,
		logger:  logger.Named("app"),
	}, nil
}

// Validate loads and validates the configuration without connecting to
// anything.
func Validate(ctx context.Context, configPath string, logger *zap.Logger) (domain.Config, error) {
	return config.NewLoader(logger).Load(ctx, configPath)
}

// Config returns the loaded configuration.
func (a *App) Config() domain.Config { return a.cfg }

// Chat runs one conversation.
func (a *App) Chat(ctx context.Context, req chat.Request) (*domain.ChatResult, error) {
	return a.engine.Chat(ctx, req)
}

// Tools returns the current catalog snapshot, refreshing it if needed.
func (a *App) Tools(ctx context.Context) (domain.CatalogSnapshot, error) {
	return a.catalog.Snapshot(ctx)
}

// RefreshTools invalidates the catalog and fetches a fresh snapshot.
func (a *App) RefreshTools(ctx context.Context) (domain.CatalogSnapshot, error) {
	a.catalog.Invalidate()
	return a.catalog.Snapshot(ctx)
}

// SearchTools ranks catalog tools against a query. It is a debug surface
// over the same relevance index the chat engine's search capability uses.
func (a *App) SearchTools(ctx context.Context, query, server string, maxResults int) ([]domain.Tool, error) {
	snap, err := a.catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if maxResults <= 0 {
		maxResults = a.cfg.Discovery.MaxSearchResults
	}
	return discovery.NewIndex(snap.Tools).Search(query, server, maxResults), nil
}

// ServeMetrics blocks serving /metrics until ctx is canceled. It is a no-op
// when no metrics address is configured.
func (a *App) ServeMetrics(ctx context.Context) error {
	if a.cfg.MetricsAddr == "" {
		return nil
	}
	return telemetry.StartMetricsServer(ctx, telemetry.MetricsServerOptions{
		Addr: a.cfg.MetricsAddr,
	}, a.logger)
}

// Close shuts down every server connection.
func (a *App) Close() error {
	var firstErr error
	for _, name := range sortedConnNames(a.conns) {
		if err := a.conns[name].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func orderedConns(conns map[string]domain.ServerConn, specs []domain.ServerSpec) []domain.ServerConn {
	ordered := make([]domain.ServerConn, 0, len(conns))
	for _, spec := range specs {
		if conn, ok := conns[spec.Name]; ok {
			ordered = append(ordered, conn)
		}
	}
	return ordered
}

func closeConns(conns map[string]domain.ServerConn) {
	for _, conn := range conns {
		_ = conn.Close()
	}
}

func sortedConnNames(conns map[string]domain.ServerConn) []string {
	names := make([]string, 0, len(conns))
	for name := range conns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
