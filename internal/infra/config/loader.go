// Package config loads and validates the YAML configuration file.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"mcpchat/internal/domain"
)

type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		return &Loader{logger: zap.NewNop()}
	}
	return &Loader{logger: logger.Named("config")}
}

func newConfigViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("catalogTTLSeconds", int(domain.DefaultCatalogTTL/time.Second))
	v.SetDefault("maxIterations", domain.DefaultMaxIterations)
	v.SetDefault("discovery.maxSearchResults", domain.DefaultMaxSearchResults)
	return v
}

type rawConfig struct {
	Servers           []rawServerSpec           `mapstructure:"servers"`
	Models            map[string]rawModelSpec   `mapstructure:"models"`
	Toolsets          map[string]rawToolsetSpec `mapstructure:"toolsets"`
	Discovery         rawDiscoveryConfig        `mapstructure:"discovery"`
	CatalogTTLSeconds int                       `mapstructure:"catalogTTLSeconds"`
	MaxIterations     int                       `mapstructure:"maxIterations"`
	NamespaceTools    bool                      `mapstructure:"namespaceTools"`
	MetricsAddr       string                    `mapstructure:"metricsAddr"`
}

type rawServerSpec struct {
	Name         string            `mapstructure:"name"`
	Transport    string            `mapstructure:"transport"`
	Command      string            `mapstructure:"command"`
	Args         []string          `mapstructure:"args"`
	Env          map[string]string `mapstructure:"env"`
	Dir          string            `mapstructure:"dir"`
	URL          string            `mapstructure:"url"`
	Headers      map[string]string `mapstructure:"headers"`
	DeferLoading bool              `mapstructure:"deferLoading"`
}

type rawModelSpec struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"apiKey"`
	Template string `mapstructure:"template"`
}

type rawToolsetSpec struct {
	Description string                      `mapstructure:"description"`
	Servers     map[string]rawToolSelection `mapstructure:"servers"`
}

type rawToolSelection struct {
	All     bool     `mapstructure:"all"`
	Include []string `mapstructure:"include"`
	Exclude []string `mapstructure:"exclude"`
}

type rawDiscoveryConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	DeferAll         bool `mapstructure:"deferAll"`
	MaxSearchResults int  `mapstructure:"maxSearchResults"`
}

// Load reads, expands, and validates the configuration at path. Validation
// collects every problem before failing so a broken file reports all of its
// mistakes at once.
func (l *Loader) Load(ctx context.Context, path string) (domain.Config, error) {
	if path == "" {
		return domain.Config{}, errors.New("config path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Config{}, fmt.Errorf("read config: %w", err)
	}

	expanded, missing, err := expandEnv(data)
	if err != nil {
		return domain.Config{}, err
	}
	if len(missing) > 0 {
		l.logger.Warn("missing environment variables in config",
			zap.String("path", path), zap.Strings("missing", missing))
	}

	v := newConfigViper()
	if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
		return domain.Config{}, fmt.Errorf("parse config: %w", err)
	}

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return domain.Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return domain.Config{}, err
	}

	cfg, errs := normalize(raw)
	if len(errs) > 0 {
		return domain.Config{}, errors.New(strings.Join(errs, "; "))
	}
	return cfg, nil
}

func normalize(raw rawConfig) (domain.Config, []string) {
	var errs []string

	if len(raw.Servers) == 0 {
		errs = append(errs, "at least one server is required")
	}
	if len(raw.Models) == 0 {
		errs = append(errs, "at least one model is required")
	}

	servers := make([]domain.ServerSpec, 0, len(raw.Servers))
	nameSeen := make(map[string]struct{}, len(raw.Servers))
	for i, rs := range raw.Servers {
		spec := normalizeServerSpec(rs)
		if _, exists := nameSeen[spec.Name]; exists {
			errs = append(errs, fmt.Sprintf("servers[%d]: duplicate name %q", i, spec.Name))
		} else if spec.Name != "" {
			nameSeen[spec.Name] = struct{}{}
		}
		if specErrs := validateServerSpec(spec, i); len(specErrs) > 0 {
			errs = append(errs, specErrs...)
			continue
		}
		servers = append(servers, spec)
	}

	models := make(map[string]domain.ModelSpec, len(raw.Models))
	for _, name := range sortedKeys(raw.Models) {
		spec, specErrs := normalizeModelSpec(name, raw.Models[name])
		errs = append(errs, specErrs...)
		models[name] = spec
	}

	toolsets := make(map[string]domain.ToolsetSpec, len(raw.Toolsets))
	for _, name := range sortedKeys(raw.Toolsets) {
		spec, specErrs := normalizeToolsetSpec(name, raw.Toolsets[name], nameSeen)
		errs = append(errs, specErrs...)
		toolsets[name] = spec
	}

	if raw.CatalogTTLSeconds < 0 {
		errs = append(errs, "catalogTTLSeconds must be >= 0")
	}
	if raw.MaxIterations < 1 {
		errs = append(errs, "maxIterations must be >= 1")
	}
	if raw.Discovery.MaxSearchResults < 1 {
		errs = append(errs, "discovery.maxSearchResults must be >= 1")
	}

	return domain.Config{
		Servers:        servers,
		Models:         models,
		Toolsets:       toolsets,
		Discovery:      domain.DiscoveryConfig(raw.Discovery),
		CatalogTTL:     time.Duration(raw.CatalogTTLSeconds) * time.Second,
		MaxIterations:  raw.MaxIterations,
		NamespaceTools: raw.NamespaceTools,
		MetricsAddr:    strings.TrimSpace(raw.MetricsAddr),
	}, errs
}

func normalizeServerSpec(raw rawServerSpec) domain.ServerSpec {
	transport := normalizeTransport(raw.Transport)
	if transport == domain.TransportStdio && strings.TrimSpace(raw.Transport) == "" {
		// Transport omitted; infer streamable-http when a URL is given.
		if strings.TrimSpace(raw.URL) != "" {
			transport = domain.TransportStreamableHTTP
		}
	}
	return domain.ServerSpec{
		Name:         strings.TrimSpace(raw.Name),
		Transport:    transport,
		Command:      strings.TrimSpace(raw.Command),
		Args:         raw.Args,
		Env:          raw.Env,
		Dir:          strings.TrimSpace(raw.Dir),
		URL:          strings.TrimSpace(raw.URL),
		Headers:      normalizeHeaders(raw.Headers),
		DeferLoading: raw.DeferLoading,
	}
}

func normalizeTransport(raw string) domain.TransportKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "stdio":
		return domain.TransportStdio
	case "streamable-http", "streamable_http", "http":
		return domain.TransportStreamableHTTP
	default:
		return domain.TransportKind(strings.TrimSpace(raw))
	}
}

func normalizeHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	normalized := make(map[string]string, len(headers))
	for key, value := range headers {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" {
			normalized[""] = value
			continue
		}
		normalized[http.CanonicalHeaderKey(trimmed)] = strings.TrimSpace(value)
	}
	return normalized
}

func validateServerSpec(spec domain.ServerSpec, index int) []string {
	var errs []string

	if spec.Name == "" {
		errs = append(errs, fmt.Sprintf("servers[%d]: name is required", index))
	}

	switch spec.Transport {
	case domain.TransportStdio:
		if spec.Command == "" {
			errs = append(errs, fmt.Sprintf("servers[%d]: command is required for stdio transport", index))
		}
		if spec.URL != "" {
			errs = append(errs, fmt.Sprintf("servers[%d]: url must be empty for stdio transport", index))
		}
	case domain.TransportStreamableHTTP:
		if spec.Command != "" {
			errs = append(errs, fmt.Sprintf("servers[%d]: command must be empty for streamable-http transport", index))
		}
		if spec.Dir != "" {
			errs = append(errs, fmt.Sprintf("servers[%d]: dir must be empty for streamable-http transport", index))
		}
		if len(spec.Env) > 0 {
			errs = append(errs, fmt.Sprintf("servers[%d]: env must be empty for streamable-http transport", index))
		}
		if spec.URL == "" {
			errs = append(errs, fmt.Sprintf("servers[%d]: url is required for streamable-http transport", index))
		} else if parsed, err := url.ParseRequestURI(spec.URL); err != nil || parsed.Host == "" ||
			(parsed.Scheme != "http" && parsed.Scheme != "https") {
			errs = append(errs, fmt.Sprintf("servers[%d]: url must be a valid http(s) URL", index))
		}
		for key := range spec.Headers {
			if key == "" {
				errs = append(errs, fmt.Sprintf("servers[%d]: headers contain empty header name", index))
			}
		}
	default:
		errs = append(errs, fmt.Sprintf("servers[%d]: transport must be stdio or streamable-http", index))
	}

	return errs
}

func normalizeModelSpec(name string, raw rawModelSpec) (domain.ModelSpec, []string) {
	var errs []string

	provider := domain.ModelProvider(strings.ToLower(strings.TrimSpace(raw.Provider)))
	if provider == "" {
		provider = domain.ProviderOpenAI
	}
	if provider != domain.ProviderOpenAI && provider != domain.ProviderOllama {
		errs = append(errs, fmt.Sprintf("models.%s: provider must be openai or ollama", name))
	}
	if strings.TrimSpace(raw.Model) == "" {
		errs = append(errs, fmt.Sprintf("models.%s: model is required", name))
	}

	return domain.ModelSpec{
		Name:     name,
		Provider: provider,
		Model:    strings.TrimSpace(raw.Model),
		Endpoint: strings.TrimSpace(raw.Endpoint),
		APIKey:   strings.TrimSpace(raw.APIKey),
		Template: strings.TrimSpace(raw.Template),
	}, errs
}

func normalizeToolsetSpec(name string, raw rawToolsetSpec, serverNames map[string]struct{}) (domain.ToolsetSpec, []string) {
	var errs []string

	if len(raw.Servers) == 0 {
		errs = append(errs, fmt.Sprintf("toolsets.%s: at least one server is required", name))
	}

	selections := make(map[string]domain.ToolSelection, len(raw.Servers))
	for _, server := range sortedKeys(raw.Servers) {
		sel := raw.Servers[server]
		if _, ok := serverNames[server]; !ok {
			errs = append(errs, fmt.Sprintf("toolsets.%s: server %q is not configured", name, server))
		}

		active := 0
		if sel.All {
			active++
		}
		if len(sel.Include) > 0 {
			active++
		}
		if len(sel.Exclude) > 0 {
			active++
		}
		if active == 0 {
			errs = append(errs, fmt.Sprintf("toolsets.%s.%s: one of all, include, or exclude is required", name, server))
		}
		if active > 1 {
			errs = append(errs, fmt.Sprintf("toolsets.%s.%s: all, include, and exclude are mutually exclusive", name, server))
		}

		selections[server] = domain.ToolSelection(sel)
	}

	return domain.ToolsetSpec{
		Name:        name,
		Description: strings.TrimSpace(raw.Description),
		Servers:     selections,
	}, errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
