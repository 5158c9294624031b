package domain

import "time"

// TransportKind selects how a tool server is reached.
type TransportKind string

const (
	TransportStdio          TransportKind = "stdio"
	TransportStreamableHTTP TransportKind = "streamable-http"
)

// ServerSpec describes one configured tool server.
type ServerSpec struct {
	Name      string
	Transport TransportKind

	// stdio transport.
	Command string
	Args    []string
	Env     map[string]string
	Dir     string

	// streamable-http transport.
	URL     string
	Headers map[string]string

	// DeferLoading withholds this server's tools from the model until
	// discovered through the search capability, when discovery is enabled.
	DeferLoading bool
}

// ModelProvider identifies the backend family a model is served by.
type ModelProvider string

const (
	ProviderOpenAI ModelProvider = "openai"
	ProviderOllama ModelProvider = "ollama"
)

// ModelSpec describes one configured language model.
type ModelSpec struct {
	Name     string
	Provider ModelProvider
	Model    string
	Endpoint string
	APIKey   string
	// Template names a system prompt template rendered with the active
	// tool list when the caller supplies no system message.
	Template string
}

// ToolSelection restricts which tools a toolset takes from one server.
// Exactly one of All, Include, or Exclude is active.
type ToolSelection struct {
	All     bool
	Include []string
	Exclude []string
}

// ToolsetSpec is a named restriction of the catalog. Servers absent from
// Servers contribute no tools.
type ToolsetSpec struct {
	Name        string
	Description string
	Servers     map[string]ToolSelection
}

// DiscoveryConfig controls deferred tool loading.
type DiscoveryConfig struct {
	Enabled          bool
	DeferAll         bool
	MaxSearchResults int
}

const (
	DefaultCatalogTTL       = 30 * time.Second
	DefaultMaxIterations    = 50
	DefaultMaxSearchResults = 5
)

// Config is the validated, immutable configuration the engine runs under.
type Config struct {
	Servers  []ServerSpec
	Models   map[string]ModelSpec
	Toolsets map[string]ToolsetSpec

	Discovery     DiscoveryConfig
	CatalogTTL    time.Duration
	MaxIterations int

	// NamespaceTools forces the server-prefixed wire name even with a
	// single configured server.
	NamespaceTools bool

	// MetricsAddr, when non-empty, serves prometheus metrics over HTTP.
	MetricsAddr string
}

// ServerNames returns the configured server names in declaration order.
func (c Config) ServerNames() []string {
	names := make([]string, 0, len(c.Servers))
	for _, s := range c.Servers {
		names = append(names, s.Name)
	}
	return names
}

// Server looks up a server spec by name.
func (c Config) Server(name string) (ServerSpec, bool) {
	for _, s := range c.Servers {
		if s.Name == name {
			return s, true
		}
	}
	return ServerSpec{}, false
}
