package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"go.uber.org/zap"

	"mcpchat/internal/domain"
)

// ollamaAPIKey is the placeholder key sent to ollama's OpenAI-compatible
// endpoint, which ignores authentication.
const ollamaAPIKey = "ollama"

// FactoryOptions configures a Factory.
type FactoryOptions struct {
	Models map[string]domain.ModelSpec
	Logger *zap.Logger
}

// Factory builds domain models from configuration on demand and caches them
// for the lifetime of the process.
type Factory struct {
	specs  map[string]domain.ModelSpec
	logger *zap.Logger

	mu    sync.Mutex
	built map[string]domain.Model
}

// NewFactory creates a model factory over the configured model specs.
func NewFactory(opts FactoryOptions) *Factory {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{
		specs:  opts.Models,
		logger: logger.Named("provider"),
		built:  make(map[string]domain.Model),
	}
}

// Resolve returns the model registered under name, constructing it on first
// use.
func (f *Factory) Resolve(ctx context.Context, name string) (domain.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if m, ok := f.built[name]; ok {
		return m, nil
	}

	spec, ok := f.specs[name]
	if !ok {
		return nil, domain.E(domain.CodeNotFound, "provider.Resolve",
			fmt.Sprintf("model %q is not configured", name), domain.ErrModelNotFound)
	}

	chat, err := buildChatModel(ctx, spec)
	if err != nil {
		return nil, err
	}

	m := NewEinoModel(name, chat, f.logger)
	f.built[name] = m
	f.logger.Info("model initialized",
		zap.String("model", name),
		zap.String("provider", string(spec.Provider)))
	return m, nil
}

func buildChatModel(ctx context.Context, spec domain.ModelSpec) (model.ToolCallingChatModel, error) {
	switch spec.Provider {
	case domain.ProviderOpenAI, "":
		apiKey := strings.TrimSpace(spec.APIKey)
		if apiKey == "" {
			return nil, domain.E(domain.CodeUnauthenticated, "provider.Resolve",
				fmt.Sprintf("model %q requires an API key", spec.Name), nil)
		}
		cfg := &openai.ChatModelConfig{
			Model:  spec.Model,
			APIKey: apiKey,
		}
		if spec.Endpoint != "" {
			cfg.BaseURL = spec.Endpoint
		}
		chat, err := openai.NewChatModel(ctx, cfg)
		if err != nil {
			return nil, domain.E(domain.CodeUnavailable, "provider.Resolve", "", err)
		}
		return chat, nil
	case domain.ProviderOllama:
		// Ollama exposes an OpenAI-compatible API under /v1.
		endpoint := spec.Endpoint
		if endpoint == "" {
			endpoint = "http://localhost:11434/v1"
		}
		apiKey := strings.TrimSpace(spec.APIKey)
		if apiKey == "" {
			apiKey = ollamaAPIKey
		}
		chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			Model:   spec.Model,
			APIKey:  apiKey,
			BaseURL: endpoint,
		})
		if err != nil {
			return nil, domain.E(domain.CodeUnavailable, "provider.Resolve", "", err)
		}
		return chat, nil
	default:
		return nil, domain.E(domain.CodeInvalidArgument, "provider.Resolve",
			fmt.Sprintf("unsupported model provider: %s", spec.Provider), nil)
	}
}
