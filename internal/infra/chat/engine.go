package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mcpchat/internal/domain"
	"mcpchat/internal/infra/catalog"
	"mcpchat/internal/infra/discovery"
	"mcpchat/internal/infra/toolset"
)

// ModelResolver maps a configured model name to a live model.
type ModelResolver interface {
	Resolve(ctx context.Context, name string) (domain.Model, error)
}

// PromptRenderer renders a named system prompt template against the
// current tool list.
type PromptRenderer interface {
	Render(name string, tools []domain.Tool) (string, error)
}

// Options configures an Engine.
type Options struct {
	Catalog *catalog.Cache
	Conns   []domain.ServerConn
	Models  ModelResolver
	Config  domain.Config

	// Synthetics are capabilities registered for every conversation,
	// beyond the per-conversation search capability.
	Synthetics []domain.SyntheticTool

	// Prompts is optional; without it model templates are ignored.
	Prompts PromptRenderer

	// SystemPrompt is the default system message when the caller supplies
	// none and the model names no template.
	SystemPrompt string

	Logger  *zap.Logger
	Metrics domain.Metrics
}

// Engine runs conversations against a model with tool calling. One Engine
// serves many concurrent conversations; all per-conversation state lives
// in the session created by Chat.
type Engine struct {
	catalog *catalog.Cache
	conns   map[string]domain.ServerConn
	models  ModelResolver
	cfg     domain.Config
	base    *Registry
	prompts PromptRenderer
	system  string
	logger  *zap.Logger
	metrics domain.Metrics

	maxIterations int
}

// New builds an Engine.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	conns := make(map[string]domain.ServerConn, len(opts.Conns))
	for _, c := range opts.Conns {
		conns[c.Name()] = c
	}
	maxIterations := opts.Config.MaxIterations
	if maxIterations <= 0 {
		maxIterations = domain.DefaultMaxIterations
	}
	return &Engine{
		catalog:       opts.Catalog,
		conns:         conns,
		models:        opts.Models,
		cfg:           opts.Config,
		base:          NewRegistry(opts.Synthetics...),
		prompts:       opts.Prompts,
		system:        opts.SystemPrompt,
		logger:        logger.Named("chat"),
		metrics:       metrics,
		maxIterations: maxIterations,
	}
}

// Request is one chat call.
type Request struct {
	Messages []domain.ChatMessage
	Model    string
	// Toolset optionally names a configured toolset restricting the
	// catalog for this call.
	Toolset string
	// System optionally overrides the system prompt for this call.
	System string
}

// Dispatch loop states.
type loopState int

const (
	stateAwaitingModel loopState = iota
	stateAwaitingToolResults
	stateTerminated
	stateAborted
)

const (
	deferredToolMessage = "Error: Tool '%s' is not yet loaded. Use the 'search-tools' tool to discover and load it first, then call it again."
	sanitizedToolError  = "Error: Tool '%s' failed to execute."
)

// Chat runs one conversation to completion. It returns only the messages
// appended during this call plus the finalized statistics; the caller's
// message prefix is never modified. Configuration errors surface before
// any model call.
func (e *Engine) Chat(ctx context.Context, req Request) (*domain.ChatResult, error) {
	start := time.Now()

	model, err := e.models.Resolve(ctx, req.Model)
	if err != nil {
		return nil, err
	}

	snap, err := e.catalog.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	tools := snap.Tools
	var spec *domain.ToolsetSpec
	if req.Toolset != "" {
		ts, ok := e.cfg.Toolsets[req.Toolset]
		if !ok {
			return nil, domain.E(domain.CodeInvalidArgument, "chat.Chat",
				fmt.Sprintf("toolset %q is not defined", req.Toolset), nil)
		}
		spec = &ts
		tools, err = toolset.Filter(tools, ts, e.cfg.ServerNames(), true)
		if err != nil {
			return nil, err
		}
	}

	s := &session{
		engine:         e,
		model:          model,
		modelName:      req.Model,
		toolset:        spec,
		messages:       append([]domain.ChatMessage(nil), req.Messages...),
		catalogVersion: snap.Version,
		logger: e.logger.With(
			zap.String("chat_id", uuid.NewString()),
			zap.String("model", req.Model)),
	}
	if e.cfg.Discovery.Enabled {
		s.stats.Discovery = &domain.DiscoveryStats{}
	}

	s.installPartition(discovery.Partition(tools, e.cfg.Servers, e.cfg.Discovery))
	s.insertSystemMessages(e.resolveSystem(req.System, req.Model, snap.Tools))

	outcome, err := s.run(ctx)
	e.metrics.ObserveChat(req.Model, outcome, time.Since(start))
	if err != nil {
		return nil, err
	}
	return &domain.ChatResult{Messages: s.appended, Stats: s.stats}, nil
}

// resolveSystem picks the system prompt: explicit override, then the
// model's template rendered over the current catalog, then the default.
func (e *Engine) resolveSystem(override, modelName string, tools []domain.Tool) string {
	if override != "" {
		return override
	}
	if spec, ok := e.cfg.Models[modelName]; ok && spec.Template != "" && e.prompts != nil {
		rendered, err := e.prompts.Render(spec.Template, tools)
		if err != nil {
			e.logger.Warn("system prompt template failed, using default",
				zap.String("template", spec.Template),
				zap.Error(err))
		} else {
			return rendered
		}
	}
	return e.system
}

// session is the state of one conversation. Exclusively owned by one Chat
// call; discarded at its end.
type session struct {
	engine    *Engine
	model     domain.Model
	modelName string
	toolset   *domain.ToolsetSpec
	logger    *zap.Logger

	messages []domain.ChatMessage
	appended []domain.ChatMessage
	stats    domain.ChatStats

	eager          []domain.Tool
	byWire         map[string]domain.Tool
	deferredServer map[string]string // deferred wire name -> owning server
	registry       *Registry
	search         *discovery.SearchTool
	discoveryMsg   string
	defs           []domain.Tool

	catalogVersion uint64
}

// run drives the state machine until the model terminates, the iteration
// ceiling aborts it, or an error propagates.
func (s *session) run(ctx context.Context) (domain.ChatOutcome, error) {
	var pending []domain.ToolCallRequest
	iterations := 0

	for st := stateAwaitingModel; ; {
		switch st {
		case stateAwaitingModel:
			if iterations == s.engine.maxIterations {
				st = stateAborted
				continue
			}
			iterations++

			if err := s.maybeRebuildDiscovery(ctx); err != nil {
				return domain.ChatOutcomeModelError, err
			}

			callStart := time.Now()
			resp, err := s.model.Invoke(ctx, s.messages, s.defs)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return domain.ChatOutcomeCanceled, domain.Wrap(domain.CodeCanceled, "chat.Chat", err)
				}
				return domain.ChatOutcomeModelError, domain.Wrap(domain.CodeInternal, "chat.Chat", err)
			}
			s.stats.ModelCalls++
			s.stats.Tokens.Add(resp.Usage)
			s.engine.metrics.ObserveModelCall(s.modelName, time.Since(callStart), resp.Usage)

			msg := resp.Message
			msg.Role = domain.RoleAssistant
			s.append(msg)

			if len(msg.ToolCalls) == 0 {
				st = stateTerminated
				continue
			}
			pending = msg.ToolCalls
			st = stateAwaitingToolResults

		case stateAwaitingToolResults:
			// Strictly in the order the model listed them; each result is
			// appended before the next call runs.
			for _, call := range pending {
				if err := s.dispatch(ctx, call); err != nil {
					return domain.ChatOutcomeCanceled, err
				}
			}
			pending = nil
			st = stateAwaitingModel

		case stateTerminated:
			s.logger.Info("chat completed",
				zap.Int("model_calls", s.stats.ModelCalls),
				zap.Int("tool_calls", s.stats.ToolCalls.Total()),
				zap.Int("tokens", s.stats.Tokens.Total()))
			return domain.ChatOutcomeCompleted, nil

		case stateAborted:
			s.logger.Error("chat exceeded iteration limit",
				zap.Int("max_iterations", s.engine.maxIterations))
			return domain.ChatOutcomeIterationLimit, domain.E(domain.CodeResourceExhausted, "chat.Chat",
				fmt.Sprintf("chat exceeded maximum %d iterations", s.engine.maxIterations),
				domain.ErrIterationLimit)
		}
	}
}

// dispatch executes one tool-call request and appends its result message.
// Only cancellation propagates as an error; tool failures become sanitized
// result messages so the model never sees raw internal errors.
func (s *session) dispatch(ctx context.Context, call domain.ToolCallRequest) error {
	start := time.Now()

	if server, deferred := s.deferredServer[call.Name]; deferred {
		s.stats.ToolCalls.Record(call.Name, server)
		s.engine.metrics.ObserveToolCall(server, call.Name, domain.ToolCallOutcomeDeferred, time.Since(start))
		s.logger.Info("deferred tool requested directly", zap.String("tool", call.Name))
		s.appendResult(call, fmt.Sprintf(deferredToolMessage, call.Name))
		return nil
	}

	if syn, ok := s.registry.Lookup(call.Name); ok {
		return s.dispatchSynthetic(ctx, call, syn, start)
	}

	tool, ok := s.byWire[call.Name]
	if !ok {
		s.stats.ToolCalls.Record(call.Name, "unknown")
		s.engine.metrics.ObserveToolCall("unknown", call.Name, domain.ToolCallOutcomeUnknown, time.Since(start))
		s.logger.Warn("model requested unknown tool", zap.String("tool", call.Name))
		s.appendResult(call, fmt.Sprintf("Error: Tool '%s' not found.", call.Name))
		return nil
	}

	s.stats.ToolCalls.Record(call.Name, tool.Server)

	if len(call.Arguments) > 0 && !json.Valid(call.Arguments) {
		s.engine.metrics.ObserveToolCall(tool.Server, call.Name, domain.ToolCallOutcomeError, time.Since(start))
		s.logger.Warn("malformed tool arguments", zap.String("tool", call.Name))
		s.appendResult(call, fmt.Sprintf("Error: Malformed arguments for tool '%s'.", call.Name))
		return nil
	}

	conn, ok := s.engine.conns[tool.Server]
	if !ok {
		s.engine.metrics.ObserveToolCall(tool.Server, call.Name, domain.ToolCallOutcomeError, time.Since(start))
		s.logger.Error("no connection for tool's server",
			zap.String("tool", call.Name),
			zap.String("server", tool.Server))
		s.appendResult(call, fmt.Sprintf(sanitizedToolError, call.Name))
		return nil
	}

	out, err := conn.CallTool(ctx, tool.Name, call.Arguments)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Wrap(domain.CodeCanceled, "chat.dispatch", ctx.Err())
		}
		s.engine.metrics.ObserveToolCall(tool.Server, call.Name, domain.ToolCallOutcomeError, time.Since(start))
		s.logger.Error("tool call failed",
			zap.String("tool", call.Name),
			zap.String("server", tool.Server),
			zap.String("call_id", call.ID),
			zap.Error(err))
		s.appendResult(call, fmt.Sprintf(sanitizedToolError, call.Name))
		return nil
	}

	s.engine.metrics.ObserveToolCall(tool.Server, call.Name, domain.ToolCallOutcomeSuccess, time.Since(start))
	s.appendResult(call, out)
	return nil
}

func (s *session) dispatchSynthetic(ctx context.Context, call domain.ToolCallRequest, syn domain.SyntheticTool, start time.Time) error {
	s.stats.ToolCalls.Record(call.Name, domain.SyntheticServerName)

	res, err := syn.Handler(ctx, call.Arguments)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Wrap(domain.CodeCanceled, "chat.dispatch", ctx.Err())
		}
		s.engine.metrics.ObserveToolCall(domain.SyntheticServerName, call.Name, domain.ToolCallOutcomeError, time.Since(start))
		s.logger.Error("synthetic tool failed", zap.String("tool", call.Name), zap.Error(err))
		s.appendResult(call, fmt.Sprintf(sanitizedToolError, call.Name))
		return nil
	}

	if call.Name == domain.SearchToolName && s.stats.Discovery != nil {
		s.stats.Discovery.SearchCalls++
		s.stats.Discovery.ToolsDiscovered += len(res.NewTools)
		s.engine.metrics.ObserveSearchCall(len(res.NewTools))
	}
	if len(res.NewTools) > 0 {
		s.mergeDiscovered(res.NewTools)
	}

	s.engine.metrics.ObserveToolCall(domain.SyntheticServerName, call.Name, domain.ToolCallOutcomeSuccess, time.Since(start))
	s.appendResult(call, res.Summary)
	return nil
}

// installPartition stores a fresh eager/deferred split and rebuilds the
// synthetic registry and model-visible tool list around it.
func (s *session) installPartition(eager []domain.Tool, deferred map[string][]domain.Tool) {
	s.eager = eager
	s.byWire = make(map[string]domain.Tool, len(eager))
	for _, t := range eager {
		s.byWire[t.WireName] = t
	}
	s.deferredServer = make(map[string]string)
	for server, tools := range deferred {
		for _, t := range tools {
			s.deferredServer[t.WireName] = server
		}
	}

	s.registry = s.engine.base.Clone()
	s.search = discovery.NewSearchTool(deferred, s.engine.cfg.Discovery)
	if s.search != nil {
		s.logger.Info("tool discovery active",
			zap.Int("eager", len(eager)),
			zap.Int("deferred", len(s.deferredServer)))
	}
	s.rebuildDefs()
}

// mergeDiscovered moves tools the search capability returned into the
// eager set, so the next model call can use them.
func (s *session) mergeDiscovered(tools []domain.Tool) {
	for _, t := range tools {
		if _, exists := s.byWire[t.WireName]; exists {
			continue
		}
		s.eager = append(s.eager, t)
		s.byWire[t.WireName] = t
		delete(s.deferredServer, t.WireName)
	}
	s.rebuildDefs()
	s.logger.Info("discovered tools merged", zap.Int("count", len(tools)))
}

// rebuildDefs recomputes the tool definitions attached to model calls.
// The search capability is re-registered each time so its manifest
// reflects what is still deferred.
func (s *session) rebuildDefs() {
	if s.search != nil {
		s.registry.Register(domain.SyntheticTool{
			Definition: s.search.Definition(),
			Handler:    s.search.Execute,
		})
	}
	defs := append([]domain.Tool(nil), s.eager...)
	s.defs = append(defs, s.registry.Definitions()...)
}

// insertSystemMessages prepends the resolved system prompt (unless the
// caller already supplied a system message) and injects the discovery
// manifest after any leading system messages.
func (s *session) insertSystemMessages(system string) {
	hasSystem := false
	for _, m := range s.messages {
		if m.Role == domain.RoleSystem {
			hasSystem = true
			break
		}
	}
	if system != "" && !hasSystem {
		s.messages = append([]domain.ChatMessage{domain.SystemMessage(system)}, s.messages...)
	}

	if prompt := s.discoveryPrompt(); prompt != "" {
		s.messages = insertAfterSystem(s.messages, domain.SystemMessage(prompt))
		s.discoveryMsg = prompt
	}
}

// maybeRebuildDiscovery re-partitions when another conversation refreshed
// the catalog mid-session. Tools already discovered stay eager even if the
// fresh partition would defer them.
func (s *session) maybeRebuildDiscovery(ctx context.Context) error {
	if !s.engine.cfg.Discovery.Enabled {
		return nil
	}
	if s.engine.catalog.Version() == s.catalogVersion {
		return nil
	}

	snap, err := s.engine.catalog.Snapshot(ctx)
	if err != nil {
		return err
	}
	if snap.Version == s.catalogVersion {
		return nil
	}
	s.logger.Info("catalog version changed mid-conversation, rebuilding discovery",
		zap.Uint64("version", snap.Version))
	s.catalogVersion = snap.Version

	tools := snap.Tools
	if s.toolset != nil {
		tools, err = toolset.Filter(tools, *s.toolset, s.engine.cfg.ServerNames(), true)
		if err != nil {
			return err
		}
	}

	previouslyLoaded := make(map[string]struct{}, len(s.byWire))
	for wire := range s.byWire {
		previouslyLoaded[wire] = struct{}{}
	}

	eager, deferred := discovery.Partition(tools, s.engine.cfg.Servers, s.engine.cfg.Discovery)
	for server, list := range deferred {
		var kept []domain.Tool
		for _, t := range list {
			if _, loaded := previouslyLoaded[t.WireName]; loaded {
				eager = append(eager, t)
			} else {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			delete(deferred, server)
		} else {
			deferred[server] = kept
		}
	}
	if len(deferred) == 0 {
		deferred = nil
	}

	s.installPartition(eager, deferred)
	s.replaceDiscoveryMessage()
	return nil
}

// replaceDiscoveryMessage swaps the injected manifest system message for
// one reflecting the rebuilt partition.
func (s *session) replaceDiscoveryMessage() {
	if s.discoveryMsg != "" {
		kept := s.messages[:0]
		for _, m := range s.messages {
			if m.Role == domain.RoleSystem && m.Content == s.discoveryMsg {
				continue
			}
			kept = append(kept, m)
		}
		s.messages = kept
		s.discoveryMsg = ""
	}
	if prompt := s.discoveryPrompt(); prompt != "" {
		s.messages = insertAfterSystem(s.messages, domain.SystemMessage(prompt))
		s.discoveryMsg = prompt
	}
}

func (s *session) discoveryPrompt() string {
	if s.search == nil {
		return ""
	}
	return "Additional tools are available but not yet loaded. " +
		"Use the 'search-tools' tool to find and load them before calling them.\n\n" +
		"Available tool servers:\n" + s.search.Manifest()
}

func (s *session) append(msg domain.ChatMessage) {
	s.messages = append(s.messages, msg)
	s.appended = append(s.appended, msg)
}

func (s *session) appendResult(call domain.ToolCallRequest, content string) {
	s.append(domain.ToolResultMessage(call.Name, call.ID, content))
}

// insertAfterSystem places msg after the leading run of system messages.
func insertAfterSystem(messages []domain.ChatMessage, msg domain.ChatMessage) []domain.ChatMessage {
	idx := 0
	for i, m := range messages {
		if m.Role != domain.RoleSystem {
			break
		}
		idx = i + 1
	}
	out := make([]domain.ChatMessage, 0, len(messages)+1)
	out = append(out, messages[:idx]...)
	out = append(out, msg)
	out = append(out, messages[idx:]...)
	return out
}
