package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"mcpchat/internal/domain"
)

// SearchTool is the synthetic capability through which the model discovers
// deferred tools. It carries the deferred manifest in its description and
// supports keyword search, server browsing, and exact name lookup. Tools
// it matches move from deferred to loaded; matches already loaded are
// reported as such instead of being handed back again. Owned by a single
// conversation, never shared.
type SearchTool struct {
	index      *Index
	maxResults int

	loaded map[string]struct{} // wire names already handed to the model
}

// NewSearchTool builds the capability over the deferred tools. Returns nil
// when nothing is deferred; discovery is inert in that case.
func NewSearchTool(deferred map[string][]domain.Tool, cfg domain.DiscoveryConfig) *SearchTool {
	if len(deferred) == 0 {
		return nil
	}
	var flat []domain.Tool
	for _, server := range sortedKeys(deferred) {
		flat = append(flat, deferred[server]...)
	}
	maxResults := cfg.MaxSearchResults
	if maxResults <= 0 {
		maxResults = domain.DefaultMaxSearchResults
	}
	return &SearchTool{
		index:      NewIndex(flat),
		maxResults: maxResults,
		loaded:     make(map[string]struct{}),
	}
}

// MarkLoaded records wire names as already handed to the model. Used when
// the capability is rebuilt after a catalog refresh so previously
// discovered tools are not re-offered.
func (s *SearchTool) MarkLoaded(wireNames ...string) {
	for _, name := range wireNames {
		s.loaded[name] = struct{}{}
	}
}

// Deferred returns the wire names still withheld from the model.
func (s *SearchTool) Deferred() map[string]struct{} {
	out := make(map[string]struct{}, s.index.ToolCount())
	for _, t := range s.index.tools {
		if _, ok := s.loaded[t.WireName]; !ok {
			out[t.WireName] = struct{}{}
		}
	}
	return out
}

// Manifest renders the manifest of tools still deferred.
func (s *SearchTool) Manifest() string {
	deferred := make(map[string][]domain.Tool)
	for _, t := range s.index.tools {
		if _, ok := s.loaded[t.WireName]; ok {
			continue
		}
		deferred[t.Server] = append(deferred[t.Server], t)
	}
	return Manifest(deferred)
}

// Definition returns the model-visible tool definition, its description
// carrying the deferred-tool manifest.
func (s *SearchTool) Definition() domain.Tool {
	description := "Search for and load additional tools that are available but not yet loaded.\n" +
		"Use this tool to discover tools you need to complete a task.\n\n" +
		"Available tool servers:\n" + s.Manifest() + "\n\n" +
		"Provide at least one of: query, server_name, or tool_names."

	return domain.Tool{
		Server:      domain.SyntheticServerName,
		Name:        domain.SearchToolName,
		WireName:    domain.SearchToolName,
		Description: description,
		InputSchema: s.inputSchema(),
	}
}

func (s *SearchTool) inputSchema() json.RawMessage {
	servers := append([]string(nil), s.index.ServerNames()...)
	sort.Strings(servers)

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Keyword search query to find relevant tools by name or description.",
			},
			"server_name": map[string]any{
				"type": "string",
				"description": fmt.Sprintf("Load all tools from a specific server. Valid servers: %s.",
					strings.Join(servers, ", ")),
			},
			"tool_names": map[string]any{
				"type":        "array",
				"description": "Exact tool names to load.",
				"items":       map[string]any{"type": "string"},
			},
		},
		"required": []string{},
	}
	raw, _ := json.Marshal(schema)
	return raw
}

type searchArgs struct {
	Query      string   `json:"query"`
	ServerName string   `json:"server_name"`
	ToolNames  []string `json:"tool_names"`
}

// Execute runs one search invocation. Lookup modes, in precedence order:
// exact tool_names (optionally scoped by server_name), server browse, then
// relevance search (optionally scoped). Bad input becomes a model-visible
// error summary, not a Go error.
func (s *SearchTool) Execute(ctx context.Context, raw json.RawMessage) (*domain.SyntheticResult, error) {
	var args searchArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return &domain.SyntheticResult{
				Summary: "Error: Invalid arguments. Provide at least one of: query, server_name, or tool_names.",
			}, nil
		}
	}
	args.Query = strings.TrimSpace(args.Query)

	if args.Query == "" && args.ServerName == "" && len(args.ToolNames) == 0 {
		return &domain.SyntheticResult{
			Summary: "Error: Please provide at least one of: query, server_name, or tool_names.",
		}, nil
	}

	if args.ServerName != "" && !s.knownServer(args.ServerName) {
		servers := append([]string(nil), s.index.ServerNames()...)
		sort.Strings(servers)
		return &domain.SyntheticResult{
			Summary: fmt.Sprintf("Error: Unknown server '%s'. Valid servers: %s.",
				args.ServerName, strings.Join(servers, ", ")),
		}, nil
	}

	var (
		results     []domain.Tool
		notFoundMsg string
	)
	switch {
	case len(args.ToolNames) > 0:
		found, missing := s.index.ByNames(args.ToolNames)
		if args.ServerName != "" {
			kept := found[:0]
			for _, t := range found {
				if t.Server == args.ServerName {
					kept = append(kept, t)
				}
			}
			found = kept
		}
		results = found
		if len(missing) > 0 {
			notFoundMsg = "Not found: " + strings.Join(missing, ", ") + "."
		}
	case args.Query != "":
		results = s.index.Search(args.Query, args.ServerName, s.maxResults)
	default:
		results = s.index.ByServer(args.ServerName)
	}

	if len(results) == 0 {
		parts := []string{"No tools found"}
		if args.Query != "" {
			parts = append(parts, fmt.Sprintf("matching '%s'", args.Query))
		}
		if args.ServerName != "" {
			parts = append(parts, fmt.Sprintf("in server '%s'", args.ServerName))
		}
		msg := strings.Join(parts, " ") + "."
		if notFoundMsg != "" {
			msg += " " + notFoundMsg
		}
		return &domain.SyntheticResult{Summary: msg}, nil
	}

	var (
		newlyLoaded   []domain.Tool
		alreadyLoaded []string
		details       []string
	)
	for _, t := range results {
		if _, ok := s.loaded[t.WireName]; ok {
			alreadyLoaded = append(alreadyLoaded, t.WireName)
		} else {
			s.loaded[t.WireName] = struct{}{}
			newlyLoaded = append(newlyLoaded, t)
		}
		details = append(details, formatToolDetails(t))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d tool(s):\n", len(results))
	b.WriteString(strings.Join(details, "\n\n"))
	if len(alreadyLoaded) > 0 {
		b.WriteString("\n\nAlready loaded: " + strings.Join(alreadyLoaded, ", "))
	}
	if notFoundMsg != "" {
		b.WriteString("\n\n" + notFoundMsg)
	}

	return &domain.SyntheticResult{
		Summary:  b.String(),
		NewTools: newlyLoaded,
	}, nil
}

func (s *SearchTool) knownServer(name string) bool {
	for _, server := range s.index.ServerNames() {
		if server == name {
			return true
		}
	}
	return false
}

type schemaDoc struct {
	Properties map[string]schemaProp `json:"properties"`
	Required   []string              `json:"required"`
}

type schemaProp struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// formatToolDetails renders one matched tool with its parameter list for
// the model-visible summary.
func formatToolDetails(t domain.Tool) string {
	desc := t.Description
	if desc == "" {
		desc = "(no description)"
	}
	header := fmt.Sprintf("  [%s] %s: %s", t.Server, t.WireName, desc)

	var doc schemaDoc
	if len(t.InputSchema) > 0 {
		_ = json.Unmarshal(t.InputSchema, &doc)
	}
	if len(doc.Properties) == 0 {
		return header + "\n  Parameters:\n  No parameters."
	}

	required := make(map[string]struct{}, len(doc.Required))
	for _, name := range doc.Required {
		required[name] = struct{}{}
	}

	names := make([]string, 0, len(doc.Properties))
	for name := range doc.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	var params []string
	for _, name := range names {
		prop := doc.Properties[name]
		typ := prop.Type
		if typ == "" {
			typ = "any"
		}
		line := fmt.Sprintf("    - %s: %s", name, typ)
		if _, ok := required[name]; ok {
			line += " (required)"
		}
		if prop.Description != "" {
			line += " - " + prop.Description
		}
		params = append(params, line)
	}
	return header + "\n  Parameters:\n" + strings.Join(params, "\n")
}

func sortedKeys(m map[string][]domain.Tool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
