package domain

import (
	"encoding/json"
	"time"
)

// Tool is a single callable capability exposed by an MCP server.
// Identity is the (Server, Name) pair; Name is the server-local tool name.
// WireName is the name advertised to the model, prefixed with the server
// name when more than one server is configured.
type Tool struct {
	Server      string          `json:"server"`
	Name        string          `json:"name"`
	WireName    string          `json:"wireName"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// CloneTool returns a deep copy of the tool.
func CloneTool(t Tool) Tool {
	out := t
	if t.InputSchema != nil {
		out.InputSchema = append(json.RawMessage(nil), t.InputSchema...)
	}
	return out
}

// CatalogSnapshot is an immutable enumeration of all tools across all
// connected servers at one point in time. Snapshots are replaced, never
// mutated; Tools preserves catalog order (server config order, then the
// order each server listed its tools).
type CatalogSnapshot struct {
	Tools     []Tool
	Version   uint64
	FetchedAt time.Time
}

// ToolsByWireName builds a lookup from wire name to tool.
func (s CatalogSnapshot) ToolsByWireName() map[string]Tool {
	out := make(map[string]Tool, len(s.Tools))
	for _, t := range s.Tools {
		out[t.WireName] = t
	}
	return out
}
