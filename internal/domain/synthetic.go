package domain

import (
	"context"
	"encoding/json"
)

// SyntheticServerName labels tool calls handled inside the engine rather
// than forwarded to a tool server, in statistics and logs.
const SyntheticServerName = "_synthetic"

// SearchToolName is the reserved wire name of the tool-discovery capability.
const SearchToolName = "search-tools"

// SyntheticResult is the outcome of a synthetic capability invocation: a
// model-visible summary plus any deferred tools that became active.
type SyntheticResult struct {
	Summary  string
	NewTools []Tool
}

// SyntheticHandler executes a synthetic capability.
type SyntheticHandler func(ctx context.Context, args json.RawMessage) (*SyntheticResult, error)

// SyntheticTool pairs a model-visible tool definition with its in-process
// handler. The definition's Server is always SyntheticServerName.
type SyntheticTool struct {
	Definition Tool
	Handler    SyntheticHandler
}
