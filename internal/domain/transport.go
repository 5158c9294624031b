package domain

import (
	"context"
	"encoding/json"
)

// ServerConn is a live connection to one tool server. Implementations are
// safe for concurrent use by independent conversations.
type ServerConn interface {
	// Name returns the configured server name.
	Name() string

	// ListTools enumerates every tool the server exposes.
	ListTools(ctx context.Context) ([]Tool, error)

	// CallTool invokes the named tool (unqualified name) and returns its
	// output flattened to text.
	CallTool(ctx context.Context, name string, args json.RawMessage) (string, error)

	Close() error
}
