// Package chat drives the conversation loop: model calls alternating with
// tool executions until the model stops requesting tools.
package chat

import "mcpchat/internal/domain"

// Registry maps reserved capability wire names to in-process handlers.
// The dispatch loop consults it before forwarding any tool call to a
// server; a registered name is never sent over a transport.
type Registry struct {
	order []string
	tools map[string]domain.SyntheticTool
}

// NewRegistry builds a registry over the given synthetic tools.
func NewRegistry(tools ...domain.SyntheticTool) *Registry {
	r := &Registry{tools: make(map[string]domain.SyntheticTool)}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a synthetic tool under its wire name.
func (r *Registry) Register(t domain.SyntheticTool) {
	name := t.Definition.WireName
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Lookup returns the synthetic tool registered under wireName.
func (r *Registry) Lookup(wireName string) (domain.SyntheticTool, bool) {
	t, ok := r.tools[wireName]
	return t, ok
}

// Definitions returns every registered definition in registration order.
func (r *Registry) Definitions() []domain.Tool {
	defs := make([]domain.Tool, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

// Clone returns an independent copy, so one conversation can extend the
// registry without affecting others.
func (r *Registry) Clone() *Registry {
	c := &Registry{
		order: append([]string(nil), r.order...),
		tools: make(map[string]domain.SyntheticTool, len(r.tools)),
	}
	for name, t := range r.tools {
		c.tools[name] = t
	}
	return c
}
