package domain

import "time"

// ChatOutcome labels how a chat call ended.
type ChatOutcome string

const (
	ChatOutcomeCompleted      ChatOutcome = "completed"
	ChatOutcomeModelError     ChatOutcome = "model_error"
	ChatOutcomeIterationLimit ChatOutcome = "iteration_limit"
	ChatOutcomeCanceled       ChatOutcome = "canceled"
)

// ToolCallOutcome labels the result of one tool dispatch.
type ToolCallOutcome string

const (
	ToolCallOutcomeSuccess  ToolCallOutcome = "success"
	ToolCallOutcomeError    ToolCallOutcome = "error"
	ToolCallOutcomeDeferred ToolCallOutcome = "deferred"
	ToolCallOutcomeUnknown  ToolCallOutcome = "unknown_tool"
)

// Metrics records operational metrics for chats, model calls, tool
// dispatches, and catalog refreshes.
type Metrics interface {
	ObserveChat(model string, outcome ChatOutcome, duration time.Duration)
	ObserveModelCall(model string, duration time.Duration, usage TokenUsage)
	ObserveToolCall(server string, tool string, outcome ToolCallOutcome, duration time.Duration)
	ObserveSearchCall(discovered int)
	ObserveCatalogRefresh(duration time.Duration, toolCount int, err error)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) ObserveChat(string, ChatOutcome, time.Duration)               {}
func (NopMetrics) ObserveModelCall(string, time.Duration, TokenUsage)           {}
func (NopMetrics) ObserveToolCall(string, string, ToolCallOutcome, time.Duration) {}
func (NopMetrics) ObserveSearchCall(int)                                        {}
func (NopMetrics) ObserveCatalogRefresh(time.Duration, int, error)              {}

var _ Metrics = NopMetrics{}
