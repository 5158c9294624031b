package domain

// TokenUsage accumulates token counts across all model calls in a chat.
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Total returns prompt plus completion tokens.
func (u TokenUsage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// Add folds another usage sample into the accumulator.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
}

// ToolCallStats counts tool dispatches by tool and by server.
type ToolCallStats struct {
	ByTool   map[string]int `json:"byTool"`
	ByServer map[string]int `json:"byServer"`
}

// Record counts one dispatch of the named tool on the named server.
func (s *ToolCallStats) Record(tool, server string) {
	if s.ByTool == nil {
		s.ByTool = make(map[string]int)
	}
	if s.ByServer == nil {
		s.ByServer = make(map[string]int)
	}
	s.ByTool[tool]++
	s.ByServer[server]++
}

// Total returns the number of tool dispatches.
func (s ToolCallStats) Total() int {
	total := 0
	for _, n := range s.ByTool {
		total += n
	}
	return total
}

// DiscoveryStats tracks tool-discovery activity. Present only when
// discovery was active for the chat.
type DiscoveryStats struct {
	SearchCalls     int `json:"searchCalls"`
	ToolsDiscovered int `json:"toolsDiscovered"`
}

// ChatStats is the usage accumulator for one chat call. It is owned by the
// dispatch loop for the duration of the call and read-only afterward.
type ChatStats struct {
	Tokens     TokenUsage      `json:"tokens"`
	ToolCalls  ToolCallStats   `json:"toolCalls"`
	ModelCalls int             `json:"modelCalls"`
	Discovery  *DiscoveryStats `json:"discovery,omitempty"`
}

// ChatResult is the terminal output of a chat call: the messages appended
// since the call began (the caller-supplied prefix is excluded) plus the
// finalized statistics.
type ChatResult struct {
	Messages []ChatMessage `json:"messages"`
	Stats    ChatStats     `json:"stats"`
}
