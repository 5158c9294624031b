package domain

import "encoding/json"

// MessageRole identifies the author of a chat message.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// ToolCallRequest is a single tool invocation requested by the model.
// Arguments is the raw JSON object produced by the model.
type ToolCallRequest struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ChatMessage is one entry in a conversation. Assistant messages may carry
// tool-call requests; tool messages carry the result for one request and
// reference it by ToolCallID.
type ChatMessage struct {
	Role       MessageRole       `json:"role"`
	Content    string            `json:"content"`
	Name       string            `json:"name,omitempty"`
	ToolCallID string            `json:"toolCallId,omitempty"`
	ToolCalls  []ToolCallRequest `json:"toolCalls,omitempty"`
}

// SystemMessage builds a system-role message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

// UserMessage builds a user-role message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// ToolResultMessage builds a tool-role message tied to a tool-call request.
func ToolResultMessage(name, toolCallID, content string) ChatMessage {
	return ChatMessage{
		Role:       RoleTool,
		Name:       name,
		ToolCallID: toolCallID,
		Content:    content,
	}
}
