// Package provider adapts language-model backends to the engine's model
// contract.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/eino-contrib/jsonschema"
	"go.uber.org/zap"

	"mcpchat/internal/domain"
)

// EinoModel adapts an eino tool-calling chat model to domain.Model.
type EinoModel struct {
	name   string
	chat   model.ToolCallingChatModel
	logger *zap.Logger
}

// NewEinoModel wraps chat under the configured model name.
func NewEinoModel(name string, chat model.ToolCallingChatModel, logger *zap.Logger) *EinoModel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EinoModel{
		name:   name,
		chat:   chat,
		logger: logger.Named("model").With(zap.String("model", name)),
	}
}

// Invoke sends the conversation and tool definitions to the model and
// returns its reply.
func (m *EinoModel) Invoke(ctx context.Context, messages []domain.ChatMessage, tools []domain.Tool) (*domain.ModelResponse, error) {
	einoMessages, err := toEinoMessages(messages)
	if err != nil {
		return nil, domain.E(domain.CodeInvalidArgument, "provider.Invoke", "", err)
	}

	chat := m.chat
	if len(tools) > 0 {
		infos, err := toToolInfos(tools)
		if err != nil {
			return nil, domain.E(domain.CodeInvalidArgument, "provider.Invoke", "", err)
		}
		chat, err = m.chat.WithTools(infos)
		if err != nil {
			return nil, domain.E(domain.CodeInternal, "provider.Invoke", "bind tools", err)
		}
	}

	resp, err := chat.Generate(ctx, einoMessages)
	if err != nil {
		return nil, domain.Wrap(classifyModelError(err), "provider.Invoke", err)
	}
	if resp == nil {
		return nil, domain.E(domain.CodeInternal, "provider.Invoke", "model returned no message", nil)
	}

	out := &domain.ModelResponse{Message: fromEinoMessage(resp)}
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		out.Usage = domain.TokenUsage{
			PromptTokens:     resp.ResponseMeta.Usage.PromptTokens,
			CompletionTokens: resp.ResponseMeta.Usage.CompletionTokens,
		}
	}
	return out, nil
}

func classifyModelError(err error) domain.ErrorCode {
	switch {
	case errors.Is(err, context.Canceled):
		return domain.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return domain.CodeDeadlineExceeded
	default:
		return domain.CodeUnavailable
	}
}

func toEinoMessages(messages []domain.ChatMessage) ([]*schema.Message, error) {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			out = append(out, schema.SystemMessage(m.Content))
		case domain.RoleUser:
			out = append(out, schema.UserMessage(m.Content))
		case domain.RoleAssistant:
			msg := &schema.Message{Role: schema.Assistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, schema.ToolCall{
					ID: tc.ID,
					Function: schema.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			out = append(out, msg)
		case domain.RoleTool:
			out = append(out, &schema.Message{
				Role:       schema.Tool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		default:
			return nil, fmt.Errorf("unsupported message role: %s", m.Role)
		}
	}
	return out, nil
}

func fromEinoMessage(msg *schema.Message) domain.ChatMessage {
	out := domain.ChatMessage{
		Role:    domain.RoleAssistant,
		Content: msg.Content,
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, domain.ToolCallRequest{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out
}

func toToolInfos(tools []domain.Tool) ([]*schema.ToolInfo, error) {
	infos := make([]*schema.ToolInfo, 0, len(tools))
	for _, t := range tools {
		info := &schema.ToolInfo{
			Name: t.WireName,
			Desc: t.Description,
		}
		if len(t.InputSchema) > 0 {
			js := &jsonschema.Schema{}
			if err := json.Unmarshal(t.InputSchema, js); err != nil {
				return nil, fmt.Errorf("tool %q input schema: %w", t.WireName, err)
			}
			info.ParamsOneOf = schema.NewParamsOneOfByJSONSchema(js)
		}
		infos = append(infos, info)
	}
	return infos, nil
}
