package adapter

import (
	"github.com/google/uuid"

	"github.com/zen-systems/plangate/pkg/message"
)

// DefaultMaxTokens bounds a completion when the request does not.
const DefaultMaxTokens = 2048

// ToolSpec describes a tool the model may call. Parameters is a JSON schema object.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request is a single completion call.
type Request struct {
	Model       string            `json:"model"`
	Messages    []message.Message `json:"messages"`
	Tools       []ToolSpec        `json:"tools,omitempty"`
	Temperature float64           `json:"temperature"`
	MaxTokens   int               `json:"max_tokens"`
}

// Usage captures normalized token usage.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CallReport captures adapter call metadata.
type CallReport struct {
	Adapter string `json:"adapter"`
	Model   string `json:"model"`
	Usage   Usage  `json:"usage"`
	Retries int    `json:"retries"`
	Error   string `json:"error,omitempty"`
}

// Response wraps the assistant message and optional usage data.
type Response struct {
	Message message.Message
	Usage   *Usage
}

func maxTokens(req *Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	return DefaultMaxTokens
}

// splitSystem separates the system prompt from the rest of the conversation.
// Providers that take the system prompt out of band use it.
func splitSystem(msgs []message.Message) (string, []message.Message) {
	var system string
	rest := make([]message.Message, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Role == message.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}
		rest = append(rest, msg)
	}
	return system, rest
}

// ensureCallIDs assigns IDs to tool calls the provider left anonymous.
func ensureCallIDs(calls []message.ToolCall) []message.ToolCall {
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = "call_" + uuid.NewString()
		}
	}
	return calls
}

func parametersOrEmpty(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return params
}
