package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/zen-systems/plangate/pkg/message"
)

// DefaultOllamaURL is the local Ollama server.
const DefaultOllamaURL = "http://localhost:11434"

// ollamaToken is sent as the bearer token. Ollama ignores it but the client
// refuses to start without one.
const ollamaToken = "ollama"

// OllamaAdapter implements the Adapter interface for local Ollama models.
// It talks to the server's OpenAI-compatible /v1 endpoint, which carries
// tool definitions and tool calls.
type OllamaAdapter struct {
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	clients map[string]*openai.LLM
}

// NewOllamaAdapter creates an adapter for the Ollama server at serverURL.
func NewOllamaAdapter(serverURL string) (*OllamaAdapter, error) {
	return NewOllamaAdapterWithClient(serverURL, nil)
}

// NewOllamaAdapterWithClient is NewOllamaAdapter with a custom HTTP client.
func NewOllamaAdapterWithClient(serverURL string, httpClient *http.Client) (*OllamaAdapter, error) {
	if serverURL == "" {
		serverURL = DefaultOllamaURL
	}
	base := strings.TrimSuffix(serverURL, "/")
	if !strings.HasSuffix(base, "/v1") {
		base += "/v1"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OllamaAdapter{
		baseURL:    base,
		httpClient: httpClient,
		clients:    make(map[string]*openai.LLM),
	}, nil
}

// Name returns the adapter identifier.
func (a *OllamaAdapter) Name() string {
	return "ollama"
}

// Models returns the list of commonly used local models.
func (a *OllamaAdapter) Models() []string {
	return []string{
		"qwen3:8b",
		"qwen3:14b",
		"llama3.1:8b",
	}
}

func (a *OllamaAdapter) client(model string) (*openai.LLM, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if client, ok := a.clients[model]; ok {
		return client, nil
	}
	client, err := openai.New(
		openai.WithToken(ollamaToken),
		openai.WithModel(model),
		openai.WithBaseURL(a.baseURL),
		openai.WithHTTPClient(a.httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	a.clients[model] = client
	return client, nil
}

// Complete sends the conversation to the local model.
func (a *OllamaAdapter) Complete(ctx context.Context, req *Request) (*Response, error) {
	client, err := a.client(req.Model)
	if err != nil {
		return nil, err
	}

	opts := []llms.CallOption{
		llms.WithTemperature(req.Temperature),
		llms.WithMaxTokens(maxTokens(req)),
	}
	if len(req.Tools) > 0 {
		tools := make([]llms.Tool, 0, len(req.Tools))
		for _, spec := range req.Tools {
			tools = append(tools, llms.Tool{
				Type: "function",
				Function: &llms.FunctionDefinition{
					Name:        spec.Name,
					Description: spec.Description,
					Parameters:  parametersOrEmpty(spec.Parameters),
				},
			})
		}
		opts = append(opts, llms.WithTools(tools))
	}

	resp, err := client.GenerateContent(ctx, toLangchainMessages(req.Messages), opts...)
	if err != nil {
		return nil, wrapProviderError("ollama", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("ollama returned no choices")
	}

	choice := resp.Choices[0]
	calls := make([]message.ToolCall, 0, len(choice.ToolCalls))
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		calls = append(calls, message.ToolCall{
			ID:        tc.ID,
			Name:      tc.FunctionCall.Name,
			Arguments: json.RawMessage(argumentsOrEmpty(tc.FunctionCall.Arguments)),
		})
	}

	return &Response{
		Message: message.Assistant(choice.Content, ensureCallIDs(calls)...),
		Usage:   usageFromGenerationInfo(choice.GenerationInfo),
	}, nil
}

func argumentsOrEmpty(args string) string {
	if strings.TrimSpace(args) == "" {
		return "{}"
	}
	return args
}

func usageFromGenerationInfo(info map[string]any) *Usage {
	if info == nil {
		return nil
	}
	usage := &Usage{
		PromptTokens:     intFromInfo(info, "PromptTokens"),
		CompletionTokens: intFromInfo(info, "CompletionTokens"),
		TotalTokens:      intFromInfo(info, "TotalTokens"),
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return usage
}

func intFromInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func toLangchainMessages(msgs []message.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case message.RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, msg.Content))
		case message.RoleAssistant:
			content := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if msg.Content != "" {
				content.Parts = append(content.Parts, llms.TextPart(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				content.Parts = append(content.Parts, llms.ToolCall{
					ID:   call.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      call.Name,
						Arguments: argumentsString(call.Arguments),
					},
				})
			}
			out = append(out, content)
		case message.RoleTool:
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: msg.ToolCallID,
					Name:       msg.ToolName,
					Content:    msg.Content,
				}},
			})
		default:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, msg.Content))
		}
	}
	return out
}
