package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/plangate/pkg/message"
)

func TestMockAdapterReplaysScript(t *testing.T) {
	boom := errors.New("boom")
	mock := NewMockAdapter(
		MockToolCall("find_object", `{"object_name":"cup"}`),
		MockError(boom),
		MockText(`{"goals": []}`),
	)
	ctx := context.Background()
	req := &Request{Model: "mock-1", Messages: []message.Message{message.User("hi")}}

	resp, err := mock.Complete(ctx, req)
	require.NoError(t, err)
	require.True(t, resp.Message.HasToolCalls())
	assert.NotEmpty(t, resp.Message.ToolCalls[0].ID)
	assert.Equal(t, "find_object", resp.Message.ToolCalls[0].Name)

	_, err = mock.Complete(ctx, req)
	assert.ErrorIs(t, err, boom)

	resp, err = mock.Complete(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, `{"goals": []}`, resp.Message.Content)

	resp, err = mock.Complete(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "mock response", resp.Message.Content)
	assert.Equal(t, 4, mock.Calls())
}

func TestMockAdapterResponder(t *testing.T) {
	mock := NewMockAdapter()
	mock.Responder = func(req *Request) (message.Message, error) {
		return message.Assistant(req.Messages[len(req.Messages)-1].Content), nil
	}
	resp, err := mock.Complete(context.Background(), &Request{Messages: []message.Message{message.User("echo")}})
	require.NoError(t, err)
	assert.Equal(t, "echo", resp.Message.Content)
	assert.Equal(t, message.RoleAssistant, resp.Message.Role)
}

func TestMockAdapterHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMockAdapter(MockText("x")).Complete(ctx, &Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsTransient(context.Canceled))
	assert.True(t, IsTransient(&AdapterError{Status: 429}))
	assert.True(t, IsTransient(&AdapterError{Status: 503}))
	assert.True(t, IsTransient(&AdapterError{Temporary: true}))
	assert.False(t, IsTransient(&AdapterError{Status: 400}))
	assert.False(t, IsTransient(errors.New("plain")))

	dial := &url.Error{Op: "Post", URL: "http://localhost:11434/v1/chat/completions",
		Err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}}
	assert.True(t, IsTransient(dial))
	assert.True(t, IsTransient(wrapProviderError("ollama", dial)))
	assert.True(t, IsTransient(wrapProviderError("ollama",
		errors.New("API returned unexpected status code: 503: model is loading"))))
	assert.True(t, IsTransient(wrapProviderError("ollama",
		errors.New("API returned unexpected status code: 429"))))
	assert.False(t, IsTransient(wrapProviderError("ollama",
		errors.New("API returned unexpected status code: 400: invalid tool schema"))))
	assert.False(t, IsTransient(wrapProviderError("ollama", errors.New("model not found"))))
}

func TestWrapProviderError(t *testing.T) {
	assert.NoError(t, wrapProviderError("ollama", nil))
	assert.Equal(t, context.Canceled, wrapProviderError("ollama", context.Canceled))

	err := wrapProviderError("ollama", errors.New("API returned unexpected status code: 502"))
	var adapterErr *AdapterError
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, 502, adapterErr.Status)
	assert.Contains(t, err.Error(), "ollama API error")

	inner := &AdapterError{Status: 404, Err: errors.New("missing")}
	err = wrapProviderError("ollama", fmt.Errorf("call: %w", inner))
	require.ErrorAs(t, err, &adapterErr)
	assert.Same(t, inner, adapterErr)

	err = wrapProviderError("ollama", errors.New("read tcp: connection reset by peer"))
	require.ErrorAs(t, err, &adapterErr)
	assert.True(t, adapterErr.Temporary)
}

func TestSplitSystem(t *testing.T) {
	system, rest := splitSystem([]message.Message{
		message.System("one"),
		message.User("u"),
		message.System("two"),
	})
	assert.Equal(t, "one\n\ntwo", system)
	require.Len(t, rest, 1)
	assert.Equal(t, message.RoleUser, rest[0].Role)
}

func TestDeepSeekAdapterToolCalls(t *testing.T) {
	var got deepseekRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "x", "model": "deepseek-chat",
			"choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
				"role": "assistant", "content": "",
				"tool_calls": [{"id": "call_1", "type": "function",
					"function": {"name": "get_relations", "arguments": "{\"object_id\": 7}"}}]
			}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`)
	}))
	defer srv.Close()

	ds, err := NewDeepSeekAdapterWithURL("secret", srv.URL, srv.Client())
	require.NoError(t, err)

	call := message.ToolCall{ID: "call_0", Name: "find_object", Arguments: json.RawMessage(`{"object_name":"tv"}`)}
	resp, err := ds.Complete(context.Background(), &Request{
		Model: "deepseek-chat",
		Messages: []message.Message{
			message.System("sys"),
			message.User("go"),
			message.Assistant("", call),
			message.ToolResult(call, "tv, id: 7"),
		},
		Tools: []ToolSpec{{Name: "get_relations", Description: "relations", Parameters: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)

	require.Len(t, got.Messages, 4)
	assert.Equal(t, "tool", got.Messages[3].Role)
	assert.Equal(t, "call_0", got.Messages[3].ToolCallID)
	require.Len(t, got.Messages[2].ToolCalls, 1)
	assert.JSONEq(t, `{"object_name":"tv"}`, got.Messages[2].ToolCalls[0].Function.Arguments)
	require.Len(t, got.Tools, 1)
	assert.Equal(t, "get_relations", got.Tools[0].Function.Name)
	assert.Equal(t, DefaultMaxTokens, got.MaxTokens)

	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.Message.ToolCalls[0].ID)
	assert.JSONEq(t, `{"object_id": 7}`, string(resp.Message.ToolCalls[0].Arguments))
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestDeepSeekAdapterServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ds, err := NewDeepSeekAdapterWithURL("secret", srv.URL, srv.Client())
	require.NoError(t, err)

	_, err = ds.Complete(context.Background(), &Request{Model: "deepseek-chat"})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestOllamaAdapterToolCalls(t *testing.T) {
	var requests []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		requests = append(requests, body)

		w.Header().Set("Content-Type", "application/json")
		if len(requests) == 1 {
			_, _ = io.WriteString(w, `{
				"id": "chatcmpl-1", "object": "chat.completion", "model": "qwen3:8b",
				"choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
					"role": "assistant", "content": "",
					"tool_calls": [{"id": "call_1", "type": "function",
						"function": {"name": "find_object", "arguments": "{\"object_name\":\"tv\"}"}}]
				}}],
				"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
			}`)
			return
		}
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-2", "object": "chat.completion", "model": "qwen3:8b",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {
				"role": "assistant", "content": "(walk tv)"
			}}],
			"usage": {"prompt_tokens": 30, "completion_tokens": 4, "total_tokens": 34}
		}`)
	}))
	defer srv.Close()

	ol, err := NewOllamaAdapterWithClient(srv.URL, srv.Client())
	require.NoError(t, err)

	tools := []ToolSpec{{
		Name:        "find_object",
		Description: "find an object by name",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"object_name": map[string]any{"type": "string"}},
			"required":   []string{"object_name"},
		},
	}}
	history := []message.Message{message.System("sys"), message.User("Watch TV")}

	resp, err := ol.Complete(context.Background(), &Request{Model: "qwen3:8b", Messages: history, Tools: tools})
	require.NoError(t, err)
	require.Len(t, resp.Message.ToolCalls, 1)
	call := resp.Message.ToolCalls[0]
	assert.Equal(t, "call_1", call.ID)
	assert.Equal(t, "find_object", call.Name)
	assert.JSONEq(t, `{"object_name":"tv"}`, string(call.Arguments))
	require.NotNil(t, resp.Usage)
	assert.Equal(t, Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15}, *resp.Usage)

	require.Len(t, requests, 1)
	assert.Equal(t, "qwen3:8b", requests[0]["model"])
	sent, ok := requests[0]["tools"].([]any)
	require.True(t, ok, "tools missing from request")
	require.Len(t, sent, 1)
	fn := sent[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "find_object", fn["name"])

	history = append(history, resp.Message, message.ToolResult(call, "tv, id: 12"))
	resp, err = ol.Complete(context.Background(), &Request{Model: "qwen3:8b", Messages: history, Tools: tools})
	require.NoError(t, err)
	assert.Equal(t, "(walk tv)", resp.Message.Content)
	assert.Empty(t, resp.Message.ToolCalls)

	require.Len(t, requests, 2)
	msgs := requests[1]["messages"].([]any)
	require.Len(t, msgs, 4)
	assistant := msgs[2].(map[string]any)
	assert.Equal(t, "assistant", assistant["role"])
	require.Len(t, assistant["tool_calls"], 1)
	toolMsg := msgs[3].(map[string]any)
	assert.Equal(t, "tool", toolMsg["role"])
	assert.Equal(t, "call_1", toolMsg["tool_call_id"])
	assert.Equal(t, "tv, id: 12", toolMsg["content"])
}

func TestOllamaAdapterStatusErrors(t *testing.T) {
	status := http.StatusServiceUnavailable
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"error": {"message": "busy", "type": "api_error"}}`)
	}))
	defer srv.Close()

	ol, err := NewOllamaAdapterWithClient(srv.URL, srv.Client())
	require.NoError(t, err)

	_, err = ol.Complete(context.Background(), &Request{Model: "qwen3:8b", Messages: []message.Message{message.User("hi")}})
	require.Error(t, err)
	var adapterErr *AdapterError
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, http.StatusServiceUnavailable, adapterErr.Status)
	assert.True(t, IsTransient(err))

	status = http.StatusBadRequest
	_, err = ol.Complete(context.Background(), &Request{Model: "qwen3:8b", Messages: []message.Message{message.User("hi")}})
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestOllamaAdapterConnectionRefusedIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	ol, err := NewOllamaAdapter(addr)
	require.NoError(t, err)

	_, err = ol.Complete(context.Background(), &Request{Model: "qwen3:8b", Messages: []message.Message{message.User("hi")}})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestConstructorsRequireKeys(t *testing.T) {
	_, err := NewAnthropicAdapter("")
	assert.Error(t, err)
	_, err = NewOpenAIAdapter("")
	assert.Error(t, err)
	_, err = NewGoogleAdapter("")
	assert.Error(t, err)
	_, err = NewDeepSeekAdapter("")
	assert.Error(t, err)
}
