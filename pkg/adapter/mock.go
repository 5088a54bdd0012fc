package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/zen-systems/plangate/pkg/message"
)

// MockStep is one scripted reply of the mock adapter.
type MockStep struct {
	Message message.Message
	Err     error
}

// MockText scripts a plain assistant answer.
func MockText(content string) MockStep {
	return MockStep{Message: message.Assistant(content)}
}

// MockToolCall scripts an assistant message calling one tool.
func MockToolCall(name, args string) MockStep {
	return MockStep{Message: message.Assistant("", message.ToolCall{Name: name, Arguments: json.RawMessage(args)})}
}

// MockError scripts a failed completion call.
func MockError(err error) MockStep {
	return MockStep{Err: err}
}

// MockAdapter returns deterministic responses for local runs and tests.
// Scripted steps are replayed in order; afterwards Responder, if set,
// answers, otherwise the default response is returned.
type MockAdapter struct {
	mu              sync.Mutex
	script          []MockStep
	next            int
	requests        []Request
	defaultResponse string

	Responder func(req *Request) (message.Message, error)
	Usage     *Usage
}

// NewMockAdapter creates a mock adapter replaying the given steps.
func NewMockAdapter(steps ...MockStep) *MockAdapter {
	return &MockAdapter{
		script:          steps,
		defaultResponse: "mock response",
	}
}

// Name returns the adapter identifier.
func (a *MockAdapter) Name() string {
	return "mock"
}

// Models returns the list of supported mock models.
func (a *MockAdapter) Models() []string {
	return []string{"mock-1"}
}

// Complete returns the next scripted reply.
func (a *MockAdapter) Complete(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("mock adapter: nil request")
	}

	a.mu.Lock()
	recorded := *req
	recorded.Messages = append([]message.Message(nil), req.Messages...)
	a.requests = append(a.requests, recorded)

	var step *MockStep
	if a.next < len(a.script) {
		step = &a.script[a.next]
		a.next++
	}
	responder := a.Responder
	a.mu.Unlock()

	var msg message.Message
	var err error
	switch {
	case step != nil:
		msg, err = step.Message, step.Err
	case responder != nil:
		msg, err = responder(req)
	default:
		msg = message.Assistant(a.defaultResponse)
	}
	if err != nil {
		return nil, err
	}
	msg.Role = message.RoleAssistant
	msg.ToolCalls = ensureCallIDs(append([]message.ToolCall(nil), msg.ToolCalls...))
	return &Response{Message: msg, Usage: a.Usage}, nil
}

// Requests returns the requests received so far.
func (a *MockAdapter) Requests() []Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Request(nil), a.requests...)
}

// Calls returns the number of completion calls received.
func (a *MockAdapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}
