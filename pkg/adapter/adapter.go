package adapter

import (
	"context"
)

// Adapter defines the interface for completion providers.
type Adapter interface {
	// Complete sends the conversation to the model and returns its next message.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Name returns the adapter's identifier.
	Name() string

	// Models returns the list of supported models.
	Models() []string
}

// AdapterInfo holds metadata about an adapter.
type AdapterInfo struct {
	Name   string
	Models []ModelInfo
}

// ModelInfo holds metadata about a model.
type ModelInfo struct {
	ID          string
	Description string
}
