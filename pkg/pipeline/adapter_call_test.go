package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/plangate/pkg/adapter"
	"github.com/zen-systems/plangate/pkg/config"
	"github.com/zen-systems/plangate/pkg/message"
)

func fastRetry() *config.Config {
	return &config.Config{Retry: config.RetryConfig{MaxRetries: 2, BaseBackoffMs: 1, MaxBackoffMs: 1}}
}

func TestComputeBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 200 * time.Millisecond},
		{1, 400 * time.Millisecond},
		{2, 800 * time.Millisecond},
		{3, 1600 * time.Millisecond},
		{4, 2000 * time.Millisecond},
		{10, 2000 * time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, computeBackoff(200, 2000, tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestCallAdapterRetriesTransientErrors(t *testing.T) {
	mock := adapter.NewMockAdapter(
		adapter.MockError(&adapter.AdapterError{Status: 503, Err: errors.New("unavailable")}),
		adapter.MockText("ok"),
	)
	adapters := map[string]adapter.Adapter{"mock": mock}

	resp, reports, err := callAdapterWithPolicy(context.Background(), adapters, config.RouteTarget{Adapter: "mock", Model: "mock-1"}, adapter.Request{}, fastRetry())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Message.Content)
	require.Len(t, reports, 1)
	assert.Equal(t, 1, reports[0].Retries)
	assert.Equal(t, 2, mock.Calls())
	assert.Equal(t, "mock-1", mock.Requests()[1].Model)
}

func TestCallAdapterStopsOnPermanentErrors(t *testing.T) {
	mock := adapter.NewMockAdapter(
		adapter.MockError(&adapter.AdapterError{Status: 400, Err: errors.New("bad request")}),
		adapter.MockText("never"),
	)
	adapters := map[string]adapter.Adapter{"mock": mock}

	_, reports, err := callAdapterWithPolicy(context.Background(), adapters, config.RouteTarget{Adapter: "mock", Model: "mock-1"}, adapter.Request{}, fastRetry())
	require.Error(t, err)
	assert.Equal(t, 1, mock.Calls())
	require.Len(t, reports, 1)
	assert.Equal(t, "bad request", reports[0].Error)
}

func TestCallAdapterFallsBack(t *testing.T) {
	primary := adapter.NewMockAdapter()
	primary.Responder = func(*adapter.Request) (message.Message, error) {
		return message.Message{}, &adapter.AdapterError{Status: 500, Err: errors.New("down")}
	}
	backup := adapter.NewMockAdapter(adapter.MockText("from backup"))
	adapters := map[string]adapter.Adapter{"mock": primary, "backup": backup}

	cfg := fastRetry()
	cfg.Fallback = config.FallbackConfig{
		AllowFallback: true,
		FallbackChain: map[string][]config.RouteTarget{"mock": {{Adapter: "backup", Model: "mock-2"}}},
	}

	resp, reports, err := callAdapterWithPolicy(context.Background(), adapters, config.RouteTarget{Adapter: "mock", Model: "mock-1"}, adapter.Request{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "from backup", resp.Message.Content)
	assert.Equal(t, 3, primary.Calls())
	require.Len(t, reports, 2)
	assert.Equal(t, "mock", reports[0].Adapter)
	assert.Equal(t, 2, reports[0].Retries)
	assert.Equal(t, "backup", reports[1].Adapter)
	assert.Equal(t, "mock-2", reports[1].Model)
}

func TestCallAdapterHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	adapters := map[string]adapter.Adapter{"mock": adapter.NewMockAdapter()}

	_, _, err := callAdapterWithPolicy(ctx, adapters, config.RouteTarget{Adapter: "mock"}, adapter.Request{}, fastRetry())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCallAdapterUnknownAdapter(t *testing.T) {
	_, _, err := callAdapterWithPolicy(context.Background(), map[string]adapter.Adapter{}, config.RouteTarget{Adapter: "missing"}, adapter.Request{}, nil)
	assert.ErrorContains(t, err, "adapter missing not found")
}

func TestAddUsage(t *testing.T) {
	total := addUsage(adapter.Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}, normalizeUsage(&adapter.Usage{PromptTokens: 4, CompletionTokens: 5}))
	assert.Equal(t, adapter.Usage{PromptTokens: 5, CompletionTokens: 7, TotalTokens: 12}, total)
	assert.Equal(t, adapter.Usage{}, normalizeUsage(nil))
}
