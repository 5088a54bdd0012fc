package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/zen-systems/plangate/pkg/adapter"
	"github.com/zen-systems/plangate/pkg/config"
)

// callAdapterWithPolicy sends req to target, retrying transient failures
// with exponential backoff and moving down the fallback chain once a target
// is exhausted. Every attempt that ended a target is reported.
func callAdapterWithPolicy(
	ctx context.Context,
	adapters map[string]adapter.Adapter,
	target config.RouteTarget,
	req adapter.Request,
	cfg *config.Config,
) (*adapter.Response, []adapter.CallReport, error) {
	targets := buildTargets(target, cfg)
	retryCfg := retrySettings(cfg)
	var reports []adapter.CallReport
	var lastErr error

	for _, t := range targets {
		adapterImpl, ok := adapters[t.Adapter]
		if !ok {
			return nil, reports, fmt.Errorf("adapter %s not found", t.Adapter)
		}
		attemptReq := req
		attemptReq.Model = t.Model

		for attempt := 0; attempt <= retryCfg.MaxRetries; attempt++ {
			resp, err := adapterImpl.Complete(ctx, &attemptReq)
			if err == nil {
				reports = append(reports, adapter.CallReport{
					Adapter: t.Adapter,
					Model:   t.Model,
					Usage:   normalizeUsage(resp.Usage),
					Retries: attempt,
				})
				return resp, reports, nil
			}

			lastErr = err
			if ctx.Err() != nil {
				return nil, reports, ctx.Err()
			}
			if !adapter.IsTransient(err) || attempt == retryCfg.MaxRetries {
				reports = append(reports, adapter.CallReport{
					Adapter: t.Adapter,
					Model:   t.Model,
					Retries: attempt,
					Error:   err.Error(),
				})
				break
			}

			backoff := computeBackoff(retryCfg.BaseBackoffMs, retryCfg.MaxBackoffMs, attempt)
			if err := sleepWithContext(ctx, backoff); err != nil {
				return nil, reports, err
			}
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("adapter call failed")
	}
	return nil, reports, lastErr
}

func buildTargets(target config.RouteTarget, cfg *config.Config) []config.RouteTarget {
	targets := []config.RouteTarget{target}
	if cfg == nil {
		return targets
	}
	return append(targets, cfg.FallbackChain(target)...)
}

func retrySettings(cfg *config.Config) config.RetryConfig {
	if cfg == nil {
		return config.RetryConfig{MaxRetries: 2, BaseBackoffMs: 200, MaxBackoffMs: 2000}
	}
	return cfg.Retry
}

func computeBackoff(baseMs, maxMs, attempt int) time.Duration {
	backoff := time.Duration(baseMs) * time.Millisecond
	limit := time.Duration(maxMs) * time.Millisecond
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= limit {
			return limit
		}
	}
	if backoff > limit {
		return limit
	}
	return backoff
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func normalizeUsage(u *adapter.Usage) adapter.Usage {
	if u == nil {
		return adapter.Usage{}
	}
	usage := *u
	if usage.TotalTokens == 0 && (usage.PromptTokens > 0 || usage.CompletionTokens > 0) {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return usage
}

func addUsage(a adapter.Usage, b adapter.Usage) adapter.Usage {
	return adapter.Usage{
		PromptTokens:     a.PromptTokens + b.PromptTokens,
		CompletionTokens: a.CompletionTokens + b.CompletionTokens,
		TotalTokens:      a.TotalTokens + b.TotalTokens,
	}
}
