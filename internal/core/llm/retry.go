package llm

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/lectern-ai/lectern/internal/core"
)

// RetryingEmbedder wraps an EmbeddingProvider with a request rate limiter
// and exponential backoff on transient failures. Permanent failures and
// context cancellation pass through immediately.
type RetryingEmbedder struct {
	inner      core.EmbeddingProvider
	limiter    *rate.Limiter
	maxRetries uint64
}

var _ core.EmbeddingProvider = (*RetryingEmbedder)(nil)

// NewRetryingEmbedder limits calls to rps requests per second (burst 1) and
// retries each call up to maxRetries times with exponential backoff.
func NewRetryingEmbedder(inner core.EmbeddingProvider, rps float64, maxRetries int) *RetryingEmbedder {
	if rps <= 0 {
		rps = 5
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryingEmbedder{
		inner:      inner,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		maxRetries: uint64(maxRetries),
	}
}

func (r *RetryingEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	op := func() error {
		if err := r.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		vecs, err := r.inner.EmbedTexts(ctx, texts)
		if err != nil {
			if !core.IsRetryable(err) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		out = vecs
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), r.maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		var gw *core.EmbeddingGatewayError
		if errors.As(err, &gw) {
			return nil, err
		}
		return nil, &core.EmbeddingGatewayError{Err: err}
	}
	return out, nil
}

// RateLimitedLLM throttles generation calls. It deliberately does not retry:
// a generation request costs real tokens and the query path would rather
// surface the error than bill it twice.
type RateLimitedLLM struct {
	inner   core.LLMProvider
	limiter *rate.Limiter
}

var _ core.LLMProvider = (*RateLimitedLLM)(nil)

func NewRateLimitedLLM(inner core.LLMProvider, rps float64) *RateLimitedLLM {
	if rps <= 0 {
		rps = 2
	}
	return &RateLimitedLLM{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

func (r *RateLimitedLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.inner.Generate(ctx, systemPrompt, userPrompt)
}
