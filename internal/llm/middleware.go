package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	perrors "github.com/p-blackswan/puzzlecanvas/internal/errors"
	"github.com/p-blackswan/puzzlecanvas/internal/retry"
	"github.com/p-blackswan/puzzlecanvas/lru"
)

// Retrying retries rate-limit and transient server errors with exponential
// backoff. Errors are classified for service before the retry decision.
func Retrying(cfg retry.Config, service string, logger zerolog.Logger) Middleware {
	log := logger.With().Str("component", "llm.retry").Logger()
	return func(next Backend) Backend {
		return BackendFunc(func(ctx context.Context, req Request) (string, error) {
			c := cfg
			c.OnRetry = func(attempt int, delay time.Duration, err error) {
				log.Warn().Err(err).
					Str("task", req.Task).
					Int("attempt", attempt).
					Dur("delay", delay).
					Msg("LLM call failed, retrying")
			}
			var out string
			err := retry.Do(ctx, c, func(ctx context.Context) error {
				var err error
				out, err = next.Complete(ctx, req)
				return perrors.Classify(service, err)
			})
			return out, err
		})
	}
}

// RateLimited blocks each call until limiter admits it.
func RateLimited(limiter *rate.Limiter) Middleware {
	return func(next Backend) Backend {
		return BackendFunc(func(ctx context.Context, req Request) (string, error) {
			if err := limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("rate limiter: %w", err)
			}
			return next.Complete(ctx, req)
		})
	}
}

// NewLimiter builds a limiter allowing rps calls per second with a burst of
// one second's worth. rps <= 0 means unlimited.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Cached serves repeated identical requests from cache. Requests with images
// bypass the cache. Structured replies are stored only when they hold valid
// JSON, so a retried request reaches the backend again.
func Cached(cache *lru.Cache[string, string]) Middleware {
	return func(next Backend) Backend {
		return BackendFunc(func(ctx context.Context, req Request) (string, error) {
			if len(req.Images) > 0 {
				return next.Complete(ctx, req)
			}
			key := cacheKey(req)
			if out, ok := cache.Get(key); ok {
				return out, nil
			}
			out, err := next.Complete(ctx, req)
			if err == nil && cacheable(req, out) {
				cache.Put(key, out)
			}
			return out, err
		})
	}
}

func cacheable(req Request, out string) bool {
	if !req.Structured() {
		return true
	}
	js, err := ExtractJSON(out)
	return err == nil && json.Valid([]byte(js))
}

func cacheKey(req Request) string {
	h := sha256.New()
	h.Write([]byte(req.Prompt))
	h.Write([]byte{0})
	h.Write(req.Schema)
	if req.Temperature != nil {
		fmt.Fprintf(h, "|t=%g", *req.Temperature)
	}
	fmt.Fprintf(h, "|m=%d", req.MaxTokens)
	return hex.EncodeToString(h.Sum(nil))
}

// Observer receives the outcome of every call.
type Observer func(task string, d time.Duration, err error)

// Observed reports each call's task, latency and error to fn.
func Observed(fn Observer) Middleware {
	return func(next Backend) Backend {
		return BackendFunc(func(ctx context.Context, req Request) (string, error) {
			start := time.Now()
			out, err := next.Complete(ctx, req)
			fn(req.Task, time.Since(start), err)
			return out, err
		})
	}
}
