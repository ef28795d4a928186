package resilience

import (
	"context"
	"time"

	"github.com/sells-group/prospect-cli/internal/config"
)

// Guard bundles the limiter, breaker and retry policy for one provider.
type Guard struct {
	Name    string
	Limiter *Limiter
	Breaker *Breaker
	Retry   RetryConfig
}

// NewGuard creates a guard for provider from application settings.
func NewGuard(provider string, perSecond float64, cfg config.RetryConfig) *Guard {
	retry := RetryFromConfig(cfg)
	retry.OnRetry = RetryLogger(provider, "call")
	return &Guard{
		Name:    provider,
		Limiter: NewLimiter(provider, perSecond),
		Breaker: NewBreaker(provider, cfg.FailureThreshold, time.Duration(cfg.ResetTimeoutSecs)*time.Second),
		Retry:   retry,
	}
}

// Call runs fn through g: each attempt waits on the limiter and is refused
// while the breaker is open. Failures come back as KindProviderUnavailable.
func Call[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	val, err := DoVal(ctx, g.Retry, func(ctx context.Context) (T, error) {
		var zero T
		if err := g.Limiter.Wait(ctx); err != nil {
			return zero, err
		}
		if g.Breaker != nil {
			if err := g.Breaker.Allow(); err != nil {
				return zero, err
			}
		}
		v, err := fn(ctx)
		err = Classify(err)
		if g.Breaker != nil {
			g.Breaker.Record(err)
		}
		return v, err
	})
	return val, Unavailable(g.Name, err)
}
