package resilience

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Limiter paces calls to one external provider. It is the only place the
// pipeline pauses between third-party requests.
type Limiter struct {
	name string
	lim  *rate.Limiter
}

// NewLimiter allows perSecond calls per second with a burst of one.
// A non-positive rate disables limiting.
func NewLimiter(name string, perSecond float64) *Limiter {
	if perSecond <= 0 {
		return &Limiter{name: name}
	}
	return &Limiter{name: name, lim: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

// NewIntervalLimiter allows one call per interval.
func NewIntervalLimiter(name string, interval time.Duration) *Limiter {
	if interval <= 0 {
		return &Limiter{name: name}
	}
	return &Limiter{name: name, lim: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next call is allowed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.lim == nil {
		return ctx.Err()
	}
	return eris.Wrapf(l.lim.Wait(ctx), "%s: rate limit wait", l.name)
}

// Name returns the provider the limiter guards.
func (l *Limiter) Name() string {
	if l == nil {
		return ""
	}
	return l.name
}
