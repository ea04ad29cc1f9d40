// Package ratelimit gates providers with golang.org/x/time/rate limiters.
package ratelimit

import (
    "context"
    "time"

    "golang.org/x/time/rate"

    "github.com/KerimSelki/crypto-vault/internal/asset"
    "github.com/KerimSelki/crypto-vault/internal/provider"
)

// Limiter wraps a Provider and waits for a token before every call.
// Concurrent calls queue on the limiter, or return early if the context is
// canceled.
type Limiter struct {
    P provider.Provider
    L *rate.Limiter
}

// PerMinute builds a token bucket limiter allowing rpm calls per minute with
// the given burst.
func PerMinute(rpm, burst int) *rate.Limiter {
    if rpm <= 0 { return rate.NewLimiter(rate.Inf, 0) }
    if burst <= 0 { burst = 1 }
    return rate.NewLimiter(rate.Limit(float64(rpm)/60), burst)
}

// MinInterval builds a limiter that allows one call per interval.
func MinInterval(d time.Duration) *rate.Limiter {
    if d <= 0 { return rate.NewLimiter(rate.Inf, 0) }
    return rate.NewLimiter(rate.Every(d), 1)
}

func (l *Limiter) Name() string        { return l.P.Name() }
func (l *Limiter) Tier() provider.Tier { return l.P.Tier() }

func (l *Limiter) Fetch(ctx context.Context, ids []asset.ID) (provider.PriceMap, error) {
    if l.L != nil {
        if err := l.L.Wait(ctx); err != nil { return nil, err }
    }
    return l.P.Fetch(ctx, ids)
}

// Wrap applies the per-minute and minimum-interval gates that are set. The
// minimum interval is checked first.
func Wrap(p provider.Provider, rpm, burst int, minInterval time.Duration) provider.Provider {
    if rpm > 0 { p = &Limiter{P: p, L: PerMinute(rpm, burst)} }
    if minInterval > 0 { p = &Limiter{P: p, L: MinInterval(minInterval)} }
    return p
}
