package client

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttled caps the send rate of the wrapped gateway across every session
// sharing it.
type Throttled struct {
	next    Gateway
	limiter *rate.Limiter
}

func NewThrottled(next Gateway, perSecond float64, burst int) *Throttled {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (t *Throttled) Send(ctx context.Context, phoneNumber, message string) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return t.next.Send(ctx, phoneNumber, message)
}

func (t *Throttled) Ready(ctx context.Context) error {
	return t.next.Ready(ctx)
}
