package client

import (
	"context"

	"golang.org/x/time/rate"
)

// DefaultRequestsPerSecond is the request rate used when none is
// configured.
const DefaultRequestsPerSecond = 1.0

// Limiter paces requests. Wait blocks until a request may be sent or ctx is
// done. *rate.Limiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context) error
}

// NewLimiter returns a token bucket allowing perSecond requests per second
// with no bursts. A non-positive rate disables limiting.
func NewLimiter(perSecond float64) Limiter {
	if perSecond <= 0 {
		return NoLimit
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// NoLimit is a Limiter that never waits.
var NoLimit Limiter = noLimit{}

type noLimit struct{}

func (noLimit) Wait(ctx context.Context) error {
	return ctx.Err()
}
