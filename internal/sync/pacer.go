package sync

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces provider calls issued in a loop. It is a scheduling
// gate, not a token bucket: burst 1 means the first Wait in a loop is
// free and every later Wait blocks until the spacing has elapsed, so
// there is never a trailing delay after the last call.
type Pacer struct {
	lim *rate.Limiter
}

func NewPacer(spacing time.Duration) *Pacer {
	if spacing <= 0 {
		return &Pacer{lim: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{lim: rate.NewLimiter(rate.Every(spacing), 1)}
}

func (p *Pacer) Wait(ctx context.Context) error {
	return p.lim.Wait(ctx)
}
