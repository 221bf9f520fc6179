// Package delay paces sends with randomized, human-like waits.
package delay

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

type Simulator interface {
	// Wait blocks for a duration drawn from [min, max) and returns it. It
	// returns early only when ctx is done.
	Wait(ctx context.Context, min, max time.Duration) (time.Duration, error)
}

type Random struct {
	draw  func(n int64) int64
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRandom() *Random {
	return &Random{draw: rand.Int64N, sleep: sleepCtx}
}

func (r *Random) Draw(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(r.draw(int64(max-min)))
}

func (r *Random) Wait(ctx context.Context, min, max time.Duration) (time.Duration, error) {
	d := r.Draw(min, max)
	if err := r.sleep(ctx, d); err != nil {
		return d, err
	}
	return d, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Scale multiplies both bounds by f, used for the shorter pre-send pause.
func Scale(min, max time.Duration, f float64) (time.Duration, time.Duration) {
	return time.Duration(math.Round(float64(min) * f)), time.Duration(math.Round(float64(max) * f))
}
