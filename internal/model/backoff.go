package model

import (
	"context"
	"math/rand/v2"
	"time"
)

// MaxBackoff caps the delay between attempts, jitter included.
const MaxBackoff = 30 * time.Second

// Backoff returns the delay before retry n (0-indexed): 1s, 2s, 4s... plus up
// to 50% jitter, capped at MaxBackoff.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 16 {
		attempt = 16
	}
	base := time.Duration(1<<uint(attempt)) * time.Second
	if base > MaxBackoff {
		base = MaxBackoff
	}
	d := base + time.Duration(rand.Int64N(int64(base)/2))
	if d > MaxBackoff {
		d = MaxBackoff
	}
	return d
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
