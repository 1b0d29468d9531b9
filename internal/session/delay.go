package session

import (
	"context"
	"time"
)

// DelayFunc waits for d or until ctx is done, returning ctx.Err() in the latter case.
type DelayFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default DelayFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
