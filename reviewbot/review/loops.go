package review

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

func backoff(retries int, max int) time.Duration {
	dur := 1 << retries
	if dur > max {
		dur = max
	}

	jitter := time.Millisecond * time.Duration(rand.Intn(1000))
	return time.Second*time.Duration(dur) + jitter
}

// sleepCtx waits for d, returning false if the context ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func safeCall(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// RunPeriodically calls fn every interval until the context ends. Failures and panics are logged and the next call
// is delayed by a growing backoff; no failure stops the loop.
func RunPeriodically(ctx context.Context, logger *slog.Logger, name string, interval time.Duration, fn func(context.Context) error) {
	retries := 0
	for {
		wait := interval
		if err := safeCall(ctx, fn); err != nil && ctx.Err() == nil {
			loopErrors.WithLabelValues(name).Inc()
			logger.Error("background loop iteration failed", "loop", name, "err", err, "retries", retries)
			if b := backoff(retries, 60); b > wait {
				wait = b
			}
			retries++
		} else {
			retries = 0
		}
		if !sleepCtx(ctx, wait) {
			logger.Info("background loop stopped", "loop", name)
			return
		}
	}
}
