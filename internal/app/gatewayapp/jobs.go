package gatewayapp

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// runLoop runs job once, then on every tick until ctx is done. A failed run
// is logged and retried on the next tick.
func runLoop(ctx context.Context, interval time.Duration, log *zap.Logger, name string, job func(context.Context) error) {
	if interval <= 0 {
		interval = time.Minute
	}

	run := func() {
		if err := job(ctx); err != nil && ctx.Err() == nil {
			log.Error("background job failed", zap.String("job", name), zap.Error(err))
		}
	}

	run()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
