package rate

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

const (
	minuteWindow = time.Minute
	burstWindow  = 10 * time.Second
)

type WindowStore interface {
	IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

type Config struct {
	PerMinute int
	Per10Sec  int
}

// Limiter caps how often one sender may submit messages. A zero limit
// disables that window.
type Limiter struct {
	store     WindowStore
	perMinute int
	per10Sec  int
}

func NewLimiter(store WindowStore, cfg Config) *Limiter {
	if cfg.PerMinute < 0 {
		cfg.PerMinute = 0
	}
	if cfg.Per10Sec < 0 {
		cfg.Per10Sec = 0
	}
	return &Limiter{
		store:     store,
		perMinute: cfg.PerMinute,
		per10Sec:  cfg.Per10Sec,
	}
}

// Allow counts one submission and reports whether it fits both windows.
// When it does not, the returned seconds say when the tightest window resets.
func (l *Limiter) Allow(ctx context.Context, senderID int64) (int64, bool, error) {
	if senderID <= 0 {
		return 0, false, fmt.Errorf("invalid sender id")
	}
	if l.store == nil {
		return 0, false, fmt.Errorf("rate limiter store is nil")
	}

	retryAfterSec := int64(0)
	for _, w := range []struct {
		key    string
		window time.Duration
		limit  int
	}{
		{minuteKey(senderID), minuteWindow, l.perMinute},
		{burstKey(senderID), burstWindow, l.per10Sec},
	} {
		if w.limit <= 0 {
			continue
		}
		count, ttl, err := l.store.IncrementWindow(ctx, w.key, w.window)
		if err != nil {
			return 0, false, err
		}
		if count > int64(w.limit) {
			retryAfterSec = max(retryAfterSec, ceilSeconds(ttl))
		}
	}

	if retryAfterSec > 0 {
		return retryAfterSec, false, nil
	}
	return 0, true, nil
}

func minuteKey(senderID int64) string {
	return "rate:submit:min:" + strconv.FormatInt(senderID, 10)
}

func burstKey(senderID int64) string {
	return "rate:submit:10s:" + strconv.FormatInt(senderID, 10)
}

func ceilSeconds(d time.Duration) int64 {
	sec := int64(d / time.Second)
	if d%time.Second != 0 {
		sec++
	}
	if sec <= 0 {
		sec = 1
	}
	return sec
}
