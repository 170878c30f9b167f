package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// incrementWindowScript bumps a fixed-window counter, starts its expiry on
// the first hit, and returns {count, pttl_ms}.
var incrementWindowScript = goredis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {n, ttl}
`)

type RateRepo struct {
	client *goredis.Client
}

func NewRateRepo(client *goredis.Client) *RateRepo {
	return &RateRepo{client: client}
}

func (r *RateRepo) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if r.client == nil {
		return 0, 0, fmt.Errorf("redis client is nil")
	}
	if key == "" || window <= 0 {
		return 0, 0, fmt.Errorf("invalid rate window payload")
	}

	raw, err := incrementWindowScript.Run(ctx, r.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("increment rate window %s: %w", key, err)
	}
	if len(raw) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate window reply: %v", raw)
	}

	ttl := time.Duration(raw[1]) * time.Millisecond
	if ttl < 0 {
		ttl = 0
	}
	return raw[0], ttl, nil
}
