package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
)

const (
	CounterViolations1hKey  = "cnt:violations:1h"
	CounterAutoBlocks24hKey = "cnt:auto_blocks:24h"
	CounterEscalations1hKey = "cnt:review_escalations:1h"
)

type DashboardRepo struct {
	client *goredis.Client
}

type DashboardSummary struct {
	Violations1h  int64 `json:"violations_1h"`
	AutoBlocks24h int64 `json:"auto_blocks_24h"`
	Escalations1h int64 `json:"review_escalations_1h"`
	FlaggedTotal  int64 `json:"flagged_total"`
}

func NewDashboardRepo(client *goredis.Client) *DashboardRepo {
	return &DashboardRepo{client: client}
}

func (r *DashboardRepo) ObserveViolation(ctx context.Context) error {
	return r.incrementCounter(ctx, CounterViolations1hKey, time.Hour)
}

func (r *DashboardRepo) ObserveAutoBlock(ctx context.Context) error {
	return r.incrementCounter(ctx, CounterAutoBlocks24hKey, 24*time.Hour)
}

func (r *DashboardRepo) ObserveEscalation(ctx context.Context) error {
	return r.incrementCounter(ctx, CounterEscalations1hKey, time.Hour)
}

func (r *DashboardRepo) Summary(ctx context.Context) (DashboardSummary, error) {
	if r.client == nil {
		return DashboardSummary{}, fmt.Errorf("redis client is nil")
	}

	violations, err := r.counterValue(ctx, CounterViolations1hKey)
	if err != nil {
		return DashboardSummary{}, err
	}
	blocks, err := r.counterValue(ctx, CounterAutoBlocks24hKey)
	if err != nil {
		return DashboardSummary{}, err
	}
	escalations, err := r.counterValue(ctx, CounterEscalations1hKey)
	if err != nil {
		return DashboardSummary{}, err
	}
	flagged, err := r.client.ZCard(ctx, FlaggedSendersKey).Result()
	if err != nil {
		return DashboardSummary{}, fmt.Errorf("count flagged senders: %w", err)
	}

	return DashboardSummary{
		Violations1h:  violations,
		AutoBlocks24h: blocks,
		Escalations1h: escalations,
		FlaggedTotal:  flagged,
	}, nil
}

// Flagged returns the most recently flagged senders first.
func (r *DashboardRepo) Flagged(ctx context.Context, limit int64) ([]model.FlaggedSender, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	pairs, err := r.client.ZRevRangeWithScores(ctx, FlaggedSendersKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read flagged senders: %w", err)
	}

	items := make([]model.FlaggedSender, 0, len(pairs))
	for _, pair := range pairs {
		member, ok := pair.Member.(string)
		if !ok {
			member = fmt.Sprint(pair.Member)
		}
		senderID, err := strconv.ParseInt(strings.TrimSpace(member), 10, 64)
		if err != nil {
			continue
		}
		items = append(items, model.FlaggedSender{
			SenderID:  senderID,
			FlaggedAt: time.UnixMilli(int64(pair.Score)).UTC(),
		})
	}
	return items, nil
}

func (r *DashboardRepo) incrementCounter(ctx context.Context, key string, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	pipe := r.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("increment counter %s: %w", key, err)
	}
	return nil
}

func (r *DashboardRepo) counterValue(ctx context.Context, key string) (int64, error) {
	value, err := r.client.Get(ctx, key).Int64()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", key, err)
	}
	return value, nil
}
