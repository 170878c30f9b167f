package redis

import (
	"context"
	"fmt"
	"strconv"

	goredis "github.com/redis/go-redis/v9"
)

const FlaggedSendersKey = "zset:violations:flagged"

// SenderStateRepo keeps the per-sender violation window, lifetime counter
// and active block hash. Scripts passed to EvalForSender receive the keys
// in the order window, lifetime, block, flagged.
type SenderStateRepo struct {
	client *goredis.Client
}

type BlockStateRecord struct {
	UntilMS    int64
	Indefinite bool
	Reason     string
	Count      int64
	Exists     bool
}

func NewSenderStateRepo(client *goredis.Client) *SenderStateRepo {
	return &SenderStateRepo{client: client}
}

func (r *SenderStateRepo) EvalForSender(ctx context.Context, senderID int64, script string, args ...interface{}) (interface{}, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if senderID <= 0 {
		return nil, fmt.Errorf("invalid sender id")
	}
	if script == "" {
		return nil, fmt.Errorf("script is required")
	}

	result, err := r.client.Eval(ctx, script, SenderKeys(senderID), args...).Result()
	if err != nil {
		return nil, fmt.Errorf("eval sender state script: %w", err)
	}
	return result, nil
}

func (r *SenderStateRepo) GetBlock(ctx context.Context, senderID int64) (BlockStateRecord, error) {
	if r.client == nil {
		return BlockStateRecord{}, fmt.Errorf("redis client is nil")
	}
	if senderID <= 0 {
		return BlockStateRecord{}, fmt.Errorf("invalid sender id")
	}

	values, err := r.client.HGetAll(ctx, blockKey(senderID)).Result()
	if err != nil {
		return BlockStateRecord{}, fmt.Errorf("get block state: %w", err)
	}
	if len(values) == 0 {
		return BlockStateRecord{}, nil
	}

	until, err := parseInt64(values["until_ms"])
	if err != nil {
		return BlockStateRecord{}, fmt.Errorf("parse until_ms: %w", err)
	}
	count, err := parseInt64(values["count"])
	if err != nil {
		return BlockStateRecord{}, fmt.Errorf("parse count: %w", err)
	}

	return BlockStateRecord{
		UntilMS:    until,
		Indefinite: values["indefinite"] == "1",
		Reason:     values["reason"],
		Count:      count,
		Exists:     true,
	}, nil
}

// Clear drops the block and the rolling window for a sender. The lifetime
// counter is kept.
func (r *SenderStateRepo) Clear(ctx context.Context, senderID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if senderID <= 0 {
		return fmt.Errorf("invalid sender id")
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, blockKey(senderID), windowKey(senderID))
	pipe.ZRem(ctx, FlaggedSendersKey, strconv.FormatInt(senderID, 10))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear sender state: %w", err)
	}
	return nil
}

func (r *SenderStateRepo) Lifetime(ctx context.Context, senderID int64) (int64, error) {
	if r.client == nil {
		return 0, fmt.Errorf("redis client is nil")
	}
	v, err := r.client.Get(ctx, lifetimeKey(senderID)).Int64()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read lifetime violations: %w", err)
	}
	return v, nil
}

func SenderKeys(senderID int64) []string {
	return []string{
		windowKey(senderID),
		lifetimeKey(senderID),
		blockKey(senderID),
		FlaggedSendersKey,
	}
}

func windowKey(senderID int64) string {
	return "zset:violations:window:" + strconv.FormatInt(senderID, 10)
}

func lifetimeKey(senderID int64) string {
	return "cnt:violations:lifetime:" + strconv.FormatInt(senderID, 10)
}

func blockKey(senderID int64) string {
	return "block:sender:" + strconv.FormatInt(senderID, 10)
}

func parseInt64(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return v, nil
}
