package tiergate

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
	pgrepo "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/repo/postgres"
)

var ErrValidation = errors.New("validation error")

const (
	ReasonForbidden = "forbidden"
	ReasonBlocked   = "blocked"
)

type TierStore interface {
	GetTier(ctx context.Context, userID int64) (enums.Tier, error)
}

type BlockLookup interface {
	Status(ctx context.Context, senderID int64) (model.BlockStatus, error)
}

type Config struct {
	Entitled  []enums.Tier
	CacheTTL  time.Duration
	CacheSize int
}

type Service struct {
	tiers    TierStore
	blocks   BlockLookup
	entitled map[enums.Tier]struct{}
	cache    *expirable.LRU[int64, enums.Tier]
	now      func() time.Time
}

type Decision struct {
	Allowed    bool
	Reason     string
	Tier       enums.Tier
	Block      model.BlockStatus
	RetryAfter time.Duration
}

func NewService(tiers TierStore, blocks BlockLookup, cfg Config) *Service {
	if len(cfg.Entitled) == 0 {
		cfg.Entitled = []enums.Tier{enums.TierPremium, enums.TierElite}
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 10000
	}

	entitled := make(map[enums.Tier]struct{}, len(cfg.Entitled))
	for _, t := range cfg.Entitled {
		entitled[t] = struct{}{}
	}

	var cache *expirable.LRU[int64, enums.Tier]
	if cfg.CacheTTL > 0 {
		cache = expirable.NewLRU[int64, enums.Tier](cfg.CacheSize, nil, cfg.CacheTTL)
	}

	return &Service{
		tiers:    tiers,
		blocks:   blocks,
		entitled: entitled,
		cache:    cache,
		now:      time.Now,
	}
}

// Check applies the tier entitlement first, then the active block lookup.
func (s *Service) Check(ctx context.Context, senderID int64) (Decision, error) {
	if senderID <= 0 {
		return Decision{}, ErrValidation
	}
	if s.tiers == nil || s.blocks == nil {
		return Decision{}, fmt.Errorf("tier gate dependencies are nil")
	}

	tier, err := s.tier(ctx, senderID)
	if err != nil {
		return Decision{}, err
	}
	if _, ok := s.entitled[tier]; !ok {
		return Decision{Reason: ReasonForbidden, Tier: tier}, nil
	}

	status, err := s.blocks.Status(ctx, senderID)
	if err != nil {
		return Decision{}, fmt.Errorf("lookup block for sender %s: %w", strconv.FormatInt(senderID, 10), err)
	}
	if status.Blocked {
		return Decision{
			Reason:     ReasonBlocked,
			Tier:       tier,
			Block:      status,
			RetryAfter: status.RetryAfter(s.now().UTC()),
		}, nil
	}

	return Decision{Allowed: true, Tier: tier}, nil
}

// Invalidate drops a cached tier after an upgrade or downgrade.
func (s *Service) Invalidate(userID int64) {
	if s.cache != nil {
		s.cache.Remove(userID)
	}
}

func (s *Service) tier(ctx context.Context, userID int64) (enums.Tier, error) {
	if s.cache != nil {
		if t, ok := s.cache.Get(userID); ok {
			return t, nil
		}
	}

	tier, err := s.tiers.GetTier(ctx, userID)
	if err != nil {
		if !errors.Is(err, pgrepo.ErrUserNotFound) {
			return "", fmt.Errorf("lookup tier: %w", err)
		}
		tier = enums.TierFree
	}

	if s.cache != nil {
		s.cache.Add(userID, tier)
	}
	return tier, nil
}
