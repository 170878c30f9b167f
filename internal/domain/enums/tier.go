package enums

import "strings"

type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
	TierElite   Tier = "elite"
)

func ParseTier(raw string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(raw))) {
	case TierPremium:
		return TierPremium
	case TierElite:
		return TierElite
	default:
		return TierFree
	}
}
