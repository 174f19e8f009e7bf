package domain

import "strings"

const (
	TierFree     = "free"
	TierPro      = "pro"
	TierBusiness = "business"
)

// Unlimited marks a tier without a document cap.
const Unlimited = -1

// TierLimits maps a subscription tier to its document cap.
type TierLimits map[string]int

func DefaultTierLimits() TierLimits {
	return TierLimits{
		TierFree:     5,
		TierPro:      100,
		TierBusiness: Unlimited,
	}
}

// LimitFor returns the cap for tier. Unknown tiers get the free cap.
func (l TierLimits) LimitFor(tier string) int {
	key := strings.ToLower(strings.TrimSpace(tier))
	if key == "" {
		key = TierFree
	}
	if limit, ok := l[key]; ok {
		return limit
	}
	if limit, ok := l[TierFree]; ok {
		return limit
	}
	return DefaultTierLimits()[TierFree]
}
