package enums

import "fmt"

// Tier is the legacy flat account tier. It survives as a denormalized
// fallback for accounts that predate product subscriptions.
type Tier string

const (
	TierFree Tier = "FREE"
	TierPro  Tier = "PRO"
	TierTeam Tier = "TEAM"
)

var validTiers = []Tier{TierFree, TierPro, TierTeam}

// String implements fmt.Stringer.
func (t Tier) String() string {
	return string(t)
}

// IsValid reports whether the value is known.
func (t Tier) IsValid() bool {
	for _, candidate := range validTiers {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsPaid reports whether the tier historically carried paid capabilities.
func (t Tier) IsPaid() bool {
	return t == TierPro || t == TierTeam
}

// ParseTier converts raw input into a Tier.
func ParseTier(value string) (Tier, error) {
	for _, candidate := range validTiers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid tier %q", value)
}
