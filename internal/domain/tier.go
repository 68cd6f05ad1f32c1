package domain

import (
	"fmt"
	"strings"
)

// Tier is a discrete reputation level. Tiers are ordered by rank, so a
// higher value is always a better standing.
type Tier int

const (
	TierUnverified Tier = iota
	TierBronze
	TierSilver
	TierGold
)

// Tiers lists every tier from lowest to highest rank.
var Tiers = []Tier{TierUnverified, TierBronze, TierSilver, TierGold}

func (t Tier) String() string {
	switch t {
	case TierUnverified:
		return "UNVERIFIED"
	case TierBronze:
		return "BRONZE"
	case TierSilver:
		return "SILVER"
	case TierGold:
		return "GOLD"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

func (t Tier) Valid() bool {
	return t >= TierUnverified && t <= TierGold
}

// ParseTier accepts a tier name in any letter case.
func ParseTier(s string) (Tier, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "UNVERIFIED":
		return TierUnverified, nil
	case "BRONZE":
		return TierBronze, nil
	case "SILVER":
		return TierSilver, nil
	case "GOLD":
		return TierGold, nil
	default:
		return TierUnverified, fmt.Errorf("unknown tier %q", s)
	}
}

func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid tier %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(text []byte) error {
	parsed, err := ParseTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
