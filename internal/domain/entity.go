package domain

import (
	"strings"
	"time"
)

// Entity is a business or user that can give and receive vouches.
type Entity struct {
	ID         string    `json:"id"`
	TrustScore int64     `json:"score"`
	Tier       Tier      `json:"tier"`
	IsVerified bool      `json:"isVerified"`
	CDate      time.Time `json:"cdate"`
	MDate      time.Time `json:"mdate"`
}

// NewEntity returns an entity in its initial standing.
func NewEntity(id string) Entity {
	return Entity{
		ID:         id,
		TrustScore: 0,
		Tier:       TierUnverified,
		IsVerified: false,
	}
}

// NormalizeID is applied to every caller supplied entity id.
func NormalizeID(id string) string {
	return strings.TrimSpace(id)
}

// Supersedes reports whether e is a strictly later standing of the same
// entity than other. Score, tier and the verified flag only ever grow, so
// they order snapshots without relying on clocks.
func (e Entity) Supersedes(other Entity) bool {
	if e.TrustScore != other.TrustScore {
		return e.TrustScore > other.TrustScore
	}
	if e.Tier != other.Tier {
		return e.Tier > other.Tier
	}
	return e.IsVerified && !other.IsVerified
}
