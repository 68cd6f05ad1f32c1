package domain

import "time"

// Vouch is a one-time, directed endorsement. Weight is fixed at creation.
type Vouch struct {
	ID         string    `json:"id"`
	VoucherID  string    `json:"voucherId"`
	ReceiverID string    `json:"receiverId"`
	Weight     int       `json:"weight"`
	Timestamp  time.Time `json:"timestamp"`
}

// VouchResult is the receiver's standing right after a vouch committed.
type VouchResult struct {
	Vouch      Vouch `json:"vouch"`
	Score      int64 `json:"score"`
	Tier       Tier  `json:"tier"`
	IsVerified bool  `json:"isVerified"`
	Promoted   bool  `json:"promoted"`
}

const (
	EventVouchCommitted = "vouch.committed"
	EventTierPromoted   = "tier.promoted"
)

// VouchEvent is published after a vouch commits.
type VouchEvent struct {
	Type       string    `json:"type"`
	EntityID   string    `json:"entityId"`
	Vouch      Vouch     `json:"vouch"`
	Score      int64     `json:"score"`
	Tier       Tier      `json:"tier"`
	IsVerified bool      `json:"isVerified"`
	Timestamp  time.Time `json:"timestamp"`
}

// AuditReport compares an entity's stored standing with the standing
// implied by its vouch history.
type AuditReport struct {
	EntityID     string `json:"entityId"`
	StoredScore  int64  `json:"storedScore"`
	LedgerScore  int64  `json:"ledgerScore"`
	VouchCount   int64  `json:"vouchCount"`
	StoredTier   Tier   `json:"storedTier"`
	ExpectedTier Tier   `json:"expectedTier"`
	Verified     bool   `json:"verified"`
	Consistent   bool   `json:"consistent"`
}
