package domain

import (
	"fmt"
	"sort"
)

// Economy holds the tunable tables behind trust propagation: how much a
// vouch weighs given the voucher's tier, and which score a receiver must
// exceed to reach each tier.
type Economy struct {
	// Weights maps the voucher's tier at cast time to the vouch weight.
	Weights map[Tier]int
	// Thresholds maps a tier to the score an entity must strictly exceed to
	// hold it. TierUnverified has no threshold.
	Thresholds map[Tier]int64
	// VerifiedTier is the lowest tier that marks an entity as verified.
	VerifiedTier Tier
}

func DefaultEconomy() Economy {
	return Economy{
		Weights: map[Tier]int{
			TierUnverified: 1,
			TierBronze:     1,
			TierSilver:     3,
			TierGold:       5,
		},
		Thresholds: map[Tier]int64{
			TierBronze: 10,
			TierSilver: 50,
			TierGold:   100,
		},
		VerifiedTier: TierBronze,
	}
}

// Validate checks that every tier has a weight of at least one, that
// weights never fall as rank rises, and that thresholds strictly increase.
func (e Economy) Validate() error {
	prevWeight := 0
	for _, t := range Tiers {
		w, ok := e.Weights[t]
		if !ok {
			return fmt.Errorf("%w: missing weight for tier %s", ErrInvalidEconomy, t)
		}
		if w < 1 {
			return fmt.Errorf("%w: weight for tier %s must be at least 1, got %d", ErrInvalidEconomy, t, w)
		}
		if w < prevWeight {
			return fmt.Errorf("%w: weight for tier %s is lower than the tier below it", ErrInvalidEconomy, t)
		}
		prevWeight = w
	}
	for t := range e.Weights {
		if !t.Valid() {
			return fmt.Errorf("%w: weight for unknown tier %d", ErrInvalidEconomy, int(t))
		}
	}

	if _, ok := e.Thresholds[TierUnverified]; ok {
		return fmt.Errorf("%w: %s cannot have a threshold", ErrInvalidEconomy, TierUnverified)
	}
	prevThreshold := int64(-1)
	for _, t := range Tiers[1:] {
		th, ok := e.Thresholds[t]
		if !ok {
			return fmt.Errorf("%w: missing threshold for tier %s", ErrInvalidEconomy, t)
		}
		if th <= prevThreshold {
			return fmt.Errorf("%w: threshold for tier %s must exceed %d", ErrInvalidEconomy, t, prevThreshold)
		}
		prevThreshold = th
	}
	for t := range e.Thresholds {
		if !t.Valid() {
			return fmt.Errorf("%w: threshold for unknown tier %d", ErrInvalidEconomy, int(t))
		}
	}

	if !e.VerifiedTier.Valid() || e.VerifiedTier == TierUnverified {
		return fmt.Errorf("%w: verified tier must be above %s", ErrInvalidEconomy, TierUnverified)
	}
	return nil
}

// ResolveWeight returns the weight a vouch carries when cast by a voucher
// currently at tier. The result is meant to be stored with the vouch and
// never recomputed. Tiers missing from the table weigh 1.
func (e Economy) ResolveWeight(voucherTier Tier) int {
	if w, ok := e.Weights[voucherTier]; ok && w >= 1 {
		return w
	}
	return 1
}

// TierForScore maps a score to the highest tier whose threshold it exceeds.
func (e Economy) TierForScore(score int64) Tier {
	ranked := make([]Tier, 0, len(e.Thresholds))
	for t := range e.Thresholds {
		ranked = append(ranked, t)
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i] > ranked[j] })

	for _, t := range ranked {
		if score > e.Thresholds[t] {
			return t
		}
	}
	return TierUnverified
}

// Promote returns the tier an entity at current should hold with score.
// It never returns a tier below current.
func (e Economy) Promote(current Tier, score int64) Tier {
	next := e.TierForScore(score)
	if next < current {
		return current
	}
	return next
}

func (e Economy) IsVerified(t Tier) bool {
	return t >= e.VerifiedTier
}
