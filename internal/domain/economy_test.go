package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestResolveWeight(t *testing.T) {
	e := DefaultEconomy()
	cases := map[Tier]int{
		TierUnverified: 1,
		TierBronze:     1,
		TierSilver:     3,
		TierGold:       5,
		Tier(42):       1,
	}
	for tier, want := range cases {
		if got := e.ResolveWeight(tier); got != want {
			t.Errorf("ResolveWeight(%s) = %d, want %d", tier, got, want)
		}
	}
}

func TestTierForScoreIsStrictlyGreater(t *testing.T) {
	e := DefaultEconomy()
	cases := []struct {
		score int64
		want  Tier
	}{
		{0, TierUnverified},
		{10, TierUnverified},
		{11, TierBronze},
		{50, TierBronze},
		{51, TierSilver},
		{100, TierSilver},
		{101, TierGold},
		{1 << 40, TierGold},
	}
	for _, c := range cases {
		if got := e.TierForScore(c.score); got != c.want {
			t.Errorf("TierForScore(%d) = %s, want %s", c.score, got, c.want)
		}
	}
}

func TestPromoteNeverDemotes(t *testing.T) {
	e := DefaultEconomy()
	if got := e.Promote(TierGold, 0); got != TierGold {
		t.Fatalf("expected GOLD to stick, got %s", got)
	}
	if got := e.Promote(TierBronze, 60); got != TierSilver {
		t.Fatalf("expected SILVER, got %s", got)
	}

	// raising thresholds after the fact leaves promoted entities alone
	e.Thresholds[TierBronze] = 1000
	e.Thresholds[TierSilver] = 2000
	e.Thresholds[TierGold] = 3000
	if got := e.Promote(TierSilver, 60); got != TierSilver {
		t.Fatalf("expected SILVER to stick, got %s", got)
	}
}

func TestIsVerified(t *testing.T) {
	e := DefaultEconomy()
	if e.IsVerified(TierUnverified) {
		t.Fatal("UNVERIFIED must not be verified")
	}
	for _, tier := range []Tier{TierBronze, TierSilver, TierGold} {
		if !e.IsVerified(tier) {
			t.Errorf("%s should be verified", tier)
		}
	}

	e.VerifiedTier = TierSilver
	if e.IsVerified(TierBronze) {
		t.Fatal("BRONZE is below the verified floor")
	}
}

func TestValidate(t *testing.T) {
	if err := DefaultEconomy().Validate(); err != nil {
		t.Fatalf("default economy invalid: %v", err)
	}

	cases := map[string]func(e *Economy){
		"zero weight":           func(e *Economy) { e.Weights[TierBronze] = 0 },
		"missing weight":        func(e *Economy) { delete(e.Weights, TierGold) },
		"falling weight":        func(e *Economy) { e.Weights[TierGold] = 2 },
		"unknown weight tier":   func(e *Economy) { e.Weights[Tier(9)] = 7 },
		"missing threshold":     func(e *Economy) { delete(e.Thresholds, TierSilver) },
		"flat thresholds":       func(e *Economy) { e.Thresholds[TierSilver] = 10 },
		"unverified threshold":  func(e *Economy) { e.Thresholds[TierUnverified] = 0 },
		"unknown threshold":     func(e *Economy) { e.Thresholds[Tier(-1)] = 5 },
		"unverified floor":      func(e *Economy) { e.VerifiedTier = TierUnverified },
		"out of range floor":    func(e *Economy) { e.VerifiedTier = Tier(8) },
		"negative bronze floor": func(e *Economy) { e.Thresholds[TierBronze] = -2 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			e := DefaultEconomy()
			mutate(&e)
			err := e.Validate()
			if !errors.Is(err, ErrInvalidEconomy) {
				t.Fatalf("expected ErrInvalidEconomy, got %v", err)
			}
		})
	}
}

func TestTierText(t *testing.T) {
	for _, in := range []string{"gold", "GOLD", " Gold "} {
		tier, err := ParseTier(in)
		if err != nil || tier != TierGold {
			t.Fatalf("ParseTier(%q) = %s, %v", in, tier, err)
		}
	}
	if _, err := ParseTier("platinum"); err == nil {
		t.Fatal("expected error for unknown tier")
	}

	b, err := json.Marshal(Entity{ID: "a", Tier: TierSilver})
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Tier string `json:"tier"`
	}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Tier != "SILVER" {
		t.Fatalf("expected tier to encode as SILVER, got %q", decoded.Tier)
	}

	if _, err := json.Marshal(Entity{Tier: Tier(7)}); err == nil {
		t.Fatal("expected invalid tier to fail encoding")
	}
}

func TestErrorsMatch(t *testing.T) {
	if !errors.Is(ErrEntityNotFound, ErrNotFound) {
		t.Fatal("entity not found should match ErrNotFound")
	}
	if IsRetryable(ErrDuplicateVouch) {
		t.Fatal("duplicates are final")
	}
	wrapped := errors.Join(errors.New("tx"), ErrTransactionConflict)
	if !IsRetryable(wrapped) {
		t.Fatal("wrapped conflicts are retryable")
	}
}

func TestEntitySupersedes(t *testing.T) {
	base := Entity{ID: "a", TrustScore: 4}
	cases := []struct {
		name  string
		later Entity
		want  bool
	}{
		{"higher score", Entity{ID: "a", TrustScore: 5}, true},
		{"same standing", base, false},
		{"lower score", Entity{ID: "a", TrustScore: 3, Tier: TierGold}, false},
		{"same score higher tier", Entity{ID: "a", TrustScore: 4, Tier: TierBronze}, true},
		{"same score newly verified", Entity{ID: "a", TrustScore: 4, IsVerified: true}, true},
	}
	for _, c := range cases {
		if got := c.later.Supersedes(base); got != c.want {
			t.Errorf("%s: Supersedes = %v, want %v", c.name, got, c.want)
		}
	}
	if base.Supersedes(Entity{ID: "a", TrustScore: 5}) {
		t.Fatal("an older standing must not supersede a newer one")
	}
}

func TestNormalizeID(t *testing.T) {
	if got := NormalizeID("  shop-1\t"); got != "shop-1" {
		t.Fatalf("NormalizeID = %q", got)
	}
}
