// Package commission is the pure tier calculator for the mentor/platform
// revenue split. It has no dependencies beyond money arithmetic so the
// settlement scheduler and the dispute resolution path share one source of
// truth for split math.
package commission

import (
	"errors"
	"strings"

	"github.com/mentorhive/mentorhive/internal/money"
)

// Tier is a mentor's revenue-share bracket. Higher tiers keep more.
type Tier string

const (
	Tier1 Tier = "tier1"
	Tier2 Tier = "tier2"
	Tier3 Tier = "tier3"
	Tier4 Tier = "tier4"
	Tier5 Tier = "tier5"
	Tier6 Tier = "tier6"
	Tier7 Tier = "tier7"
	Tier8 Tier = "tier8"
)

var ErrInvalidTier = errors.New("invalid_commission_tier")

// rateBps is the platform's cut per tier, in basis points. Strictly
// decreasing as the tier advances.
var rateBps = map[Tier]int64{
	Tier1: 2500,
	Tier2: 2200,
	Tier3: 2000,
	Tier4: 1800,
	Tier5: 1600,
	Tier6: 1400,
	Tier7: 1200,
	Tier8: 800,
}

var ordered = []Tier{Tier1, Tier2, Tier3, Tier4, Tier5, Tier6, Tier7, Tier8}

// advanceThresholdCents maps each tier to the cumulative total earnings
// (minor units) a mentor must reach before the automatic path assigns it.
var advanceThresholdCents = map[Tier]int64{
	Tier1: 0,
	Tier2: 50_000_00,
	Tier3: 150_000_00,
	Tier4: 400_000_00,
	Tier5: 1_000_000_00,
	Tier6: 2_500_000_00,
	Tier7: 5_000_000_00,
	Tier8: 10_000_000_00,
}

// Parse normalizes a stored tier value, defaulting to Tier1 when empty.
func Parse(raw string) (Tier, error) {
	value := Tier(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return Tier1, nil
	}
	if _, ok := rateBps[value]; !ok {
		return "", ErrInvalidTier
	}
	return value, nil
}

// RateBps returns the platform commission rate for a tier in basis points.
// Unknown tiers fall back to Tier1, the default bracket.
func RateBps(tier Tier) int64 {
	if bps, ok := rateBps[tier]; ok {
		return bps
	}
	return rateBps[Tier1]
}

// Split divides a gross amount into platform commission and mentor payout.
// The payout is derived by subtraction, not independent rounding, so
// commission + payout == amount always holds.
func Split(amount money.Amount, tier Tier) (commissionAmount, payout money.Amount) {
	commissionAmount = money.PercentOf(amount, RateBps(tier))
	return commissionAmount, amount - commissionAmount
}

// TierForEarnings returns the tier the automatic advancement path assigns
// for a cumulative total. Advancement only ever moves forward; callers must
// keep the max of the current tier and this result.
func TierForEarnings(totalEarnings money.Amount) Tier {
	assigned := Tier1
	for _, tier := range ordered {
		if totalEarnings >= advanceThresholdCents[tier] {
			assigned = tier
		}
	}
	return assigned
}

// Index returns a tier's ordinal (tier1 = 0). Used to enforce forward-only
// automatic advancement.
func Index(tier Tier) int {
	for i, t := range ordered {
		if t == tier {
			return i
		}
	}
	return 0
}

// Max returns the higher of two tiers.
func Max(a, b Tier) Tier {
	if Index(a) >= Index(b) {
		return a
	}
	return b
}
