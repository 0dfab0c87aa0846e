package commission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplit_SumInvariant(t *testing.T) {
	for _, tier := range ordered {
		for _, amount := range []int64{1, 99, 100_00, 12345, 999_999_99} {
			c, p := Split(amount, tier)
			assert.Equal(t, amount, c+p, "tier %s amount %d", tier, amount)
			assert.GreaterOrEqual(t, c, int64(0))
			assert.GreaterOrEqual(t, p, int64(0))
		}
	}
}

func TestSplit_Tier1(t *testing.T) {
	c, p := Split(100_00, Tier1)
	assert.Equal(t, int64(25_00), c)
	assert.Equal(t, int64(75_00), p)
}

func TestRates_StrictlyDecreasing(t *testing.T) {
	for i := 1; i < len(ordered); i++ {
		assert.Greater(t, RateBps(ordered[i-1]), RateBps(ordered[i]))
	}
	c1, _ := Split(100_00, Tier1)
	c8, _ := Split(100_00, Tier8)
	assert.Greater(t, c1, c8)
}

func TestParse_DefaultsToTier1(t *testing.T) {
	tier, err := Parse("")
	assert.NoError(t, err)
	assert.Equal(t, Tier1, tier)

	tier, err = Parse(" TIER3 ")
	assert.NoError(t, err)
	assert.Equal(t, Tier3, tier)

	_, err = Parse("tier9")
	assert.ErrorIs(t, err, ErrInvalidTier)
}

func TestTierForEarnings_Monotonic(t *testing.T) {
	assert.Equal(t, Tier1, TierForEarnings(0))
	assert.Equal(t, Tier2, TierForEarnings(50_000_00))
	assert.Equal(t, Tier8, TierForEarnings(10_000_000_00))

	prev := 0
	for _, total := range []int64{0, 10_000_00, 200_000_00, 3_000_000_00, 20_000_000_00} {
		idx := Index(TierForEarnings(total))
		assert.GreaterOrEqual(t, idx, prev)
		prev = idx
	}
}

func TestMax_ForwardOnly(t *testing.T) {
	assert.Equal(t, Tier5, Max(Tier5, Tier2))
	assert.Equal(t, Tier5, Max(Tier2, Tier5))
}
