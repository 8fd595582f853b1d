package prize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectScenario(t *testing.T) {
	table := MustTable("primary", []Option{opt("Lose", 0, 0.99), opt("$5", 5, 0.01)})

	assert.Equal(t, "Lose", Select(table, Fixed(0.005)).Label)
	assert.Equal(t, "$5", Select(table, Fixed(0.995)).Label)
}

func TestSelectBoundaries(t *testing.T) {
	table := MustTable("primary", []Option{opt("Lose", 0, 0.5), opt("$1", 1, 0.3), opt("$2", 2, 0.2)})

	assert.Equal(t, "Lose", Select(table, Fixed(0)).Label)
	assert.Equal(t, "Lose", Select(table, Fixed(0.5)).Label)
	assert.Equal(t, "$1", Select(table, Fixed(0.5000001)).Label)
	assert.Equal(t, "$2", Select(table, Fixed(0.95)).Label)
}

func TestSelectFallsBackToLastOption(t *testing.T) {
	// Sums to 0.9995, inside tolerance, so the top of [0,1) matches nothing.
	table := MustTable("short", []Option{opt("Lose", 0, 0.5), opt("$3", 3, 0.4995)})

	got := Select(table, Fixed(math.Nextafter(1, 0)))
	assert.Equal(t, "$3", got.Label)
}

func TestSelectFallbackSkipsTrailingZeroProbability(t *testing.T) {
	table := MustTable("short", []Option{opt("Lose", 0, 0.9995), opt("Jackpot", 1000, 0)})

	got := Select(table, Fixed(math.Nextafter(1, 0)))
	assert.Equal(t, "Lose", got.Label)
	assert.True(t, got.Value.IsZero())
}

func TestSelectSkipsZeroProbability(t *testing.T) {
	table := MustTable("primary", []Option{opt("Jackpot", 1000, 0), opt("Lose", 0, 1)})

	assert.Equal(t, "Lose", Select(table, Fixed(0)).Label)
}

func TestSelectAlwaysReturnsTableMember(t *testing.T) {
	table := MustTable("primary", []Option{
		opt("Lose", 0, 0.7),
		opt("$1", 1, 0.2),
		opt("$10", 10, 0.09),
		opt("$100", 100, 0.01),
	})

	for i := 0; i < 1000; i++ {
		r := float64(i) / 1000
		got := Select(table, Fixed(r))
		require.True(t, table.Contains(got), "r=%v returned %+v", r, got)
	}

	rng := CryptoRNG{}
	for i := 0; i < 1000; i++ {
		require.True(t, table.Contains(Select(table, rng)))
	}
}

func TestCryptoRNGRange(t *testing.T) {
	rng := CryptoRNG{}
	for i := 0; i < 10000; i++ {
		r := rng.Float64()
		require.GreaterOrEqual(t, r, 0.0)
		require.Less(t, r, 1.0)
	}
}
