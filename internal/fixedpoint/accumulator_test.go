package fixedpoint

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestAccumulatorWraps(t *testing.T) {
	rate := uint256.NewInt(1_000)
	start := NewAccumulator(new(uint256.Int).Sub(MaxUint256(), rate))

	next := start.Add(uint256.NewInt(5_000))
	require.True(t, next.Value().Lt(start.Value()))
	require.True(t, next.WrappedSince(start))
	require.Equal(t, uint64(5_000), next.Since(start).Uint64())
}

func TestAccumulatorDifferenceAcrossOneWrap(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := uint256.NewInt(rapid.Uint64().Draw(t, "base"))
		base.Lsh(base, 192)
		start := NewAccumulator(base)

		acc := start
		total := new(uint256.Int)
		steps := rapid.IntRange(1, 16).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			d := uint256.NewInt(rapid.Uint64().Draw(t, "delta"))
			d.Lsh(d, 180)
			acc = acc.Add(d)
			total.Add(total, d)
		}
		if !acc.Since(start).Eq(total) {
			t.Fatalf("difference %s != %s", acc.Since(start).Dec(), total.Dec())
		}
	})
}

func TestTimestampElapsedAcrossWrap(t *testing.T) {
	last := TimestampFrom(1<<32 - 10)
	now := TimestampFrom(1<<32 + 5)
	require.Equal(t, Timestamp32(5), now)
	require.Equal(t, uint64(15), now.Elapsed(last))
	require.Equal(t, uint64(0), now.Elapsed(now))
}

func TestTimestampElapsedIsAmbiguousAfterFullPeriod(t *testing.T) {
	last := TimestampFrom(100)
	now := TimestampFrom(100 + 1<<32 + 7)
	// a whole period without a sync is indistinguishable from 7 seconds
	require.Equal(t, uint64(7), now.Elapsed(last))
}
