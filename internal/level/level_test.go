package level

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreshold(t *testing.T) {
	got, err := Threshold(1)
	require.NoError(t, err)
	assert.Equal(t, 100, got)

	got, err = Threshold(7)
	require.NoError(t, err)
	assert.Equal(t, 700, got)

	_, err = Threshold(0)
	assert.ErrorIs(t, err, ErrInvalidLevel)
	_, err = Threshold(-3)
	assert.ErrorIs(t, err, ErrInvalidLevel)
}

func TestThresholdIsStrictlyIncreasing(t *testing.T) {
	prev, err := Threshold(1)
	require.NoError(t, err)
	for n := 2; n <= 500; n++ {
		cur, err := Threshold(n)
		require.NoError(t, err)
		require.Greater(t, cur, prev, "level %d", n)
		prev = cur
	}
}

func TestHasLeveledUp(t *testing.T) {
	cases := []struct {
		level, gain int
		want        bool
	}{
		{1, 99, false},
		{1, 100, true},
		{1, 250, true},
		{3, 299, false},
		{3, 300, true},
		{2, 0, false},
	}
	for _, tc := range cases {
		got, err := HasLeveledUp(tc.level, tc.gain)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "level=%d gain=%d", tc.level, tc.gain)
	}

	_, err := HasLeveledUp(0, 10)
	assert.ErrorIs(t, err, ErrInvalidLevel)
	_, err = HasLeveledUp(1, -1)
	assert.ErrorIs(t, err, ErrNegativeExperience)
}

func TestApplyDiscardsExcess(t *testing.T) {
	out, err := Apply(1, 60, 50)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Level: 2, Experience: 0, LeveledUp: true}, out)

	out, err = Apply(1, 0, 60)
	require.NoError(t, err)
	assert.Equal(t, Outcome{Level: 1, Experience: 60}, out)

	// a huge reward still advances a single level
	out, err = Apply(1, 0, 10_000)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Level)
	assert.Equal(t, 0, out.Experience)

	_, err = Apply(1, 0, -5)
	assert.ErrorIs(t, err, ErrNegativeExperience)
}

func TestApplyRejectsOversizedRewards(t *testing.T) {
	_, err := Apply(1, 0, math.MaxInt)
	assert.ErrorIs(t, err, ErrRewardTooLarge)
	_, err = Apply(1, 0, MaxReward+1)
	assert.ErrorIs(t, err, ErrRewardTooLarge)

	out, err := Apply(1, 0, MaxReward)
	require.NoError(t, err)
	assert.True(t, out.LeveledUp)
}

func TestApplyKeepsExperienceBelowThreshold(t *testing.T) {
	lvl, exp := 1, 0
	rewards := []int{0, 30, 99, 1, 250, 7, 0, 450, 13, 600, 599}
	for _, r := range rewards {
		out, err := Apply(lvl, exp, r)
		require.NoError(t, err)
		th, err := Threshold(out.Level)
		require.NoError(t, err)
		require.GreaterOrEqual(t, out.Experience, 0)
		require.Less(t, out.Experience, th)
		require.GreaterOrEqual(t, out.Level, lvl)
		lvl, exp = out.Level, out.Experience
	}
}

func TestProgressOf(t *testing.T) {
	p, err := ProgressOf(3, 100)
	require.NoError(t, err)
	assert.Equal(t, 300, p.ExperienceForNextLevel)
	assert.InDelta(t, 33.33, p.Percentage, 0.0001)

	_, err = ProgressOf(0, 0)
	assert.ErrorIs(t, err, ErrInvalidLevel)
}
