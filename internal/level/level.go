// Package level maps adventurer levels to experience thresholds.
package level

import (
	"errors"
	"math"
)

// PerLevel is the experience required per level step.
const PerLevel = 100

// MaxReward caps a single experience award.
const MaxReward = 1_000_000

var (
	ErrInvalidLevel       = errors.New("level must be at least 1")
	ErrNegativeExperience = errors.New("experience gain cannot be negative")
	ErrRewardTooLarge     = errors.New("experience reward exceeds the maximum")
)

// Threshold returns the experience needed to advance from level to level+1.
func Threshold(level int) (int, error) {
	if level < 1 {
		return 0, ErrInvalidLevel
	}
	return level * PerLevel, nil
}

// HasLeveledUp reports whether a gain of experienceGain reaches the threshold
// for level.
func HasLeveledUp(level, experienceGain int) (bool, error) {
	if level < 1 {
		return false, ErrInvalidLevel
	}
	if experienceGain < 0 {
		return false, ErrNegativeExperience
	}
	threshold, err := Threshold(level)
	if err != nil {
		return false, err
	}
	return experienceGain >= threshold, nil
}

// Outcome is the result of applying a reward to a level/experience pair.
type Outcome struct {
	Level      int
	Experience int
	LeveledUp  bool
}

// Apply adds reward to experience. Reaching the threshold advances exactly one
// level and resets experience to zero; any excess is discarded.
func Apply(currentLevel, experience, reward int) (Outcome, error) {
	if reward < 0 {
		return Outcome{}, ErrNegativeExperience
	}
	if reward > MaxReward || experience > math.MaxInt-reward {
		return Outcome{}, ErrRewardTooLarge
	}
	total := experience + reward
	up, err := HasLeveledUp(currentLevel, total)
	if err != nil {
		return Outcome{}, err
	}
	if up {
		return Outcome{Level: currentLevel + 1, Experience: 0, LeveledUp: true}, nil
	}
	return Outcome{Level: currentLevel, Experience: total}, nil
}

// Progress describes how far an adventurer is toward the next level.
type Progress struct {
	ExperienceForNextLevel int     `json:"experience_for_next_level"`
	Percentage             float64 `json:"progress_percentage"`
}

// ProgressOf returns the threshold for level and the percentage of it that
// experience covers, rounded to two decimals.
func ProgressOf(currentLevel, experience int) (Progress, error) {
	threshold, err := Threshold(currentLevel)
	if err != nil {
		return Progress{}, err
	}
	pct := float64(experience) / float64(threshold) * 100
	return Progress{
		ExperienceForNextLevel: threshold,
		Percentage:             math.Round(pct*100) / 100,
	}, nil
}
