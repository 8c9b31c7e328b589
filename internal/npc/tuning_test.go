package npc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveTuningMediumBalanced(t *testing.T) {
	got := DeriveTuning(nil, ProfileBalanced, DifficultyMedium, Sliders{Speed: 3, Skill: 3, Boldness: 3})

	assert.Equal(t, 350, got.ReactionMs)
	assert.InDelta(t, 0.693, got.SuccessRate, 1e-9)
	assert.Equal(t, 5, got.LookAhead)
	assert.InDelta(t, 0.65, got.Aggression, 1e-9)
	assert.InDelta(t, 0.65, got.Caution, 1e-9)
	assert.InDelta(t, 0.307, got.Randomness, 1e-9)
	assert.Equal(t, Bias{Food: 1.0, Hunt: 1.0, Survival: 1.0}, got.Bias)
}

func TestDeriveTuningEasyFloor(t *testing.T) {
	got := DeriveTuning(nil, ProfileSurvivor, DifficultyEasy, Sliders{Speed: 1, Skill: 1, Boldness: 1})

	assert.Equal(t, 933, got.ReactionMs)
	assert.InDelta(t, 0.4425, got.SuccessRate, 1e-9)
	assert.Equal(t, 3, got.LookAhead)
	assert.InDelta(t, 0.35, got.Aggression, 1e-9)
	assert.InDelta(t, 0.95, got.Caution, 1e-9)
	assert.Equal(t, 0.4, got.Randomness, "randomness capped")
	assert.Equal(t, profileBiases[ProfileSurvivor], got.Bias)
}

func TestDeriveTuningHardCeiling(t *testing.T) {
	got := DeriveTuning(nil, ProfileHunter, DifficultyHard, Sliders{Speed: 5, Skill: 5, Boldness: 5})

	assert.Equal(t, 70, got.ReactionMs)
	assert.InDelta(t, 0.95, got.SuccessRate, 1e-9)
	assert.Equal(t, 8, got.LookAhead, "look-ahead capped at 8")
	assert.InDelta(t, 0.95, got.Aggression, 1e-9)
	assert.InDelta(t, 0.35, got.Caution, 1e-9)
	assert.Equal(t, 0.05, got.Randomness, "randomness floored")
}

func TestDeriveTuningClampsSliders(t *testing.T) {
	wild := DeriveTuning(nil, ProfileBalanced, DifficultyMedium, Sliders{Speed: 99, Skill: -3, Boldness: 0})
	tame := DeriveTuning(nil, ProfileBalanced, DifficultyMedium, Sliders{Speed: 5, Skill: 1, Boldness: 1})
	assert.Equal(t, tame, wild)
}

func TestDeriveTuningUnknownNamesFallBack(t *testing.T) {
	got := DeriveTuning(nil, "berserker", "nightmare", Sliders{Speed: 3, Skill: 3, Boldness: 3})
	want := DeriveTuning(nil, ProfileBalanced, DifficultyMedium, Sliders{Speed: 3, Skill: 3, Boldness: 3})
	assert.Equal(t, want, got)
}
