package npc

import (
	"github.com/snakearena/server/internal/scripting"
)

// Difficulty presets.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Behavior profiles.
const (
	ProfileBalanced = "balanced"
	ProfileHunter   = "hunter"
	ProfileSurvivor = "survivor"
	ProfileForager  = "forager"
)

// Sliders are the three 1..5 tuning knobs exposed per NPC.
type Sliders struct {
	Speed    int `json:"speed" yaml:"speed"`
	Skill    int `json:"skill" yaml:"skill"`
	Boldness int `json:"boldness" yaml:"boldness"`
}

// Bias weights one NPC's appetite for each target category.
type Bias struct {
	Food     float64
	Hunt     float64
	Survival float64
}

// Tuning holds the derived per-NPC decision parameters.
type Tuning struct {
	ReactionMs  int
	SuccessRate float64
	LookAhead   int
	Aggression  float64
	Caution     float64
	Randomness  float64
	Bias        Bias
}

type difficultyScale struct {
	reaction float64
	success  float64
	look     float64
}

var difficultyScales = map[string]difficultyScale{
	DifficultyEasy:   {reaction: 1.6, success: 0.75, look: 0.6},
	DifficultyMedium: {reaction: 1.0, success: 0.9, look: 1.0},
	DifficultyHard:   {reaction: 0.6, success: 1.0, look: 1.3},
}

var profileBiases = map[string]Bias{
	ProfileBalanced: {Food: 1.0, Hunt: 1.0, Survival: 1.0},
	ProfileHunter:   {Food: 0.7, Hunt: 1.8, Survival: 0.6},
	ProfileSurvivor: {Food: 0.7, Hunt: 0.4, Survival: 1.9},
	ProfileForager:  {Food: 1.8, Hunt: 0.5, Survival: 0.8},
}

// DeriveTuning computes the decision parameters for one NPC. The Lua
// npc_tuning script takes precedence when loaded; the built-in formulas
// below are its exact fallback, so behavior is identical either way.
func DeriveTuning(eng *scripting.Engine, profile, difficulty string, s Sliders) Tuning {
	s = clampSliders(s)
	if eng != nil {
		if res, ok := eng.NpcTuning(scripting.TuningContext{
			Profile:    profile,
			Difficulty: difficulty,
			Speed:      s.Speed,
			Skill:      s.Skill,
			Boldness:   s.Boldness,
		}); ok {
			return fromScript(res)
		}
	}
	return deriveBuiltin(profile, difficulty, s)
}

func fromScript(res scripting.TuningResult) Tuning {
	t := Tuning{
		ReactionMs:  res.ReactionMs,
		SuccessRate: clampF(res.SuccessRate, 0.4, 0.99),
		LookAhead:   clampI(res.LookAhead, 2, 8),
		Aggression:  clampF(res.Aggression, 0, 1),
		Caution:     clampF(res.Caution, 0, 1),
		Bias:        Bias{Food: res.BiasFood, Hunt: res.BiasHunt, Survival: res.BiasSurvival},
	}
	t.Randomness = clampF(1-t.SuccessRate, 0.05, 0.4)
	return t
}

func deriveBuiltin(profile, difficulty string, s Sliders) Tuning {
	scale, ok := difficultyScales[difficulty]
	if !ok {
		scale = difficultyScales[DifficultyMedium]
	}
	bias, ok := profileBiases[profile]
	if !ok {
		bias = profileBiases[ProfileBalanced]
	}

	t := Tuning{
		ReactionMs:  clampI(int(350*scale.reaction*float64(6-s.Speed)/3), 50, 1200),
		SuccessRate: clampF((0.5+0.09*float64(s.Skill))*scale.success, 0.4, 0.99),
		LookAhead:   clampI(int(2+float64(s.Skill)*scale.look+0.5), 2, 8),
		Aggression:  clampF(0.2+0.15*float64(s.Boldness), 0, 1),
		Caution:     clampF(1.1-0.15*float64(s.Boldness), 0, 1),
		Bias:        bias,
	}
	t.Randomness = clampF(1-t.SuccessRate, 0.05, 0.4)
	return t
}

func clampSliders(s Sliders) Sliders {
	s.Speed = clampI(s.Speed, 1, 5)
	s.Skill = clampI(s.Skill, 1, 5)
	s.Boldness = clampI(s.Boldness, 1, 5)
	return s
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampI(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
