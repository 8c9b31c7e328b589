package game

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snakearena/server/internal/grid"
)

func powerupFixture(t *testing.T) (*State, *powerups, *clock) {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	st := NewState(ModeMulti, twoPlayerRoster(), Options{}, rng)
	clk := &clock{ms: 1_000_000}
	st.Begin(clk.ms)
	return st, NewPowerups(rng).(*powerups), clk
}

func TestMaybeSpawnFirstCallOnlyArms(t *testing.T) {
	st, pow, clk := powerupFixture(t)

	pow.MaybeSpawn(st, clk.ms)
	assert.Empty(t, st.Powerups, "first call arms the timer")

	clk.advance(pow.nextGapMs + 1)
	pow.MaybeSpawn(st, clk.ms)
	require.Len(t, st.Powerups, 1)
	assert.False(t, st.CellFree(st.Powerups[0].Pos))
}

func TestMaybeSpawnRespectsCap(t *testing.T) {
	st, pow, clk := powerupFixture(t)
	pow.MaybeSpawn(st, clk.ms)
	for i := 0; i < 5; i++ {
		clk.advance(powerupGapMaxMs + 1)
		pow.MaybeSpawn(st, clk.ms)
	}
	assert.LessOrEqual(t, len(st.Powerups), MaxActivePowerups)
}

func TestCollectShieldReplacesOwnEffects(t *testing.T) {
	st, pow, clk := powerupFixture(t)
	a := st.Players["a"]
	a.ActivePowerups = map[Effect]int64{
		EffectSpeedBoost: clk.ms + 5_000,
		EffectSlowed:     clk.ms + 5_000,
	}
	st.Powerups = []*Powerup{{ID: "u1", Pos: a.Head(), Type: EffectShield, SpawnMs: clk.ms}}

	got := pow.CheckCollect(st, clk.ms)
	require.Len(t, got, 1)
	assert.Equal(t, Collected{PlayerID: "a", Type: EffectShield}, got[0])
	assert.Empty(t, st.Powerups)

	assert.True(t, IsActive(a, EffectShield, clk.ms))
	assert.False(t, IsActive(a, EffectSpeedBoost, clk.ms), "non-slowed effects replaced")
	assert.True(t, IsActive(a, EffectSlowed, clk.ms), "slowed survives replacement")
}

func TestShrinkKeepsMinimumLength(t *testing.T) {
	st, pow, clk := powerupFixture(t)
	a := st.Players["a"]
	a.Snake = []grid.Pos{{X: 5, Y: 5}, {X: 4, Y: 5}}
	st.Powerups = []*Powerup{{ID: "u1", Pos: a.Head(), Type: EffectShrink, SpawnMs: clk.ms}}

	pow.CheckCollect(st, clk.ms)
	assert.Len(t, a.Snake, 1, "shrink never drops below length 1")
}

func TestSlowOthersHitsEveryoneElse(t *testing.T) {
	st, pow, clk := powerupFixture(t)
	a, b := st.Players["a"], st.Players["b"]
	st.Powerups = []*Powerup{{ID: "u1", Pos: a.Head(), Type: EffectSlowOthers, SpawnMs: clk.ms}}

	pow.CheckCollect(st, clk.ms)
	assert.False(t, IsActive(a, EffectSlowed, clk.ms), "collector unaffected")
	assert.True(t, IsActive(b, EffectSlowed, clk.ms))
}

func TestTickExpiresItemsAndEffects(t *testing.T) {
	st, pow, clk := powerupFixture(t)
	a := st.Players["a"]
	a.ActivePowerups = map[Effect]int64{EffectShield: clk.ms + 1_000}
	st.Powerups = []*Powerup{{ID: "u1", Pos: grid.Pos{X: 10, Y: 10}, Type: EffectShield, SpawnMs: clk.ms}}

	clk.advance(powerupItemTTLMs + 1)
	pow.Tick(st, clk.ms)
	assert.Empty(t, st.Powerups, "uncollected item expired after 30s")
	assert.Nil(t, a.ActivePowerups, "expired effect container deleted")
}

func TestSpeedFactorContract(t *testing.T) {
	st, pow, clk := powerupFixture(t)
	a := st.Players["a"]

	assert.Equal(t, 1.0, pow.SpeedFactor(a, clk.ms))

	a.ActivePowerups = map[Effect]int64{EffectSlowed: clk.ms + 5_000}
	assert.Equal(t, 0.5, pow.SpeedFactor(a, clk.ms))

	a.ActivePowerups = map[Effect]int64{EffectSpeedBoost: clk.ms + 5_000}
	assert.Equal(t, 2.0, pow.SpeedFactor(a, clk.ms))

	a.ActivePowerups = map[Effect]int64{
		EffectSpeedBoost: clk.ms + 5_000,
		EffectSlowed:     clk.ms + 5_000,
	}
	assert.Equal(t, 1.0, pow.SpeedFactor(a, clk.ms), "boost and slow cancel out")
}
