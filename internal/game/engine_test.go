package game

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snakearena/server/internal/grid"
)

type clock struct {
	ms int64
}

func (c *clock) now() int64      { return c.ms }
func (c *clock) advance(d int64) { c.ms += d }

func newTestEngine(mode Mode, roster []Roster, opts Options) (*Engine, *clock) {
	rng := rand.New(rand.NewSource(1))
	st := NewState(mode, roster, opts, rng)
	clk := &clock{ms: 1_000_000}
	eng := NewEngine(st, NewNoopPowerups(), rng, clk.now)
	st.Begin(clk.ms)
	return eng, clk
}

func soloRoster() []Roster {
	return []Roster{{ID: "p1", Name: "Ana", Kind: KindHuman, IsHost: true}}
}

func TestEatFoodGrowsAndScores(t *testing.T) {
	eng, clk := newTestEngine(ModeSolo, soloRoster(), Options{})
	st := eng.St
	p := st.Players["p1"]
	require.Equal(t, grid.Pos{X: 5, Y: 5}, p.Head())
	require.Equal(t, grid.Right, p.Direction)

	st.Food = []grid.Pos{{X: 6, Y: 5}}
	clk.advance(100)
	res := eng.Advance(false)

	assert.False(t, res.Ended)
	assert.Equal(t, []grid.Pos{{X: 6, Y: 5}, {X: 5, Y: 5}}, p.Snake)
	assert.Equal(t, 10, p.Score)
	assert.Equal(t, 1, st.TotalFoodEaten)
	assert.Equal(t, 1, st.Level)
	assert.Len(t, st.Food, 1, "one replacement food spawned")
}

func TestMoveWithoutFoodPopsTail(t *testing.T) {
	eng, clk := newTestEngine(ModeSolo, soloRoster(), Options{})
	p := eng.St.Players["p1"]
	p.Snake = []grid.Pos{{X: 5, Y: 5}, {X: 4, Y: 5}}
	eng.St.Food = []grid.Pos{{X: 20, Y: 20}}

	clk.advance(100)
	eng.Advance(false)

	assert.Equal(t, []grid.Pos{{X: 6, Y: 5}, {X: 5, Y: 5}}, p.Snake)
	assert.Equal(t, 0, p.Score)
}

func TestWrapBoundaries(t *testing.T) {
	eng, clk := newTestEngine(ModeSolo, soloRoster(), Options{WallMode: false})
	st := eng.St
	p := st.Players["p1"]
	st.Food = []grid.Pos{{X: 20, Y: 20}}

	p.Snake = []grid.Pos{{X: 0, Y: 5}}
	p.Direction = grid.Left
	p.QueuedDirection = grid.Left
	clk.advance(100)
	eng.Advance(false)
	assert.Equal(t, grid.Pos{X: grid.Width - 1, Y: 5}, p.Head())

	p.Snake = []grid.Pos{{X: 7, Y: grid.Height - 1}}
	p.Direction = grid.Down
	p.QueuedDirection = grid.Down
	clk.advance(100)
	eng.Advance(false)
	assert.Equal(t, grid.Pos{X: 7, Y: 0}, p.Head())
}

func TestWallCollisionKills(t *testing.T) {
	eng, clk := newTestEngine(ModeSolo, soloRoster(), Options{WallMode: true})
	st := eng.St
	p := st.Players["p1"]
	st.Food = []grid.Pos{{X: 20, Y: 20}}
	p.Snake = []grid.Pos{{X: 0, Y: 5}}
	p.Direction = grid.Left
	p.QueuedDirection = grid.Left

	clk.advance(100)
	res := eng.Advance(false)

	assert.False(t, p.Alive)
	assert.True(t, res.Ended)
	assert.Equal(t, "winner_declared", res.EndReason)
	require.NotNil(t, st.Winner)
	assert.True(t, st.Winner.IsLoser)

	var collided bool
	for _, ev := range res.Events {
		if ev.Name == "playerCollided" {
			collided = true
			payload := ev.Payload.(map[string]any)
			assert.Equal(t, CollisionWall, payload["collisionType"])
		}
	}
	assert.True(t, collided)
}

func TestSelfCollision(t *testing.T) {
	eng, clk := newTestEngine(ModeSolo, soloRoster(), Options{})
	st := eng.St
	p := st.Players["p1"]
	st.Food = []grid.Pos{{X: 20, Y: 20}}
	// U-turn into own body.
	p.Snake = []grid.Pos{
		{X: 5, Y: 5}, {X: 5, Y: 6}, {X: 6, Y: 6}, {X: 6, Y: 5}, {X: 7, Y: 5},
	}
	p.Direction = grid.Up
	p.QueuedDirection = grid.Right

	clk.advance(100)
	eng.Advance(false)
	assert.False(t, p.Alive)
}

func twoPlayerRoster() []Roster {
	return []Roster{
		{ID: "a", Name: "Ana", Kind: KindHuman, IsHost: true},
		{ID: "b", Name: "Ben", Kind: KindHuman},
	}
}

func TestMultiPassThroughHeadToHead(t *testing.T) {
	eng, clk := newTestEngine(ModeMulti, twoPlayerRoster(), Options{})
	st := eng.St
	st.Food = []grid.Pos{{X: 20, Y: 20}}
	a, b := st.Players["a"], st.Players["b"]
	a.Snake = []grid.Pos{{X: 5, Y: 5}}
	a.Direction, a.QueuedDirection = grid.Right, grid.Right
	b.Snake = []grid.Pos{{X: 7, Y: 5}}
	b.Direction, b.QueuedDirection = grid.Left, grid.Left

	clk.advance(100)
	eng.Advance(false)

	assert.True(t, a.Alive)
	assert.True(t, b.Alive)
	assert.Equal(t, grid.Pos{X: 6, Y: 5}, a.Head())
	assert.Equal(t, grid.Pos{X: 6, Y: 5}, b.Head())
}

func TestStrictHeadToHeadKillsBoth(t *testing.T) {
	eng, clk := newTestEngine(ModeMulti, twoPlayerRoster(), Options{StrictMode: true})
	st := eng.St
	st.Food = []grid.Pos{{X: 20, Y: 20}}
	a, b := st.Players["a"], st.Players["b"]
	a.Snake = []grid.Pos{{X: 5, Y: 5}}
	a.Direction, a.QueuedDirection = grid.Right, grid.Right
	b.Snake = []grid.Pos{{X: 7, Y: 5}}
	b.Direction, b.QueuedDirection = grid.Left, grid.Left

	clk.advance(100)
	eng.Advance(false)

	assert.False(t, a.Alive)
	assert.False(t, b.Alive)
}

func TestHeadToHeadAllShieldedSurvive(t *testing.T) {
	eng, clk := newTestEngine(ModeMulti, twoPlayerRoster(), Options{StrictMode: true})
	st := eng.St
	st.Food = []grid.Pos{{X: 20, Y: 20}}
	a, b := st.Players["a"], st.Players["b"]
	a.Snake = []grid.Pos{{X: 5, Y: 5}}
	a.Direction, a.QueuedDirection = grid.Right, grid.Right
	b.Snake = []grid.Pos{{X: 7, Y: 5}}
	b.Direction, b.QueuedDirection = grid.Left, grid.Left
	expiry := clk.ms + 10_000
	a.ActivePowerups = map[Effect]int64{EffectShield: expiry}
	b.ActivePowerups = map[Effect]int64{EffectShield: expiry}

	clk.advance(100)
	eng.Advance(false)

	assert.True(t, a.Alive)
	assert.True(t, b.Alive)
}

func TestStrictTailCollision(t *testing.T) {
	run := func(strict bool) bool {
		eng, clk := newTestEngine(ModeMulti, twoPlayerRoster(), Options{WallMode: true, StrictMode: strict})
		st := eng.St
		st.Food = []grid.Pos{{X: 20, Y: 20}}
		a, b := st.Players["a"], st.Players["b"]
		a.Snake = []grid.Pos{{X: 8, Y: 4}}
		a.Direction, a.QueuedDirection = grid.Down, grid.Down
		b.Snake = []grid.Pos{{X: 6, Y: 5}, {X: 7, Y: 5}, {X: 8, Y: 5}}
		b.Direction, b.QueuedDirection = grid.Down, grid.Down

		clk.advance(100)
		eng.Advance(false)
		return a.Alive
	}

	assert.False(t, run(true), "strict mode: tail segment kills")
	assert.True(t, run(false), "normal mode: only the head kills")
}

func TestTimeoutAwardsSurvivalBonus(t *testing.T) {
	limit := 3
	eng, clk := newTestEngine(ModeMulti, twoPlayerRoster(), Options{TimeLimit: &limit})
	st := eng.St
	st.Food = []grid.Pos{{X: 20, Y: 20}}
	st.Players["a"].Score = 30
	st.Players["b"].Score = 20

	clk.advance(3*60*1000 + 1)
	res := eng.Advance(false)

	assert.True(t, res.Ended)
	assert.Equal(t, "timeout", res.EndReason)
	assert.Nil(t, st.Winner, "no winner declared with several players alive")
	assert.Equal(t, 80, st.Players["a"].Score, "both alive players got +50")
	assert.Equal(t, 70, st.Players["b"].Score)
}

func TestLastSurvivorGraceAtZeroScore(t *testing.T) {
	eng, clk := newTestEngine(ModeMulti, twoPlayerRoster(), Options{})
	st := eng.St
	st.Players["b"].Alive = false

	eng.checkWin(false, clk.ms)
	assert.Nil(t, st.Winner, "zero total score holds off the win for 5s")

	eng.checkWin(false, clk.ms+4_000)
	assert.Nil(t, st.Winner)

	eng.checkWin(false, clk.ms+5_100)
	require.NotNil(t, st.Winner)
	assert.Equal(t, "a", st.Winner.ID)
	assert.Equal(t, 50, st.Winner.Score, "survivor bonus applied")
}

func TestLastSurvivorImmediateWithScore(t *testing.T) {
	eng, clk := newTestEngine(ModeMulti, twoPlayerRoster(), Options{})
	st := eng.St
	st.Players["a"].Score = 10
	st.Players["b"].Alive = false

	eng.checkWin(false, clk.ms)
	require.NotNil(t, st.Winner)
	assert.Equal(t, "a", st.Winner.ID)
	assert.Equal(t, 60, st.Winner.Score)
}

func TestPauseFreezesSimulation(t *testing.T) {
	eng, clk := newTestEngine(ModeSolo, soloRoster(), Options{})
	st := eng.St
	st.Food = []grid.Pos{{X: 20, Y: 20}}
	st.Paused = true
	head := st.Players["p1"].Head()
	tick := st.Tick

	clk.advance(100)
	res := eng.Advance(false)

	assert.Empty(t, res.Events)
	assert.Equal(t, tick, st.Tick)
	assert.Equal(t, head, st.Players["p1"].Head())
}

func TestCountdownGatesTick(t *testing.T) {
	eng, clk := newTestEngine(ModeSolo, soloRoster(), Options{})
	st := eng.St
	tick := st.Tick
	clk.advance(100)
	eng.Advance(true)
	assert.Equal(t, tick, st.Tick)
}

func TestInputValidation(t *testing.T) {
	eng, clk := newTestEngine(ModeSolo, soloRoster(), Options{})
	st := eng.St
	st.Food = []grid.Pos{{X: 20, Y: 20}}

	assert.ErrorIs(t, eng.OnInput("ghost", grid.Up), ErrUnknownPlayer)
	assert.ErrorIs(t, eng.OnInput("p1", "diagonal"), ErrInvalidInput)
	assert.ErrorIs(t, eng.OnInput("p1", grid.Left), ErrReversal, "reversal of queued right")

	require.NoError(t, eng.OnInput("p1", grid.Up))
	assert.Equal(t, grid.Up, st.Players["p1"].QueuedDirection)

	clk.advance(100)
	eng.Advance(false)
	require.NoError(t, eng.OnInput("p1", grid.Left))
	assert.ErrorIs(t, eng.OnInput("p1", grid.Right), ErrInputThisTick, "one input per tick")

	st.Players["p1"].Alive = false
	assert.ErrorIs(t, eng.OnInput("p1", grid.Up), ErrPlayerDead)
}

func TestNPCQueueRespectsReversalRule(t *testing.T) {
	eng, _ := newTestEngine(ModeSingle, []Roster{
		{ID: "h", Name: "Ana", Kind: KindHuman, IsHost: true},
		{ID: "n", Name: "Bot-Alpha", Kind: KindNPC},
	}, Options{})
	bot := eng.St.Players["n"]
	start := bot.QueuedDirection

	eng.QueueNPCDirection("n", grid.Opposite(start))
	assert.Equal(t, start, bot.QueuedDirection, "reversal ignored")

	eng.QueueNPCDirection("n", grid.Up)
	assert.Equal(t, grid.Up, bot.QueuedDirection)
}

func TestSingleModeHumanNpcImmunity(t *testing.T) {
	eng, clk := newTestEngine(ModeSingle, []Roster{
		{ID: "h", Name: "Ana", Kind: KindHuman, IsHost: true},
		{ID: "n", Name: "Bot-Alpha", Kind: KindNPC},
	}, Options{})
	st := eng.St
	st.Food = []grid.Pos{{X: 20, Y: 20}}
	h, n := st.Players["h"], st.Players["n"]
	h.Snake = []grid.Pos{{X: 5, Y: 5}}
	h.Direction, h.QueuedDirection = grid.Right, grid.Right
	n.Snake = []grid.Pos{{X: 7, Y: 5}}
	n.Direction, n.QueuedDirection = grid.Left, grid.Left

	clk.advance(100)
	eng.Advance(false)

	assert.True(t, h.Alive, "human and NPC pass through each other")
	assert.True(t, n.Alive)
}

func TestNPCRespawnInSingleMode(t *testing.T) {
	eng, clk := newTestEngine(ModeSingle, []Roster{
		{ID: "h", Name: "Ana", Kind: KindHuman, IsHost: true},
		{ID: "n", Name: "Bot-Alpha", Kind: KindNPC},
	}, Options{})
	st := eng.St
	st.Food = []grid.Pos{{X: 20, Y: 20}}
	bot := st.Players["n"]
	bot.Alive = false
	bot.Score = 40
	bot.Snake = []grid.Pos{{X: 9, Y: 9}, {X: 9, Y: 10}}

	clk.advance(100)
	res := eng.Advance(false)

	assert.False(t, res.Ended)
	assert.True(t, bot.Alive)
	assert.Equal(t, 0, bot.Score)
	assert.Len(t, bot.Snake, 1)
}

func TestSpeedBoostDoublesSteps(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	st := NewState(ModeSolo, soloRoster(), Options{}, rng)
	clk := &clock{ms: 1_000_000}
	eng := NewEngine(st, NewPowerups(rng), rng, clk.now)
	st.Begin(clk.ms)
	st.Food = []grid.Pos{{X: 20, Y: 20}}

	p := st.Players["p1"]
	p.Snake = []grid.Pos{{X: 5, Y: 5}}
	p.ActivePowerups = map[Effect]int64{EffectSpeedBoost: clk.ms + 10_000}

	clk.advance(100)
	eng.Advance(false)
	assert.Equal(t, grid.Pos{X: 7, Y: 5}, p.Head(), "two sub-steps in one tick")
}

func TestLevelLaw(t *testing.T) {
	assert.Equal(t, 1, LevelFor(0))
	assert.Equal(t, 1, LevelFor(4))
	assert.Equal(t, 2, LevelFor(5))
	assert.Equal(t, 3, LevelFor(10))

	prev := 0.0
	for lvl := 1; lvl <= 12; lvl++ {
		rate := TickRate(lvl, ModeMulti)
		assert.GreaterOrEqual(t, rate, prev, "monotone non-decreasing")
		assert.LessOrEqual(t, rate, 16.0)
		prev = rate
	}
	assert.InDelta(t, 7.105, TickRate(2, ModeSolo), 0.001)
	assert.Equal(t, 16.0, TickRate(10, ModeMulti))
}
