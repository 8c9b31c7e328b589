package game

import (
	"math/rand"

	"github.com/snakearena/server/internal/grid"
)

// Mode selects the collision and win semantics of a session.
type Mode string

const (
	ModeMulti  Mode = "multi"
	ModeSingle Mode = "single"
	ModeSolo   Mode = "solo"
)

// Kind distinguishes human players from NPC players.
type Kind string

const (
	KindHuman Kind = "human"
	KindNPC   Kind = "npc"
)

// Effect is an active power-up effect on a player.
type Effect string

const (
	EffectShield     Effect = "shield"
	EffectSpeedBoost Effect = "speedBoost"
	EffectShrink     Effect = "shrink"
	EffectSlowOthers Effect = "slowOthers"
	EffectSlowed     Effect = "slowed"
)

// Player is one snake in a running game. Index 0 of Snake is the head.
type Player struct {
	ID               string           `json:"id"`
	Name             string           `json:"displayName"`
	Kind             Kind             `json:"kind"`
	Color            string           `json:"color"`
	Snake            []grid.Pos       `json:"snake"`
	Direction        grid.Direction   `json:"direction"`
	QueuedDirection  grid.Direction   `json:"queuedDirection"`
	Score            int              `json:"score"`
	Alive            bool             `json:"alive"`
	IsHost           bool             `json:"isHost"`
	ControlScheme    string           `json:"controlScheme,omitempty"`
	SurvivalStart    int64            `json:"survivalStart"`
	SurvivalDuration int64            `json:"survivalDuration"`
	ActivePowerups   map[Effect]int64 `json:"activePowerups,omitempty"`

	speedAcc float64
}

// Head returns the player's head cell. Snake length is always >= 1.
func (p *Player) Head() grid.Pos {
	return p.Snake[0]
}

// Occupies reports whether any segment of the snake covers pos.
func (p *Player) Occupies(pos grid.Pos) bool {
	for _, s := range p.Snake {
		if s == pos {
			return true
		}
	}
	return false
}

// Powerup is an uncollected item on the board.
type Powerup struct {
	ID      string   `json:"id"`
	Pos     grid.Pos `json:"position"`
	Type    Effect   `json:"type"`
	SpawnMs int64    `json:"spawnEpochMs"`
}

// Options are the per-room game options. TimeLimit is in minutes; nil
// means untimed.
type Options struct {
	WallMode   bool `json:"wallMode"`
	StrictMode bool `json:"strictMode"`
	TimeLimit  *int `json:"timeLimit"`
}

// TimeLimitMs returns the time limit in milliseconds, 0 when untimed.
func (o Options) TimeLimitMs() int64 {
	if o.TimeLimit == nil {
		return 0
	}
	return int64(*o.TimeLimit) * 60 * 1000
}

// Winner identifies the session outcome. IsLoser marks solo/single
// results where the sole human died rather than won.
type Winner struct {
	ID      string `json:"playerId"`
	Name    string `json:"name"`
	Score   int    `json:"score"`
	IsLoser bool   `json:"isLoser,omitempty"`
}

// PauseBudgetMs is the cumulative pause allowance in multi mode.
const PauseBudgetMs = 15 * 60 * 1000

// State is the authoritative per-room game state. All access is
// serialized by the owning room.
type State struct {
	Mode     Mode               `json:"-"`
	Players  map[string]*Player `json:"players"`
	Food     []grid.Pos         `json:"food"`
	Powerups []*Powerup         `json:"powerups,omitempty"`
	Tick     int64              `json:"tick"`

	StartMs      int64 `json:"startEpochMs"`
	TimerSeconds int   `json:"timerSeconds"`
	Paused       bool  `json:"paused"`
	PauseStartMs int64 `json:"pauseStartEpochMs,omitempty"`
	TotalPauseMs int64 `json:"totalPauseMs"`

	Level          int     `json:"level"`
	TotalFoodEaten int     `json:"totalFoodEaten"`
	Winner         *Winner `json:"winner,omitempty"`

	Opts Options `json:"gameOptions"`

	lastInputMs       map[string]int64
	lastInputTick     map[string]int64
	warned            map[string]bool
	joinOrder         []string
	lastSurvivorSince int64
}

// Roster describes one player to seed into a new game state.
type Roster struct {
	ID            string
	Name          string
	Kind          Kind
	IsHost        bool
	ControlScheme string
}

// NewState builds the initial game state for a roster. Players get corner
// anchors, palette colors and a length-1 snake by join order. One food is
// placed; the clock starts at Begin.
func NewState(mode Mode, roster []Roster, opts Options, rng *rand.Rand) *State {
	st := &State{
		Mode:          mode,
		Players:       make(map[string]*Player, len(roster)),
		Level:         1,
		Opts:          opts,
		lastInputMs:   make(map[string]int64),
		lastInputTick: make(map[string]int64),
		warned:        make(map[string]bool),
	}
	for i, r := range roster {
		pos, dir := grid.StartAnchor(i)
		st.Players[r.ID] = &Player{
			ID:              r.ID,
			Name:            r.Name,
			Kind:            r.Kind,
			Color:           grid.Palette[i%len(grid.Palette)],
			Snake:           []grid.Pos{pos},
			Direction:       dir,
			QueuedDirection: dir,
			Alive:           true,
			IsHost:          r.IsHost,
			ControlScheme:   r.ControlScheme,
			ActivePowerups:  make(map[Effect]int64),
		}
		st.joinOrder = append(st.joinOrder, r.ID)
	}
	st.spawnFood(rng)
	return st
}

// Begin marks the end of the start countdown: the simulation clock starts
// and every player becomes eligible for inactivity tracking.
func (st *State) Begin(nowMs int64) {
	st.StartMs = nowMs
	st.TimerSeconds = 0
	for id, p := range st.Players {
		p.SurvivalStart = nowMs
		st.lastInputMs[id] = nowMs
	}
}

// Started reports whether the simulation clock has begun.
func (st *State) Started() bool {
	return st.StartMs > 0
}

// PlayerIDs returns player ids in join order.
func (st *State) PlayerIDs() []string {
	out := make([]string, len(st.joinOrder))
	copy(out, st.joinOrder)
	return out
}

// AlivePlayers returns all alive players in join order.
func (st *State) AlivePlayers() []*Player {
	var out []*Player
	for _, id := range st.joinOrder {
		if p := st.Players[id]; p != nil && p.Alive {
			out = append(out, p)
		}
	}
	return out
}

// Humans returns all human players in join order.
func (st *State) Humans() []*Player {
	var out []*Player
	for _, id := range st.joinOrder {
		if p := st.Players[id]; p != nil && p.Kind == KindHuman {
			out = append(out, p)
		}
	}
	return out
}

// CellFree reports whether pos is free of alive snakes, food and
// power-ups.
func (st *State) CellFree(pos grid.Pos) bool {
	for _, p := range st.Players {
		if p.Alive && p.Occupies(pos) {
			return false
		}
	}
	for _, f := range st.Food {
		if f == pos {
			return false
		}
	}
	for _, u := range st.Powerups {
		if u.Pos == pos {
			return false
		}
	}
	return true
}

// FreeCell picks a uniformly random free cell, or false when the board
// is saturated.
func (st *State) FreeCell(rng *rand.Rand) (grid.Pos, bool) {
	var free []grid.Pos
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			pos := grid.Pos{X: x, Y: y}
			if st.CellFree(pos) {
				free = append(free, pos)
			}
		}
	}
	if len(free) == 0 {
		return grid.Pos{}, false
	}
	return free[rng.Intn(len(free))], true
}

// spawnFood places one new food on a random free cell.
func (st *State) spawnFood(rng *rand.Rand) {
	if pos, ok := st.FreeCell(rng); ok {
		st.Food = append(st.Food, pos)
	}
}

// removeFoodAt deletes the food at pos, reporting whether one was there.
func (st *State) removeFoodAt(pos grid.Pos) bool {
	for i, f := range st.Food {
		if f == pos {
			st.Food = append(st.Food[:i], st.Food[i+1:]...)
			return true
		}
	}
	return false
}

// LastInputMs returns the recorded last-input time for a player.
func (st *State) LastInputMs(id string) int64 {
	return st.lastInputMs[id]
}

// ShiftInputClock adds delta to every last-input timestamp so paused time
// does not count toward inactivity.
func (st *State) ShiftInputClock(delta int64) {
	for id := range st.lastInputMs {
		st.lastInputMs[id] += delta
	}
}

// SetHost updates the host flag on the matching player, clearing others.
func (st *State) SetHost(id string) {
	for pid, p := range st.Players {
		p.IsHost = pid == id
	}
}

// Level derives the difficulty level from total food eaten.
func LevelFor(totalFoodEaten int) int {
	return totalFoodEaten/5 + 1
}

// TickRate returns the tick frequency in Hz for a level and mode,
// capped at 16.
func TickRate(level int, mode Mode) float64 {
	rate := 5 + 2*float64(level-1)
	if mode == ModeSolo {
		rate *= 1.015
	}
	if rate > 16 {
		rate = 16
	}
	return rate
}
