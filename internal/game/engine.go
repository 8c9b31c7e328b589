package game

import (
	"errors"
	"math"
	"math/rand"
	"sort"

	"github.com/snakearena/server/internal/grid"
)

// Input rejection errors, translated to inputRejected by the gateway.
var (
	ErrUnknownPlayer = errors.New("unknown player")
	ErrPlayerDead    = errors.New("player is dead")
	ErrInputThisTick = errors.New("input already accepted this tick")
	ErrReversal      = errors.New("cannot reverse direction")
	ErrNotStarted    = errors.New("game has not started")
	ErrInvalidInput  = errors.New("invalid direction")
)

// Event is an outbound notification produced by a tick. To targets a
// single player; empty To broadcasts to the room.
type Event struct {
	Name    string
	To      string
	Payload any
}

// TickResult carries everything the room must act on after one tick.
type TickResult struct {
	Events []Event
	// Kicked lists players removed by the multi-mode inactivity watchdog.
	// The engine has already marked them dead; room membership, token and
	// host bookkeeping happen in the room.
	Kicked []string
	// Ended is set when the session reached a terminal state this tick.
	Ended     bool
	EndReason string
}

// Collision types reported in playerCollided events.
const (
	CollisionWall       = "wall"
	CollisionSelf       = "self"
	CollisionHeadToBody = "head-to-body"
	CollisionHeadToHead = "head-to-head"
)

// Engine advances one room's simulation. It mutates State and emits
// events; it never touches the network. All calls are serialized by the
// owning room.
type Engine struct {
	St  *State
	Pow PowerupService

	rng *rand.Rand
	now func() int64
}

// NewEngine wires a simulation engine for st. now returns epoch
// milliseconds and is injectable for tests.
func NewEngine(st *State, pow PowerupService, rng *rand.Rand, now func() int64) *Engine {
	return &Engine{St: st, Pow: pow, rng: rng, now: now}
}

// OnInput validates and queues a direction change for a player.
func (e *Engine) OnInput(playerID string, dir grid.Direction) error {
	st := e.St
	if !st.Started() {
		return ErrNotStarted
	}
	if !grid.Valid(dir) {
		return ErrInvalidInput
	}
	p, ok := st.Players[playerID]
	if !ok {
		return ErrUnknownPlayer
	}
	if !p.Alive {
		return ErrPlayerDead
	}
	if st.lastInputTick[playerID] == st.Tick && st.Tick > 0 {
		return ErrInputThisTick
	}
	if !grid.Admissible(p.QueuedDirection, dir) {
		return ErrReversal
	}
	p.QueuedDirection = dir
	st.lastInputMs[playerID] = e.now()
	delete(st.warned, playerID)
	st.lastInputTick[playerID] = st.Tick
	return nil
}

// QueueNPCDirection applies an NPC decision through the same
// admissibility rule as human input, without touching input tracking.
func (e *Engine) QueueNPCDirection(playerID string, dir grid.Direction) {
	p, ok := e.St.Players[playerID]
	if !ok || !p.Alive {
		return
	}
	if grid.Admissible(p.QueuedDirection, dir) {
		p.QueuedDirection = dir
	}
}

// MarkDead kills a player outside the movement path (quit, disconnect,
// forced removal). Score is retained.
func (e *Engine) MarkDead(id string) {
	p, ok := e.St.Players[id]
	if !ok || !p.Alive {
		return
	}
	p.Alive = false
	p.SurvivalDuration = e.now() - p.SurvivalStart
	e.Pow.CancelAll(p)
}

// EvaluateWin re-runs the win condition outside the tick loop, after a
// quit or a forced death.
func (e *Engine) EvaluateWin() {
	e.checkWin(false, e.now())
}

// FinishTimeout applies the timeout win rules, awarding the survival
// bonus to every alive player. Used when the pause budget runs out.
func (e *Engine) FinishTimeout() {
	e.checkWin(true, e.now())
}

// Advance runs one tick. countdownActive gates the tick alongside pause
// and the pre-start phase; a gated tick leaves state frozen (the room
// still broadcasts it so clients observe a frozen timer).
func (e *Engine) Advance(countdownActive bool) TickResult {
	var res TickResult
	st := e.St
	if st.Paused || countdownActive || !st.Started() || st.Winner != nil {
		return res
	}
	now := e.now()

	st.Tick++
	elapsed := now - st.StartMs - st.TotalPauseMs
	st.TimerSeconds = int(elapsed / 1000)
	if limit := st.Opts.TimeLimitMs(); limit > 0 && elapsed >= limit {
		e.checkWin(true, now)
		res.Ended = true
		res.EndReason = "timeout"
		return res
	}

	e.Pow.MaybeSpawn(st, now)
	for _, c := range e.Pow.CheckCollect(st, now) {
		p := st.Players[c.PlayerID]
		res.Events = append(res.Events, Event{
			Name: "powerUpCollected",
			Payload: map[string]any{
				"playerId":   c.PlayerID,
				"playerName": p.Name,
				"type":       c.Type,
				"sound":      string(c.Type),
			},
		})
	}
	e.Pow.Tick(st, now)

	e.runWatchdog(now, &res)
	if res.Ended {
		return res
	}

	e.advanceMovement(now, &res)

	if st.Winner == nil {
		e.checkWin(false, now)
	}
	if st.Winner == nil && st.Mode == ModeSingle {
		e.maybeReviveNPC(now)
	}
	if st.Winner != nil {
		res.Ended = true
		res.EndReason = "winner_declared"
	}
	return res
}

// advanceMovement executes the speed-accumulator sub-steps for this tick.
func (e *Engine) advanceMovement(now int64, res *TickResult) {
	st := e.St
	maxSteps := 0
	for _, p := range st.AlivePlayers() {
		p.speedAcc += e.Pow.SpeedFactor(p, now)
		if steps := int(math.Floor(p.speedAcc)); steps > maxSteps {
			maxSteps = steps
		}
	}
	for step := 0; step < maxSteps; step++ {
		var movers []*Player
		for _, p := range st.AlivePlayers() {
			if p.speedAcc >= 1 {
				p.speedAcc--
				movers = append(movers, p)
			}
		}
		if len(movers) == 0 {
			break
		}
		died := e.subStep(movers, now, res)
		if died {
			e.checkWin(false, now)
			if st.Winner != nil {
				return
			}
		}
	}
}

type move struct {
	p       *Player
	newHead grid.Pos
	inBoard bool
	dead    bool
	reason  string
}

// subStep moves all due players simultaneously: commit queued directions,
// arbitrate head-to-head groups, then run per-player collision checks.
// Returns true when at least one player died.
func (e *Engine) subStep(movers []*Player, now int64, res *TickResult) bool {
	st := e.St
	wall := st.Opts.WallMode

	moves := make([]*move, 0, len(movers))
	for _, p := range movers {
		p.Direction = p.QueuedDirection
		newHead, ok := grid.Step(p.Head(), p.Direction, wall)
		moves = append(moves, &move{p: p, newHead: newHead, inBoard: ok})
	}

	e.arbitrateHeadToHead(moves, now)

	for _, m := range moves {
		if m.dead {
			continue
		}
		e.checkOtherCollisions(m, now)
	}

	anyDeath := false
	for _, m := range moves {
		if m.dead {
			anyDeath = true
			e.killPlayer(m.p, m.reason, now, res)
			continue
		}
		if !m.inBoard {
			// Shield held the player at the wall: no move this sub-step.
			continue
		}
		m.p.Snake = append([]grid.Pos{m.newHead}, m.p.Snake...)
		if st.removeFoodAt(m.newHead) {
			m.p.Score += 10
			st.TotalFoodEaten++
			st.Level = LevelFor(st.TotalFoodEaten)
			st.spawnFood(e.rng)
		} else {
			m.p.Snake = m.p.Snake[:len(m.p.Snake)-1]
		}
	}
	return anyDeath
}

// arbitrateHeadToHead groups movers by target cell and applies the
// mode-dependent collision semantics.
func (e *Engine) arbitrateHeadToHead(moves []*move, now int64) {
	st := e.St
	groups := make(map[grid.Pos][]*move)
	for _, m := range moves {
		if m.inBoard {
			groups[m.newHead] = append(groups[m.newHead], m)
		}
	}
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		if st.Mode == ModeSingle && mixedKinds(group) {
			continue
		}
		if st.Mode == ModeMulti && !st.Opts.WallMode && !st.Opts.StrictMode {
			continue
		}
		allShielded := true
		for _, m := range group {
			if !IsActive(m.p, EffectShield, now) {
				allShielded = false
				break
			}
		}
		if allShielded {
			continue
		}
		for _, m := range group {
			m.dead = true
			m.reason = CollisionHeadToHead
		}
	}
}

func mixedKinds(group []*move) bool {
	human, npc := false, false
	for _, m := range group {
		if m.p.Kind == KindHuman {
			human = true
		} else {
			npc = true
		}
	}
	return human && npc
}

// checkOtherCollisions runs wall, self and body collision checks for one
// surviving mover. An active shield suppresses the death (and, at a wall,
// the move itself).
func (e *Engine) checkOtherCollisions(m *move, now int64) {
	st := e.St
	shielded := IsActive(m.p, EffectShield, now)

	die := func(reason string) {
		if !shielded {
			m.dead = true
			m.reason = reason
		}
	}

	if st.Opts.WallMode && !m.inBoard {
		die(CollisionWall)
		return
	}

	for _, seg := range m.p.Snake[1:] {
		if seg == m.newHead {
			die(CollisionSelf)
			return
		}
	}

	passThrough := st.Mode == ModeMulti && !st.Opts.WallMode && !st.Opts.StrictMode
	for _, other := range st.AlivePlayers() {
		if other.ID == m.p.ID {
			continue
		}
		if st.Mode == ModeSingle && m.p.Kind != other.Kind {
			continue
		}
		if passThrough {
			continue
		}
		if st.Opts.StrictMode {
			if other.Occupies(m.newHead) {
				die(CollisionHeadToBody)
				return
			}
		} else if other.Head() == m.newHead {
			die(CollisionHeadToBody)
			return
		}
	}
}

// killPlayer finalizes a death: the score is retained, effects are
// cancelled and a playerCollided event is emitted.
func (e *Engine) killPlayer(p *Player, reason string, now int64, res *TickResult) {
	p.Alive = false
	p.SurvivalDuration = now - p.SurvivalStart
	e.Pow.CancelAll(p)
	res.Events = append(res.Events, Event{
		Name: "playerCollided",
		Payload: map[string]any{
			"playerName":    p.Name,
			"collisionType": reason,
		},
	})
}

// checkWin evaluates the mode-dependent win condition.
func (e *Engine) checkWin(timeoutReached bool, now int64) {
	st := e.St
	if st.Winner != nil {
		return
	}
	if timeoutReached {
		for _, p := range st.AlivePlayers() {
			p.Score += 50
		}
	}

	humans := st.Humans()

	switch {
	case st.Mode == ModeSolo || len(st.Players) == 1:
		sole := st.Players[st.joinOrder[0]]
		if sole.Alive && !timeoutReached {
			return
		}
		st.Winner = &Winner{ID: sole.ID, Name: sole.Name, Score: sole.Score, IsLoser: !sole.Alive}
	case st.Mode == ModeSingle && len(humans) == 1:
		human := humans[0]
		if human.Alive && !timeoutReached {
			return
		}
		st.Winner = &Winner{ID: human.ID, Name: human.Name, Score: human.Score, IsLoser: !human.Alive}
	default:
		e.checkWinMulti(timeoutReached, now)
	}
}

// checkWinMulti applies the multi-mode ranking rules.
func (e *Engine) checkWinMulti(timeoutReached bool, now int64) {
	st := e.St
	alive := st.AlivePlayers()

	switch {
	case len(alive) == 0:
		top := st.ranked()[0]
		if top.Score >= 0 {
			st.Winner = &Winner{ID: top.ID, Name: top.Name, Score: top.Score}
		}
	case len(alive) == 1 && len(st.Players) > 1:
		total := 0
		for _, p := range st.Players {
			total += p.Score
		}
		if total == 0 && !timeoutReached {
			// Everyone still at zero: hold off 5s so a start-line pile-up
			// does not finish the game instantly.
			if st.lastSurvivorSince == 0 {
				st.lastSurvivorSince = now
				return
			}
			if now-st.lastSurvivorSince < 5000 {
				return
			}
		}
		alive[0].Score += 50
		top := st.ranked()[0]
		st.Winner = &Winner{ID: top.ID, Name: top.Name, Score: top.Score}
	default:
		st.lastSurvivorSince = 0
	}
}

// ranked sorts players by score desc, alive first, then survival
// duration desc.
func (st *State) ranked() []*Player {
	out := make([]*Player, 0, len(st.Players))
	for _, id := range st.joinOrder {
		out = append(out, st.Players[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Alive != b.Alive {
			return a.Alive
		}
		return a.SurvivalDuration > b.SurvivalDuration
	})
	return out
}

// maybeReviveNPC keeps single mode populated: when every NPC is dead and
// the human lives, one NPC comes back in an unoccupied corner with a
// fresh length-1 snake and zero score.
func (e *Engine) maybeReviveNPC(now int64) {
	st := e.St
	var firstDead *Player
	for _, id := range st.joinOrder {
		p := st.Players[id]
		if p.Kind != KindNPC {
			continue
		}
		if p.Alive {
			return
		}
		if firstDead == nil {
			firstDead = p
		}
	}
	humanAlive := false
	for _, h := range st.Humans() {
		if h.Alive {
			humanAlive = true
		}
	}
	if firstDead == nil || !humanAlive {
		return
	}

	pos, dir, ok := e.freeCorner()
	if !ok {
		free, found := st.FreeCell(e.rng)
		if !found {
			return
		}
		pos, dir = free, grid.Right
	}
	firstDead.Snake = []grid.Pos{pos}
	firstDead.Direction = dir
	firstDead.QueuedDirection = dir
	firstDead.Score = 0
	firstDead.Alive = true
	firstDead.SurvivalStart = now
	firstDead.SurvivalDuration = 0
	firstDead.speedAcc = 0
	firstDead.ActivePowerups = make(map[Effect]int64)
}

// freeCorner returns a random unoccupied corner anchor.
func (e *Engine) freeCorner() (grid.Pos, grid.Direction, bool) {
	order := e.rng.Perm(4)
	for _, i := range order {
		pos, dir := grid.StartAnchor(i)
		if e.St.CellFree(pos) {
			return pos, dir, true
		}
	}
	return grid.Pos{}, grid.Right, false
}
