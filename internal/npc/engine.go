package npc

import (
	"math/rand"
	"sort"

	"github.com/snakearena/server/internal/game"
	"github.com/snakearena/server/internal/grid"
)

// State is the per-NPC decision state living alongside the room.
type State struct {
	ID         string
	Name       string
	Difficulty string
	Profile    string
	Tuning     Tuning

	decisionDelay int
	targetFood    *grid.Pos
	lastDirection grid.Direction
}

// Engine produces queued directions for every NPC in a room. One engine
// per room; calls are serialized by the owning room.
type Engine struct {
	rng   *rand.Rand
	npcs  map[string]*State
	order []string
}

// NewEngine creates an empty NPC engine.
func NewEngine(rng *rand.Rand) *Engine {
	return &Engine{rng: rng, npcs: make(map[string]*State)}
}

// Add registers an NPC.
func (e *Engine) Add(st *State) {
	e.npcs[st.ID] = st
	e.order = append(e.order, st.ID)
}

// Empty reports whether the engine has no NPCs.
func (e *Engine) Empty() bool {
	return len(e.npcs) == 0
}

// Tick runs one decision round. queue receives each emitted direction
// and is expected to apply the usual reversal rule.
func (e *Engine) Tick(gs *game.State, queue func(id string, dir grid.Direction)) {
	for _, id := range e.order {
		n := e.npcs[id]
		p := gs.Players[id]
		if p == nil || !p.Alive {
			continue
		}
		if n.decisionDelay > 0 {
			n.decisionDelay--
			continue
		}
		n.decisionDelay = n.Tuning.ReactionMs / 50

		dir, ok := e.decide(gs, p, n)
		if !ok {
			continue
		}
		n.lastDirection = dir
		queue(id, dir)
	}
}

// decide runs the full decision pipeline for one NPC.
func (e *Engine) decide(gs *game.State, p *game.Player, n *State) (grid.Direction, bool) {
	// Mistake roll: a failed roll keeps the current heading, adjusted
	// only enough to stay alive.
	if e.rng.Float64() < 1-n.Tuning.SuccessRate {
		return e.safeMove(gs, p, n, p.Direction)
	}

	target := e.chooseTarget(gs, p, n)
	preferred := e.directionToward(gs, p, target)
	return e.safeMove(gs, p, n, preferred)
}

// chooseTarget samples a target category by profile weight and returns
// the destination cell.
func (e *Engine) chooseTarget(gs *game.State, p *game.Player, n *State) grid.Pos {
	wrap := !gs.Opts.WallMode
	head := p.Head()

	var bestFood *grid.Pos
	bestFoodDist := 0
	for i := range gs.Food {
		d := grid.Manhattan(head, gs.Food[i], wrap)
		if bestFood == nil || d < bestFoodDist {
			f := gs.Food[i]
			bestFood = &f
			bestFoodDist = d
		}
	}
	var bestHead *grid.Pos
	bestHeadDist := 0
	for _, other := range gs.AlivePlayers() {
		if other.ID == p.ID {
			continue
		}
		h := other.Head()
		d := grid.Manhattan(head, h, wrap)
		if bestHead == nil || d < bestHeadDist {
			bestHead = &h
			bestHeadDist = d
		}
	}

	t := n.Tuning
	wFood := t.Bias.Food * (1 + 0.3*(1-t.Aggression))
	wHunt := t.Bias.Hunt * (0.6 + 0.8*t.Aggression)
	wSurvive := t.Bias.Survival * (0.6 + 0.8*t.Caution)
	if bestFood == nil {
		wFood = 0
	}
	if bestHead == nil {
		wHunt = 0
	}

	total := wFood + wHunt + wSurvive
	if total <= 0 {
		return grid.Center()
	}
	roll := e.rng.Float64() * total
	switch {
	case roll < wFood:
		n.targetFood = bestFood
		return *bestFood
	case roll < wFood+wHunt:
		return *bestHead
	default:
		return grid.Center()
	}
}

// directionToward picks the axis with the larger displacement toward the
// target, wrap-aware when walls are off. Ties go to the non-reversing
// axis.
func (e *Engine) directionToward(gs *game.State, p *game.Player, target grid.Pos) grid.Direction {
	wrap := !gs.Opts.WallMode
	dx, dy := grid.Delta(p.Head(), target, wrap)

	var hDir, vDir grid.Direction
	if dx > 0 {
		hDir = grid.Right
	} else if dx < 0 {
		hDir = grid.Left
	}
	if dy > 0 {
		vDir = grid.Down
	} else if dy < 0 {
		vDir = grid.Up
	}

	switch {
	case hDir == "" && vDir == "":
		return p.Direction
	case hDir == "":
		return vDir
	case vDir == "":
		return hDir
	case abs(dx) > abs(dy):
		return hDir
	case abs(dy) > abs(dx):
		return vDir
	case grid.Admissible(p.Direction, hDir):
		return hDir
	default:
		return vDir
	}
}

type scoredDir struct {
	dir   grid.Direction
	score float64
}

// safeMove scores every legal direction and selects one, preferring the
// requested heading. Falls back to any legal direction when everything
// scores at or below zero.
func (e *Engine) safeMove(gs *game.State, p *game.Player, n *State, preferred grid.Direction) (grid.Direction, bool) {
	candidates := e.avoidCollisions(gs, p, n, preferred)
	if len(candidates) == 0 {
		return e.fallback(gs, p, preferred)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	top := candidates[0]
	if top.score <= 0 {
		return e.fallback(gs, p, preferred)
	}

	if e.rng.Float64() < n.Tuning.Randomness {
		var near []scoredDir
		for _, c := range candidates {
			if top.score-c.score <= 25 {
				near = append(near, c)
			}
		}
		if len(near) > 1 {
			return near[e.rng.Intn(len(near))].dir, true
		}
	}
	return top.dir, true
}

// avoidCollisions builds the scored candidate list per the safe-move
// rules: current-board collisions and one-step opponent predictions are
// hard filters, everything else is scoring.
func (e *Engine) avoidCollisions(gs *game.State, p *game.Player, n *State, preferred grid.Direction) []scoredDir {
	wallMode := gs.Opts.WallMode
	caution := n.Tuning.Caution
	head := p.Head()

	var out []scoredDir
	for _, d := range grid.Directions {
		if d == grid.Opposite(p.Direction) {
			continue
		}
		newHead, inBoard := grid.Step(head, d, wallMode)
		if wallMode && !inBoard {
			continue
		}
		if e.hitsAnySnake(gs, newHead) {
			continue
		}
		if e.hitsPredictedHead(gs, p, newHead, wallMode) {
			continue
		}

		score := 100.0
		if d == preferred {
			score += 50
		}
		if wallMode {
			wd := float64(grid.WallDistance(newHead))
			score += wd * (2 + 3*caution)
			if wd < 2 {
				score -= 30 * caution
			}
			if e.wouldLeadToDeadEnd(gs, newHead, d, n.Tuning.LookAhead) {
				score -= 120 * caution
			}
		}
		branches := e.futureBranchCount(gs, newHead, d, wallMode)
		score += float64(branches) * (8 + 8*caution)

		out = append(out, scoredDir{dir: d, score: score})
	}
	return out
}

// fallback returns the preferred direction when legal, otherwise any
// legal direction, otherwise nothing.
func (e *Engine) fallback(gs *game.State, p *game.Player, preferred grid.Direction) (grid.Direction, bool) {
	if e.legal(gs, p, preferred) {
		return preferred, true
	}
	for _, d := range grid.Directions {
		if e.legal(gs, p, d) {
			return d, true
		}
	}
	return "", false
}

func (e *Engine) legal(gs *game.State, p *game.Player, d grid.Direction) bool {
	if d == "" || d == grid.Opposite(p.Direction) {
		return false
	}
	_, inBoard := grid.Step(p.Head(), d, gs.Opts.WallMode)
	return !gs.Opts.WallMode || inBoard
}

// hitsAnySnake reports whether pos is covered by any alive snake now.
func (e *Engine) hitsAnySnake(gs *game.State, pos grid.Pos) bool {
	for _, other := range gs.AlivePlayers() {
		if other.Occupies(pos) {
			return true
		}
	}
	return false
}

// hitsPredictedHead checks pos against a one-step prediction of every
// other snake's head, using that snake's queued direction.
func (e *Engine) hitsPredictedHead(gs *game.State, p *game.Player, pos grid.Pos, wallMode bool) bool {
	for _, other := range gs.AlivePlayers() {
		if other.ID == p.ID {
			continue
		}
		predicted, ok := grid.Step(other.Head(), other.QueuedDirection, wallMode)
		if ok && predicted == pos {
			return true
		}
	}
	return false
}

// futureBranchCount counts the open onward directions from pos.
func (e *Engine) futureBranchCount(gs *game.State, pos grid.Pos, arrived grid.Direction, wallMode bool) int {
	count := 0
	for _, d := range grid.Directions {
		if d == grid.Opposite(arrived) {
			continue
		}
		next, inBoard := grid.Step(pos, d, wallMode)
		if wallMode && !inBoard {
			continue
		}
		if e.hitsAnySnake(gs, next) {
			continue
		}
		count++
	}
	return count
}

// wouldLeadToDeadEnd simulates up to lookAhead forward steps in wall
// mode. A step with no open options is a dead end; a single-option
// corridor segment before the final step also counts.
func (e *Engine) wouldLeadToDeadEnd(gs *game.State, pos grid.Pos, dir grid.Direction, lookAhead int) bool {
	for step := 0; step < lookAhead; step++ {
		var options []grid.Direction
		for _, d := range grid.Directions {
			if d == grid.Opposite(dir) {
				continue
			}
			next, inBoard := grid.Step(pos, d, true)
			if !inBoard || e.hitsAnySnake(gs, next) {
				continue
			}
			options = append(options, d)
		}
		if len(options) == 0 {
			return true
		}
		if len(options) == 1 && step < lookAhead-1 {
			return true
		}
		// Continue straight when possible, else follow the corridor.
		next := options[0]
		for _, d := range options {
			if d == dir {
				next = d
				break
			}
		}
		dir = next
		pos, _ = grid.Step(pos, dir, true)
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
