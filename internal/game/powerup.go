package game

import (
	"math/rand"

	"github.com/google/uuid"
)

// Power-up constants.
const (
	MaxActivePowerups = 2
	powerupEffectMs   = 7000
	powerupItemTTLMs  = 30000
	powerupGapMinMs   = 12000
	powerupGapMaxMs   = 20000
)

var powerupTypes = []Effect{EffectSpeedBoost, EffectShield, EffectShrink, EffectSlowOthers}

// Collected reports one power-up pickup for upstream notification.
type Collected struct {
	PlayerID string
	Type     Effect
}

// PowerupService is the power-up seam consumed by the engine. When the
// feature flag is off the engine is wired with a no-op implementation.
type PowerupService interface {
	// MaybeSpawn places a new item when the spawn gap has elapsed and
	// fewer than MaxActivePowerups are on the board.
	MaybeSpawn(st *State, nowMs int64)
	// CheckCollect applies items whose cell matches an alive head.
	CheckCollect(st *State, nowMs int64) []Collected
	// Tick expires stale items and purges expired player effects.
	Tick(st *State, nowMs int64)
	// CancelAll removes all active effects from a player.
	CancelAll(p *Player)
	// SpeedFactor returns the movement multiplier for a player.
	SpeedFactor(p *Player, nowMs int64) float64
}

type powerups struct {
	rng         *rand.Rand
	lastSpawnMs int64
	nextGapMs   int64
}

// NewPowerups returns the live power-up service.
func NewPowerups(rng *rand.Rand) PowerupService {
	return &powerups{rng: rng}
}

func (s *powerups) sampleGap() int64 {
	return powerupGapMinMs + s.rng.Int63n(powerupGapMaxMs-powerupGapMinMs+1)
}

func (s *powerups) MaybeSpawn(st *State, nowMs int64) {
	if s.lastSpawnMs == 0 {
		// First tick only arms the timer.
		s.lastSpawnMs = nowMs
		s.nextGapMs = s.sampleGap()
		return
	}
	if len(st.Powerups) >= MaxActivePowerups || nowMs-s.lastSpawnMs < s.nextGapMs {
		return
	}
	pos, ok := st.FreeCell(s.rng)
	if !ok {
		return
	}
	st.Powerups = append(st.Powerups, &Powerup{
		ID:      uuid.NewString(),
		Pos:     pos,
		Type:    powerupTypes[s.rng.Intn(len(powerupTypes))],
		SpawnMs: nowMs,
	})
	s.lastSpawnMs = nowMs
	s.nextGapMs = s.sampleGap()
}

func (s *powerups) CheckCollect(st *State, nowMs int64) []Collected {
	var out []Collected
	for _, p := range st.AlivePlayers() {
		head := p.Head()
		for i, u := range st.Powerups {
			if u.Pos != head {
				continue
			}
			st.Powerups = append(st.Powerups[:i], st.Powerups[i+1:]...)
			s.apply(st, p, u.Type, nowMs)
			out = append(out, Collected{PlayerID: p.ID, Type: u.Type})
			break
		}
	}
	return out
}

// apply puts a collected power-up into effect. A new non-slowed effect
// replaces any prior non-slowed effects on the collector; only slowed
// stacks (it is set on victims, not the collector).
func (s *powerups) apply(st *State, p *Player, typ Effect, nowMs int64) {
	expiry := nowMs + powerupEffectMs
	switch typ {
	case EffectShrink:
		for i := 0; i < 3 && len(p.Snake) > 1; i++ {
			p.Snake = p.Snake[:len(p.Snake)-1]
		}
		s.replaceOwn(p, EffectShrink, expiry)
	case EffectSlowOthers:
		for _, other := range st.AlivePlayers() {
			if other.ID == p.ID {
				continue
			}
			if other.ActivePowerups == nil {
				other.ActivePowerups = make(map[Effect]int64)
			}
			other.ActivePowerups[EffectSlowed] = expiry
		}
	default: // shield, speedBoost
		s.replaceOwn(p, typ, expiry)
	}
}

// replaceOwn clears every non-slowed effect and sets the new one.
func (s *powerups) replaceOwn(p *Player, typ Effect, expiry int64) {
	if p.ActivePowerups == nil {
		p.ActivePowerups = make(map[Effect]int64)
	}
	for e := range p.ActivePowerups {
		if e != EffectSlowed {
			delete(p.ActivePowerups, e)
		}
	}
	p.ActivePowerups[typ] = expiry
}

func (s *powerups) Tick(st *State, nowMs int64) {
	kept := st.Powerups[:0]
	for _, u := range st.Powerups {
		if nowMs-u.SpawnMs < powerupItemTTLMs {
			kept = append(kept, u)
		}
	}
	st.Powerups = kept
	for _, p := range st.Players {
		for e, expiry := range p.ActivePowerups {
			if nowMs >= expiry {
				delete(p.ActivePowerups, e)
			}
		}
		if len(p.ActivePowerups) == 0 {
			p.ActivePowerups = nil
		}
	}
}

func (s *powerups) CancelAll(p *Player) {
	p.ActivePowerups = nil
}

// IsActive reports whether the effect is live on the player.
func IsActive(p *Player, e Effect, nowMs int64) bool {
	expiry, ok := p.ActivePowerups[e]
	return ok && nowMs < expiry
}

func (s *powerups) SpeedFactor(p *Player, nowMs int64) float64 {
	factor := 1.0
	if IsActive(p, EffectSlowed, nowMs) {
		factor *= 0.5
	}
	if IsActive(p, EffectSpeedBoost, nowMs) {
		factor *= 2
	}
	return factor
}

// noopPowerups is wired when the power-up feature flag is disabled.
type noopPowerups struct{}

// NewNoopPowerups returns the disabled power-up service.
func NewNoopPowerups() PowerupService { return noopPowerups{} }

func (noopPowerups) MaybeSpawn(*State, int64)               {}
func (noopPowerups) CheckCollect(*State, int64) []Collected { return nil }
func (noopPowerups) Tick(*State, int64)                     {}
func (noopPowerups) CancelAll(*Player)                      {}
func (noopPowerups) SpeedFactor(*Player, int64) float64     { return 1 }
