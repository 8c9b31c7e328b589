package room

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/snakearena/server/internal/game"
	"github.com/snakearena/server/internal/grid"
	"github.com/snakearena/server/internal/npc"
)

// Caller-visible join and lifecycle failures. The gateway translates
// these into wire error events.
var (
	ErrRoomFull    = errors.New("room is full")
	ErrNameTaken   = errors.New("display name is already taken")
	ErrGameStarted = errors.New("game already in progress")
)

// MaxPlayers is the room size cap in multi mode.
const MaxPlayers = 4

// readyToCountdownDelay separates allPlayersReady from the first
// countdown broadcast so clients can switch screens.
const readyToCountdownDelay = 300 * time.Millisecond

var nameFold = cases.Fold()

// Participant is one room member. NPCs have no client and no token.
type Participant struct {
	ID            string
	Name          string
	Kind          game.Kind
	IsHost        bool
	ControlScheme string
	Token         string
	Client        Client

	Disconnected     bool
	DisconnectedAtMs int64
	disconnectTimer  *time.Timer

	lastChatMs int64
}

// Room is one match room. All state behind mu; every mutation, tick and
// broadcast runs under it, so the room behaves as a single-threaded
// actor.
type Room struct {
	mu   sync.Mutex
	mgr  *Manager
	code string
	mode game.Mode
	log  *zap.Logger
	rng  *rand.Rand
	now  func() int64

	participants map[string]*Participant
	order        []string
	ready        map[string]bool

	opts     game.Options
	isPublic bool

	st   *game.State
	eng  *game.Engine
	npcs *npc.Engine

	session *Session
	running bool
	ended   bool

	// countdown and resumeCount are -1 when inactive. At most one of the
	// two countdowns runs at a time.
	countdown       int
	countdownCancel chan struct{}
	resumeCount     int
	resumeCancel    chan struct{}
	resumedBy       string

	stopTick   chan struct{}
	tickPeriod time.Duration

	readyTimer   *time.Timer
	cleanupTimer *time.Timer
	disposed     bool
}

func newRoom(m *Manager, code string, mode game.Mode, rng *rand.Rand) *Room {
	return &Room{
		mgr:          m,
		code:         code,
		mode:         mode,
		log:          m.log.With(zap.String("room", code)),
		rng:          rng,
		now:          m.now,
		participants: make(map[string]*Participant),
		ready:        make(map[string]bool),
		npcs:         npc.NewEngine(rng),
		countdown:    -1,
		resumeCount:  -1,
	}
}

// Code returns the room code.
func (r *Room) Code() string { return r.code }

// Mode returns the room mode.
func (r *Room) Mode() game.Mode { return r.mode }

// Active reports a live, started, ticking room.
func (r *Room) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.disposed && r.running && r.st != nil && r.st.Started()
}

// ---- join / start -------------------------------------------------------

// Join adds a human to a multi room, or reattaches a known token during
// the Ready phase.
func (r *Room) Join(c Client, name, controlScheme, token string) error {
	publish := false
	err := func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.disposed {
			return fmt.Errorf("room %s no longer exists", r.code)
		}

		if token != "" {
			if p := r.byTokenLocked(token); p != nil {
				return r.reattachLocked(c, p)
			}
		}

		name = strings.TrimSpace(name)
		if name == "" {
			return fmt.Errorf("display name is required")
		}
		for _, p := range r.participants {
			if nameFold.String(p.Name) == nameFold.String(name) {
				return fmt.Errorf("name %q: %w", name, ErrNameTaken)
			}
		}
		if len(r.participants) >= MaxPlayers {
			return fmt.Errorf("room %s: %w", r.code, ErrRoomFull)
		}
		if r.st != nil || r.countdown >= 0 {
			return ErrGameStarted
		}

		p := &Participant{
			ID:            uuid.NewString(),
			Name:          name,
			Kind:          game.KindHuman,
			IsHost:        len(r.participants) == 0,
			ControlScheme: controlScheme,
			Token:         uuid.NewString(),
			Client:        c,
		}
		r.participants[p.ID] = p
		r.order = append(r.order, p.ID)
		r.mgr.bind(c.ID(), r.code, p.ID)
		r.mgr.registerToken(p.Token, r.code, p.ID)

		c.Send("joinedRoom", map[string]any{
			"playerId":    p.ID,
			"isHost":      p.IsHost,
			"roomCode":    r.code,
			"gameMode":    modeLabel(r.mode),
			"gameOptions": r.opts,
			"playerToken": p.Token,
			"isPublic":    r.isPublic,
		})
		r.broadcastLocked("playerJoined", map[string]any{
			"playerId":   p.ID,
			"playerName": p.Name,
			"isHost":     p.IsHost,
			"players":    r.rosterLocked(),
		})
		r.log.Info("player joined",
			zap.String("player", p.ID),
			zap.String("name", p.Name),
			zap.Bool("host", p.IsHost))
		publish = true
		return nil
	}()
	if publish {
		r.mgr.publishPublicRooms()
	}
	return err
}

// Reattach reconnects a client by token (solo/single reconnection, or
// the gateway resolving a token directly).
func (r *Room) Reattach(c Client, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return fmt.Errorf("room %s no longer exists", r.code)
	}
	p := r.byTokenLocked(token)
	if p == nil {
		return fmt.Errorf("unknown player token")
	}
	return r.reattachLocked(c, p)
}

// reattachLocked rebinds a connection to an existing membership.
// Multi rooms only allow this before the start countdown.
func (r *Room) reattachLocked(c Client, p *Participant) error {
	if r.mode == game.ModeMulti && (r.countdown >= 0 || (r.st != nil && r.st.Started())) {
		return ErrGameStarted
	}
	if p.disconnectTimer != nil {
		p.disconnectTimer.Stop()
		p.disconnectTimer = nil
	}
	p.Client = c
	p.Disconnected = false
	p.DisconnectedAtMs = 0
	r.mgr.bind(c.ID(), r.code, p.ID)

	c.Send("joinedRoom", map[string]any{
		"playerId":    p.ID,
		"isHost":      p.IsHost,
		"roomCode":    r.code,
		"gameMode":    modeLabel(r.mode),
		"gameOptions": r.opts,
		"playerToken": p.Token,
		"isPublic":    r.isPublic,
	})
	if r.st != nil {
		c.Send("gameStarted", r.gameStartedPayloadLocked(p))
		c.Send("gameStateUpdate", map[string]any{"gameState": r.st})
	}
	r.log.Info("player reconnected", zap.String("player", p.ID))
	return nil
}

// StartMulti moves a multi room from Lobby to Ready. Host only.
func (r *Room) StartMulti(playerID string) error {
	publish := false
	err := func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		p := r.participants[playerID]
		if p == nil {
			return fmt.Errorf("unknown player")
		}
		if !p.IsHost {
			return fmt.Errorf("only the host can start the game")
		}
		if r.st != nil || r.countdown >= 0 {
			return ErrGameStarted
		}
		if len(r.participants) < 2 {
			return fmt.Errorf("need at least 2 players to start")
		}

		roster := make([]game.Roster, 0, len(r.order))
		for _, id := range r.order {
			m := r.participants[id]
			roster = append(roster, game.Roster{
				ID:            m.ID,
				Name:          m.Name,
				Kind:          m.Kind,
				IsHost:        m.IsHost,
				ControlScheme: m.ControlScheme,
			})
		}
		r.buildGameLocked(roster)
		for _, id := range r.order {
			m := r.participants[id]
			if m.Client != nil {
				m.Client.Send("gameStarted", r.gameStartedPayloadLocked(m))
			}
		}
		r.log.Info("game starting", zap.Int("players", len(roster)))
		publish = true
		return nil
	}()
	if publish {
		r.mgr.publishPublicRooms()
	}
	return err
}

// StartSingle seeds a solo/single room with its sole human plus NPCs and
// enters Ready immediately.
func (r *Room) StartSingle(c Client, req SingleStartRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := strings.TrimSpace(req.PlayerName)
	if name == "" {
		return fmt.Errorf("display name is required")
	}

	human := &Participant{
		ID:            uuid.NewString(),
		Name:          name,
		Kind:          game.KindHuman,
		IsHost:        true,
		ControlScheme: req.ControlScheme,
		Token:         uuid.NewString(),
		Client:        c,
	}
	r.participants[human.ID] = human
	r.order = append(r.order, human.ID)
	r.mgr.bind(c.ID(), r.code, human.ID)
	r.mgr.registerToken(human.Token, r.code, human.ID)
	r.opts = req.Options

	roster := []game.Roster{{
		ID:            human.ID,
		Name:          human.Name,
		Kind:          game.KindHuman,
		IsHost:        true,
		ControlScheme: human.ControlScheme,
	}}
	for _, cfg := range r.npcConfigs(req) {
		id := uuid.NewString()
		bot := &Participant{ID: id, Name: cfg.Name, Kind: game.KindNPC}
		r.participants[id] = bot
		r.order = append(r.order, id)
		roster = append(roster, game.Roster{ID: id, Name: cfg.Name, Kind: game.KindNPC})
		r.npcs.Add(&npc.State{
			ID:         id,
			Name:       cfg.Name,
			Difficulty: cfg.Difficulty,
			Profile:    cfg.Profile,
			Tuning:     npc.DeriveTuning(r.mgr.scripts, cfg.Profile, cfg.Difficulty, cfg.Sliders),
		})
	}

	r.buildGameLocked(roster)
	c.Send("joinedRoom", map[string]any{
		"playerId":    human.ID,
		"isHost":      true,
		"roomCode":    r.code,
		"gameMode":    modeLabel(r.mode),
		"gameOptions": r.opts,
		"playerToken": human.Token,
		"isPublic":    false,
	})
	c.Send("gameStarted", r.gameStartedPayloadLocked(human))
	r.log.Info("single-player game starting",
		zap.String("mode", string(r.mode)),
		zap.Int("npcs", len(roster)-1))
	return nil
}

// npcConfigs resolves the NPC lineup: caller configs when given, roster
// defaults otherwise.
func (r *Room) npcConfigs(req SingleStartRequest) []NpcConfig {
	if req.NpcCount <= 0 {
		return nil
	}
	defaults := r.mgr.npcTable.All()
	out := make([]NpcConfig, 0, req.NpcCount)
	for i := 0; i < req.NpcCount; i++ {
		var cfg NpcConfig
		if i < len(req.NpcConfigs) {
			cfg = req.NpcConfigs[i]
		}
		def := defaults[i%len(defaults)]
		if cfg.Name == "" {
			cfg.Name = def.Name
		}
		if cfg.Difficulty == "" {
			cfg.Difficulty = def.Difficulty
		}
		if cfg.Profile == "" {
			cfg.Profile = def.Profile
		}
		if cfg.Sliders == (npc.Sliders{}) {
			cfg.Sliders = def.Sliders
		}
		out = append(out, cfg)
	}
	return out
}

// buildGameLocked constructs the game state and engine for the roster.
func (r *Room) buildGameLocked(roster []game.Roster) {
	pow := game.NewNoopPowerups()
	if r.mgr.cfg.Features.Powerups {
		pow = game.NewPowerups(r.rng)
	}
	r.st = game.NewState(r.mode, roster, r.opts, r.rng)
	r.eng = game.NewEngine(r.st, pow, r.rng, r.now)
	r.ready = make(map[string]bool)
}

func (r *Room) gameStartedPayloadLocked(p *Participant) map[string]any {
	return map[string]any{
		"gameState": r.st,
		"roomCode":  r.code,
		"playerId":  p.ID,
		"gameMode":  modeLabel(r.mode),
		"isHost":    p.IsHost,
	}
}

// ---- ready / countdown --------------------------------------------------

// Ready records a player's ready signal; when every human is ready the
// start countdown is scheduled.
func (r *Room) Ready(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.participants[playerID]
	if p == nil {
		return fmt.Errorf("unknown player")
	}
	if r.st == nil {
		return fmt.Errorf("game has not been started")
	}
	if r.st.Started() || r.countdown >= 0 {
		return fmt.Errorf("game already running")
	}
	r.ready[playerID] = true

	ids := make([]string, 0, len(r.ready))
	for _, id := range r.order {
		if r.ready[id] {
			ids = append(ids, id)
		}
	}
	r.broadcastLocked("playerReadyStatus", map[string]any{"readyPlayers": ids})

	for _, id := range r.order {
		m := r.participants[id]
		if m.Kind == game.KindHuman && !r.ready[id] {
			return nil
		}
	}
	r.broadcastLocked("allPlayersReady", map[string]any{})
	if r.readyTimer != nil {
		r.readyTimer.Stop()
	}
	r.readyTimer = time.AfterFunc(readyToCountdownDelay, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.beginStartCountdownLocked()
	})
	return nil
}

// beginStartCountdownLocked kicks off the 5..0 start countdown.
func (r *Room) beginStartCountdownLocked() {
	if r.disposed || r.ended || r.countdown >= 0 || r.resumeCount >= 0 || r.st == nil || r.st.Started() {
		return
	}
	r.countdown = 5
	r.broadcastLocked("gameCountdown", map[string]any{"countdown": 5})
	cancel := make(chan struct{})
	r.countdownCancel = cancel
	go r.runStartCountdown(cancel)
}

func (r *Room) runStartCountdown(cancel chan struct{}) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-cancel:
			return
		case <-t.C:
			r.mu.Lock()
			if r.disposed || r.ended || r.countdown < 0 {
				r.mu.Unlock()
				return
			}
			r.countdown--
			r.broadcastLocked("gameCountdown", map[string]any{"countdown": r.countdown})
			if r.countdown > 0 {
				r.mu.Unlock()
				continue
			}
			// Countdown hit zero: the simulation clock starts now.
			r.countdown = -1
			r.countdownCancel = nil
			r.st.Begin(r.now())
			r.session = r.mgr.sessions.Open(r.code, r.mode)
			r.startTickerLocked()
			r.broadcastLocked("gameStateUpdate", map[string]any{"gameState": r.st})
			r.mu.Unlock()
			return
		}
	}
}

// ---- ticker -------------------------------------------------------------

func (r *Room) startTickerLocked() {
	if r.running {
		return
	}
	r.running = true
	r.stopTick = make(chan struct{})
	r.tickPeriod = r.periodLocked()
	go r.runTicker(r.stopTick, r.tickPeriod)
}

func (r *Room) stopTickerLocked() {
	if !r.running {
		return
	}
	r.running = false
	close(r.stopTick)
	r.stopTick = nil
}

func (r *Room) periodLocked() time.Duration {
	rate := game.TickRate(r.st.Level, r.mode)
	return time.Duration(float64(time.Second) / rate)
}

func (r *Room) runTicker(stop <-chan struct{}, period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			done, reset := r.tick()
			if done {
				return
			}
			if reset > 0 {
				t.Reset(reset)
			}
		}
	}
}

// tick runs one room tick: NPC decisions, simulation advance, event
// fan-out, state broadcast. Returns the new period when the level moved
// the tick rate.
func (r *Room) tick() (done bool, reset time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed || r.ended || !r.running {
		return true, 0
	}

	countdownActive := r.countdown >= 0 || r.resumeCount >= 0
	if r.st.Started() && !r.st.Paused && !countdownActive {
		r.npcs.Tick(r.st, r.eng.QueueNPCDirection)
	}
	res := r.eng.Advance(countdownActive)

	for _, id := range res.Kicked {
		r.applyKickLocked(id)
	}
	for _, ev := range res.Events {
		if ev.To == "" {
			r.broadcastLocked(ev.Name, ev.Payload)
		} else if p := r.participants[ev.To]; p != nil && p.Client != nil {
			p.Client.Send(ev.Name, ev.Payload)
		}
	}

	r.broadcastLocked("gameStateUpdate", map[string]any{"gameState": r.st})

	if res.Ended {
		reason := endReasonFor(res.EndReason)
		if reason == EndPlayerInactive && r.connectedCountLocked() == 0 {
			reason = EndPlayerInactiveDisconnect
		}
		r.endGameLocked(reason)
		return true, 0
	}
	if p := r.periodLocked(); p != r.tickPeriod {
		r.tickPeriod = p
		return false, p
	}
	return false, 0
}

// endReasonFor maps engine end reasons onto session reasons.
func endReasonFor(engineReason string) string {
	switch engineReason {
	case "timeout":
		return EndTimeout
	case "player_inactive":
		return EndPlayerInactive
	default:
		return EndWinnerDeclared
	}
}

// ---- input / pause / resume ---------------------------------------------

// Input queues a direction change for a human player.
func (r *Room) Input(playerID string, dir grid.Direction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.st == nil || r.eng == nil {
		return game.ErrNotStarted
	}
	return r.eng.OnInput(playerID, dir)
}

// Pause halts the simulation. Any human may pause; the multi-mode pause
// budget is enforced here.
func (r *Room) Pause(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.participants[playerID]
	if p == nil || p.Kind != game.KindHuman {
		return fmt.Errorf("unknown player")
	}
	if r.st == nil || r.ended {
		return fmt.Errorf("no active game to pause")
	}
	if r.st.Paused {
		return fmt.Errorf("game is already paused")
	}
	if r.mode == game.ModeMulti && r.st.TotalPauseMs >= game.PauseBudgetMs {
		return fmt.Errorf("pause budget exhausted")
	}
	r.st.Paused = true
	r.st.PauseStartMs = r.now()
	r.broadcastLocked("gamePaused", map[string]any{"pausedBy": p.Name})
	r.log.Info("game paused", zap.String("by", p.Name))
	return nil
}

// Resume starts the 5..0 resume countdown.
func (r *Room) Resume(playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.participants[playerID]
	if p == nil || p.Kind != game.KindHuman {
		return fmt.Errorf("unknown player")
	}
	if r.st == nil || !r.st.Paused {
		return fmt.Errorf("game is not paused")
	}
	if r.resumeCount >= 0 || r.countdown >= 0 {
		return fmt.Errorf("resume already in progress")
	}
	r.resumeCount = 5
	r.resumedBy = p.Name
	r.broadcastLocked("resumeCountdown", map[string]any{"countdown": 5, "resumedBy": p.Name})
	cancel := make(chan struct{})
	r.resumeCancel = cancel
	go r.runResumeCountdown(cancel)
	return nil
}

func (r *Room) runResumeCountdown(cancel chan struct{}) {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-cancel:
			return
		case <-t.C:
			r.mu.Lock()
			if r.disposed || r.ended || r.resumeCount < 0 {
				r.mu.Unlock()
				return
			}
			r.resumeCount--
			r.broadcastLocked("resumeCountdown", map[string]any{
				"countdown": r.resumeCount,
				"resumedBy": r.resumedBy,
			})
			if r.resumeCount > 0 {
				r.mu.Unlock()
				continue
			}
			r.resumeCount = -1
			r.resumeCancel = nil
			r.finishResumeLocked()
			r.mu.Unlock()
			return
		}
	}
}

// finishResumeLocked books the pause duration and unfreezes the room, or
// force-ends the game when the multi pause budget has run out.
func (r *Room) finishResumeLocked() {
	now := r.now()
	delta := now - r.st.PauseStartMs
	r.st.TotalPauseMs += delta
	r.st.Paused = false
	r.st.PauseStartMs = 0
	r.st.ShiftInputClock(delta)

	if r.mode == game.ModeMulti && r.st.TotalPauseMs >= game.PauseBudgetMs {
		r.eng.FinishTimeout()
		r.endGameLocked(EndTimeout)
		return
	}
	if !r.running && r.st.Started() {
		r.startTickerLocked()
	}
	r.broadcastLocked("gameResumed", map[string]any{})
	r.log.Info("game resumed", zap.String("by", r.resumedBy))
}

// ---- quit / disconnect --------------------------------------------------

// Quit removes a player on their own request. leaveType "withParty" lets
// a multi host end the game for everyone.
func (r *Room) Quit(playerID, leaveType string) error {
	publish := false
	err := func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		p := r.participants[playerID]
		if p == nil {
			return fmt.Errorf("unknown player")
		}

		if r.mode != game.ModeMulti {
			if r.eng != nil {
				r.eng.MarkDead(playerID)
				r.eng.EvaluateWin()
			}
			r.endGameLocked(EndAllQuit)
			return nil
		}

		wasHost := p.IsHost
		if r.eng != nil {
			r.eng.MarkDead(playerID)
		}
		if wasHost && leaveType == "withParty" {
			r.broadcastLocked("gameQuit", map[string]any{
				"quitBy": p.Name,
				"reason": "host_left_with_party",
			})
			if r.eng != nil {
				r.eng.EvaluateWin()
			}
			r.endGameLocked(EndHostQuitNoPlayers)
			return nil
		}

		r.removeMemberLocked(playerID)
		r.broadcastLocked("playerQuit", map[string]any{
			"playerName": p.Name,
			"reason":     "quit",
			"wasHost":    wasHost,
			"players":    r.rosterLocked(),
		})
		if wasHost {
			r.electHostLocked()
		}
		if len(r.participants) == 0 {
			r.endGameLocked(EndAllQuit)
		} else if r.st != nil && r.st.Started() && r.connectedCountLocked() <= 1 {
			r.eng.EvaluateWin()
			r.endGameLocked(EndAllQuit)
		}
		publish = true
		return nil
	}()
	if publish {
		r.mgr.publishPublicRooms()
	}
	return err
}

// HandleDisconnect reacts to a dropped connection per phase and mode.
func (r *Room) HandleDisconnect(playerID string) {
	publish := false
	func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		p := r.participants[playerID]
		if p == nil || r.disposed {
			return
		}
		p.Client = nil
		p.Disconnected = true
		p.DisconnectedAtMs = r.now()
		r.log.Info("player disconnected", zap.String("player", playerID))

		started := r.st != nil && r.st.Started()

		if r.mode == game.ModeMulti && !started {
			// Lobby/Ready: hold the seat for the grace window.
			grace := r.mgr.cfg.Game.DisconnectGrace
			p.disconnectTimer = time.AfterFunc(grace, func() { r.dropAfterGrace(playerID) })
			return
		}

		if r.mode == game.ModeMulti {
			wasHost := p.IsHost
			r.eng.MarkDead(playerID)
			r.mgr.dropToken(p.Token)
			p.Token = ""
			r.broadcastLocked("playerLeft", map[string]any{
				"playerName": p.Name,
				"reason":     "disconnected",
				"wasHost":    wasHost,
				"players":    r.rosterLocked(),
			})
			if wasHost {
				r.electHostLocked()
			}
			if r.connectedCountLocked() <= 1 {
				r.eng.EvaluateWin()
				r.endGameLocked(EndAllDisconnected)
			}
			publish = true
			return
		}

		// Solo/single before the clock starts: nothing to freeze, just
		// reclaim the room if the player never comes back.
		if !started {
			grace := r.mgr.cfg.Game.DisconnectGrace
			p.disconnectTimer = time.AfterFunc(grace, func() { r.dropAfterGrace(playerID) })
			return
		}

		// Solo/single: freeze and wait for the token to come back.
		if !r.ended {
			if !r.st.Paused {
				r.st.Paused = true
				r.st.PauseStartMs = r.now()
			}
			r.stopTickerLocked()
			grace := r.mgr.cfg.Game.DisconnectGrace
			p.disconnectTimer = time.AfterFunc(grace, func() { r.endAfterGrace(playerID) })
		}
	}()
	if publish {
		r.mgr.publishPublicRooms()
	}
}

// dropAfterGrace removes a member whose grace window expired. The room
// is reclaimed once no humans remain; NPCs alone cannot keep it alive.
func (r *Room) dropAfterGrace(playerID string) {
	publish := false
	disposed := false
	func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		p := r.participants[playerID]
		if p == nil || !p.Disconnected || r.disposed {
			return
		}
		wasHost := p.IsHost
		r.removeMemberLocked(playerID)
		r.broadcastLocked("playerLeft", map[string]any{
			"playerName": p.Name,
			"reason":     "disconnected",
			"wasHost":    wasHost,
			"players":    r.rosterLocked(),
		})
		if wasHost {
			r.electHostLocked()
		}
		if r.humanCountLocked() == 0 {
			r.disposeLocked()
			disposed = true
			return
		}
		publish = true
	}()
	if disposed {
		r.mgr.removeRoom(r.code)
		return
	}
	if publish {
		r.mgr.publishPublicRooms()
	}
}

// endAfterGrace finishes a solo/single game whose player never returned.
func (r *Room) endAfterGrace(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.participants[playerID]
	if p == nil || !p.Disconnected || r.disposed || r.ended {
		return
	}
	r.eng.MarkDead(playerID)
	r.eng.EvaluateWin()
	r.endGameLocked(EndAllDisconnected)
}

// ---- watchdog kick ------------------------------------------------------

// applyKickLocked completes an inactivity kick: the engine already marked
// the player dead, the room strips membership and reassigns the host.
func (r *Room) applyKickLocked(playerID string) {
	p := r.participants[playerID]
	if p == nil {
		return
	}
	wasHost := p.IsHost
	if p.Client != nil {
		p.Client.Send("playerKicked", map[string]any{
			"reason":  "inactive",
			"message": "Removed from the game for inactivity",
		})
	}
	r.removeMemberLocked(playerID)
	r.broadcastLocked("playerLeft", map[string]any{
		"playerName": p.Name,
		"reason":     "inactive",
		"wasHost":    wasHost,
		"players":    r.rosterLocked(),
	})
	if wasHost {
		r.electHostLocked()
	}
	r.log.Info("player kicked for inactivity", zap.String("player", playerID))
}

// ---- chat / options / public --------------------------------------------

// Chat relays a trimmed, rate-limited message to the room.
func (r *Room) Chat(playerID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.participants[playerID]
	if p == nil {
		return fmt.Errorf("unknown player")
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return fmt.Errorf("empty message")
	}
	if runes := []rune(message); len(runes) > 200 {
		message = string(runes[:200])
	}
	now := r.now()
	interval := int64(r.mgr.cfg.RateLimit.ChatIntervalMs)
	if r.mgr.cfg.RateLimit.Enabled && now-p.lastChatMs < interval {
		return fmt.Errorf("you are sending messages too quickly")
	}
	p.lastChatMs = now
	r.broadcastLocked("chatMessage", map[string]any{
		"playerName": p.Name,
		"message":    message,
		"epochMs":    now,
	})
	return nil
}

// OptionsPatch is a partial game-options update. TimeLimitSet
// distinguishes an explicit null (clear the limit) from an absent field.
type OptionsPatch struct {
	WallMode     *bool
	StrictMode   *bool
	TimeLimitSet bool
	TimeLimit    *int
}

var allowedTimeLimits = map[int]bool{3: true, 5: true, 10: true, 15: true}

// UpdateOptions applies a host-only options change before the game
// starts.
func (r *Room) UpdateOptions(playerID string, patch OptionsPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.participants[playerID]
	if p == nil {
		return fmt.Errorf("unknown player")
	}
	if !p.IsHost {
		return fmt.Errorf("only the host can change game options")
	}
	if r.st != nil {
		return fmt.Errorf("cannot change options after the game has started")
	}
	if patch.TimeLimitSet && patch.TimeLimit != nil && !allowedTimeLimits[*patch.TimeLimit] {
		return fmt.Errorf("time limit must be one of 3, 5, 10 or 15 minutes")
	}
	if patch.WallMode != nil {
		r.opts.WallMode = *patch.WallMode
	}
	if patch.StrictMode != nil {
		r.opts.StrictMode = *patch.StrictMode
	}
	if patch.TimeLimitSet {
		r.opts.TimeLimit = patch.TimeLimit
	}
	r.broadcastLocked("gameOptionsUpdated", map[string]any{"gameOptions": r.opts})
	return nil
}

// SendOptions answers requestGameOptions for one client.
func (r *Room) SendOptions(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p := r.participants[playerID]; p != nil && p.Client != nil {
		p.Client.Send("gameOptionsUpdated", map[string]any{"gameOptions": r.opts})
	}
}

// SendState answers requestGameState: a resync for a bound connection,
// or a token reconnection into a frozen solo/single game.
func (r *Room) SendState(c Client, playerID, token string) error {
	r.mu.Lock()
	p := r.participants[playerID]
	if p == nil && token != "" {
		if byToken := r.byTokenLocked(token); byToken != nil {
			r.mu.Unlock()
			return r.Reattach(c, token)
		}
	}
	defer r.mu.Unlock()
	if p == nil {
		return fmt.Errorf("player not found in room %s", r.code)
	}
	if r.st == nil {
		return fmt.Errorf("no game state for room %s", r.code)
	}
	c.Send("gameStateUpdate", map[string]any{"gameState": r.st})
	return nil
}

// TogglePublic flips or sets the public listing flag. Host only.
func (r *Room) TogglePublic(playerID string, isPublic *bool) error {
	publish := false
	err := func() error {
		r.mu.Lock()
		defer r.mu.Unlock()
		p := r.participants[playerID]
		if p == nil {
			return fmt.Errorf("unknown player")
		}
		if !p.IsHost {
			return fmt.Errorf("only the host can change room visibility")
		}
		if r.mode != game.ModeMulti {
			return fmt.Errorf("only multiplayer rooms can be public")
		}
		if isPublic != nil {
			r.isPublic = *isPublic
		} else {
			r.isPublic = !r.isPublic
		}
		if p.Client != nil {
			p.Client.Send("publicRoomStatus", map[string]any{
				"roomCode": r.code,
				"isPublic": r.isPublic,
			})
		}
		publish = true
		return nil
	}()
	if publish {
		r.mgr.publishPublicRooms()
	}
	return err
}

// publicInfo reports listing eligibility: multi, flagged public, still in
// Lobby, 1..3 players.
func (r *Room) publicInfo() (PublicRoomInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed || r.mode != game.ModeMulti || !r.isPublic {
		return PublicRoomInfo{}, false
	}
	if r.st != nil || r.countdown >= 0 {
		return PublicRoomInfo{}, false
	}
	n := len(r.participants)
	if n < 1 || n > 3 {
		return PublicRoomInfo{}, false
	}
	host := ""
	for _, p := range r.participants {
		if p.IsHost {
			host = p.Name
		}
	}
	return PublicRoomInfo{
		RoomCode:    r.code,
		PlayerCount: n,
		MaxPlayers:  MaxPlayers,
		HostName:    host,
	}, true
}

// ---- end / dispose ------------------------------------------------------

// endGameLocked finalizes the session exactly once: close the session,
// emit gameEnded, stop the ticker and schedule disposal.
func (r *Room) endGameLocked(reason string) {
	if r.ended {
		return
	}
	r.ended = true
	r.stopTickerLocked()
	r.cancelCountdownsLocked()

	var winner *game.Winner
	alive := []string{}
	dead := []string{}
	if r.st != nil {
		winner = r.st.Winner
		for _, id := range r.st.PlayerIDs() {
			p := r.st.Players[id]
			if p.Alive {
				alive = append(alive, p.Name)
			} else {
				dead = append(dead, p.Name)
			}
		}
	}
	r.mgr.sessions.Close(r.session, reason, winner)
	r.broadcastLocked("gameEnded", map[string]any{
		"winner":       winner,
		"gameState":    r.st,
		"gameMode":     modeLabel(r.mode),
		"alivePlayers": alive,
		"deadPlayers":  dead,
		"roomCode":     r.code,
	})
	r.log.Info("game ended", zap.String("reason", reason))

	if r.mode == game.ModeMulti {
		r.cleanupTimer = time.AfterFunc(r.mgr.cfg.Game.RoomCleanupDelay, r.Dispose)
	} else {
		// Solo/single rooms go away immediately; the client keeps its
		// own copy of the final state.
		go r.Dispose()
	}
}

// ForceEnd terminates the room with the given session reason. Used when
// a handler crash leaves the room in an unknown state.
func (r *Room) ForceEnd(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return
	}
	r.endGameLocked(reason)
}

// Dispose tears the room down and removes it from the manager.
func (r *Room) Dispose() {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.disposeLocked()
	r.mu.Unlock()
	r.mgr.removeRoom(r.code)
}

// disposeLocked stops every owned timer and releases all bindings.
func (r *Room) disposeLocked() {
	r.disposed = true
	r.stopTickerLocked()
	r.cancelCountdownsLocked()
	if r.readyTimer != nil {
		r.readyTimer.Stop()
	}
	if r.cleanupTimer != nil {
		r.cleanupTimer.Stop()
	}
	for _, p := range r.participants {
		if p.disconnectTimer != nil {
			p.disconnectTimer.Stop()
		}
		if p.Token != "" {
			r.mgr.dropToken(p.Token)
		}
		if p.Client != nil {
			r.mgr.unbind(p.Client.ID())
		}
	}
	if r.session != nil {
		r.mgr.sessions.Close(r.session, EndRoomDeleted, nil)
	}
	r.log.Info("room disposed")
}

func (r *Room) cancelCountdownsLocked() {
	if r.countdownCancel != nil {
		close(r.countdownCancel)
		r.countdownCancel = nil
	}
	r.countdown = -1
	if r.resumeCancel != nil {
		close(r.resumeCancel)
		r.resumeCancel = nil
	}
	r.resumeCount = -1
}

// ---- helpers ------------------------------------------------------------

func (r *Room) byTokenLocked(token string) *Participant {
	for _, p := range r.participants {
		if p.Token != "" && p.Token == token {
			return p
		}
	}
	return nil
}

// removeMemberLocked strips membership, token and binding. Game state is
// untouched; the dead snake stays on the board.
func (r *Room) removeMemberLocked(playerID string) {
	p := r.participants[playerID]
	if p == nil {
		return
	}
	if p.disconnectTimer != nil {
		p.disconnectTimer.Stop()
	}
	if p.Token != "" {
		r.mgr.dropToken(p.Token)
	}
	if p.Client != nil {
		r.mgr.unbind(p.Client.ID())
	}
	delete(r.participants, playerID)
	delete(r.ready, playerID)
	for i, id := range r.order {
		if id == playerID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// electHostLocked promotes a new host: random among humans once the game
// has started, first joined in the lobby.
func (r *Room) electHostLocked() {
	var candidates []*Participant
	for _, id := range r.order {
		p := r.participants[id]
		if p != nil && p.Kind == game.KindHuman {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return
	}
	var next *Participant
	if r.st != nil && r.st.Started() {
		next = candidates[r.rng.Intn(len(candidates))]
	} else {
		next = candidates[0]
	}
	for _, p := range r.participants {
		p.IsHost = p == next
	}
	if r.st != nil {
		r.st.SetHost(next.ID)
	}
	r.broadcastLocked("hostChanged", map[string]any{
		"newHostId":   next.ID,
		"newHostName": next.Name,
	})
	r.log.Info("host changed", zap.String("host", next.ID))
}

func (r *Room) humanCountLocked() int {
	n := 0
	for _, p := range r.participants {
		if p.Kind == game.KindHuman {
			n++
		}
	}
	return n
}

func (r *Room) connectedCountLocked() int {
	n := 0
	for _, p := range r.participants {
		if p.Kind == game.KindHuman && p.Client != nil {
			n++
		}
	}
	return n
}

func (r *Room) rosterLocked() []map[string]any {
	out := make([]map[string]any, 0, len(r.order))
	for _, id := range r.order {
		p := r.participants[id]
		if p == nil {
			continue
		}
		out = append(out, map[string]any{
			"playerId":   p.ID,
			"playerName": p.Name,
			"isHost":     p.IsHost,
			"kind":       p.Kind,
		})
	}
	return out
}

func (r *Room) broadcastLocked(event string, payload any) {
	for _, p := range r.participants {
		if p.Client != nil {
			p.Client.Send(event, payload)
		}
	}
}
