package room

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/snakearena/server/internal/config"
	"github.com/snakearena/server/internal/data"
	"github.com/snakearena/server/internal/game"
	"github.com/snakearena/server/internal/npc"
	"github.com/snakearena/server/internal/scripting"
)

// Client is one connected player as seen by the room layer. Send must be
// safe to call from the room actor; payloads are serialized at call time.
type Client interface {
	ID() string
	Send(event string, payload any)
}

// NpcConfig is a caller-supplied NPC for startSinglePlayer.
type NpcConfig struct {
	Name       string      `json:"name"`
	Difficulty string      `json:"difficulty"`
	Profile    string      `json:"profile"`
	Sliders    npc.Sliders `json:"sliders"`
}

// SingleStartRequest carries the startSinglePlayer parameters.
type SingleStartRequest struct {
	PlayerName    string
	NpcCount      int
	GameMode      string // "solo" or "single-player"
	PlayerToken   string
	ControlScheme string
	Options       game.Options
	NpcConfigs    []NpcConfig
}

// PublicRoomInfo is one entry of the public-room listing.
type PublicRoomInfo struct {
	RoomCode    string `json:"roomCode"`
	PlayerCount int    `json:"playerCount"`
	MaxPlayers  int    `json:"maxPlayers"`
	HostName    string `json:"hostName"`
}

type binding struct {
	code     string
	playerID string
}

// Manager owns the global room, binding and token tables. Rooms serialize
// their own state; the manager only guards the cross-room maps.
type Manager struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	bindings map[string]binding // connID -> room player
	tokens   map[string]binding // playerToken -> room player

	cfg      *config.Config
	npcTable *data.NpcTable
	scripts  *scripting.Engine
	sessions *SessionRegistry
	log      *zap.Logger

	// broadcastAll fans an event out to every connection, joined to a
	// room or not. Wired by the gateway.
	broadcastAll func(event string, payload any)

	now func() int64
}

// NewManager builds the room manager.
func NewManager(cfg *config.Config, npcTable *data.NpcTable, scripts *scripting.Engine, sessions *SessionRegistry, log *zap.Logger) *Manager {
	m := &Manager{
		rooms:    make(map[string]*Room),
		bindings: make(map[string]binding),
		tokens:   make(map[string]binding),
		cfg:      cfg,
		npcTable: npcTable,
		scripts:  scripts,
		sessions: sessions,
		log:      log,
		now:      func() int64 { return time.Now().UnixMilli() },
	}
	sessions.SetRoomProbes(m.roomExists, m.roomActive)
	return m
}

// SetBroadcaster wires the all-connections fan-out used for
// publicRoomsUpdated.
func (m *Manager) SetBroadcaster(fn func(event string, payload any)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcastAll = fn
}

// Join handles joinRoom: reconnect by token when possible, otherwise
// join or create the multi room with the given code.
func (m *Manager) Join(c Client, name, code, controlScheme, token string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return fmt.Errorf("room code is required")
	}
	if strings.HasPrefix(code, "SP") {
		// Solo/single rooms are only reachable through their token.
		if token == "" {
			return fmt.Errorf("room %s is not joinable", code)
		}
	}

	m.mu.Lock()
	r, ok := m.rooms[code]
	if !ok {
		r = m.newRoom(code, game.ModeMulti)
		m.rooms[code] = r
	}
	m.mu.Unlock()

	return r.Join(c, name, controlScheme, token)
}

// StartSinglePlayer handles startSinglePlayer: token reconnection into a
// live solo/single room, or a fresh room started immediately.
func (m *Manager) StartSinglePlayer(c Client, req SingleStartRequest) error {
	if req.PlayerToken != "" {
		m.mu.RLock()
		b, ok := m.tokens[req.PlayerToken]
		r := m.rooms[b.code]
		m.mu.RUnlock()
		if ok && r != nil {
			return r.Reattach(c, req.PlayerToken)
		}
	}

	if req.NpcCount < 0 || req.NpcCount > 3 {
		return fmt.Errorf("npcCount must be between 0 and 3")
	}
	mode := game.ModeSingle
	if req.NpcCount == 0 || req.GameMode == "solo" {
		mode = game.ModeSolo
		req.NpcCount = 0
	}

	m.mu.Lock()
	code := m.newSPCodeLocked()
	r := m.newRoom(code, mode)
	m.rooms[code] = r
	m.mu.Unlock()

	return r.StartSingle(c, req)
}

func (m *Manager) newRoom(code string, mode game.Mode) *Room {
	return newRoom(m, code, mode, rand.New(rand.NewSource(time.Now().UnixNano())))
}

func (m *Manager) newSPCodeLocked() string {
	for {
		code := fmt.Sprintf("SP%06d", rand.Intn(1000000))
		if _, taken := m.rooms[code]; !taken {
			return code
		}
	}
}

// Lookup resolves a connection to its room and player.
func (m *Manager) Lookup(connID string) (*Room, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bindings[connID]
	if !ok {
		return nil, "", false
	}
	r, ok := m.rooms[b.code]
	if !ok {
		return nil, "", false
	}
	return r, b.playerID, true
}

// RoomByCode returns a live room by its code.
func (m *Manager) RoomByCode(code string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[strings.ToUpper(strings.TrimSpace(code))]
	return r, ok
}

// HandleDisconnect routes a closed connection to its room.
func (m *Manager) HandleDisconnect(connID string) {
	r, playerID, ok := m.Lookup(connID)
	m.unbind(connID)
	if ok {
		r.HandleDisconnect(playerID)
	}
}

// Sessions exposes the registry for the history handler.
func (m *Manager) Sessions() *SessionRegistry {
	return m.sessions
}

// PublicRooms returns the current public listing.
func (m *Manager) PublicRooms() []PublicRoomInfo {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	out := []PublicRoomInfo{}
	for _, r := range rooms {
		if info, ok := r.publicInfo(); ok {
			out = append(out, info)
		}
	}
	return out
}

// publishPublicRooms recomputes the listing and fans it out to every
// connection. Called by rooms after any membership or flag mutation.
func (m *Manager) publishPublicRooms() {
	m.mu.RLock()
	fn := m.broadcastAll
	m.mu.RUnlock()
	if fn == nil {
		return
	}
	fn("publicRoomsUpdated", map[string]any{"rooms": m.PublicRooms()})
}

func (m *Manager) bind(connID, code, playerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings[connID] = binding{code: code, playerID: playerID}
}

func (m *Manager) unbind(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bindings, connID)
}

func (m *Manager) registerToken(token, code, playerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = binding{code: code, playerID: playerID}
}

func (m *Manager) dropToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, token)
}

// removeRoom drops a disposed room from the table.
func (m *Manager) removeRoom(code string) {
	m.mu.Lock()
	delete(m.rooms, code)
	m.mu.Unlock()
	m.publishPublicRooms()
}

func (m *Manager) roomExists(code string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[code]
	return ok
}

func (m *Manager) roomActive(code string) bool {
	m.mu.RLock()
	r, ok := m.rooms[code]
	m.mu.RUnlock()
	return ok && r.Active()
}
