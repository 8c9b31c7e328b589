package room

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/snakearena/server/internal/game"
)

// Session end reasons.
const (
	EndWinnerDeclared           = "winner_declared"
	EndTimeout                  = "timeout"
	EndPlayerInactive           = "player_inactive"
	EndPlayerInactiveDisconnect = "player_inactive_disconnected"
	EndAllDisconnected          = "all_players_disconnected"
	EndHostQuitNoPlayers        = "host_quit_no_players"
	EndAllQuit                  = "all_players_quit"
	EndRoomDeleted              = "room_deleted"
	EndRoomNotFound             = "room_not_found"
	EndGameEnded                = "game_ended"
	EndCrashed                  = "crashed"
)

// Session is one game instance from countdown completion to termination.
type Session struct {
	ID          string
	RoomCode    string
	Mode        game.Mode
	StartMs     int64
	EndMs       int64
	EndReason   string
	WinnerName  string
	WinnerScore int
	HasWinner   bool
}

// HistoryEntry is the wire shape served by requestSessionHistory.
type HistoryEntry struct {
	SessionID       string `json:"sessionId"`
	RoomCode        string `json:"roomCode"`
	GameMode        string `json:"gameMode"`
	WinnerName      string `json:"winnerName,omitempty"`
	WinnerScore     int    `json:"winnerScore,omitempty"`
	DurationSeconds int64  `json:"durationSeconds"`
	IsActive        bool   `json:"isActive"`
}

// SessionRegistry tracks all game sessions in memory. Sessions are
// write-rare, read on history queries; a single mutex suffices.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	log      *zap.Logger

	// roomActive reports whether a room still exists with a live ticker
	// and a started clock. Set by the manager before the sweeper runs.
	roomActive func(code string) bool
	roomExists func(code string) bool

	now func() int64
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry(log *zap.Logger, now func() int64) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
		log:      log,
		now:      now,
	}
}

// Open records a new session. The id is DDMMYY/HH:MM of the start time;
// a numeric suffix keeps ids unique when two sessions start in the same
// minute.
func (r *SessionRegistry) Open(roomCode string, mode game.Mode) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	base := time.UnixMilli(now).Format("020106/15:04")
	id := base
	for n := 2; ; n++ {
		if _, exists := r.sessions[id]; !exists {
			break
		}
		id = fmt.Sprintf("%s#%d", base, n)
	}
	s := &Session{ID: id, RoomCode: roomCode, Mode: mode, StartMs: now}
	r.sessions[id] = s
	r.log.Info("session opened",
		zap.String("session", id),
		zap.String("room", roomCode),
		zap.String("mode", string(mode)))
	return s
}

// Close finalizes a session with a terminal reason. Closing twice keeps
// the first reason.
func (r *SessionRegistry) Close(s *Session, reason string, winner *game.Winner) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.EndMs > 0 {
		return
	}
	s.EndMs = r.now()
	s.EndReason = reason
	if winner != nil {
		s.WinnerName = winner.Name
		s.WinnerScore = winner.Score
		s.HasWinner = true
	}
	r.log.Info("session closed",
		zap.String("session", s.ID),
		zap.String("room", s.RoomCode),
		zap.String("reason", reason))
}

// SetRoomProbes wires the room-liveness checks used by History and the
// sweeper.
func (r *SessionRegistry) SetRoomProbes(exists, active func(code string) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roomExists = exists
	r.roomActive = active
}

// History returns the five most recently started sessions. Entries are
// snapshotted under the registry lock; the room liveness probe runs
// after it is released, because rooms take their own lock inside the
// probe and may be closing a session at the same time.
func (r *SessionRegistry) History() []HistoryEntry {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartMs > all[j].StartMs })
	if len(all) > 5 {
		all = all[:5]
	}

	now := r.now()
	out := make([]HistoryEntry, 0, len(all))
	open := make([]bool, 0, len(all))
	for _, s := range all {
		end := s.EndMs
		if end == 0 {
			end = now
		}
		e := HistoryEntry{
			SessionID:       s.ID,
			RoomCode:        s.RoomCode,
			GameMode:        modeLabel(s.Mode),
			DurationSeconds: (end - s.StartMs) / 1000,
		}
		if s.HasWinner {
			e.WinnerName = s.WinnerName
			e.WinnerScore = s.WinnerScore
		}
		out = append(out, e)
		open = append(open, s.EndMs == 0)
	}
	active := r.roomActive
	r.mu.Unlock()

	for i := range out {
		if open[i] && active != nil && active(out[i].RoomCode) {
			out[i].IsActive = true
		}
	}
	return out
}

// Sweep closes orphaned sessions: rooms gone without a recorded end, and
// sessions running past 24 h.
func (r *SessionRegistry) Sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, s := range r.sessions {
		if s.EndMs > 0 {
			continue
		}
		switch {
		case r.roomExists != nil && !r.roomExists(s.RoomCode):
			s.EndMs = now
			s.EndReason = EndRoomDeleted
			r.log.Warn("session closed by sweeper",
				zap.String("session", s.ID),
				zap.String("reason", s.EndReason))
		case now-s.StartMs >= 24*60*60*1000:
			s.EndMs = now
			s.EndReason = EndTimeout
			r.log.Warn("session closed by sweeper",
				zap.String("session", s.ID),
				zap.String("reason", s.EndReason))
		}
	}
}

// RunSweeper sweeps every 30 s until stop is closed.
func (r *SessionRegistry) RunSweeper(stop <-chan struct{}) {
	t := time.NewTicker(30 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			r.Sweep()
		}
	}
}

// modeLabel maps the internal mode to its wire spelling.
func modeLabel(m game.Mode) string {
	if m == game.ModeSingle {
		return "single-player"
	}
	return string(m)
}
