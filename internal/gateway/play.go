package gateway

import (
	"encoding/json"

	"github.com/snakearena/server/internal/grid"
)

// HandlePlayerReady records a ready signal during the Ready phase.
func HandlePlayerReady(c *Conn, payload json.RawMessage, deps *Deps) {
	r, playerID, ok := resolve(c, deps)
	if !ok {
		return
	}
	if err := r.Ready(playerID); err != nil {
		c.Send("error", map[string]any{"message": err.Error()})
	}
}

type playerInputMsg struct {
	RoomCode  string `json:"roomCode"`
	Direction string `json:"direction"`
}

// HandlePlayerInput queues a direction change.
func HandlePlayerInput(c *Conn, payload json.RawMessage, deps *Deps) {
	var msg playerInputMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.Send("inputRejected", map[string]any{"reason": "malformed playerInput payload"})
		return
	}
	r, playerID, ok := resolve(c, deps)
	if !ok {
		return
	}
	if err := r.Input(playerID, grid.Direction(msg.Direction)); err != nil {
		c.Send("inputRejected", map[string]any{"reason": err.Error()})
	}
}

// HandlePauseGame pauses the running game.
func HandlePauseGame(c *Conn, payload json.RawMessage, deps *Deps) {
	r, playerID, ok := resolve(c, deps)
	if !ok {
		return
	}
	if err := r.Pause(playerID); err != nil {
		c.Send("pauseError", map[string]any{"message": err.Error()})
	}
}

// HandleResumeGame starts the resume countdown.
func HandleResumeGame(c *Conn, payload json.RawMessage, deps *Deps) {
	r, playerID, ok := resolve(c, deps)
	if !ok {
		return
	}
	if err := r.Resume(playerID); err != nil {
		c.Send("resumeError", map[string]any{"message": err.Error()})
	}
}

type requestGameStateMsg struct {
	RoomCode    string `json:"roomCode"`
	PlayerToken string `json:"playerToken"`
}

// HandleRequestGameState resyncs a client, or reconnects a solo/single
// player by token.
func HandleRequestGameState(c *Conn, payload json.RawMessage, deps *Deps) {
	var msg requestGameStateMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.Send("gameStateError", map[string]any{"message": "malformed requestGameState payload"})
		return
	}
	r, playerID, bound := deps.Rooms.Lookup(c.ID())
	if !bound {
		byCode, ok := deps.Rooms.RoomByCode(msg.RoomCode)
		if !ok {
			c.Send("gameStateError", map[string]any{
				"message":  "room not found",
				"roomCode": msg.RoomCode,
			})
			return
		}
		r = byCode
	}
	if err := r.SendState(c, playerID, msg.PlayerToken); err != nil {
		c.Send("gameStateError", map[string]any{
			"message":  err.Error(),
			"roomCode": msg.RoomCode,
		})
	}
}

type quitGameMsg struct {
	RoomCode  string `json:"roomCode"`
	LeaveType string `json:"leaveType"` // "alone" or "withParty"
}

// HandleQuitGame removes a player on their own request.
func HandleQuitGame(c *Conn, payload json.RawMessage, deps *Deps) {
	var msg quitGameMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.Send("error", map[string]any{"message": "malformed quitGame payload"})
		return
	}
	r, playerID, ok := resolve(c, deps)
	if !ok {
		return
	}
	if err := r.Quit(playerID, msg.LeaveType); err != nil {
		c.Send("error", map[string]any{"message": err.Error()})
	}
}
