package gateway

import (
	"encoding/json"
	"strconv"

	"github.com/snakearena/server/internal/room"
)

type togglePublicRoomMsg struct {
	RoomCode string `json:"roomCode"`
	IsPublic *bool  `json:"isPublic"`
}

// HandleTogglePublicRoom flips or sets the public listing flag.
func HandleTogglePublicRoom(c *Conn, payload json.RawMessage, deps *Deps) {
	var msg togglePublicRoomMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.Send("error", map[string]any{"message": "malformed togglePublicRoom payload"})
		return
	}
	r, playerID, ok := resolve(c, deps)
	if !ok {
		return
	}
	if err := r.TogglePublic(playerID, msg.IsPublic); err != nil {
		c.Send("publicRoomStatus", map[string]any{
			"roomCode": r.Code(),
			"error":    err.Error(),
		})
	}
}

// HandleRequestPublicRooms answers with the current public listing.
func HandleRequestPublicRooms(c *Conn, payload json.RawMessage, deps *Deps) {
	c.Send("publicRoomsUpdated", map[string]any{"rooms": deps.Rooms.PublicRooms()})
}

// HandleRequestSessionHistory answers with the five most recent sessions.
func HandleRequestSessionHistory(c *Conn, payload json.RawMessage, deps *Deps) {
	c.Send("sessionHistory", map[string]any{"sessions": deps.Rooms.Sessions().History()})
}

type updateGameOptionsMsg struct {
	RoomCode    string `json:"roomCode"`
	GameOptions struct {
		WallMode   *bool           `json:"wallMode"`
		StrictMode *bool           `json:"strictMode"`
		TimeLimit  json.RawMessage `json:"timeLimit"`
	} `json:"gameOptions"`
}

// HandleUpdateGameOptions applies a host-only options change. An explicit
// timeLimit null clears the limit; an absent field leaves it untouched.
func HandleUpdateGameOptions(c *Conn, payload json.RawMessage, deps *Deps) {
	var msg updateGameOptionsMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.Send("error", map[string]any{"message": "malformed updateGameOptions payload"})
		return
	}
	r, playerID, ok := resolve(c, deps)
	if !ok {
		return
	}

	patch := room.OptionsPatch{
		WallMode:   msg.GameOptions.WallMode,
		StrictMode: msg.GameOptions.StrictMode,
	}
	if raw := msg.GameOptions.TimeLimit; len(raw) > 0 {
		patch.TimeLimitSet = true
		if string(raw) != "null" {
			n, err := strconv.Atoi(string(raw))
			if err != nil {
				c.Send("error", map[string]any{"message": "timeLimit must be a number or null"})
				return
			}
			patch.TimeLimit = &n
		}
	}
	if err := r.UpdateOptions(playerID, patch); err != nil {
		c.Send("error", map[string]any{"message": err.Error()})
	}
}

// HandleRequestGameOptions answers with the room's current options.
func HandleRequestGameOptions(c *Conn, payload json.RawMessage, deps *Deps) {
	r, playerID, ok := resolve(c, deps)
	if !ok {
		return
	}
	r.SendOptions(playerID)
}
