package gateway

import (
	"encoding/json"

	"go.uber.org/zap"
)

type joinRoomMsg struct {
	PlayerName    string `json:"playerName"`
	RoomCode      string `json:"roomCode"`
	ControlScheme string `json:"controlScheme"`
	PlayerToken   string `json:"playerToken"`
}

// HandleJoinRoom joins (or creates) a multi room, or reconnects a known
// token during the Ready phase.
func HandleJoinRoom(c *Conn, payload json.RawMessage, deps *Deps) {
	var msg joinRoomMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.Send("joinError", map[string]any{"message": "malformed joinRoom payload"})
		return
	}
	if len(msg.PlayerName) > 20 {
		c.Send("joinError", map[string]any{"message": "name must be at most 20 characters"})
		return
	}
	if err := deps.Rooms.Join(c, msg.PlayerName, msg.RoomCode, msg.ControlScheme, msg.PlayerToken); err != nil {
		deps.Log.Debug("join rejected",
			zap.String("room", msg.RoomCode),
			zap.Error(err))
		c.Send("joinError", map[string]any{"message": err.Error()})
	}
}
