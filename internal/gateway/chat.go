package gateway

import (
	"encoding/json"
)

type chatMessageMsg struct {
	RoomCode string `json:"roomCode"`
	Message  string `json:"message"`
}

// HandleChatMessage relays a chat line to the sender's room.
func HandleChatMessage(c *Conn, payload json.RawMessage, deps *Deps) {
	if !deps.Config.Features.Chat {
		c.Send("error", map[string]any{"message": "chat is disabled on this server"})
		return
	}
	var msg chatMessageMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.Send("error", map[string]any{"message": "malformed chatMessage payload"})
		return
	}
	r, playerID, ok := resolve(c, deps)
	if !ok {
		return
	}
	if err := r.Chat(playerID, msg.Message); err != nil {
		c.Send("error", map[string]any{"message": err.Error()})
	}
}
