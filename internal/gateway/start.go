package gateway

import (
	"encoding/json"

	"github.com/snakearena/server/internal/game"
	"github.com/snakearena/server/internal/room"
)

type startGameMsg struct {
	RoomCode string `json:"roomCode"`
}

// HandleStartGame moves a multi room into the Ready phase. Host only.
func HandleStartGame(c *Conn, payload json.RawMessage, deps *Deps) {
	r, playerID, ok := resolve(c, deps)
	if !ok {
		return
	}
	if err := r.StartMulti(playerID); err != nil {
		c.Send("error", map[string]any{"message": err.Error()})
	}
}

type startSinglePlayerMsg struct {
	PlayerName    string           `json:"playerName"`
	NpcCount      int              `json:"npcCount"`
	GameMode      string           `json:"gameMode"`
	PlayerToken   string           `json:"playerToken"`
	ControlScheme string           `json:"controlScheme"`
	GameOptions   game.Options     `json:"gameOptions"`
	NpcConfigs    []room.NpcConfig `json:"npcConfigs"`
}

// HandleStartSinglePlayer creates and starts a solo/single room, or
// reconnects into one by token.
func HandleStartSinglePlayer(c *Conn, payload json.RawMessage, deps *Deps) {
	var msg startSinglePlayerMsg
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.Send("error", map[string]any{"message": "malformed startSinglePlayer payload"})
		return
	}
	if len(msg.PlayerName) > 20 {
		c.Send("error", map[string]any{"message": "name must be at most 20 characters"})
		return
	}
	err := deps.Rooms.StartSinglePlayer(c, room.SingleStartRequest{
		PlayerName:    msg.PlayerName,
		NpcCount:      msg.NpcCount,
		GameMode:      msg.GameMode,
		PlayerToken:   msg.PlayerToken,
		ControlScheme: msg.ControlScheme,
		Options:       msg.GameOptions,
		NpcConfigs:    msg.NpcConfigs,
	})
	if err != nil {
		c.Send("error", map[string]any{"message": err.Error()})
	}
}

// resolve maps a connection to its room-player binding, reporting an
// error to the client when there is none.
func resolve(c *Conn, deps *Deps) (*room.Room, string, bool) {
	r, playerID, ok := deps.Rooms.Lookup(c.ID())
	if !ok {
		c.Send("error", map[string]any{"message": "not in a room"})
		return nil, "", false
	}
	return r, playerID, true
}
