package gateway

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/snakearena/server/internal/config"
	"github.com/snakearena/server/internal/room"
)

// Deps holds shared dependencies injected into all event handlers.
type Deps struct {
	Config *config.Config
	Rooms  *room.Manager
	Log    *zap.Logger
}

// HandlerFunc is the callback signature for inbound events.
type HandlerFunc func(c *Conn, payload json.RawMessage, deps *Deps)

// Registry maps event names to handlers.
type Registry struct {
	handlers map[string]HandlerFunc
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
		log:      log,
	}
}

// Register maps an event name to a handler.
func (reg *Registry) Register(event string, fn HandlerFunc) {
	reg.handlers[event] = fn
}

// Dispatch routes one inbound frame. Unknown events are ignored; handler
// panics are contained so one bad message cannot take the gateway down.
func (reg *Registry) Dispatch(c *Conn, event string, payload json.RawMessage, deps *Deps) {
	fn, ok := reg.handlers[event]
	if !ok {
		reg.log.Debug("unknown event",
			zap.String("conn", c.ID()),
			zap.String("event", event))
		return
	}
	reg.safeCall(fn, c, event, payload, deps)
}

func (reg *Registry) safeCall(fn HandlerFunc, c *Conn, event string, payload json.RawMessage, deps *Deps) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("handler panic recovered",
				zap.String("event", event),
				zap.Any("panic", rec))
			c.Send("error", map[string]any{
				"message": "internal server error",
				"reason":  "crashed",
			})
			// The room's state is suspect after a crash mid-mutation.
			if deps != nil {
				if r, _, ok := deps.Rooms.Lookup(c.ID()); ok {
					r.ForceEnd(room.EndCrashed)
				}
			}
		}
	}()
	fn(c, payload, deps)
}

// RegisterAll wires every inbound event to its handler.
func RegisterAll(reg *Registry, deps *Deps) {
	reg.Register("joinRoom", HandleJoinRoom)
	reg.Register("startGame", HandleStartGame)
	reg.Register("startSinglePlayer", HandleStartSinglePlayer)
	reg.Register("playerReady", HandlePlayerReady)
	reg.Register("requestGameState", HandleRequestGameState)
	reg.Register("playerInput", HandlePlayerInput)
	reg.Register("pauseGame", HandlePauseGame)
	reg.Register("resumeGame", HandleResumeGame)
	reg.Register("quitGame", HandleQuitGame)
	reg.Register("chatMessage", HandleChatMessage)
	reg.Register("togglePublicRoom", HandleTogglePublicRoom)
	reg.Register("requestPublicRooms", HandleRequestPublicRooms)
	reg.Register("requestSessionHistory", HandleRequestSessionHistory)
	reg.Register("updateGameOptions", HandleUpdateGameOptions)
	reg.Register("requestGameOptions", HandleRequestGameOptions)
}
