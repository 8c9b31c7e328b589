package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeTimeout  = 10 * time.Second
	sendQueueSize = 64
)

// envelope is the wire frame in both directions.
type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outEnvelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

// Conn wraps one WebSocket connection. Writes go through a buffered
// queue drained by a single writer goroutine; Send serializes the
// payload at call time so room state is snapshotted under the room lock.
type Conn struct {
	id  string
	ws  *websocket.Conn
	log *zap.Logger

	sendCh    chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(ws *websocket.Conn, log *zap.Logger) *Conn {
	c := &Conn{
		id:     uuid.NewString(),
		ws:     ws,
		log:    log,
		sendCh: make(chan []byte, sendQueueSize),
		closed: make(chan struct{}),
	}
	go c.writePump()
	return c
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// Send marshals and queues one event. A full queue drops the frame; the
// next gameStateUpdate resynchronizes the client.
func (c *Conn) Send(event string, payload any) {
	data, err := json.Marshal(outEnvelope{Event: event, Payload: payload})
	if err != nil {
		c.log.Error("marshal outbound event",
			zap.String("event", event),
			zap.Error(err))
		return
	}
	select {
	case <-c.closed:
	case c.sendCh <- data:
	default:
		c.log.Warn("outbound queue full, dropping frame",
			zap.String("conn", c.id),
			zap.String("event", event))
	}
}

func (c *Conn) writePump() {
	for {
		select {
		case <-c.closed:
			return
		case data := <-c.sendCh:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Close shuts the connection down. Idempotent.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.ws.Close()
	})
}
