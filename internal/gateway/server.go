package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/snakearena/server/internal/config"
	"github.com/snakearena/server/internal/room"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The game is served from the same origin; cross-origin clients
		// are expected during development.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// ipRateLimiter tracks last connection time per IP to prevent abuse.
type ipRateLimiter struct {
	mu       sync.Mutex
	times    map[string]time.Time
	interval time.Duration
}

func newIPRateLimiter(perMinute int, stop <-chan struct{}) *ipRateLimiter {
	rl := &ipRateLimiter{
		times:    make(map[string]time.Time),
		interval: time.Minute / time.Duration(perMinute),
	}
	go func() {
		t := time.NewTicker(time.Minute)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				rl.mu.Lock()
				cutoff := time.Now().Add(-rl.interval)
				for ip, at := range rl.times {
					if at.Before(cutoff) {
						delete(rl.times, ip)
					}
				}
				rl.mu.Unlock()
			}
		}
	}()
	return rl
}

// allow reports whether this IP may connect and records the attempt.
func (rl *ipRateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if last, ok := rl.times[ip]; ok && time.Since(last) < rl.interval {
		return false
	}
	rl.times[ip] = time.Now()
	return true
}

// Server is the WebSocket and HTTP front of the game. It owns the
// connection table and translates frames to room calls via the registry.
type Server struct {
	cfg   *config.Config
	rooms *room.Manager
	reg   *Registry
	deps  *Deps
	log   *zap.Logger

	mu      sync.RWMutex
	conns   map[string]*Conn
	limiter *ipRateLimiter
	httpSrv *http.Server
	stop    chan struct{}
}

// NewServer wires the gateway: registry, rate limiter and the global
// broadcaster the room manager uses for publicRoomsUpdated.
func NewServer(cfg *config.Config, rooms *room.Manager, log *zap.Logger) *Server {
	s := &Server{
		cfg:   cfg,
		rooms: rooms,
		log:   log,
		conns: make(map[string]*Conn),
		stop:  make(chan struct{}),
	}
	s.deps = &Deps{Config: cfg, Rooms: rooms, Log: log}
	s.reg = NewRegistry(log)
	RegisterAll(s.reg, s.deps)
	if cfg.RateLimit.Enabled {
		s.limiter = newIPRateLimiter(cfg.RateLimit.ConnectionsPerMinute, s.stop)
	}
	rooms.SetBroadcaster(s.BroadcastAll)
	return s
}

// Run serves HTTP and WebSocket traffic until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/server-info", s.handleServerInfo)
	mux.Handle("/", http.FileServer(http.Dir(s.cfg.Server.StaticDir)))

	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("gateway listening", zap.Int("port", s.cfg.Server.Port))
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	close(s.stop)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.httpSrv.Shutdown(shutdownCtx)

	s.mu.Lock()
	for _, c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	return err
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ip := r.Header.Get("X-Forwarded-For")
	if ip == "" {
		ip, _, _ = net.SplitHostPort(r.RemoteAddr)
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	// Limits are checked after the upgrade so the client can receive the
	// rejection message.
	if s.limiter != nil && !s.limiter.allow(ip) {
		data, _ := json.Marshal(outEnvelope{
			Event:   "error",
			Payload: map[string]any{"message": "too many connections, please wait"},
		})
		_ = ws.WriteMessage(websocket.TextMessage, data)
		ws.Close()
		return
	}

	c := newConn(ws, s.log)
	s.mu.Lock()
	s.conns[c.ID()] = c
	s.mu.Unlock()
	s.log.Info("connection opened", zap.String("conn", c.ID()), zap.String("ip", ip))

	c.Send("featureFlags", map[string]any{
		"chat":          s.cfg.Features.Chat,
		"powerups":      s.cfg.Features.Powerups,
		"accessibility": s.cfg.Features.Accessibility,
	})

	go s.readLoop(c)
}

// readLoop pumps inbound frames from one connection until it closes.
func (s *Server) readLoop(c *Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, c.ID())
		s.mu.Unlock()
		c.Close()
		s.rooms.HandleDisconnect(c.ID())
		s.log.Info("connection closed", zap.String("conn", c.ID()))
	}()

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("read error", zap.String("conn", c.ID()), zap.Error(err))
			}
			return
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.log.Debug("malformed frame", zap.String("conn", c.ID()), zap.Error(err))
			continue
		}
		s.reg.Dispatch(c, env.Event, env.Payload, s.deps)
	}
}

// BroadcastAll fans one event out to every open connection.
func (s *Server) BroadcastAll(event string, payload any) {
	s.mu.RLock()
	conns := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()
	for _, c := range conns {
		c.Send(event, payload)
	}
}
