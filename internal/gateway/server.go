// Package gateway implements spec §6's client-facing WebSocket/HTTP
// surface: one `/ws` endpoint speaking the tagged ClientMessage/Event
// protocol, plus the REST endpoints in internal/httpapi. Adapted from the
// teacher's internal/gateway/server.go, swapping its bare http.ServeMux for
// github.com/go-chi/chi/v5 and its hand-rolled RateLimiter for one built on
// golang.org/x/time/rate (pack: loom/hector both lean on chi for HTTP
// routing).
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/arialabs/aria/internal/agent"
	"github.com/arialabs/aria/internal/bus"
	"github.com/arialabs/aria/internal/config"
	"github.com/arialabs/aria/pkg/protocol"
)

// Server is the gateway's WebSocket + HTTP surface.
type Server struct {
	cfg      *config.Config
	eventPub bus.EventPublisher
	loop     *agent.Loop

	upgrader    websocket.Upgrader
	rateLimiter *RateLimiter

	mu      sync.RWMutex
	clients map[string]*Client

	httpServer *http.Server
	router     chi.Router

	extraRoutes []func(chi.Router)
}

// NewServer builds a Server. loop runs one turn per chat frame; eventPub
// is the bus that proactive/scheduled-item events are broadcast through
// (spec §6 "proactive" delivery fans out to every connected client).
func NewServer(cfg *config.Config, eventPub bus.EventPublisher, loop *agent.Loop) *Server {
	s := &Server{
		cfg:      cfg,
		eventPub: eventPub,
		loop:     loop,
		clients:  make(map[string]*Client),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.rateLimiter = NewRateLimiter(cfg.Gateway.RateLimitRPM)
	return s
}

// AddRoutes registers additional chi routes (internal/httpapi's costs/files
// handlers) before Start builds the mux.
func (s *Server) AddRoutes(register func(chi.Router)) {
	s.extraRoutes = append(s.extraRoutes, register)
}

// checkOrigin validates the WebSocket handshake's Origin header against
// the configured allowlist. No config means allow-all (dev mode); an
// empty Origin header (non-browser clients) is always allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.Gateway.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if origin == a || a == "*" {
			return true
		}
	}
	slog.Warn("gateway: origin rejected", "origin", origin)
	return false
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Get("/ws", s.handleWebSocket)
	r.Get("/health", s.handleHealth)
	for _, register := range s.extraRoutes {
		register(r)
	}
	return r
}

// Start builds the router and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.router = s.buildRouter()
	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}

	slog.Info("gateway: starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway: serve: %w", err)
	}
	return nil
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if token := s.cfg.Gateway.Token; token != "" {
		if r.Header.Get("Authorization") != "Bearer "+token && r.URL.Query().Get("token") != token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("gateway: upgrade failed", "error", err)
		return
	}

	ownerID := r.URL.Query().Get("owner")
	if ownerID == "" {
		ownerID = "anonymous"
	}
	client := NewClient(conn, s, ownerID)
	s.registerClient(client)
	defer func() {
		s.unregisterClient(client)
		client.Close()
	}()
	client.Run(r.Context())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
}

// BroadcastEvent fans out ev to every connected client (spec §6 proactive
// delivery). Nothing in this repository calls it.
func (s *Server) BroadcastEvent(ev protocol.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		c.SendEvent(ev)
	}
}

func (s *Server) registerClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.id] = c
	if s.eventPub != nil {
		s.eventPub.Subscribe(c.id, func(event bus.Event) {
			if ev, ok := event.Payload.(protocol.Event); ok {
				c.SendEvent(ev)
			}
		})
	}
	slog.Info("gateway: client connected", "id", c.id)
}

func (s *Server) unregisterClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.id)
	if s.eventPub != nil {
		s.eventPub.Unsubscribe(c.id)
	}
	slog.Info("gateway: client disconnected", "id", c.id)
}
