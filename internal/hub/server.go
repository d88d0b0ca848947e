package hub

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/faderhub/faderhub/internal/config"
)

// Server binds the hub to an HTTP listener: the WebSocket endpoint, a
// health check, and graceful shutdown. It is the explicit context object
// owning the hub; there is no package-level state.
type Server struct {
	cfg *config.Config
	hub *Hub

	httpServer *http.Server
	upgrader   websocket.Upgrader

	allowedOrigins map[string]struct{}
	allowAll       bool
}

// NewServer wires a hub into an HTTP server using the given configuration.
func NewServer(cfg *config.Config, h *Hub) *Server {
	s := &Server{cfg: cfg, hub: h}
	s.allowedOrigins, s.allowAll = normalizeOrigins(cfg.AllowedOrigins)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the server's route mux. Exposed for tests that serve it
// from httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "faderhub is running")
}

// handleWebSocket upgrades the connection and registers the new client with
// the hub, which launches the pumps and sends the full-state snapshot.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "websocket endpoint only accepts GET", http.StatusMethodNotAllowed)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, s.cfg.MaxMessageSize, rateConfig{
		burst:  s.cfg.RateBurst,
		refill: s.cfg.RateRefill,
	})
	s.hub.register <- client
}

// Run serves until ctx is cancelled, then shuts the listener and the hub
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.hub.Run()
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", s.httpServer.Addr).Msg("listening for client connections")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "serving HTTP")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.shutdown()
		return nil
	})
	return g.Wait()
}

func (s *Server) shutdown() {
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown error")
	}
	if err := s.hub.Shutdown(s.cfg.ShutdownTimeout); err != nil {
		log.Warn().Err(err).Msg("hub shutdown error")
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.allowAll {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients (the CLI, tests) send no Origin header.
		return true
	}
	normalized, ok := normalizeOrigin(origin)
	if !ok {
		return false
	}
	if _, exists := s.allowedOrigins[normalized]; exists {
		return true
	}
	log.Warn().Str("origin", origin).Msg("blocked connection from disallowed origin")
	return false
}

func normalizeOrigins(origins []string) (map[string]struct{}, bool) {
	allowed := make(map[string]struct{}, len(origins))
	allowAll := false
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			allowAll = true
			continue
		}
		if normalized, ok := normalizeOrigin(trimmed); ok {
			allowed[normalized] = struct{}{}
		} else {
			log.Warn().Str("origin", origin).Msg("ignoring invalid origin in configuration")
		}
	}
	return allowed, allowAll
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
