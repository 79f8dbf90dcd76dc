package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/mkpazon/TmiK/internal/config"
	"github.com/mkpazon/TmiK/internal/jwt"
	"github.com/mkpazon/TmiK/internal/plugins"
	"github.com/mkpazon/TmiK/pkg/sdk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// a client that stops reading is dropped after this long
const writeTimeout = 10 * time.Second

// Gateway is what the server needs from the plugin container.
type Gateway interface {
	sdk.Scope
	Plugins() []sdk.Plugin
}

// StateReader reports the last known connection state.
type StateReader interface {
	State() sdk.ConnectionState
}

type Server struct {
	log   *zap.Logger
	gw    Gateway
	state StateReader
	r     *chi.Mux

	mu  sync.RWMutex
	jwt *jwt.Validator
}

func New(cfg *config.Config, log *zap.Logger, gw Gateway, state StateReader, gatherer prometheus.Gatherer) *Server {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	s := &Server{log: log, gw: gw, state: state, r: r}
	s.Reload(cfg)
	s.routes(gatherer)
	return s
}

func (s *Server) Router() http.Handler { return s.r }

// Reload swaps config and rebuilds the token validator.
func (s *Server) Reload(cfg *config.Config) {
	v, err := jwt.NewValidator(cfg.Auth.JWTPublicKeys, cfg.Auth.Issuer, cfg.Auth.Audience)
	if err != nil {
		s.log.Warn("jwt keys not loaded; authenticated routes will reject", zap.Error(err))
	}
	s.mu.Lock()
	s.jwt = v
	s.mu.Unlock()
}

func (s *Server) validator() *jwt.Validator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jwt
}

type sendRequest struct {
	Raw string `json:"raw"`
}

func (s *Server) routes(gatherer prometheus.Gatherer) {
	s.r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if gatherer != nil {
		s.r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	s.r.Get("/v1/info", s.auth(func(w http.ResponseWriter, r *http.Request) {
		names := []string{}
		for _, p := range s.gw.Plugins() {
			names = append(names, plugins.PluginName(p))
		}
		resp := map[string]any{
			"name":    "tmik-gateway",
			"time":    time.Now().UTC(),
			"state":   s.state.State().String(),
			"plugins": names,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))

	s.r.Post("/v1/send", s.auth(func(w http.ResponseWriter, r *http.Request) {
		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Raw) == "" {
			http.Error(w, "body must be {\"raw\": \"...\"}", http.StatusBadRequest)
			return
		}
		if err := s.gw.SendRaw(r.Context(), req.Raw); err != nil {
			s.log.Warn("send failed", zap.Error(err))
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))

	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s.r.Get("/v1/events", s.auth(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warn("ws upgrade failed", zap.Error(err))
			return
		}
		s.bridge(conn)
	}))
}

// bridge streams the container's messages to the client and sends every
// text frame the client writes through the container.
func (s *Server) bridge(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	stream := s.gw.Messages()

	go func() {
		defer func() {
			stream.Close()
			_ = conn.Close()
		}()
		for {
			msg, err := stream.Next(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					s.log.Debug("ws stream ended", zap.Error(err))
				}
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				s.log.Debug("ws write error", zap.Error(err))
				cancel()
				return
			}
		}
	}()

	defer cancel()
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		raw := strings.TrimRight(string(data), "\r\n")
		if raw == "" {
			continue
		}
		if err := s.gw.SendRaw(ctx, raw); err != nil {
			s.log.Warn("ws send failed", zap.Error(err))
		}
	}
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := r.Header.Get("Authorization")
		if tok == "" {
			tok = r.URL.Query().Get("access_token")
		}
		if tok == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		tok = strings.TrimPrefix(tok, "Bearer ")
		if _, err := s.validator().Verify(tok); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
