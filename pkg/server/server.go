// Package server exposes template rendering over HTTP and websockets.
package server

import (
	"bufio"
	"context"
	"dumbo/pkg/config"
	"dumbo/pkg/engine"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maxTemplateSize = 1 << 20

type Server struct {
	cfg    *config.Config
	mux    *http.ServeMux
	logger zerolog.Logger
}

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func New(cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		mux:    http.NewServeMux(),
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("POST /render", s.authorize(s.handleRender))
	s.mux.HandleFunc("GET /ws", s.authorize(s.handleWebSocket))
	s.mux.HandleFunc("POST /token", s.handleToken)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.requestID(s.mux)
}

func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info().Str("addr", srv.Addr).Bool("auth", s.cfg.Server.JWTSecret != "").Msg("server listening")
	return srv.ListenAndServe()
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTemplateSize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}

	out, err := s.render(r.Context(), "request", string(body))
	if err != nil {
		zerolog.Ctx(r.Context()).Debug().Err(err).Msg("render failed")
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, out)
}

type tokenRequest struct {
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Server.JWTSecret == "" || s.cfg.Server.PasswordHash == "" {
		http.Error(w, "token issuing is disabled", http.StatusNotFound)
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !VerifyPassword(s.cfg.Server.PasswordHash, req.Password) {
		http.Error(w, ErrUnauthorized.Error(), http.StatusUnauthorized)
		return
	}

	ttl, err := s.cfg.TokenTTL()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	token, expiresAt, err := SignToken(map[string]interface{}{"sub": "dumbo"}, s.cfg.Server.JWTSecret, ttl)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tokenResponse{Token: token, ExpiresAt: expiresAt.Unix()})
}

// render runs src against a fresh engine seeded with the configured data
// and vars files.
func (s *Server) render(ctx context.Context, name, src string) (string, error) {
	logger := zerolog.Ctx(ctx)
	if logger.GetLevel() == zerolog.Disabled {
		logger = &s.logger
	}

	e := engine.New(engine.WithLogger(*logger))
	if s.cfg.Vars != "" {
		if err := e.LoadVarsFile(s.cfg.Vars); err != nil {
			return "", err
		}
	}
	if s.cfg.Data != "" {
		if err := e.LoadDataFile(s.cfg.Data); err != nil {
			return "", err
		}
	}
	return e.Render(name, src)
}

// authorize requires a valid bearer token when a JWT secret is configured.
// The token may also be passed as ?token= for clients that cannot set
// headers on a websocket handshake.
func (s *Server) authorize(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		secret := s.cfg.Server.JWTSecret
		if secret == "" {
			next(w, r)
			return
		}

		token := r.URL.Query().Get("token")
		if header := r.Header.Get("Authorization"); header != "" {
			token = strings.TrimPrefix(header, "Bearer ")
		}
		if token == "" {
			http.Error(w, ErrUnauthorized.Error(), http.StatusUnauthorized)
			return
		}
		if _, err := VerifyToken(token, secret); err != nil {
			zerolog.Ctx(r.Context()).Debug().Err(err).Msg("rejected token")
			http.Error(w, ErrUnauthorized.Error(), http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// requestID tags every request with an X-Request-Id, attaches a request
// logger to the context and logs the request once it completes.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		logger := s.logger.With().Str("request_id", id).Logger()
		r = r.WithContext(logger.WithContext(r.Context()))

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}
