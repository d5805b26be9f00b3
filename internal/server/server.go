// Package server implements the docchat HTTP API: login, threads and chat
// turns for every user, and user and document administration for admins.
// The server is started by the `docchat serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/docchat-go/internal/logging"
)

// defaultUploadMaxBytes caps document uploads when no limit is configured.
const defaultUploadMaxBytes = 50 << 20

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

// New constructs a Server from its collaborators and config.
func New(deps Deps, cfg *Config) (*Server, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("server: store must not be nil")
	case deps.Answerer == nil:
		return nil, fmt.Errorf("server: answerer must not be nil")
	case deps.Documents == nil:
		return nil, fmt.Errorf("server: document processor must not be nil")
	case deps.Issuer == nil:
		return nil, fmt.Errorf("server: token issuer must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.UploadMaxBytes <= 0 {
		cfg.UploadMaxBytes = defaultUploadMaxBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewMetrics(cfg.MetricsRegistry)
	}

	s := &Server{
		store:    deps.Store,
		answerer: deps.Answerer,
		docs:     deps.Documents,
		issuer:   deps.Issuer,
		cfg:      cfg,
		log:      cfg.Logger,
		pingers:  cfg.Pingers,
		metrics:  metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger)
	rl.trustProxy = cfg.TrustProxy
	s.stopRL = stopRL

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(cfg.Logger, metrics.instrument(s.routes(rl))),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// routes builds the request multiplexer. Authentication and the admin guard
// are applied per route; the rate limiter covers login and chat turns.
func (s *Server) routes(rl *rateLimiter) *http.ServeMux {
	mux := http.NewServeMux()

	authed := func(h http.HandlerFunc) http.Handler { return s.authenticate(h) }
	admin := func(h http.HandlerFunc) http.Handler { return s.authenticate(requireAdmin(h)) }

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	mux.Handle("POST /api/auth/login", rl.middleware(http.HandlerFunc(s.handleLogin)))
	mux.Handle("GET /api/auth/me", authed(s.handleMe))
	mux.Handle("POST /api/auth/signup", admin(s.handleCreateUser))

	mux.Handle("POST /api/threads", authed(s.handleCreateThread))
	mux.Handle("GET /api/threads", authed(s.handleListThreads))
	mux.Handle("PATCH /api/threads/{id}", authed(s.handleUpdateThread))
	mux.Handle("DELETE /api/threads/{id}", authed(s.handleDeleteThread))

	mux.Handle("POST /api/chat/{threadID}/message", rl.middleware(authed(s.handleSendMessage)))
	mux.Handle("GET /api/chat/{threadID}/messages", authed(s.handleListMessages))
	mux.Handle("GET /api/chat/{threadID}/messages/count", authed(s.handleCountMessages))
	mux.Handle("DELETE /api/chat/messages/{id}", authed(s.handleDeleteMessage))

	mux.Handle("GET /api/admin/users", admin(s.handleListUsers))
	mux.Handle("POST /api/admin/users", admin(s.handleCreateUser))
	mux.Handle("PATCH /api/admin/users/{id}", admin(s.handleUpdateUser))
	mux.Handle("DELETE /api/admin/users/{id}", admin(s.handleDeleteUser))
	mux.Handle("GET /api/admin/users/{id}/chat-history", admin(s.handleChatHistory))

	mux.Handle("POST /api/admin/documents/upload", admin(s.handleUploadDocument))
	mux.Handle("GET /api/admin/documents", admin(s.handleListDocuments))
	mux.Handle("DELETE /api/admin/documents/{docID}", admin(s.handleDeleteDocument))

	return mux
}

// Handler returns the fully wrapped HTTP handler. Used by tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("docchat server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.log.Info("docchat server stopped")
		return nil
	}
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}

// writeError sends a JSON error body.
func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg})
}

// decode reads a JSON body into dst and validates it. On failure it writes
// the error response and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeError(w, r, http.StatusBadRequest, "invalid request body")
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, e := range verrs {
			fields[strings.ToLower(e.Field())] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		writeJSON(w, r, http.StatusUnprocessableEntity, errorResponse{Error: "validation failed", Fields: fields})
		return false
	}
	return true
}

// internalError logs err and sends a 500 with a generic message.
func internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logging.FromContext(r.Context()).Error(msg, slog.Any("error", err))
	writeError(w, r, http.StatusInternalServerError, msg)
}
