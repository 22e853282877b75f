// Package api exposes the chat service over HTTP: the SSE chat endpoint,
// transcript management, file uploads, and health probes.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sorvx/Sorvx-main-ai/internal/auth"
	"github.com/sorvx/Sorvx-main-ai/internal/upload"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger       *slog.Logger
	Orchestrator Orchestrator      // Required
	Store        ConversationStore // Required
	Gate         *auth.Gate        // Required
	Uploads      *upload.Store     // Required
	Pool         *pgxpool.Pool     // Optional: nil disables pool stats in /ready
	IsDev        bool              // Disables HSTS
	TrustProxy   bool              // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst    int               // Rate limiter burst per IP (0 = default 60)
}

// Server is the JSON/SSE API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates the API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("conversation store is required")
	}
	if cfg.Gate == nil {
		return nil, errors.New("auth gate is required")
	}
	if cfg.Uploads == nil {
		return nil, errors.New("upload store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ch := &chatHandler{
		orch:   cfg.Orchestrator,
		store:  cfg.Store,
		gate:   cfg.Gate,
		logger: logger,
	}
	uh := &uploadHandler{
		store:  cfg.Uploads,
		gate:   cfg.Gate,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chat", ch.send)
	mux.HandleFunc("DELETE /api/v1/chat", ch.deleteChat)
	mux.HandleFunc("GET /api/v1/history", ch.history)
	mux.HandleFunc("POST /api/v1/files/upload", uh.save)
	mux.HandleFunc("GET /api/v1/files/{name}", uh.get)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack, outermost first:
	//   Recovery -> RequestID -> Logging -> RateLimit -> Routes
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	isDev := cfg.IsDev
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, isDev)
		handler.ServeHTTP(w, r)
	})

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
