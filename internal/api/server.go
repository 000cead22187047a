package api

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veritail/veritail/internal/chat"
	"github.com/veritail/veritail/internal/connection"
	"github.com/veritail/veritail/internal/extraction"
	"github.com/veritail/veritail/internal/knowledge"
	"github.com/veritail/veritail/internal/log"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger      *log.Logger
	Connections *connection.Store // Required
	Knowledge   *knowledge.Store  // Required
	Extractions *extraction.Store // Required
	Intake      *extraction.Intake
	Reviewer    *extraction.Engine
	Answerer    *chat.Answerer
	Pool        *pgxpool.Pool // Optional: nil disables pool stats in /ready
	CORSOrigins []string      // Allowed origins for CORS ("*" allows any)
	IsDev       bool          // Disables HSTS (no HTTPS locally)
	TrustProxy  bool          // Trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateBurst   int           // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Connections == nil {
		return nil, errors.New("connection store is required")
	}
	if cfg.Knowledge == nil {
		return nil, errors.New("knowledge store is required")
	}
	if cfg.Extractions == nil {
		return nil, errors.New("extraction store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	wh := &widgetHandler{
		connections: cfg.Connections,
		intake:      cfg.Intake,
		logger:      logger,
	}
	ch := &chatHandler{
		answerer: cfg.Answerer,
		logger:   logger,
	}
	ah := &adminHandler{
		connections: cfg.Connections,
		extractions: cfg.Extractions,
		reviewer:    cfg.Reviewer,
		knowledge:   cfg.Knowledge,
		logger:      logger,
	}

	mux := http.NewServeMux()

	// Widget surface (public, embedded on customer sites)
	mux.HandleFunc("POST /api/v1/widget/hello", wh.hello)
	mux.HandleFunc("POST /api/v1/widget/extract", wh.extract)

	// Visitor chat
	mux.HandleFunc("POST /api/v1/chat", ch.send)
	mux.HandleFunc("POST /api/v1/chat/feedback", ch.feedback)

	// Operator surface
	mux.HandleFunc("POST /api/v1/admin/connections", ah.createConnection)
	mux.HandleFunc("GET /api/v1/admin/connections/{id}", ah.getConnection)
	mux.HandleFunc("POST /api/v1/admin/connections/{id}/extraction-token", ah.issueToken)
	mux.HandleFunc("GET /api/v1/admin/connections/{id}/extractions", ah.listExtractions)
	mux.HandleFunc("POST /api/v1/admin/extractions/{id}/review", ah.review)
	mux.HandleFunc("GET /api/v1/admin/connections/{id}/policy", ah.getPolicy)
	mux.HandleFunc("PUT /api/v1/admin/connections/{id}/policy", ah.putPolicy)
	mux.HandleFunc("POST /api/v1/admin/connections/{id}/knowledge", ah.ingestKnowledge)
	mux.HandleFunc("GET /api/v1/admin/connections/{id}/knowledge", ah.listKnowledge)
	mux.HandleFunc("POST /api/v1/admin/connections/{id}/drift-check", ah.checkDrift)

	// Rate limiter: per-IP token bucket (1 token/sec refill)
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → Routes
	// RequestID must be before Logging so request_id is available in log
	// attributes. CORS must be before RateLimit so preflight OPTIONS gets
	// proper CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	isDev := cfg.IsDev
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, isDev)
		handler.ServeHTTP(w, r)
	})

	// Use a top-level mux to separate health probes from middleware stack
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
