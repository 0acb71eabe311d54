// Package api exposes the ingestion and answer operations over HTTP.
package api

import (
	"log/slog"
	"net/http"
)

// ServerConfig tunes the HTTP surface.
type ServerConfig struct {
	RateRPS   float64
	RateBurst int

	// TrustProxy honors X-Real-IP and X-Forwarded-For for rate
	// limiting. Enable only behind a trusted reverse proxy.
	TrustProxy bool
}

// DefaultServerConfig allows modest request rates per client.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{RateRPS: 10, RateBurst: 20}
}

// Server routes HTTP requests to the ingestion pipeline and the
// answer engine.
type Server struct {
	ingestor Ingestor
	answerer Answerer
	logger   *slog.Logger
	handler  http.Handler
}

// NewServer wires the routes and middleware chain. A nil logger falls
// back to slog.Default().
func NewServer(ingestor Ingestor, answerer Answerer, cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		ingestor: ingestor,
		answerer: answerer,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /node/{projectID}/document", s.handleDocument)
	mux.HandleFunc("POST /node/{projectID}/llm", s.handleLLM)
	mux.HandleFunc("GET /health", s.handleHealth)

	var handler http.Handler = mux
	if cfg.RateRPS > 0 {
		handler = withRateLimit(cfg.RateRPS, cfg.RateBurst, cfg.TrustProxy, logger)(handler)
	}
	handler = withLogging(logger)(handler)
	handler = withRequestID(handler)
	handler = withRecovery(logger)(handler)
	s.handler = handler
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
