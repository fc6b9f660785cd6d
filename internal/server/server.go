// Package server implements the HTTP server that exposes paper upload,
// document listing, and conversational question answering over a REST API,
// and serves the web dashboard. The server is started by the
// `scichat serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scichat/scichat-go/internal/answer"
	"github.com/scichat/scichat-go/internal/catalog"
	"github.com/scichat/scichat-go/internal/convo"
	"github.com/scichat/scichat-go/internal/extract"
	"github.com/scichat/scichat-go/internal/indexer"
	"github.com/scichat/scichat-go/internal/logging"
	"github.com/scichat/scichat-go/internal/rag"
)

// defaultMaxUploadBytes caps uploaded PDFs at 32 MiB.
const defaultMaxUploadBytes = 32 << 20

// New constructs a Server from the provided dependencies and config.
func New(engine *answer.Engine, queue *indexer.Queue, store rag.VectorStore, cat *catalog.Catalog, conversations *convo.Store, cfg *Config) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("server: answer engine must not be nil")
	}
	if queue == nil {
		return nil, fmt.Errorf("server: indexing queue must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("server: vector store must not be nil")
	}
	if conversations == nil {
		return nil, fmt.Errorf("server: conversation store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full LLM generation round trip.
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
	if cfg.StaticDir == "" {
		cfg.StaticDir = "web/static"
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}

	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}
	if cfg.APIKey == "" {
		log.Warn("API key not configured — authentication is disabled")
	}

	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	s := &Server{
		asker:         engine,
		queue:         queue,
		docs:          store,
		conversations: conversations,
		extractor:     extract.NewPDF(),
		cfg:           cfg,
		log:           log,
		pingers:       cfg.Pingers,
		metrics:       newServerMetrics(registry),
	}
	// A typed nil must not reach the interface field — handlers treat a nil
	// catalog as "upload tracking disabled".
	if cat != nil {
		s.catalog = cat
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	// Protected routes require the Bearer token (when configured) and are
	// rate limited per client IP. Health, readiness, metrics, and the static
	// dashboard stay open so probes and scrapers need no credentials.
	protected := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(cfg.APIKey, rl.middleware(h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /upload", protected(s.handleUpload))
	mux.Handle("POST /ask", protected(s.handleAsk))
	mux.Handle("GET /documents", protected(s.handleDocuments))
	mux.Handle("GET /uploads", protected(s.handleUploads))
	mux.Handle("DELETE /conversations/{id}", protected(s.handleClearConversation))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, s.instrument(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	errCh := make(chan error, 1)

	go func() {
		fmt.Printf("scichat server listening on http://%s\n", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// writeJSON encodes v as the JSON response body with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("response encode error", "error", err)
	}
}
