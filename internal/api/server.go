// Package api exposes the document QA service over HTTP. Handlers stay
// thin: validation and owner resolution here, everything else in the core
// services.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ory/herodot"
	"go.uber.org/zap"

	"docqa/internal/catalog"
	"docqa/internal/chat"
	"docqa/internal/composer"
	"docqa/internal/config"
	"docqa/internal/embeddings"
	apperrors "docqa/internal/errors"
	"docqa/internal/federation"
	"docqa/internal/ingest"
	"docqa/internal/models"
	"docqa/internal/storage"
)

// Server wires the HTTP surface to the core services.
type Server struct {
	mux      *http.ServeMux
	cfg      *config.Config
	engine   *federation.Engine
	chat     *chat.Service
	catalog  *catalog.Service
	ingest   *ingest.Service
	store    storage.Store
	embedder embeddings.Provider
	composer *composer.Composer
	writer   *herodot.JSONWriter
	logger   *zap.Logger
}

// NewServer creates the HTTP server.
func NewServer(
	cfg *config.Config,
	engine *federation.Engine,
	chatSvc *chat.Service,
	catalogSvc *catalog.Service,
	ingestSvc *ingest.Service,
	store storage.Store,
	embedder embeddings.Provider,
	comp *composer.Composer,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		mux:      http.NewServeMux(),
		cfg:      cfg,
		engine:   engine,
		chat:     chatSvc,
		catalog:  catalogSvc,
		ingest:   ingestSvc,
		store:    store,
		embedder: embedder,
		composer: comp,
		writer:   herodot.NewJSONWriter(nil),
		logger:   logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// Collection management and ingestion
	s.mux.HandleFunc("POST /api/chroma/collections", s.createCollection)
	s.mux.HandleFunc("POST /api/chroma/collections/get-or-create", s.createCollection)
	s.mux.HandleFunc("GET /api/chroma/collections", s.listCollections)
	s.mux.HandleFunc("POST /api/chroma/collections/{name}/documents", s.addDocuments)
	s.mux.HandleFunc("POST /api/chroma/collections/{name}/query", s.queryCollection)
	s.mux.HandleFunc("POST /api/text/process", s.processText)
	s.mux.HandleFunc("GET /api/text/collections/user/{userID}", s.listUserCollections)

	// Owner-scoped federated search and chat
	s.mux.HandleFunc("POST /api/advanced/global-search", s.globalSearch)
	s.mux.HandleFunc("GET /api/advanced/search-collections", s.searchCollections)
	s.mux.HandleFunc("GET /api/advanced/user/{userID}/stats", s.userStats)
	s.mux.HandleFunc("POST /api/advanced/global-chat", s.globalChat)
	s.mux.HandleFunc("GET /api/advanced/conversations", s.listConversations)
	s.mux.HandleFunc("GET /api/advanced/conversations/{id}", s.getConversation)

	// Public (unscoped) surface
	s.mux.HandleFunc("POST /api/public/search", s.publicSearch)
	s.mux.HandleFunc("GET /api/public/collections", s.publicCollections)
	s.mux.HandleFunc("POST /api/public/chat", s.publicChat)
	s.mux.HandleFunc("GET /api/public/search-collections", s.publicSearchCollections)

	s.mux.HandleFunc("GET /health", s.healthCheck)
}

// Handler returns the full middleware-wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.requestLogger(s.mux)
}

// Run serves until the listener fails.
func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeout) * time.Second,
	}

	s.logger.Info("server starting", zap.String("addr", addr))
	return srv.ListenAndServe()
}

// requestLogger logs every request with method, path and duration.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// writeError maps a core error onto the HTTP response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.writer.WriteError(w, r, apperrors.ToHTTP(err, s.cfg.DetailedErrors()))
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	s.writer.Write(w, r, models.HealthResponse{
		Success:   true,
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
