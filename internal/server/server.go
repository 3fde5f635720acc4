package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"

	"docqa/internal/apperr"
	"docqa/internal/config"
	"docqa/internal/ingest"
	"docqa/internal/rag"
	"docqa/internal/vectorstore"
)

// Server wires the HTTP API over the shared service objects. All
// dependencies are constructed once at process start and shared
// read-only.
type Server struct {
	cfg     *config.Config
	db      *bun.DB
	vectors *vectorstore.Store
	rag     *rag.Service
	jobs    *ingest.Service
}

func New(cfg *config.Config, db *bun.DB, vectors *vectorstore.Store, ragSvc *rag.Service, jobs *ingest.Service) *Server {
	return &Server{cfg: cfg, db: db, vectors: vectors, rag: ragSvc, jobs: jobs}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /api/projects", s.handleCreateProject)
	mux.HandleFunc("GET /api/projects", s.handleListProjects)
	mux.HandleFunc("POST /api/documents/upload", s.handleUpload)
	mux.HandleFunc("GET /api/documents/{project_id}", s.handleListDocuments)
	mux.HandleFunc("GET /api/documents/{doc_base_id}/versions", s.handleListVersions)
	mux.HandleFunc("DELETE /api/versions/{version_id}", s.handleDeleteVersion)
	mux.HandleFunc("GET /api/versions/{version_id}/content", s.handleVersionContent)
	mux.HandleFunc("POST /api/chat/sessions", s.handleCreateSession)
	mux.HandleFunc("POST /api/chat/{session_id}/messages", s.handleSendMessage)
	mux.HandleFunc("GET /api/chat/{session_id}/messages", s.handleChatHistory)
	mux.HandleFunc("POST /api/settings/api-key", s.handleSetAPIKey)
	mux.HandleFunc("GET /api/settings/api-key", s.handleGetAPIKey)

	return logRequests(mux)
}

func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("starting server")
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message":    "local document question answering assistant",
		"api_prefix": "/api",
	})
}

// responses

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encoding response")
	}
}

// writeError maps error kinds onto HTTP status codes. The body always
// carries the stable kind tag and a human-readable detail; internal
// errors are not echoed to the client.
func writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := http.StatusInternalServerError
	detail := err.Error()
	switch kind {
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.ValidationError:
		status = http.StatusBadRequest
	case apperr.UpstreamFailed:
		status = http.StatusBadGateway
	case apperr.ExtractionFailed, apperr.IndexingFailed, apperr.RetrievalFailed:
		status = http.StatusInternalServerError
	default:
		kind = "internal"
		detail = "internal error"
		log.Error().Err(err).Msg("unhandled error")
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"kind": string(kind), "detail": detail},
	})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Wrap(apperr.ValidationError, err, "invalid request body")
	}
	return nil
}

// logRequests is a zerolog access-log middleware.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sw.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
