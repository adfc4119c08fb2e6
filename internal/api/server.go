package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/azure/social-listening/internal/ingest"
	"github.com/azure/social-listening/internal/sources"
	"github.com/azure/social-listening/internal/storage"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 20

// Ingester runs ingestion calls and reports their metrics
type Ingester interface {
	Run(ctx context.Context, platform string, req sources.Request) (ingest.Result, error)
	GetMetrics() string
}

// Server exposes the ingestion endpoints and the mention feed over HTTP
type Server struct {
	ingester Ingester
	store    storage.MentionStore
	router   *mux.Router
}

// NewServer wires the routes
func NewServer(ingester Ingester, store storage.MentionStore) *Server {
	s := &Server{
		ingester: ingester,
		store:    store,
		router:   mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(requestLogger)

	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// Metrics endpoint
	s.router.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	s.router.HandleFunc("/mentions", s.handleListMentions).Methods(http.MethodGet)
	s.router.HandleFunc("/sources", s.handleListSources).Methods(http.MethodGet)
	s.router.HandleFunc("/sources", s.handleCreateSource).Methods(http.MethodPost)

	in := s.router.PathPrefix("/ingest").Subrouter()
	in.HandleFunc("/rss", s.handleIngestRSS).Methods(http.MethodPost)
	in.HandleFunc("/hn-search", s.handleIngestHackerNews).Methods(http.MethodPost)
	in.HandleFunc("/masto-search", s.handleIngestMastodon).Methods(http.MethodPost)
	in.HandleFunc("/twitter/tweet", s.handleIngestTweet).Methods(http.MethodPost)
	in.HandleFunc("/reddit/search", s.handleIngestReddit).Methods(http.MethodPost)
}

// Handler returns the router wrapped with CORS handling.
func (s *Server) Handler() http.Handler {
	return withCORS(s.router)
}

// withCORS allows any origin, as the browser frontend is served separately.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logrus.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Debug("handled request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(s.ingester.GetMetrics()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Warnf("Failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// decodeBody reads a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
