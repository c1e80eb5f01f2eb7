package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lazypower/marginalia/internal/engine"
	"github.com/lazypower/marginalia/internal/ingest"
	"github.com/lazypower/marginalia/internal/nudge"
	"github.com/lazypower/marginalia/internal/store"
)

// Server is the marginalia HTTP API server.
type Server struct {
	db       *store.DB
	engine   *engine.Engine
	pipeline *nudge.Pipeline
	ingestor *ingest.Ingestor
	router   chi.Router
	version  string
	started  time.Time
}

// New creates a new Server.
func New(db *store.DB, eng *engine.Engine, pipeline *nudge.Pipeline, ingestor *ingest.Ingestor, version string) *Server {
	s := &Server{
		db:       db,
		engine:   eng,
		pipeline: pipeline,
		ingestor: ingestor,
		version:  version,
		started:  time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/margin/evaluate", s.handleEvaluate)

		r.Post("/memories", s.handleIngestEntry)
		r.Get("/memories", s.handleListMemories)
		r.Post("/memories/consolidate", s.handleConsolidate)
		r.Get("/retrieve", s.handleRetrieve)

		r.Get("/nudges", s.handleListNudges)
		r.Post("/nudges/{nudgeID}/feedback", s.handleFeedback)

		r.Get("/tuning/presets", s.handlePresets)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}
