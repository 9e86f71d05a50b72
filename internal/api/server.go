package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/ragdoc/internal/config"
	"github.com/dgallion1/ragdoc/internal/fragment"
	"github.com/dgallion1/ragdoc/internal/llm"
	"github.com/dgallion1/ragdoc/internal/pipeline"
	"github.com/dgallion1/ragdoc/internal/retriever"
)

// Ingester runs a synchronous ingestion.
type Ingester interface {
	Ingest(ctx context.Context, url string) (*pipeline.Result, error)
}

// Answerer answers a question from retrieved fragments.
type Answerer interface {
	Answer(ctx context.Context, question string, topK int) (*retriever.Answer, error)
}

// Jobs queues background ingestion.
type Jobs interface {
	Submit(url string) (*pipeline.Job, error)
	GetJob(id string) *pipeline.Job
	QueueDepth() int
}

// Manifests reads stored document manifests.
type Manifests interface {
	Manifest(key string) (*fragment.Manifest, error)
}

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Ingester  Ingester
	Answerer  Answerer
	Jobs      Jobs
	Manifests Manifests

	EmbedModel     string
	EmbedStats     *llm.Stats
	GeneratorModel string
	GeneratorStats *llm.Stats
}

// Server is the HTTP API server for ragdoc.
type Server struct {
	router chi.Router
	deps   Deps
	log    *slog.Logger
	cfg    config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		deps: deps,
		log:  log,
		cfg:  cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	// Synchronous endpoints do the model work inside the request.
	r.Group(func(r chi.Router) {
		if s.cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))
		}

		r.Get("/read-and-ingest", s.handleReadAndIngest)
		r.Get("/query", s.handleQuery)

		// Paths used by earlier clients.
		r.Get("/ReadFile/read-and-ingest", s.handleReadAndIngest)
		r.Get("/Question/query", s.handleQuery)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/ingest", s.handleIngest)
		r.Get("/ingest/{jobID}/status", s.handleIngestStatus)
		r.Get("/documents/{key}/manifest", s.handleManifest)
		r.Get("/stats/oracle", s.handleOracleStats)
	})

	s.router = r
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "RAG API is running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.deps.Jobs != nil {
		body["queue_depth"] = s.deps.Jobs.QueueDepth()
	}
	writeJSON(w, http.StatusOK, body)
}
