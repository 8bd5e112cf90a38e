// Package api is the HTTP bridge between the browser front end and the
// edit core. Each uploaded document becomes a session holding its store,
// renderer, edit controller, tool engine, and script engine.
package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/Fatal777/applyx-pdfedit/config"
	"github.com/Fatal777/applyx-pdfedit/document"
	"github.com/Fatal777/applyx-pdfedit/engine"
	"github.com/Fatal777/applyx-pdfedit/export"
	"github.com/Fatal777/applyx-pdfedit/observability"
	"github.com/Fatal777/applyx-pdfedit/render"
	"github.com/Fatal777/applyx-pdfedit/script"
	"github.com/Fatal777/applyx-pdfedit/textedit"
	"github.com/Fatal777/applyx-pdfedit/tools"
)

// Finished export jobs stay downloadable this long after their last
// status change.
const (
	jobRetention     = time.Hour
	jobSweepInterval = 5 * time.Minute
)

// Session is one open document and its collaborators.
type Session struct {
	ID       string
	Store    document.Store
	Renderer render.Renderer
	Edit     textedit.Controller
	Tools    *tools.Engine
	Script   *script.Engine

	mu sync.Mutex // serializes script execution
}

// Server routes HTTP traffic to sessions and the export worker.
type Server struct {
	router chi.Router
	eng    engine.Engine
	worker *export.Worker
	log    *slog.Logger
	obs    observability.Logger
	cfg    config.Config

	mu       sync.Mutex
	sessions map[string]*Session
	jobs     *jobTracker
}

// NewServer wires the routes.
func NewServer(eng engine.Engine, worker *export.Worker, log *slog.Logger, obs observability.Logger, cfg config.Config) *Server {
	if obs == nil {
		obs = observability.NewNopLogger()
	}
	s := &Server{
		eng:      eng,
		worker:   worker,
		log:      log,
		obs:      obs,
		cfg:      cfg,
		sessions: make(map[string]*Session),
		jobs:     newJobTracker(jobRetention),
	}
	go s.jobs.consume(worker.Messages())
	go s.jobs.sweepEvery(jobSweepInterval)
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
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/documents", s.handleUpload)
		r.Route("/documents/{sessionID}", func(r chi.Router) {
			r.Get("/snapshot", s.handleSnapshot)
			r.Delete("/", s.handleCloseSession)
			r.Get("/pages/{page}", s.handlePage)
			r.Put("/runs/{runID}", s.handleUpdateRun)
			r.Post("/annotations", s.handleAddAnnotation)
			r.Put("/annotations/{annotationID}", s.handleUpdateAnnotation)
			r.Delete("/annotations/{annotationID}", s.handleRemoveAnnotation)
			r.Post("/zoom", s.handleZoom)
			r.Post("/undo", s.handleUndo)
			r.Post("/redo", s.handleRedo)
			r.Post("/tool", s.handleTool)
			r.Post("/script", s.handleScript)
			r.Post("/export", s.handleExport)
		})
		r.Get("/exports/{jobID}", s.handleJobStatus)
		r.Get("/exports/{jobID}/result", s.handleJobResult)
		r.Delete("/exports/{jobID}", s.handleJobCancel)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) newSession(name string, data []byte) (*Session, error) {
	store := document.NewStore(s.eng, s.obs)
	if err := store.Load(name, data); err != nil {
		return nil, err
	}
	reg, err := tools.StandardRegistry(store)
	if err != nil {
		store.Close()
		return nil, err
	}
	scr, err := script.NewEngine(store, s.obs)
	if err != nil {
		store.Close()
		return nil, err
	}
	sess := &Session{
		ID:       uuid.NewString(),
		Store:    store,
		Renderer: render.New(store, s.obs),
		Edit:     textedit.New(store, s.obs),
		Tools:    tools.NewEngine(reg, s.obs),
		Script:   scr,
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess, nil
}

func (s *Server) session(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Server) dropSession(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	return sess, ok
}
