// Package server exposes the admin HTTP API: lead management, manual stage
// runs, ad-hoc discovery, dashboard stats and the locally published
// prototype sites.
package server

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/discovery"
	"github.com/sells-group/prospect-cli/internal/lifecycle"
	"github.com/sells-group/prospect-cli/internal/pipeline"
	"github.com/sells-group/prospect-cli/internal/store"
)

// StageRunner runs pipeline stages on demand.
type StageRunner interface {
	Run(ctx context.Context, stage string) (*pipeline.StageReport, error)
	Discover(ctx context.Context, req discovery.Request) (*pipeline.StageReport, error)
	RunLead(ctx context.Context, stage string, id int64) (*pipeline.StageReport, error)
}

// Server is the admin API handler.
type Server struct {
	router   chi.Router
	store    store.Store
	runner   StageRunner
	locks    *lifecycle.Locks
	sitesDir string
	validate *validator.Validate
	origins  []string
}

// Option configures a Server.
type Option func(*Server)

// WithSitesDir serves the files in dir under /sites/.
func WithSitesDir(dir string) Option {
	return func(s *Server) { s.sitesDir = dir }
}

// WithLocks shares the per-lead locks with a running pipeline so operator
// edits never interleave with a stage working on the same lead.
func WithLocks(l *lifecycle.Locks) Option {
	return func(s *Server) { s.locks = l }
}

// New builds the router.
func New(cfg config.ServerConfig, st store.Store, runner StageRunner, opts ...Option) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		store:    st,
		runner:   runner,
		validate: newValidator(),
		origins:  cfg.AllowedOrigins,
	}
	for _, o := range opts {
		o(s)
	}
	if s.locks == nil {
		s.locks = lifecycle.NewLocks()
	}
	s.routes()
	return s
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/leads", func(r chi.Router) {
			r.Get("/", s.handleListLeads)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetLead)
				r.Patch("/", s.handlePatchLead)
				r.Delete("/", s.handleDeleteLead)
				r.Post("/reset", s.handleResetLead)
				r.Get("/campaigns", s.handleListCampaigns)
				r.Get("/prototypes", s.handleListPrototypes)
				r.Post("/stages/{stage}/run", s.handleRunLeadStage)
			})
		})
		r.Post("/search", s.handleSearch)
		r.Post("/stages/{stage}/run", s.handleRunStage)
		r.Get("/dashboard/stats", s.handleStats)
	})

	if s.sitesDir != "" {
		files := http.StripPrefix("/sites/", http.FileServer(http.Dir(s.sitesDir)))
		s.router.Get("/sites/*", files.ServeHTTP)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("server: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
