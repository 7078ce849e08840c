// Package server exposes the engine over HTTP and serves the screenshots and
// reports it produces.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/v0xg/formcheck/internal/classifier"
	"github.com/v0xg/formcheck/internal/discovery"
	"github.com/v0xg/formcheck/internal/form"
	"github.com/v0xg/formcheck/internal/job"
	"github.com/v0xg/formcheck/internal/store"
	"github.com/v0xg/formcheck/internal/templates"
)

// Jobs starts and reports runs. *controller.Controller satisfies it.
type Jobs interface {
	Start(url string, formIndex int) (string, error)
	Status(id string) (job.Snapshot, error)
	List() []job.Snapshot
}

// Explorer discovers forms on demand. *executor.Executor satisfies it.
type Explorer interface {
	Discover(ctx context.Context, url string, settle time.Duration) (discovery.Result, error)
}

// Templates reads and writes per-host templates. *templates.Store satisfies it.
type Templates interface {
	Load(url string) (*templates.Template, bool, error)
	Save(url, selector string, formIndex int, m *form.Mapping) (string, error)
}

// History queries finished runs. *store.Store satisfies it.
type History interface {
	History(ctx context.Context, search string, limit int) ([]store.Record, error)
}

// Schedules manages recurring runs. *schedule.Scheduler satisfies it.
type Schedules interface {
	Add(ctx context.Context, url string, formIndex int, expr string) (*store.Schedule, error)
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]store.Schedule, error)
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Jobs      Jobs
	Explorer  Explorer
	Templates Templates
	History   History
	Schedules Schedules
	Table     *classifier.Table
	Suggester classifier.Suggester
}

// Options configures the server.
type Options struct {
	ArtifactsDir string
	ReportsDir   string
	DiscoverWait time.Duration
	StartRate    float64 // browser-launching requests per second
	StartBurst   int
}

// Server is the HTTP front of the engine.
type Server struct {
	deps     Deps
	opts     Options
	log      *zap.Logger
	validate *validator.Validate
	limiter  *rate.Limiter
}

// New returns a Server.
func New(deps Deps, opts Options, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Table == nil {
		deps.Table = classifier.NewTable(nil, "")
	}
	if opts.StartRate <= 0 {
		opts.StartRate = 1
	}
	if opts.StartBurst <= 0 {
		opts.StartBurst = 5
	}
	return &Server{
		deps:     deps,
		opts:     opts,
		log:      log.Named("server"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		limiter:  rate.NewLimiter(rate.Limit(opts.StartRate), opts.StartBurst),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimit)
		r.Get("/run_template_async", s.handleRunAsync)
		r.Post("/discover", s.handleDiscover)
		r.Post("/save_template", s.handleSaveTemplate)
	})

	r.Get("/job_status", s.handleJobStatus)
	r.Get("/jobs", s.handleJobs)
	r.Get("/templates", s.handleTemplate)
	r.Get("/history", s.handleHistory)

	r.Route("/schedules", func(r chi.Router) {
		r.Get("/", s.handleListSchedules)
		r.Post("/", s.handleAddSchedule)
		r.Delete("/{id}", s.handleDeleteSchedule)
	})

	r.Handle("/artifacts/*", http.StripPrefix("/artifacts/", http.FileServer(http.Dir(s.opts.ArtifactsDir))))
	r.Handle("/reports/*", http.StripPrefix("/reports/", http.FileServer(http.Dir(s.opts.ReportsDir))))
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
// within shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.log.Info("HTTP server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// rateLimit bounds requests that launch a browser session.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
