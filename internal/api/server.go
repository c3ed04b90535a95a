// Package api serves the local HTTP interface over courses, tasks and sync.
//
// Every mutation goes through the store, which marks the record pending so
// the next sync pass pushes it. Errors are answered as
//
//	{"error": "not_found", "message": "course 42: record not found"}
//
// with the status derived from the error's class: missing records 404,
// validation 400, a sync already running 409, an unreachable remote 502 and
// anything else 500.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/taskion/taskion/internal/model"
	"github.com/taskion/taskion/internal/store"
	tsync "github.com/taskion/taskion/internal/sync"
)

// Store is the repository behind the handlers. *store.DB satisfies it.
type Store interface {
	Ping(ctx context.Context) error

	InsertCourse(ctx context.Context, req *model.NewCourse) (*model.Course, error)
	UpdateCourse(ctx context.Context, id string, patch *model.CoursePatch) (*model.Course, error)
	GetCourse(ctx context.Context, id string) (*model.Course, error)
	ListCourses(ctx context.Context, filter store.CourseFilter) ([]*model.Course, error)

	InsertTask(ctx context.Context, req *model.NewTask) (*model.Task, error)
	UpdateTask(ctx context.Context, id string, patch *model.TaskPatch) (*model.Task, error)
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context, filter store.TaskFilter) ([]*model.Task, error)

	FindByID(ctx context.Context, kind model.Kind, id string) (model.Record, error)
	Archive(ctx context.Context, kind model.Kind, id string) (bool, error)
	Unarchive(ctx context.Context, kind model.Kind, id string) (bool, error)

	ListSyncRuns(ctx context.Context, limit int) ([]*model.SyncRun, error)
}

// Syncer runs an on-demand sync pass. *sync.Engine satisfies it.
type Syncer interface {
	RunSync(ctx context.Context) (*tsync.Stats, error)
}

// Notifier is told about local record changes. *dashboard.Handler
// satisfies it.
type Notifier interface {
	RecordChanged(rec model.Record, action string)
}

// Config holds server settings.
type Config struct {
	// Addr is the listen address, host:port
	Addr string

	// APIToken, when set, is required as a bearer token on every route
	// except /health
	APIToken string

	// CORSOrigins lists allowed origins; empty allows any
	CORSOrigins []string

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration

	Logger zerolog.Logger
}

// DefaultConfig returns a Config listening on 127.0.0.1:3000.
func DefaultConfig() *Config {
	return &Config{
		Addr:            "127.0.0.1:3000",
		ShutdownTimeout: 5 * time.Second,
		Logger:          zerolog.Nop(),
	}
}

// Deps are the components the server exposes.
type Deps struct {
	Store  Store
	Syncer Syncer

	// Notifier is optional.
	Notifier Notifier

	// Dashboard is mounted at /ws when set.
	Dashboard http.Handler

	// Clock resolves relative due dates. Defaults to time.Now.
	Clock func() time.Time
}

// Server is the HTTP front end.
type Server struct {
	cfg    *Config
	engine *gin.Engine
	log    zerolog.Logger
}

type handler struct {
	store  Store
	syncer Syncer
	notify Notifier
	log    zerolog.Logger
	now    func() time.Time
}

// New builds the server and its routes.
func New(cfg *Config, deps Deps) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if deps.Store == nil {
		return nil, errors.New("api: store is required")
	}
	if deps.Syncer == nil {
		return nil, errors.New("api: syncer is required")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	log := cfg.Logger.With().Str("component", "api").Logger()
	h := &handler{
		store:  deps.Store,
		syncer: deps.Syncer,
		notify: deps.Notifier,
		log:    log,
		now:    deps.Clock,
	}
	if h.now == nil {
		h.now = time.Now
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logRequests(log))
	engine.Use(corsMiddleware(cfg.CORSOrigins))
	registerRoutes(engine, h, cfg.APIToken, deps.Dashboard)

	return &Server{cfg: cfg, engine: engine, log: log}, nil
}

func registerRoutes(router *gin.Engine, h *handler, token string, dashboard http.Handler) {
	router.GET("/health", h.HandleHealth)

	private := router.Group("/")
	private.Use(requireToken(token))

	courses := private.Group("/courses")
	courses.GET("", h.HandleListCourses)
	courses.POST("", h.HandleCreateCourse)
	courses.GET("/:id", h.HandleGetCourse)
	courses.PATCH("/:id", h.HandleUpdateCourse)
	courses.PATCH("/:id/archive", h.HandleSetArchived(model.KindCourse, true))
	courses.PATCH("/:id/unarchive", h.HandleSetArchived(model.KindCourse, false))

	tasks := private.Group("/tasks")
	tasks.GET("", h.HandleListTasks)
	tasks.POST("", h.HandleCreateTask)
	tasks.GET("/:id", h.HandleGetTask)
	tasks.PATCH("/:id", h.HandleUpdateTask)
	tasks.PATCH("/:id/archive", h.HandleSetArchived(model.KindTask, true))
	tasks.PATCH("/:id/unarchive", h.HandleSetArchived(model.KindTask, false))

	private.POST("/sync", h.HandleSync)
	private.GET("/sync/runs", h.HandleListSyncRuns)

	if dashboard != nil {
		private.GET("/ws", gin.WrapH(dashboard))
	}
}

// Handler returns the routed http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", ln.Addr().String()).Msg("http server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}
