package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"schemacanvas/internal/backend"
	"schemacanvas/internal/config"
	"schemacanvas/internal/database"
	"schemacanvas/internal/handlers"
	"schemacanvas/internal/layout"
	"schemacanvas/internal/middlewares"
	"schemacanvas/internal/repositories"
	"schemacanvas/internal/routes"
	"schemacanvas/internal/services"
)

// Server is the HTTP server plus everything that has to be released on shutdown.
type Server struct {
	*http.Server
	Manager *services.SessionManager
	closers []func()
}

func NewServer(cfg *config.Config) (*Server, error) {
	s := &Server{}

	newBackend, err := s.backendFactory(cfg)
	if err != nil {
		return nil, err
	}
	snapshots, err := s.snapshotStore(cfg)
	if err != nil {
		s.close()
		return nil, err
	}
	opts, err := SessionOptions(cfg)
	if err != nil {
		s.close()
		return nil, err
	}
	s.Manager = services.NewSessionManager(newBackend, snapshots, opts)

	router, err := NewRouter(cfg, s.Manager)
	if err != nil {
		s.close()
		return nil, err
	}

	s.Server = &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s, nil
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(cfg *config.Config, manager *services.SessionManager) (*gin.Engine, error) {
	if cfg.Server.Mode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := handlers.RegisterValidators(); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middlewares.Cors(cfg.Server.CORSOrigins))
	router.Use(middlewares.CorrelationID())
	router.Use(middlewares.PrometheusMiddleware())

	routes.RegisterRoutes(router, manager)
	return router, nil
}

// SessionOptions turns the layout and backend settings into per-session options.
func SessionOptions(cfg *config.Config) (services.SessionOptions, error) {
	opts := services.DefaultSessionOptions()
	dir, err := layout.ParseDirection(cfg.Layout.Direction)
	if err != nil {
		return opts, fmt.Errorf("invalid layout.direction: %w", err)
	}
	opts.Direction = dir
	opts.Debounce = cfg.Layout.Debounce
	if cfg.Layout.NodeWidth > 0 {
		opts.Layout.NodeWidth = cfg.Layout.NodeWidth
	}
	if cfg.Layout.BaseHeight > 0 {
		opts.Layout.BaseHeight = cfg.Layout.BaseHeight
	}
	if cfg.Layout.ColumnHeight > 0 {
		opts.Layout.ColumnHeight = cfg.Layout.ColumnHeight
	}
	if cfg.Layout.NodeSep > 0 {
		opts.Layout.NodeSep = cfg.Layout.NodeSep
	}
	if cfg.Layout.RankSep > 0 {
		opts.Layout.RankSep = cfg.Layout.RankSep
	}
	if cfg.Backend.Timeout > 0 {
		opts.BackendTimeout = cfg.Backend.Timeout
	}
	return opts, nil
}

func (s *Server) backendFactory(cfg *config.Config) (func() services.Backend, error) {
	switch cfg.Backend.Mode {
	case config.BackendModeHTTP:
		client := backend.NewClient(backend.Config{
			BaseURL:       cfg.Backend.BaseURL,
			Timeout:       cfg.Backend.Timeout,
			RatePerSecond: cfg.Backend.RatePerSecond,
			Burst:         cfg.Backend.Burst,
		})
		log.Printf("using schema service at %s", cfg.Backend.BaseURL)
		return func() services.Backend { return client }, nil

	case config.BackendModePostgres:
		repo := repositories.NewSchemaRepository(cfg.Postgres)
		s.closers = append(s.closers, repo.Close)
		log.Printf("using postgres at %s:%s", cfg.Postgres.Host, cfg.Postgres.Port)
		// Each session binds its own database on Connect; pools are shared per database.
		return func() services.Backend { return repo.NewBackend() }, nil
	}
	return nil, fmt.Errorf("unknown backend mode %q", cfg.Backend.Mode)
}

func (s *Server) snapshotStore(cfg *config.Config) (services.SnapshotStore, error) {
	if cfg.Snapshot.DSN == "" {
		log.Println("snapshot.dsn not set, position snapshots disabled")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := database.Open(ctx, cfg.Snapshot.DSN, 2, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to snapshot database: %w", err)
	}
	err = database.RunMigrations(ctx, pool)
	pool.Close()
	if err != nil {
		return nil, err
	}

	db, err := database.OpenGorm(cfg.Snapshot.DSN, cfg.Server.Mode == gin.DebugMode)
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		s.closers = append(s.closers, func() { _ = sqlDB.Close() })
	}
	return repositories.NewSnapshotRepository(db), nil
}

// Shutdown stops accepting requests, then closes every session and backend connection.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Server.Shutdown(ctx)
	s.Manager.CloseAll()
	s.close()
	return err
}

func (s *Server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
