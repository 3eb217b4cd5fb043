package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/LSFLK/superapp-mobile-sub000/internal/api/http"
	"github.com/LSFLK/superapp-mobile-sub000/internal/api/middleware"
	"github.com/LSFLK/superapp-mobile-sub000/internal/api/ws"
	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/appsync"
	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/bridge"
	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/catalog"
	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/host"
	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/install"
	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/microapp"
	"github.com/LSFLK/superapp-mobile-sub000/internal/domain/tokencache"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/config"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/httpclient"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/kv"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/logging"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/monitoring"
	"github.com/LSFLK/superapp-mobile-sub000/internal/infrastructure/tracing"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	http    *http.Server
	store   kv.Store
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics

	repo         *microapp.Repository
	loader       *catalog.Loader
	orchestrator *appsync.Orchestrator
	sessions     *host.Manager
	tokens       *tokencache.Cache
}

// NewServer builds every component from cfg. store may be nil, in which
// case the configured driver is opened.
func NewServer(cfg *config.Config, logger *logging.Logger, store kv.Store) (*Server, error) {
	if logger == nil {
		logger = logging.NewDefault()
	}
	logger.Info("Initializing super app host",
		zap.String("port", cfg.Server.Port),
		zap.String("backend", cfg.Backend.BaseURL),
		zap.String("store", cfg.Storage.Driver),
		zap.String("document_root", cfg.Host.DocumentRoot),
		zap.Bool("developer_mode", cfg.Host.DeveloperMode),
	)

	metrics := monitoring.NewMetrics()

	if store == nil {
		var err error
		store, err = kv.Open(cfg.Storage.Driver, cfg.Storage.SQLitePath, cfg.Storage.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s store: %w", cfg.Storage.Driver, err)
		}
	}

	repo := microapp.NewRepository(store, logger.Component("microapp"))
	if err := repo.Load(context.Background()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load micro-apps: %w", err)
	}

	backend := httpclient.New(httpclient.Settings{
		BaseURL:     cfg.Backend.BaseURL,
		AccessToken: cfg.Backend.AccessToken,
		Timeout:     cfg.Backend.Timeout,
		RetryCount:  cfg.Backend.RetryCount,
		RateLimit:   cfg.Backend.RateLimit,

		BreakerThreshold: cfg.Backend.BreakerThreshold,
		BreakerCooldown:  cfg.Backend.BreakerCooldown,
	}, logger.Component("httpclient"))

	tokens := tokencache.New(store, tokencache.NewHTTPIssuer(backend), logger.Component("tokencache")).
		WithMetrics(metrics)

	pipeline := install.New(cfg.Host.DocumentRoot, install.FromDownloader(backend), repo, logger.Component("install")).
		WithMetrics(metrics).
		WithDefaultClientID(cfg.Host.DefaultClientID)
	queue := appsync.NewQueue(pipeline, logger.Component("queue")).WithMetrics(metrics)

	catalogClient := catalog.NewClient(backend, logger.Component("catalog"))
	loader := catalog.NewLoader(catalogClient, repo, queue, logger.Component("catalog"))
	orchestrator := appsync.NewOrchestrator(catalogClient, repo, queue, logger.Component("appsync")).
		WithMetrics(metrics)

	registry, err := bridge.NewDefaultRegistry(bridge.Services{
		Local:  store,
		Tokens: tokens,
		Log:    logger.Component("bridge"),
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to build bridge registry: %w", err)
	}
	dispatcher := bridge.NewDispatcher(registry, logger.Component("bridge")).WithMetrics(metrics)
	sessions := host.NewManager(repo, dispatcher, tokens, host.Options{
		DocumentRoot:  cfg.Host.DocumentRoot,
		DeveloperMode: cfg.Host.DeveloperMode,
		ScriptOptions: bridge.ScriptOptions{RequestTimeoutMS: cfg.Host.BridgeRequestTimeoutMS},
	}, logger.Component("host"))

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(tracing.Middleware(logger.Component("http")))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(apihttp.Deps{
		Repo:         repo,
		Loader:       loader,
		Pipeline:     pipeline,
		Orchestrator: orchestrator,
		Tokens:       tokens,
		Sessions:     sessions,
		Metrics:      metrics,
		DefaultUser:  cfg.Host.UserID,
		Log:          logger.Component("api"),
	})
	apihttp.RegisterRoutes(router, handlers)

	wsHandler := ws.NewHandler(sessions, metrics, cfg.Host.UserID, logger.Component("ws"))
	router.GET("/ws/bridge/:appId", wsHandler.HandleConnection)

	logger.Info("Server initialized successfully", zap.Int("apps", len(repo.List())))

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		store:        store,
		logger:       logger,
		config:       cfg,
		metrics:      metrics,
		repo:         repo,
		loader:       loader,
		orchestrator: orchestrator,
		sessions:     sessions,
		tokens:       tokens,
	}, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s.config.Host.SyncOnStart {
		go s.startupSync(ctx)
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
		errc <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("Shutting down server...")
	return s.http.Shutdown(shutdownCtx)
}

// startupSync refreshes the catalog and reconciles the configured user's
// apps. Failures are logged; the server keeps running on local state.
func (s *Server) startupSync(ctx context.Context) {
	if _, err := s.loader.Refresh(ctx); err != nil {
		s.logger.Warn("Startup catalog refresh failed", zap.Error(err))
	}
	if s.config.Host.UserID == "" {
		s.logger.Warn("Skipping startup sync without USER_ID")
		return
	}
	if _, err := s.orchestrator.Sync(ctx, s.config.Host.UserID, appsync.AutoConfirm); err != nil {
		s.logger.Warn("Startup sync failed", zap.Error(err))
	}
}

// Close releases the store and flushes the logger.
func (s *Server) Close() error {
	err := s.store.Close()
	if err != nil {
		s.logger.Error("Failed to close store", zap.Error(err))
	}
	_ = s.logger.Sync()
	return err
}
