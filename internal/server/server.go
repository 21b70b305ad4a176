// Package server sets up the HTTP server with all routes.
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/boostlab/boostpanel/internal/catalog"
	"github.com/boostlab/boostpanel/internal/config"
	"github.com/boostlab/boostpanel/internal/events"
	"github.com/boostlab/boostpanel/internal/health"
	"github.com/boostlab/boostpanel/internal/ledger"
	"github.com/boostlab/boostpanel/internal/logging"
	"github.com/boostlab/boostpanel/internal/metrics"
	"github.com/boostlab/boostpanel/internal/order"
	"github.com/boostlab/boostpanel/internal/provider"
	"github.com/boostlab/boostpanel/internal/reconciler"
	"github.com/boostlab/boostpanel/internal/verifier"
)

// Server wraps the HTTP server and its subsystems.
type Server struct {
	cfg *config.Config

	ledgerStore  ledger.Store
	orderStore   order.Store
	catalogStore catalog.Store

	ledgerService  *ledger.Service
	orderService   *order.Service
	catalogService *catalog.Service
	verifier       *verifier.Service
	reconciler     *reconciler.Reconciler

	reconcileTimer *reconciler.Timer
	verifyTimer    *verifier.Timer

	bus      *events.Bus
	provider *provider.Client
	healthRg *health.Registry

	db           *sql.DB // nil when using in-memory stores
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc

	ready atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.ledgerStore = ledger.NewPostgresStore(db)
		s.orderStore = order.NewPostgresStore(db)
		s.catalogStore = catalog.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		s.ledgerStore = ledger.NewMemoryStore()
		s.orderStore = order.NewMemoryStore()
		s.catalogStore = catalog.NewMemoryStore()
		s.logger.Warn("DATABASE_URL not set; using in-memory storage")
	}

	s.bus = events.NewBus(s.logger)
	s.provider = provider.New(cfg.ProviderURL, cfg.ProviderKey, cfg.ProviderTimeout, s.logger)

	s.ledgerService = ledger.NewService(s.ledgerStore, s.logger)
	s.catalogService = catalog.NewService(s.catalogStore, s.logger)
	s.orderService = order.NewService(s.orderStore, s.ledgerService, s.catalogService, s.provider, s.bus, s.logger)
	s.verifier = verifier.New(s.ledgerStore, s.logger,
		verifier.WithSampleDelay(cfg.VerifySampleDelay))

	s.reconciler = reconciler.New(s.orderStore, s.provider, s.bus, s.logger,
		reconciler.WithConcurrency(cfg.CheckConcurrency),
		reconciler.WithMinCheckInterval(cfg.MinCheckInterval))
	s.reconcileTimer = reconciler.NewTimer(s.reconciler, cfg.ReconcileInterval, s.logger)
	s.reconcileTimer.SetRoundTimeout(cfg.ReconcileTimeout)
	s.verifyTimer = verifier.NewTimer(s.verifier, cfg.VerifyInterval, s.logger)

	s.healthRg = health.NewRegistry()
	if s.db != nil {
		s.healthRg.Register("database", health.DBChecker(s.db))
	}
	s.healthRg.Register("reconciler", health.TimerChecker("reconciler", s.reconcileTimer))
	s.healthRg.Register("verifier", health.TimerChecker("verifier", s.verifyTimer))

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// maskDSN hides the password in a connection string for logging.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "req_unknown"
	}
	return "req_" + hex.EncodeToString(b)
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", s.livenessHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/v1")
	{
		ledger.NewHandler(s.ledgerService).RegisterRoutes(v1)
		order.NewHandler(s.orderService).RegisterRoutes(v1)
		catalog.NewHandler(s.catalogService).RegisterRoutes(v1)
	}

	admin := v1.Group("/admin")
	{
		ledger.NewHandler(s.ledgerService).RegisterAdminRoutes(admin)
		order.NewHandler(s.orderService).RegisterAdminRoutes(admin)
		catalog.NewHandler(s.catalogService).RegisterAdminRoutes(admin)
		verifier.NewHandler(s.verifier).RegisterAdminRoutes(admin)
		admin.POST("/reconcile", s.reconcileHandler)
		admin.GET("/stats", s.statsHandler)
	}
}

func (s *Server) livenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.healthRg.CheckAll(c.Request.Context())
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"healthy": healthy, "subsystems": statuses})
}

// reconcileHandler triggers an immediate reconciliation round.
func (s *Server) reconcileHandler(c *gin.Context) {
	summary, err := s.reconciler.ReconcileAll(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// statsHandler reports platform totals for the operator dashboard.
func (s *Server) statsHandler(c *gin.Context) {
	ctx := c.Request.Context()

	users, err := s.ledgerStore.CountProfiles(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	orders, err := s.orderStore.CountOrders(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	pendingDeposits, err := s.ledgerStore.CountPendingDeposits(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users":           users,
		"orders":          orders,
		"pendingDeposits": pendingDeposits,
	})
}

// Run starts the HTTP server and the background timers, blocking until
// a shutdown signal or a fatal server error.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.reconcileTimer.Start(runCtx)
	go s.verifyTimer.Start(runCtx)
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.reconcileTimer.Stop()
	s.verifyTimer.Stop()

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		}
	}

	s.logger.Info("shutdown complete")
	return nil
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
