// Package server sets up the HTTP server with all routes
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

	"github.com/mbd888/ledgerisk/internal/circuitbreaker"
	"github.com/mbd888/ledgerisk/internal/config"
	"github.com/mbd888/ledgerisk/internal/engine"
	"github.com/mbd888/ledgerisk/internal/health"
	"github.com/mbd888/ledgerisk/internal/ledger"
	"github.com/mbd888/ledgerisk/internal/logging"
	"github.com/mbd888/ledgerisk/internal/metrics"
	"github.com/mbd888/ledgerisk/internal/model"
	"github.com/mbd888/ledgerisk/internal/monitor"
	"github.com/mbd888/ledgerisk/internal/oracle"
	"github.com/mbd888/ledgerisk/internal/ratelimit"
	"github.com/mbd888/ledgerisk/internal/realtime"
	"github.com/mbd888/ledgerisk/internal/records"
	"github.com/mbd888/ledgerisk/internal/retry"
	"github.com/mbd888/ledgerisk/internal/scoring"
	"github.com/mbd888/ledgerisk/internal/security"
	"github.com/mbd888/ledgerisk/internal/sources"
	"github.com/mbd888/ledgerisk/internal/traces"
	"github.com/mbd888/ledgerisk/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg           *config.Config
	ledger        ledger.Client
	recordsClient records.Client
	oracleSvc     *oracle.Service // nil when no oracle feed is configured
	srcs          *sources.Set
	audit         *records.AuditWriter
	engine        *engine.Engine
	monitor       *monitor.Monitor
	discovery     *monitor.Discovery
	alertStore    monitor.AlertStore
	realtimeHub   *realtime.Hub
	checks        *health.Registry
	rateLimiter   *ratelimit.Limiter
	db            *sql.DB // nil if using in-memory
	router        *gin.Engine
	httpSrv       *http.Server
	logger        *slog.Logger

	baseCtx        context.Context    // outlives requests; scopes monitor loops started over HTTP
	cancelBase     context.CancelFunc
	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run
	shutdownTraces func(context.Context) error

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithLedger sets a custom primary ledger client (for testing)
func WithLedger(l ledger.Client) Option {
	return func(s *Server) {
		s.ledger = l
	}
}

// WithRecordsClient sets a custom record store client (for testing)
func WithRecordsClient(c records.Client) Option {
	return func(s *Server) {
		s.recordsClient = c
	}
}

// WithOracleFeed sets a custom primary oracle feed (for testing)
func WithOracleFeed(f oracle.Feed) Option {
	return func(s *Server) {
		s.oracleSvc = oracle.NewService(f)
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())

	// Apply options first (may set clients/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var assessmentStore engine.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		store := engine.NewPostgresStore(db)
		if err := store.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate assessment store", "error", err)
		}
		assessmentStore = store

		alertStore := monitor.NewPostgresAlertStore(db)
		if err := alertStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate alert store", "error", err)
		}
		s.alertStore = alertStore
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		assessmentStore = engine.NewMemoryStore()
		s.alertStore = monitor.NewMemoryAlertStore()
	}

	// Primary ledger client if not injected
	if s.ledger == nil {
		if cfg.PoolContract != "" {
			client, err := ledger.NewEvmClient(ledger.Config{
				RPCURL:        cfg.RPCURL,
				PrivateKey:    cfg.PrivateKey,
				ChainID:       cfg.ChainID,
				PoolContract:  cfg.PoolContract,
				TokenDecimals: cfg.TokenDecimals,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create ledger client: %w", err)
			}
			s.ledger = client
			s.logger.Info("lending pool connected", "contract", cfg.PoolContract, "chainId", cfg.ChainID)
		} else {
			s.ledger = ledger.NewMemoryClient()
			s.logger.Info("using in-memory ledger (demo mode)")
		}
	}

	// Secondary ledger (record store) client if not injected
	if s.recordsClient == nil {
		if cfg.RecordsURL != "" {
			client, err := records.NewHTTPClient(records.HTTPConfig{
				BaseURL: cfg.RecordsURL,
				APIKey:  cfg.RecordsAPIKey,
				Timeout: cfg.RecordsTimeout,
			}, s.logger)
			if err != nil {
				return nil, fmt.Errorf("failed to create record store client: %w", err)
			}
			s.recordsClient = client
			s.logger.Info("record store connected", "url", cfg.RecordsURL)
		} else {
			s.recordsClient = records.NewMemoryClient()
			s.logger.Info("using in-memory record store (demo mode)")
		}
	}

	// Oracle feeds (optional)
	if s.oracleSvc == nil && cfg.OracleURL != "" {
		primary, err := oracle.NewHTTPFeed(oracle.HTTPFeedConfig{
			Name:    "primary",
			BaseURL: cfg.OracleURL,
			Timeout: cfg.OracleTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create oracle feed: %w", err)
		}

		svcOpts := []oracle.ServiceOption{
			oracle.WithBreaker(circuitbreaker.New(cfg.BreakerTrips, cfg.BreakerOpenFor)),
			oracle.WithLogger(s.logger),
		}
		if cfg.OracleFallbackURL != "" {
			fallback, err := oracle.NewHTTPFeed(oracle.HTTPFeedConfig{
				Name:    "fallback",
				BaseURL: cfg.OracleFallbackURL,
				Timeout: cfg.OracleTimeout,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create fallback oracle feed: %w", err)
			}
			svcOpts = append(svcOpts, oracle.WithFallback(fallback))
		}
		s.oracleSvc = oracle.NewService(primary, svcOpts...)
		s.logger.Info("oracle feeds enabled", "fallback", cfg.OracleFallbackURL != "")
	}

	// Audit trail writer (assessment and monitor events land in the record store)
	s.audit = records.NewAuditWriter(s.recordsClient, s.logger)

	// Per-source fetch layers with their own caches
	s.srcs = &sources.Set{
		Primary: sources.NewPrimary(s.ledger, sources.CacheConfig{
			TTL:           cfg.PrimaryTTL,
			MaxEntries:    cfg.CacheMaxEntries,
			SweepInterval: cfg.CacheSweepInterval,
		}, s.logger),
		Secondary: sources.NewSecondary(s.recordsClient, sources.CacheConfig{
			TTL:           cfg.SecondaryTTL,
			MaxEntries:    cfg.CacheMaxEntries,
			SweepInterval: cfg.CacheSweepInterval,
		}, s.logger),
	}
	if s.oracleSvc != nil {
		s.srcs.Oracle = sources.NewOracle(s.oracleSvc, sources.CacheConfig{
			TTL:           cfg.OracleTTL,
			MaxEntries:    cfg.CacheMaxEntries,
			SweepInterval: cfg.CacheSweepInterval,
		}, s.logger)
	}

	// Model execution chain: external model when configured, with the
	// weighted combiner and position heuristic behind it.
	chainOpts := []model.ChainOption{
		model.WithAuditWriter(s.audit),
		model.WithChainLogger(s.logger),
		model.WithCombinerWeights(scoring.CombinerWeights{
			Primary:    cfg.WeightPrimary,
			Reputation: cfg.WeightReputation,
		}),
	}
	switch cfg.ModelMode {
	case model.ModeLocal:
		chainOpts = append(chainOpts, model.WithModelClient(model.NewLocalClient(cfg.ModelPath, cfg.ModelTimeout)))
		s.logger.Info("local model enabled", "path", cfg.ModelPath)
	case model.ModeRemote:
		chainOpts = append(chainOpts, model.WithModelClient(model.NewRemoteClient(cfg.ModelURL, cfg.ModelTimeout)))
		s.logger.Info("remote model enabled", "url", cfg.ModelURL)
	}
	chain := model.NewChain(chainOpts...)

	s.engine = engine.New(s.ledger, s.srcs, chain, assessmentStore, engine.Config{
		WriteBackMinDelta: cfg.WriteBackMinDelta,
		ScoreTTL:          cfg.CacheTTL,
		CacheMaxEntries:   cfg.CacheMaxEntries,
		SweepInterval:     cfg.CacheSweepInterval,
		Retry:             retry.Policy{MaxAttempts: cfg.RetryAttempts, BaseDelay: cfg.RetryBaseDelay},
	}, s.logger)

	// Create realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger)
	s.logger.Info("realtime streaming enabled")

	s.monitor = monitor.New(s.engine, s.ledger, s.alertStore, monitor.Config{
		Interval:        cfg.MonitorInterval,
		ChangeThreshold: cfg.ChangeThreshold,
		AlertMultiplier: cfg.AlertMultiplier,
		Workers:         cfg.MonitorWorkers,
		WebhookURL:      cfg.AlertWebhookURL,
	},
		monitor.WithAuditWriter(s.audit),
		monitor.WithNotifier(s.realtimeHub),
		monitor.WithLogger(s.logger),
	)

	if cfg.DiscoveryEnabled {
		s.discovery = monitor.NewDiscovery(s.monitor, s.ledger, s.recordsClient, s.logger)
		s.logger.Info("borrower discovery enabled")
	}

	s.setupHealthChecks()

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
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

func (s *Server) setupHealthChecks() {
	s.checks = health.NewRegistry()

	if s.db != nil {
		s.checks.Register("database", health.WithTimeout(5*time.Second, func(ctx context.Context) health.Status {
			if err := s.db.PingContext(ctx); err != nil {
				return health.Status{Healthy: false, Detail: err.Error()}
			}
			return health.Status{Healthy: true}
		}))
	}

	s.checks.Register("ledger", health.WithTimeout(5*time.Second, func(ctx context.Context) health.Status {
		// A position read on the zero address exercises the RPC path
		// without depending on any particular account existing.
		if _, err := s.ledger.GetPosition(ctx, "0x0000000000000000000000000000000000000000"); err != nil {
			return health.Status{Healthy: false, Detail: err.Error()}
		}
		return health.Status{Healthy: true}
	}))
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
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

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS
	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(security.CORSMiddleware(origins))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPS > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPS
	}
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
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

		// Log level based on status code
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

// adminMiddleware guards mutating routes. With ADMIN_SECRET set, the
// X-Admin-Secret header must match; without it, admin routes are open in
// development only.
func (s *Server) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminSecret != "" {
			if c.GetHeader("X-Admin-Secret") != s.cfg.AdminSecret {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error":   "forbidden",
					"message": "Admin access required",
				})
				return
			}
			c.Next()
			return
		}
		if !s.cfg.IsDevelopment() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Admin routes are disabled without ADMIN_SECRET",
			})
			return
		}
		c.Next()
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// API info
	s.router.GET("/", s.infoHandler)

	// WebSocket for real-time streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// V1 API group
	v1 := s.router.Group("/v1")
	// Validate :address URL params on all v1 routes (no-op when param absent)
	v1.Use(validation.AddressParamMiddleware())

	engineHandler := engine.NewHandler(s.engine)
	engineHandler.RegisterRoutes(v1)

	monitorHandler := monitor.NewHandler(s.monitor, s.alertStore, s.baseCtx)
	monitorHandler.RegisterRoutes(v1)

	// ADMIN ROUTES (cache clearing, monitor mutations)
	admin := v1.Group("/admin")
	admin.Use(s.adminMiddleware())
	engineHandler.RegisterAdminRoutes(admin)
	monitorHandler.RegisterAdminRoutes(admin)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    statuses,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "ledgerisk",
		"description": "Cross-ledger account risk scoring",
		"version":     "0.1.0",
		"chainId":     s.cfg.ChainID,
		"monitor":     s.monitor.Running(),
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Distributed tracing (optional)
	if s.cfg.OTLPEndpoint != "" {
		shutdown, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
		if err != nil {
			s.logger.Warn("failed to initialize tracing", "error", err)
		} else {
			s.shutdownTraces = shutdown
			s.logger.Info("tracing enabled", "endpoint", s.cfg.OTLPEndpoint)
		}
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Start cache sweep loops
	for _, c := range s.engine.Caches() {
		go c.Start(runCtx)
	}

	// Start borrower discovery
	if s.discovery != nil {
		s.discovery.Start(runCtx)
	}

	// Sample DB pool stats for Prometheus
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
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

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, caches, discovery)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}
	s.cancelBase()

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	// Stop the monitor poll loop, draining in-flight checks
	if s.monitor.Running() {
		if err := s.monitor.Stop(); err != nil {
			s.logger.Error("monitor stop error", "error", err)
		} else {
			s.logger.Info("monitor stopped")
		}
	}

	if s.discovery != nil {
		s.discovery.Stop()
		s.logger.Info("discovery stopped")
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Stop cache sweep loops
	for _, c := range s.engine.Caches() {
		c.Stop()
	}

	// Flush pending audit records
	s.audit.Wait()

	// Flush traces
	if s.shutdownTraces != nil {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.shutdownTraces(flushCtx); err != nil {
			s.logger.Error("trace flush error", "error", err)
		}
		flushCancel()
	}

	// Close ledger RPC connection
	if err := s.ledger.Close(); err != nil {
		s.logger.Error("ledger close error", "error", err)
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Engine returns the assessment engine for testing
func (s *Server) Engine() *engine.Engine {
	return s.engine
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
