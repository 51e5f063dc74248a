// Package server exposes the review pipeline over HTTP.
//
// Routes:
//   - POST /v1/reviews runs the pipeline and returns the outcome
//   - GET /healthz, /health/live, /health/ready, /health/startup
//   - GET /metrics in Prometheus exposition format
//
// Shutdown fails readiness first and then drains open connections.
package server

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/health"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/log"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/metrics"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/pipeline"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/plan"
)

// Runner runs one review. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Outcome, error)
}

// Config holds server configuration.
type Config struct {
	// Address is the listen address (e.g., ":8080")
	Address string

	// ServiceName names the otelgin server spans. Defaults to "iamgate".
	ServiceName string

	// ShutdownTimeout bounds connection draining. Defaults to 30 seconds.
	ShutdownTimeout time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxBodyBytes caps review request bodies. Defaults to 16 MiB.
	MaxBodyBytes int64
}

// Deps are the server's collaborators. Fetcher and Gatherer are optional.
type Deps struct {
	Runner   Runner
	Probes   *health.ProbeManager
	Fetcher  plan.ObjectFetcher
	Gatherer prometheus.Gatherer
	Logger   *log.Logger
}

// Server serves reviews, probes and metrics.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server

	runner   Runner
	probes   *health.ProbeManager
	fetcher  plan.ObjectFetcher
	gatherer prometheus.Gatherer
	logger   *log.Logger

	maxBodyBytes    int64
	shutdownTimeout time.Duration
	inShutdown      atomic.Bool
}

// New builds the server and its routes.
func New(cfg Config, deps Deps) *Server {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	// reviews include a model call; allow for it
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 16 << 20
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "iamgate"
	}
	if deps.Probes == nil {
		deps.Probes = health.NewProbeManager("")
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		runner:          deps.Runner,
		probes:          deps.Probes,
		fetcher:         deps.Fetcher,
		gatherer:        deps.Gatherer,
		logger:          log.OrDefault(deps.Logger),
		maxBodyBytes:    cfg.MaxBodyBytes,
		shutdownTimeout: cfg.ShutdownTimeout,
	}

	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware(cfg.ServiceName), s.accessLog())
	s.engine = r
	s.routes()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleReadiness)
	s.engine.GET("/health/live", s.handleLiveness)
	s.engine.GET("/health/ready", s.handleReadiness)
	s.engine.GET("/health/startup", s.handleStartup)
	s.engine.GET("/metrics", gin.WrapH(metrics.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := s.engine.Group("/v1")
	{
		v1.POST("/reviews", s.handleReview)
	}

	s.engine.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start marks the server initialized and blocks serving. It returns
// http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	s.probes.MarkInitialized()
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown fails readiness, stops keep-alives and drains connections for at
// most the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)
	s.probes.MarkShutdown()
	s.httpServer.SetKeepAlivesEnabled(false)

	ctx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// IsShuttingDown reports whether Shutdown was called.
func (s *Server) IsShuttingDown() bool {
	return s.inShutdown.Load()
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.logger.Enabled(c.Request.Context(), log.LevelDebug) {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
