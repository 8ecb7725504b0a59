// Package server exposes the interview engine over HTTP.
package server

import (
	"context"
	"errors"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/spigell/interviewpilot/internal/engine"
	"github.com/spigell/interviewpilot/internal/health"
	"github.com/spigell/interviewpilot/internal/identity"
)

const (
	app         = "interviewpilot"
	apiPrefix   = "/api/v1/interviews"
	metricsPath = "/metrics"
)

type Config struct {
	Listen        string        `mapstructure:"listen"`
	RateLimit     int           `mapstructure:"rate-limit"`
	RateWindow    time.Duration `mapstructure:"rate-window"`
	HealthTimeout time.Duration `mapstructure:"health-timeout"`
	BodyLimit     int           `mapstructure:"body-limit"`
}

func DefaultConfig() Config {
	return Config{
		Listen:        ":8080",
		RateLimit:     60,
		RateWindow:    time.Minute,
		HealthTimeout: 3 * time.Second,
		BodyLimit:     1 << 20,
	}
}

// Deps are the collaborators of the HTTP surface. Registry may be nil, in
// which case /metrics is not served.
type Deps struct {
	Engine   *engine.Engine
	Resolver *identity.Resolver
	Checks   []health.Check
	Registry *prometheus.Registry
	Logger   *zap.Logger
}

type Server struct {
	cfg      Config
	app      *fiber.App
	engine   *engine.Engine
	resolver *identity.Resolver
	checks   []health.Check
	logger   *zap.Logger
}

func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New("server: engine is required")
	}
	if deps.Resolver == nil {
		return nil, errors.New("server: identity resolver is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	defaults := DefaultConfig()
	if cfg.Listen == "" {
		cfg.Listen = defaults.Listen
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = defaults.RateWindow
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = defaults.HealthTimeout
	}
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = defaults.BodyLimit
	}

	s := &Server{
		cfg:      cfg,
		engine:   deps.Engine,
		resolver: deps.Resolver,
		checks:   deps.Checks,
		logger:   deps.Logger.With(zap.String("component", "server")),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               app,
		BodyLimit:             cfg.BodyLimit,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          2 * time.Minute,
		IdleTimeout:           2 * time.Minute,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())

	if deps.Registry != nil {
		prom := fiberprometheus.NewWithRegistry(deps.Registry, app, app, "http", nil)
		s.app.Use(prom.Middleware)
		s.app.Get(metricsPath, adaptor.HTTPHandler(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}
	s.app.Use(s.logRequests)

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.app.Get("/health", s.healthLive)
	s.app.Get("/health/full", s.healthFull)
	s.app.Get("/health/:check", s.healthOne)

	api := s.app.Group(apiPrefix, s.authenticate, s.rateLimiter())
	api.Get("/", s.listInterviews)
	api.Post("/start", s.startInterview)
	api.Post("/answer", s.submitAnswer)
	api.Get("/:session_id", s.interviewProgress)
	api.Get("/:session_id/report", s.interviewReport)
	api.Post("/:session_id/cancel", s.cancelInterview)
}

// App exposes the underlying fiber application, mostly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen blocks serving HTTP until Shutdown is called.
func (s *Server) Listen() error {
	s.logger.Info("listening", zap.String("address", s.cfg.Listen))
	return s.app.Listen(s.cfg.Listen)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	started := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}

	s.logger.Debug("request",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", status),
		zap.Duration("latency", time.Since(started)),
	)
	return err
}
