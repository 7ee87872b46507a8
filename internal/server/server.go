// Package server exposes the pipeline over HTTP: classification streaming,
// auto-sort application, similarity lookups, and tax summaries.
package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/taxquill/taxquill/internal/common"
	"github.com/taxquill/taxquill/internal/engine"
)

// Config tunes the HTTP server.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server wires the pipeline façade into a fiber app.
type Server struct {
	app      *fiber.App
	pipeline *engine.Pipeline
	logger   *slog.Logger
	cfg      Config
}

// New builds the app with its middleware and routes. Call Listen to serve.
func New(pipeline *engine.Pipeline, logger *slog.Logger, cfg Config) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}

	app := fiber.New(fiber.Config{
		AppName:               "taxquill",
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
	})

	s := &Server{
		app:      app,
		pipeline: pipeline,
		logger:   logger,
		cfg:      cfg,
	}

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(s.requestLogger)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")
	api.Post("/classify", s.handleClassify)
	api.Post("/autosort", s.handleAutoSort)
	api.Get("/similar", s.handleSimilar)
	api.Get("/summary", s.handleSummary)
	api.Post("/transactions/:id/personal", s.handleMarkPersonal)

	return s
}

// Listen serves until Shutdown is called or the listener fails.
func (s *Server) Listen() error {
	s.logger.Info("http server listening", "addr", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) requestLogger(c *fiber.Ctx) error {
	started := time.Now()
	err := c.Next()
	s.logger.Info("request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration", time.Since(started),
		"request_id", c.Locals(requestid.ConfigDefault.ContextKey))
	return err
}

// errorHandler maps domain errors onto HTTP statuses. External error bodies
// never pass through unfiltered; the client sees our message only.
func errorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError

		var fiberErr *fiber.Error
		switch {
		case errors.As(err, &fiberErr):
			code = fiberErr.Code
		case errors.Is(err, common.ErrNotFound):
			code = fiber.StatusNotFound
		case errors.Is(err, common.ErrInvalidConfig), errors.Is(err, common.ErrMissingConfig):
			code = fiber.StatusBadRequest
		}

		if code >= fiber.StatusInternalServerError {
			logger.Error("request failed", "path", c.Path(), "error", err)
		}

		return c.Status(code).JSON(fiber.Map{"error": err.Error()})
	}
}
