// Package api exposes the RAG pipeline over HTTP.
package api

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"rag-chatbot/internal/config"
	"rag-chatbot/internal/models"
)

// Pipeline is the part of rag.Pipeline the handlers use.
type Pipeline interface {
	Ingest(ctx context.Context, docs []models.Document) (*models.IngestResult, error)
	Ask(ctx context.Context, q models.Query) (*models.Answer, error)
	Status(ctx context.Context) models.Status
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// Server is the HTTP front of the chatbot.
type Server struct {
	cfg      *config.Config
	pipeline Pipeline
	validate *validator.Validate
	logger   zerolog.Logger
	app      *fiber.App
}

// NewServer registers the routes. gatherer may be nil to leave out /metrics.
func NewServer(cfg *config.Config, pipeline Pipeline, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		pipeline: pipeline,
		validate: newValidator(),
		logger:   logger,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		DisableStartupMessage: true,
		BodyLimit:             cfg.MaxUploadMB * 1024 * 1024,
		ErrorHandler:          s.handleError,
	})

	s.app.Use(recover.New())
	s.app.Use(cors.New())

	s.app.Post("/upload", s.handleUpload)
	s.app.Post("/ask", s.handleAsk)
	s.app.Get("/health", s.handleHealth)
	if gatherer != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return s
}

// Run listens on the configured address until Shutdown.
func (s *Server) Run() error {
	s.logger.Info().Str("listen", s.cfg.ListenAddr).Msg("Starting API server")
	return s.app.Listen(s.cfg.ListenAddr)
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// handleError turns handler errors into {"detail": ...} bodies.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := statusCode(err)
	if code >= fiber.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.Path()).Int("status", code).Msg("Request failed")
	} else {
		s.logger.Debug().Err(err).Str("path", c.Path()).Int("status", code).Msg("Request rejected")
	}
	return c.Status(code).JSON(ErrorResponse{Detail: err.Error()})
}

func statusCode(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, models.ErrTimeout):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, models.ErrGeneration):
		return fiber.StatusBadGateway
	case errors.Is(err, models.ErrEmbedding), errors.Is(err, models.ErrRetrieval):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, models.ErrIngestion), errors.Is(err, models.ErrInvalidInput):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}
