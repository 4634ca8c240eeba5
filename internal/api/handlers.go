package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/trace"

	"agent-architect/backend/internal/engine"
	"agent-architect/backend/internal/executions"
	"agent-architect/backend/internal/logging"
	"agent-architect/backend/internal/repository"
	"agent-architect/backend/internal/services"
	"agent-architect/backend/pkg/models"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "agent-architect"

// Pinger checks a backing dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the unauthenticated endpoints.
type Handler struct {
	version string
	db      Pinger
}

// NewHandler creates a new Handler. db may be nil.
func NewHandler(version string, db Pinger) *Handler {
	return &Handler{version: version, db: db}
}

// HandleHealth reports service health. It answers 503 when the database
// does not respond.
// (GET /health)
func (h *Handler) HandleHealth(c echo.Context) error {
	status := models.HealthStatus{
		Status:    "ok",
		Service:   ServiceName,
		Version:   h.version,
		Timestamp: time.Now().UTC(),
	}
	code := http.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		status.Checks = map[string]string{"database": "ok"}
		if err := h.db.Ping(ctx); err != nil {
			status.Status = "degraded"
			status.Checks["database"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	return c.JSON(code, status)
}

// Configure installs the request validator and the error handler on e.
func Configure(e *echo.Echo, logger *logging.Logger) {
	e.Validator = NewRequestValidator()
	e.HTTPErrorHandler = ErrorHandler(logger)
}

// ErrorHandler renders every error as an RFC 7807 Problem Details response.
func ErrorHandler(logger *logging.Logger) echo.HTTPErrorHandler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, detail := classify(err)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"status", status,
				"error", err)
		}

		problem := models.ProblemDetails{
			Type:     "about:blank",
			Title:    http.StatusText(status),
			Status:   status,
			Detail:   detail,
			Instance: c.Request().URL.Path,
		}
		if sc := trace.SpanContextFromContext(c.Request().Context()); sc.HasTraceID() {
			problem.TraceID = sc.TraceID().String()
		}

		c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, problem)
	}
}

// classify maps an error to a status code and a client-safe detail.
func classify(err error) (int, string) {
	var (
		httpErr  *echo.HTTPError
		invalid  *services.ValidationError
		modelErr *engine.ModelInvocationError
		parseErr *engine.ResponseParseError
	)
	switch {
	case errors.As(err, &httpErr):
		if msg, ok := httpErr.Message.(string); ok {
			return httpErr.Code, msg
		}
		return httpErr.Code, http.StatusText(httpErr.Code)
	case errors.As(err, &invalid):
		return http.StatusBadRequest, invalid.Msg
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "workflow not found"
	case errors.Is(err, services.ErrAgentNotFound),
		errors.Is(err, executions.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, executions.ErrCompleted):
		return http.StatusConflict, err.Error()
	case errors.As(err, &modelErr), errors.As(err, &parseErr), errors.Is(err, services.ErrNoAgents):
		return http.StatusBadGateway, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
