package http

import (
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/todoauth/internal/domain/auth"
	"github.com/yanqian/todoauth/internal/infra/config"
	apperrors "github.com/yanqian/todoauth/pkg/errors"
)

// Handler wires the HTTP transport to the auth service.
type Handler struct {
	svc        auth.Service
	transport  sessionTransport
	successURL string
	failureURL string
	env        string
	startedAt  time.Time
	logger     *slog.Logger
}

// NewHandler constructs the root HTTP handler.
func NewHandler(cfg *config.Config, svc auth.Service, logger *slog.Logger) *Handler {
	return &Handler{
		svc:        svc,
		transport:  newSessionTransport(cfg.IsProduction()),
		successURL: cfg.Auth.SuccessRedirectURL,
		failureURL: cfg.Auth.FailureRedirectURL,
		env:        cfg.Env,
		startedAt:  time.Now(),
		logger:     logger.With("component", "http.handler"),
	}
}

// Info describes the service.
func (h *Handler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "todoauth is alive",
		"health":  "/health",
	})
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"uptime":      time.Since(h.startedAt).Round(time.Second).String(),
		"environment": h.env,
		"go_version":  runtime.Version(),
	})
}

// NotFound renders unknown routes in the common error shape.
func (h *Handler) NotFound(c *gin.Context) {
	abortWithError(c, NewHTTPError(http.StatusNotFound, apperrors.CodeNotFound, "route not found", nil))
}

func invalidBody(err error) *HTTPError {
	return NewHTTPError(http.StatusBadRequest, apperrors.CodeInvalidInput, "invalid request body", err)
}
