package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/todoauth/internal/domain/auth"
	apperrors "github.com/yanqian/todoauth/pkg/errors"
	"github.com/yanqian/todoauth/pkg/metrics"
)

// gate builds the authorization middlewares. The role always comes from the store
// record, not from the token, so role changes apply on the next request.
type gate struct {
	svc       auth.Service
	transport sessionTransport
	metrics   *metrics.Auth
	logger    *slog.Logger
}

func newGate(svc auth.Service, transport sessionTransport, m *metrics.Auth, logger *slog.Logger) *gate {
	return &gate{svc: svc, transport: transport, metrics: m, logger: logger.With("component", "http.gate")}
}

func (g *gate) requireAuthenticated() gin.HandlerFunc {
	return g.require(auth.RoleUser)
}

func (g *gate) requireAdmin() gin.HandlerFunc {
	return g.require(auth.RoleAdmin)
}

func (g *gate) require(role auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := g.establish(c)
		if err != nil {
			if !apperrors.IsCode(err, apperrors.CodeUnauthenticated) {
				abortWithAppError(c, err)
				return
			}
		}
		var candidate *auth.Principal
		if err == nil {
			candidate = &principal
		}

		decision := auth.Authorize(candidate, role)
		g.metrics.Decision(string(decision))
		switch decision {
		case auth.Allow:
			setPrincipal(c, principal)
			c.Next()
		case auth.DenyForbidden:
			g.logger.Warn("access denied", "user_id", principal.ID, "role", principal.Role, "required", role, "path", c.Request.URL.Path)
			abortWithError(c, NewHTTPError(http.StatusForbidden, apperrors.CodeForbidden, "insufficient role", nil))
		default:
			abortWithError(c, NewHTTPError(http.StatusUnauthorized, apperrors.CodeUnauthenticated, "authentication required", err))
		}
	}
}

// establish reuses a principal set by an earlier gate on the same request.
func (g *gate) establish(c *gin.Context) (auth.Principal, error) {
	if p, ok := getPrincipal(c); ok {
		return p, nil
	}
	token, ok := g.transport.readAccess(c)
	if !ok {
		return auth.Principal{}, apperrors.Wrap(apperrors.CodeUnauthenticated, "access token missing", nil)
	}
	return g.svc.Authenticate(c.Request.Context(), token)
}
