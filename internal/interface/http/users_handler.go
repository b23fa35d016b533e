package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/todoauth/internal/domain/auth"
	apperrors "github.com/yanqian/todoauth/pkg/errors"
)

type setRoleRequest struct {
	Role string `json:"role"`
}

// ListUsers returns every account. Admin only.
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.svc.ListUsers(c.Request.Context())
	if err != nil {
		abortWithAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// SetRole changes the role of an account. Admin only.
func (h *Handler) SetRole(c *gin.Context) {
	var req setRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, invalidBody(err))
		return
	}
	role, ok := auth.ParseRole(req.Role)
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, apperrors.CodeInvalidInput, "role must be user or admin", nil))
		return
	}
	user, err := h.svc.SetRole(c.Request.Context(), c.Param("id"), role)
	if err != nil {
		abortWithAppError(c, err)
		return
	}
	if caller, ok := getPrincipal(c); ok {
		h.logger.Info("role updated by admin", "admin_id", caller.ID, "user_id", user.ID, "role", role)
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
