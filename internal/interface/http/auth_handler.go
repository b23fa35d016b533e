package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/todoauth/internal/domain/auth"
	apperrors "github.com/yanqian/todoauth/pkg/errors"
)

const loginFailureMessage = "Sorry, but there was an error during authentication. Please try again."

// Register creates a password account and signs it in.
func (h *Handler) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, invalidBody(err))
		return
	}
	session, err := h.svc.Register(c.Request.Context(), req)
	if err != nil {
		abortWithAppError(c, err)
		return
	}
	h.transport.writeSession(c, session)
	c.JSON(http.StatusCreated, gin.H{"user": session.User})
}

// Login verifies email and password.
func (h *Handler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, invalidBody(err))
		return
	}
	session, err := h.svc.Login(c.Request.Context(), req)
	if err != nil {
		abortWithAppError(c, err)
		return
	}
	h.transport.writeSession(c, session)
	c.JSON(http.StatusOK, gin.H{"user": session.User})
}

// Refresh mints a new access token from the refresh cookie. The refresh cookie itself is
// left untouched.
func (h *Handler) Refresh(c *gin.Context) {
	token, ok := h.transport.readRefresh(c)
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusUnauthorized, apperrors.CodeUnauthenticated, "refresh token missing", nil))
		return
	}
	session, err := h.svc.Refresh(c.Request.Context(), token)
	if err != nil {
		abortWithAppError(c, err)
		return
	}
	h.transport.writeAccess(c, session.AccessToken)
	c.JSON(http.StatusOK, gin.H{"principal": session.Principal})
}

// Logout clears both session cookies. Tokens stay valid until they expire.
func (h *Handler) Logout(c *gin.Context) {
	h.transport.clear(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the caller's principal and profile.
func (h *Handler) Me(c *gin.Context) {
	principal, ok := getPrincipal(c)
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusUnauthorized, apperrors.CodeUnauthenticated, "authentication required", nil))
		return
	}
	profile, err := h.svc.Profile(c.Request.Context(), principal.ID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			abortWithError(c, NewHTTPError(http.StatusUnauthorized, apperrors.CodeUnauthenticated, "principal no longer exists", err))
			return
		}
		abortWithAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"principal": principal, "user": profile})
}

// GoogleStart redirects the browser to the Google consent screen.
func (h *Handler) GoogleStart(c *gin.Context) {
	state, verifier, challenge, err := auth.NewOAuthState()
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, apperrors.CodeInternal, genericErrorMessage, err))
		return
	}
	url, err := h.svc.GoogleAuthURL(state, challenge)
	if err != nil {
		abortWithAppError(c, err)
		return
	}
	h.transport.setOAuthState(c, state, verifier)
	c.Redirect(http.StatusFound, url)
}

// GoogleCallback completes the OAuth flow and redirects to the frontend.
func (h *Handler) GoogleCallback(c *gin.Context) {
	stored, ok := h.transport.readOAuthState(c)
	h.transport.clearOAuthState(c)
	if !ok || c.Query("state") != stored.State {
		h.logger.Warn("oauth state mismatch")
		c.Redirect(http.StatusFound, h.failureURL)
		return
	}
	if providerErr := c.Query("error"); providerErr != "" {
		h.logger.Warn("oauth provider returned error", "error", providerErr)
		c.Redirect(http.StatusFound, h.failureURL)
		return
	}
	session, err := h.svc.GoogleCallback(c.Request.Context(), c.Query("code"), stored.CodeVerifier)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeStoreUnavailable) {
			abortWithAppError(c, err)
			return
		}
		h.logger.Warn("oauth login failed", "code", apperrors.CodeOf(err), "error", err)
		c.Redirect(http.StatusFound, h.failureURL)
		return
	}
	h.transport.writeSession(c, session)
	c.Redirect(http.StatusFound, h.successURL)
}

// LoginFailure is the default landing route for failed OAuth attempts.
func (h *Handler) LoginFailure(c *gin.Context) {
	abortWithError(c, NewHTTPError(http.StatusUnauthorized, apperrors.CodeUnauthenticated, loginFailureMessage, nil))
}
