package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/yanqian/todoauth/pkg/errors"
)

const genericErrorMessage = "something went wrong"

// HTTPError captures the metadata required to serialize an error response consistently.
type HTTPError struct {
	Status  int
	Code    string
	Message string
	Err     error
	Stack   string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap exposes the underlying cause.
func (e *HTTPError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewHTTPError is a helper to build an HTTPError instance.
func NewHTTPError(status int, code, message string, err error) *HTTPError {
	return &HTTPError{Status: status, Code: code, Message: message, Err: err}
}

func asHTTPError(err error) *HTTPError {
	if err == nil {
		return nil
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	return fromAppError(err)
}

// fromAppError maps domain error codes onto HTTP statuses. Store failures and unknown
// errors never expose their message to the client.
func fromAppError(err error) *HTTPError {
	code := apperrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperrors.CodeUnauthenticated, apperrors.CodeInvalidToken, apperrors.CodeInvalidCredentials:
		status = http.StatusUnauthorized
	case apperrors.CodeForbidden:
		status = http.StatusForbidden
	case apperrors.CodeConflict:
		status = http.StatusConflict
	case apperrors.CodeInvalidInput:
		status = http.StatusBadRequest
	case apperrors.CodeNotFound:
		status = http.StatusNotFound
	case apperrors.CodeProviderDataIncomplete, apperrors.CodeOAuthExchangeFailed:
		status = http.StatusUnauthorized
	case apperrors.CodeConfig:
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		return &HTTPError{Status: status, Code: apperrors.CodeInternal, Message: genericErrorMessage, Err: err}
	}
	return &HTTPError{Status: status, Code: code, Message: apperrors.MessageOf(err), Err: err}
}

func abortWithError(c *gin.Context, err *HTTPError) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func abortWithAppError(c *gin.Context, err error) {
	abortWithError(c, fromAppError(err))
}
