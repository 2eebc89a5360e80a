// Package handlers provides the REST handlers for the desktop control
// plane. The desktop UI talks to the core over localhost; every handler
// works against the store, never the database directly.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pentrypal/app/core/internal/errors"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// HandleError maps core error codes onto HTTP statuses.
func HandleError(c *gin.Context, err error) {
	code := errors.CodeOf(err)
	c.JSON(mapCodeToHTTP(code), ErrorResponse{Code: string(code), Error: err.Error()})
}

func mapCodeToHTTP(code errors.ErrorCode) int {
	switch code {
	case errors.ErrNotFound, errors.ErrListNotFound, errors.ErrItemNotFound, errors.ErrPantryItemNotFound:
		return http.StatusNotFound
	case errors.ErrInvalid, errors.ErrValidation:
		return http.StatusBadRequest
	case errors.ErrDuplicate, errors.ErrSyncConflict:
		return http.StatusConflict
	case errors.ErrAuthFailed, errors.ErrTokenExpired, errors.ErrSessionRevoked:
		return http.StatusUnauthorized
	case errors.ErrSyncInProgress:
		return http.StatusTooManyRequests
	case errors.ErrOffline, errors.ErrNetwork, errors.ErrTimeout:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
