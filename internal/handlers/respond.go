package handlers

import (
	"errors"
	"net/http"
	"strconv"

	apperrors "competitor-radar/internal/errors"
	"competitor-radar/internal/scheduler"

	"github.com/gin-gonic/gin"
)

// statusFor maps the error taxonomy to an HTTP status
func statusFor(err error) int {
	switch {
	case apperrors.IsNotFound(err):
		return http.StatusNotFound
	case apperrors.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, scheduler.ErrRunInProgress):
		return http.StatusConflict
	case apperrors.IsDataSource(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

// queryLimit parses ?limit=, falling back to def for missing or invalid values and capping at max
func queryLimit(c *gin.Context, def, max int) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
