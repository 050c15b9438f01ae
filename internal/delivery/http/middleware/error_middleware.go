package middleware

import (
	"errors"
	"net/http"

	"go-candidate-tracker/internal/delivery/http/response"
	"go-candidate-tracker/internal/domain"
	"go-candidate-tracker/pkg/apperror"
	"go-candidate-tracker/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler renders the last error attached with c.Error. Domain
// sentinels get their own status; anything else is a generic 500.
func ErrorHandler() gin.HandlerFunc {
	log := logger.Component("http")

	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		appErr := toAppError(err)
		if appErr.Code >= http.StatusInternalServerError {
			log.Error("Request failed",
				"error", err,
				"status", appErr.Code,
				"path", c.FullPath(),
				"request_id", response.RequestID(c),
			)
		}
		response.Error(c, appErr.Code, appErr.Message, appErr.Details)
	}
}

func toAppError(err error) *apperror.AppError {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return apperror.NotFound("Candidate not found")
	case errors.Is(err, domain.ErrDraftNotFound):
		return apperror.NotFound("Draft session not found or expired")
	case errors.Is(err, domain.ErrEditModeOnly):
		return apperror.Conflict("Only available when editing an existing candidate")
	case errors.Is(err, domain.ErrStorage):
		return apperror.Unavailable("Storage is unavailable, please retry", err)
	case errors.Is(err, domain.ErrAssetIO):
		return apperror.Unavailable("Photo could not be stored, please retry", err)
	}
	// never expose internal error text to clients
	return &apperror.AppError{
		Code:    http.StatusInternalServerError,
		Message: "An unexpected error occurred. Please try again later.",
		Err:     err,
	}
}
