package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"pressiotrack/internal/service"
)

type alreadyLinkedResponse struct {
	Message     string `json:"message"`
	CaregiverID int64  `json:"caregiver_id"`
}

// serviceError maps a service error onto the response. Only unexpected
// errors are logged as errors; their text never reaches the client.
func serviceError(c *gin.Context, log *slog.Logger, err error) {
	var (
		validation *service.ValidationError
		linked     *service.AlreadyLinkedError
	)

	switch {
	case errors.As(err, &validation):
		newErrorResponse(c, http.StatusBadRequest, validation.Message)
	case errors.As(err, &linked):
		c.AbortWithStatusJSON(http.StatusBadRequest, alreadyLinkedResponse{
			Message:     "patient already has a caregiver",
			CaregiverID: linked.CaregiverID,
		})
	case errors.Is(err, service.ErrAlreadyLinked):
		newErrorResponse(c, http.StatusBadRequest, "patient already has a caregiver")
	case errors.Is(err, service.ErrInvalidCredentials):
		newErrorResponse(c, http.StatusBadRequest, "invalid credentials")
	case errors.Is(err, service.ErrInvalidToken):
		newErrorResponse(c, http.StatusBadRequest, "invalid or expired token")
	case errors.Is(err, service.ErrForbidden):
		newErrorResponse(c, http.StatusForbidden, "access denied")
	case errors.Is(err, service.ErrCaregiverNotFound):
		newErrorResponse(c, http.StatusNotFound, "caregiver not found")
	case errors.Is(err, service.ErrNotFound):
		newErrorResponse(c, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrConflict):
		newErrorResponse(c, http.StatusConflict, "user already registered")
	default:
		log.Error("request failed", slog.Any("error", err))

		newErrorResponse(c, http.StatusInternalServerError, "internal error")

		return
	}

	log.Info("request rejected", slog.Any("error", err))
}
