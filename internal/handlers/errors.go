package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"coach-chat/internal/feed"
	"coach-chat/internal/repositories"
	"coach-chat/internal/storage"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		validation    *feed.ValidationError
		authorization *feed.AuthorizationError
		gateway       *feed.GatewayError
		blob          *feed.StorageError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &authorization), errors.Is(err, repositories.ErrNotAuthor):
		return http.StatusForbidden
	case errors.Is(err, repositories.ErrMessageNotFound),
		errors.Is(err, repositories.ErrUserNotFound),
		errors.Is(err, storage.ErrBlobNotFound):
		return http.StatusNotFound
	case errors.As(err, &gateway), errors.As(err, &blob):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error, message string) {
	status := statusFor(err)
	if status == http.StatusBadRequest || status == http.StatusForbidden {
		message = err.Error()
	}
	c.JSON(status, gin.H{"error": message})
}
