package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"coach-chat/internal/middleware"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

// RequestID assigns every request an id, echoed in the X-Request-ID response header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Request-ID", requestIDFromContext(c))
		c.Next()
	}
}

func userIDFromContext(c *gin.Context) string {
	if userID := middleware.UserID(c); userID != "" {
		return userID
	}
	return c.GetHeader("X-User-ID")
}
