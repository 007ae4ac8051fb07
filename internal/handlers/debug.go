package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coach-chat/internal/models"
	"coach-chat/internal/telemetry"
)

// SubscriberCounter reports open event feed subscriptions per scope.
type SubscriberCounter interface {
	Subscribers(scope models.Scope) int
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, subscribers SubscriberCounter, enabled bool) {
	if !enabled {
		return
	}

	debug := router.Group("/debug")
	debug.GET("/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), requestIDFromContext(c), userIDFromContext(c), telemetry.AuditPayload{
			Level: "INFO",
			Text:  "audit test",
		})
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// scope uses the key form, e.g. global, plan:<id> or direct:<a>:<b>
	debug.GET("/feeds/:scope/subscribers", func(c *gin.Context) {
		var scope models.Scope
		if err := scope.UnmarshalText([]byte(c.Param("scope"))); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := scope.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"scope": scope, "subscribers": subscribers.Subscribers(scope)})
	})
}
