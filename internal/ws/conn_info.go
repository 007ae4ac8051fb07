package ws

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"coach-chat/internal/observability"
)

// ConnInfo identifies a websocket session in logs and lifecycle events.
type ConnInfo struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

func newConnInfo(r *http.Request, userID, traceID string) ConnInfo {
	requestID := observability.RequestIDFromRequest(r)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(r),
		IP:          observability.IPFromRequest(r),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
}

// Event builds the lifecycle envelope for this connection.
func (i ConnInfo) Event(name, scope, reason string) observability.EventEnvelope {
	return observability.WSEvent(name, scope, i.ConnID, i.UserID, i.DeviceID, i.IP, reason, time.Since(i.ConnectedAt).Milliseconds())
}

func (i ConnInfo) fields() []zap.Field {
	return []zap.Field{
		zap.String("conn_id", i.ConnID),
		zap.String("user_id", i.UserID),
		zap.String("request_id", i.RequestID),
	}
}
