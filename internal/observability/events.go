package observability

type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// WSEvent builds the envelope published for websocket lifecycle events.
func WSEvent(name, scope, connID, userID, deviceID, ip, reason string, durationMs int64) EventEnvelope {
	return EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload: map[string]interface{}{
			"ws": map[string]interface{}{
				"kind":        "feed",
				"scope":       scope,
				"event":       name,
				"conn_id":     connID,
				"duration_ms": durationMs,
				"reason":      reason,
			},
			"identity": map[string]interface{}{
				"user_id":   userID,
				"device_id": deviceID,
				"ip":        ip,
			},
		},
	}
}
