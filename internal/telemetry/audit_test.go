package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"coach-chat/internal/mocks"
	"coach-chat/internal/telemetry"
)

func TestEmitPublishesEnvelope(t *testing.T) {
	publisher := &mocks.PublisherMock{}
	emitter := telemetry.NewAuditEmitter(publisher, "audit.coach_chat", "coach-chat", "test", nil)

	var got telemetry.AuditEnvelope
	publisher.On("Publish", mock.Anything, "audit.coach_chat", mock.Anything, map[string]string{"x-request-id": "req-1"}).
		Run(func(args mock.Arguments) { got = args.Get(2).(telemetry.AuditEnvelope) }).
		Return(nil).Once()

	emitter.Emit(context.Background(), "req-1", "u1", telemetry.AuditPayload{Level: "INFO", Text: "message sent", Scope: "global"})

	publisher.AssertExpectations(t)
	require.Equal(t, "audit_log", got.EventType)
	assert.Equal(t, 1, got.SchemaVersion)
	assert.Equal(t, "coach-chat", got.Service)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "global", got.Payload.Scope)
	assert.NotEmpty(t, got.OccurredAt)
}

func TestEmitIgnoresPublishErrors(t *testing.T) {
	publisher := &mocks.PublisherMock{}
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError).Once()
	emitter := telemetry.NewAuditEmitter(publisher, "audit", "coach-chat", "test", nil)

	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), "", "", telemetry.AuditPayload{Text: "x"})
	})
}

func TestEmitOnNilEmitter(t *testing.T) {
	var emitter *telemetry.AuditEmitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), "r", "u", telemetry.AuditPayload{})
	})
}

func TestInitTracingWithoutEndpoint(t *testing.T) {
	shutdown, err := telemetry.InitTracing(context.Background(), "", "coach-chat", "test")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
