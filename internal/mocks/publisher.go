package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"coach-chat/internal/observability"
	"coach-chat/internal/telemetry"
)

// PublisherMock stands in for the AMQP publisher. Besides the testify expectations it
// records the name of every envelope published (the text, for audit envelopes) so
// tests can inspect events emitted from other goroutines.
type PublisherMock struct {
	mock.Mock

	mu     sync.Mutex
	events map[string][]string
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	m.record(routingKey, event)
	args := m.Called(ctx, routingKey, event, headers)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// EventNames returns the names of the envelopes published on routingKey, in order.
func (m *PublisherMock) EventNames(routingKey string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events[routingKey]...)
}

func (m *PublisherMock) record(routingKey string, event any) {
	var name string
	switch ev := event.(type) {
	case observability.EventEnvelope:
		name = ev.EventName
	case telemetry.AuditEnvelope:
		name = ev.Payload.Text
	default:
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.events == nil {
		m.events = make(map[string][]string)
	}
	m.events[routingKey] = append(m.events[routingKey], name)
}

var _ telemetry.Publisher = (*PublisherMock)(nil)
