package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coach-chat/internal/models"
)

func TestDecodeNotificationDirect(t *testing.T) {
	payload := `{"table":"messages","row":{"id":"m1","author_id":"bob","recipient_id":"alice","plan_id":null,
		"body":"hi","attachment_url":null,"read":false,"created_at":"2025-03-01T09:00:00.123456+00:00"}}`

	row, err := DecodeNotification([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, models.DirectConversation("alice", "bob"), row.Scope)
	assert.Equal(t, "alice", row.RecipientID)
	assert.Equal(t, "hi", row.Body)
	assert.Equal(t, 2025, row.CreatedAt.Year())
}

func TestDecodeNotificationPlanAndRoom(t *testing.T) {
	plan, err := DecodeNotification([]byte(`{"table":"messages","row":{"id":"m2","author_id":"bob","plan_id":"p7","body":"","attachment_url":"https://media/bob/1.png","created_at":"2025-03-01T09:00:00Z"}}`))
	require.NoError(t, err)
	assert.Equal(t, models.PlanThread("p7"), plan.Scope)
	assert.Equal(t, "https://media/bob/1.png", plan.AttachmentURL)

	room, err := DecodeNotification([]byte(`{"table":"room_messages","row":{"id":"r1","author_id":"bob","body":"gm","created_at":"2025-03-01T09:00:00Z"}}`))
	require.NoError(t, err)
	assert.Equal(t, models.GlobalRoom(), room.Scope)
}

func TestDecodeNotificationWithoutContent(t *testing.T) {
	payload := `{"table":"messages","row":{"id":"m3","author_id":"bob","recipient_id":"alice","plan_id":null,
		"read":false,"created_at":"2025-03-01T09:00:00Z"}}`

	row, err := DecodeNotification([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, "m3", row.ID)
	assert.Equal(t, models.DirectConversation("alice", "bob"), row.Scope)
	assert.Empty(t, row.Body)
	assert.Empty(t, row.AttachmentURL)
}

func TestDecodeNotificationRejectsBadPayloads(t *testing.T) {
	for name, payload := range map[string]string{
		"json":     `{`,
		"table":    `{"table":"users","row":{"id":"u","author_id":"u"}}`,
		"id":       `{"table":"room_messages","row":{"author_id":"bob"}}`,
		"unscoped": `{"table":"messages","row":{"id":"m","author_id":"bob"}}`,
	} {
		_, err := DecodeNotification([]byte(payload))
		assert.Error(t, err, name)
	}
}
