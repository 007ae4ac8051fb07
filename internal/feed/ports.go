package feed

import (
	"context"

	"coach-chat/internal/models"
)

// Gateway is the persistence backend for message records.
type Gateway interface {
	// FetchMessages returns up to limit messages of the scope, newest first.
	FetchMessages(ctx context.Context, scope models.Scope, limit int) ([]models.Message, error)
	InsertMessage(ctx context.Context, scope models.Scope, authorID, body, attachmentURL string) (models.Message, error)
	DeleteMessage(ctx context.Context, id string, actorID string) error
	MarkRead(ctx context.Context, scope models.Scope, readerID string) error
	// FetchOne returns a message with its author snapshot attached.
	FetchOne(ctx context.Context, id string) (models.Message, error)
}

// BlobStorage keeps message attachments.
type BlobStorage interface {
	Upload(ctx context.Context, ownerID string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, url string) error
}

// Subscription is an opaque handle returned by EventFeed.Subscribe.
type Subscription uint64

// EventFeed delivers insert events for a scope. Callbacks of one subscription are
// invoked sequentially, in commit order.
type EventFeed interface {
	Subscribe(ctx context.Context, scope models.Scope, onInsert func(models.InsertRow)) (Subscription, error)
	Unsubscribe(sub Subscription) error
}

// Attachment is an image sent along with a message.
type Attachment struct {
	Data        []byte
	ContentType string
}
