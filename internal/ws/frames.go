package ws

import (
	"errors"

	"coach-chat/internal/feed"
	"coach-chat/internal/models"
)

// Client frame types.
const (
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	frameSend        = "send"
	frameDelete      = "delete"
	frameMarkRead    = "mark_read"
	frameReload      = "reload"
)

// Server event types.
const (
	eventSnapshot = "snapshot"
	eventMessage  = "message"
	eventDeleted  = "message_deleted"
	eventRead     = "read"
	eventAck      = "ack"
	eventError    = "error"
)

// clientFrame is a command sent by the client. Attachment is base64 in JSON.
type clientFrame struct {
	Type        string `json:"type"`
	RequestID   string `json:"request_id,omitempty"`
	Scope       string `json:"scope,omitempty"`
	Body        string `json:"body,omitempty"`
	Attachment  []byte `json:"attachment,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	MessageID   string `json:"message_id,omitempty"`
}

func (f clientFrame) attachment() *feed.Attachment {
	if len(f.Attachment) == 0 {
		return nil
	}
	return &feed.Attachment{Data: f.Attachment, ContentType: f.ContentType}
}

func changeEvent(change feed.Change) models.FeedEvent {
	scope := change.Scope
	switch change.Kind {
	case feed.ChangeReset:
		msgs := change.Messages
		if msgs == nil {
			msgs = []models.Message{}
		}
		return models.FeedEvent{Type: eventSnapshot, Scope: &scope, Messages: msgs}
	case feed.ChangeInsert:
		msg := change.Message
		return models.FeedEvent{Type: eventMessage, Scope: &scope, Message: &msg}
	case feed.ChangeRemove:
		return models.FeedEvent{Type: eventDeleted, Scope: &scope, MessageID: change.Message.ID}
	default:
		return models.FeedEvent{Type: eventRead, Scope: &scope}
	}
}

func errorEvent(requestID string, err error) models.FeedEvent {
	return models.FeedEvent{Type: eventError, RequestID: requestID, Error: err.Error(), Code: errorCode(err)}
}

// errorCode classifies feed errors for clients.
func errorCode(err error) string {
	var (
		validation    *feed.ValidationError
		authorization *feed.AuthorizationError
		storage       *feed.StorageError
		subscription  *feed.SubscriptionError
		gateway       *feed.GatewayError
	)
	switch {
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &authorization):
		return "forbidden"
	case errors.Is(err, feed.ErrNotFound):
		return "not_found"
	case errors.As(err, &storage):
		return "storage"
	case errors.As(err, &subscription):
		return "subscription"
	case errors.As(err, &gateway):
		return "gateway"
	case errors.Is(err, feed.ErrSuperseded):
		return "superseded"
	default:
		return "internal"
	}
}
