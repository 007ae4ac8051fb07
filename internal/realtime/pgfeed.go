package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"coach-chat/internal/feed"
	"coach-chat/internal/models"
)

const (
	minReconnect = 10 * time.Second
	maxReconnect = time.Minute
	pingInterval = 90 * time.Second
)

// PGFeed listens for the insert notifications raised by the message table triggers and
// publishes them through a Hub.
type PGFeed struct {
	hub      *Hub
	listener *pq.Listener
	channel  string
	log      *zap.Logger
}

// NewPGFeed opens a LISTEN connection on channel.
func NewPGFeed(dsn, channel string, hub *Hub, log *zap.Logger) (*PGFeed, error) {
	listener := pq.NewListener(dsn, minReconnect, maxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Warn("feed listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := listener.Listen(channel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listen %s: %w", channel, err)
	}
	return &PGFeed{hub: hub, listener: listener, channel: channel, log: log}, nil
}

var _ feed.EventFeed = (*PGFeed)(nil)

// Subscribe implements feed.EventFeed.
func (f *PGFeed) Subscribe(ctx context.Context, scope models.Scope, onInsert func(models.InsertRow)) (feed.Subscription, error) {
	return f.hub.Subscribe(ctx, scope, onInsert)
}

// Unsubscribe implements feed.EventFeed.
func (f *PGFeed) Unsubscribe(sub feed.Subscription) error {
	return f.hub.Unsubscribe(sub)
}

// Run forwards notifications to the hub until ctx is done.
func (f *PGFeed) Run(ctx context.Context) error {
	f.log.Info("feed listener started", zap.String("channel", f.channel))
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-f.listener.Notify:
			if !ok {
				return errors.New("feed listener closed")
			}
			if n == nil {
				// reconnected; notifications sent while disconnected are lost
				f.log.Warn("feed listener reconnected", zap.String("channel", f.channel))
				continue
			}
			row, err := DecodeNotification([]byte(n.Extra))
			if err != nil {
				f.log.Warn("drop malformed notification", zap.Error(err))
				continue
			}
			f.hub.Publish(row)
		case <-ticker.C:
			go func() {
				if err := f.listener.Ping(); err != nil {
					f.log.Warn("feed listener ping failed", zap.Error(err))
				}
			}()
		}
	}
}

// Close stops listening and ends every subscription.
func (f *PGFeed) Close() error {
	f.hub.Close()
	return f.listener.Close()
}

type notification struct {
	Table string `json:"table"`
	Row   struct {
		ID            string    `json:"id"`
		AuthorID      string    `json:"author_id"`
		RecipientID   *string   `json:"recipient_id"`
		PlanID        *string   `json:"plan_id"`
		Body          string    `json:"body"`
		AttachmentURL *string   `json:"attachment_url"`
		Read          bool      `json:"read"`
		CreatedAt     time.Time `json:"created_at"`
	} `json:"row"`
}

// DecodeNotification turns a trigger payload into an insert row. The trigger leaves
// out body and attachment_url, so the row carries identity and scope only.
func DecodeNotification(payload []byte) (models.InsertRow, error) {
	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return models.InsertRow{}, fmt.Errorf("decode notification: %w", err)
	}
	if n.Row.ID == "" || n.Row.AuthorID == "" {
		return models.InsertRow{}, fmt.Errorf("notification from %q lacks id or author", n.Table)
	}

	row := models.InsertRow{
		ID:        n.Row.ID,
		AuthorID:  n.Row.AuthorID,
		Body:      n.Row.Body,
		Read:      n.Row.Read,
		CreatedAt: n.Row.CreatedAt,
	}
	if n.Row.AttachmentURL != nil {
		row.AttachmentURL = *n.Row.AttachmentURL
	}

	switch n.Table {
	case "room_messages":
		row.Scope = models.GlobalRoom()
	case "messages":
		switch {
		case n.Row.PlanID != nil:
			row.Scope = models.PlanThread(*n.Row.PlanID)
		case n.Row.RecipientID != nil:
			row.RecipientID = *n.Row.RecipientID
			row.Scope = models.DirectConversation(row.AuthorID, row.RecipientID)
		default:
			return models.InsertRow{}, fmt.Errorf("message %s has neither plan nor recipient", row.ID)
		}
	default:
		return models.InsertRow{}, fmt.Errorf("unexpected notification table %q", n.Table)
	}
	return row, nil
}
