package repositories

import (
	"context"
	"errors"
	"fmt"

	"coach-chat/internal/feed"
	"coach-chat/internal/models"
)

// Gateway implements feed.Gateway on top of the message repositories, routing each call
// to the table that holds the scope.
type Gateway struct {
	messages MessageRepository
	room     RoomMessageRepository
}

// NewGateway constructs a Gateway.
func NewGateway(messages MessageRepository, room RoomMessageRepository) *Gateway {
	return &Gateway{messages: messages, room: room}
}

var _ feed.Gateway = (*Gateway)(nil)

// FetchMessages returns up to limit messages of the scope, newest first.
func (g *Gateway) FetchMessages(ctx context.Context, scope models.Scope, limit int) ([]models.Message, error) {
	switch scope.Kind {
	case models.ScopeGlobal:
		return g.room.List(ctx, limit)
	case models.ScopeDirect:
		return g.messages.ListDirect(ctx, scope.UserA, scope.UserB, limit)
	case models.ScopePlan:
		return g.messages.ListPlan(ctx, scope.PlanID, limit)
	default:
		return nil, fmt.Errorf("unknown scope %q", scope.Kind)
	}
}

// InsertMessage stores a message written by authorID.
func (g *Gateway) InsertMessage(ctx context.Context, scope models.Scope, authorID, body, attachmentURL string) (models.Message, error) {
	if scope.Kind == models.ScopeGlobal {
		return g.room.Create(ctx, authorID, body, attachmentURL)
	}
	return g.messages.Create(ctx, scope, authorID, body, attachmentURL)
}

// DeleteMessage removes a message of any scope written by actorID.
func (g *Gateway) DeleteMessage(ctx context.Context, id, actorID string) error {
	err := g.messages.Delete(ctx, id, actorID)
	if !errors.Is(err, ErrMessageNotFound) {
		return err
	}
	return g.room.Delete(ctx, id, actorID)
}

// MarkRead flags the peer's messages to readerID in a direct scope as read.
func (g *Gateway) MarkRead(ctx context.Context, scope models.Scope, readerID string) error {
	if !scope.Includes(readerID) {
		return nil
	}
	_, err := g.messages.MarkDirectRead(ctx, readerID, scope.Peer(readerID))
	return err
}

// FetchOne loads a message of any scope by id.
func (g *Gateway) FetchOne(ctx context.Context, id string) (models.Message, error) {
	msg, err := g.messages.Get(ctx, id)
	if !errors.Is(err, ErrMessageNotFound) {
		return msg, err
	}
	return g.room.Get(ctx, id)
}

// Conversations returns every direct message involving userID, newest first.
func (g *Gateway) Conversations(ctx context.Context, userID string) ([]models.Message, error) {
	return g.messages.ListInvolving(ctx, userID)
}
