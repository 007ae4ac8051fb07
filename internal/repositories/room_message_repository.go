package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"coach-chat/internal/models"
)

// RoomMessageRepository defines interactions for global room messages.
type RoomMessageRepository interface {
	List(ctx context.Context, limit int) ([]models.Message, error)
	Create(ctx context.Context, authorID, body, attachmentURL string) (models.Message, error)
	Get(ctx context.Context, id string) (models.Message, error)
	Delete(ctx context.Context, id, actorID string) error
}

// RoomMessageRepo is a sqlx-backed implementation.
type RoomMessageRepo struct {
	db *sqlx.DB
}

// NewRoomMessageRepo constructs a RoomMessageRepo.
func NewRoomMessageRepo(db *sqlx.DB) *RoomMessageRepo {
	return &RoomMessageRepo{db: db}
}

// List returns the newest room messages, newest first.
func (r *RoomMessageRepo) List(ctx context.Context, limit int) ([]models.Message, error) {
	var rows []messageRow
	err := r.db.SelectContext(ctx, &rows, `SELECT `+roomMessageColumns+`
        FROM room_messages m
        LEFT JOIN users u ON u.id = m.author_id
        ORDER BY m.created_at DESC, m.id DESC
        LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return toMessages(rows)
}

// Create persists a room message.
func (r *RoomMessageRepo) Create(ctx context.Context, authorID, body, attachmentURL string) (models.Message, error) {
	query := `WITH m AS (
            INSERT INTO room_messages (id, author_id, body, attachment_url)
            VALUES ($1, $2, $3, NULLIF($4, ''))
            RETURNING *
        )
        SELECT ` + roomMessageColumns + `
        FROM m
        LEFT JOIN users u ON u.id = m.author_id`
	var row messageRow
	if err := r.db.GetContext(ctx, &row, query, uuid.NewString(), authorID, body, attachmentURL); err != nil {
		return models.Message{}, err
	}
	return row.toMessage()
}

// Get fetches a single room message.
func (r *RoomMessageRepo) Get(ctx context.Context, id string) (models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, `SELECT `+roomMessageColumns+` FROM room_messages m LEFT JOIN users u ON u.id = m.author_id WHERE m.id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return row.toMessage()
}

// Delete removes a room message (author only).
func (r *RoomMessageRepo) Delete(ctx context.Context, id, actorID string) error {
	return deleteAuthored(ctx, r.db, "room_messages", id, actorID)
}
