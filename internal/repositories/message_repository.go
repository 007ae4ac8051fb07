package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"coach-chat/internal/feed"
	"coach-chat/internal/models"
)

// Sentinels shared with the feed so gateway failures classify without translation.
var (
	ErrMessageNotFound = feed.ErrNotFound
	ErrNotAuthor       = feed.ErrNotAuthor
)

// MessageRepository defines interactions for direct and plan thread messages.
type MessageRepository interface {
	ListDirect(ctx context.Context, userA, userB string, limit int) ([]models.Message, error)
	ListPlan(ctx context.Context, planID string, limit int) ([]models.Message, error)
	ListInvolving(ctx context.Context, userID string) ([]models.Message, error)
	Create(ctx context.Context, scope models.Scope, authorID, body, attachmentURL string) (models.Message, error)
	Get(ctx context.Context, id string) (models.Message, error)
	Delete(ctx context.Context, id, actorID string) error
	MarkDirectRead(ctx context.Context, readerID, peerID string) (int64, error)
}

// MessageRepo is a sqlx-backed repository over the messages table.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// ListDirect returns the newest messages exchanged between two users, newest first.
func (r *MessageRepo) ListDirect(ctx context.Context, userA, userB string, limit int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + `
        FROM messages m
        ` + messageJoins + `
        WHERE m.plan_id IS NULL
        AND ((m.author_id=$1 AND m.recipient_id=$2) OR (m.author_id=$2 AND m.recipient_id=$1))
        ORDER BY m.created_at DESC, m.id DESC
        LIMIT $3`
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, query, userA, userB, limit); err != nil {
		return nil, err
	}
	return toMessages(rows)
}

// ListPlan returns the newest messages of a plan thread, newest first.
func (r *MessageRepo) ListPlan(ctx context.Context, planID string, limit int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + `
        FROM messages m
        ` + messageJoins + `
        WHERE m.plan_id=$1
        ORDER BY m.created_at DESC, m.id DESC
        LIMIT $2`
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, query, planID, limit); err != nil {
		return nil, err
	}
	return toMessages(rows)
}

// ListInvolving returns every direct message the user sent or received, newest first.
func (r *MessageRepo) ListInvolving(ctx context.Context, userID string) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + `
        FROM messages m
        ` + messageJoins + `
        WHERE m.plan_id IS NULL AND (m.author_id=$1 OR m.recipient_id=$1)
        ORDER BY m.created_at DESC`
	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, err
	}
	return toMessages(rows)
}

// Create stores a direct or plan message and returns it with its author snapshot.
func (r *MessageRepo) Create(ctx context.Context, scope models.Scope, authorID, body, attachmentURL string) (models.Message, error) {
	var recipient, plan sql.NullString
	switch scope.Kind {
	case models.ScopeDirect:
		if !scope.Includes(authorID) {
			return models.Message{}, ErrNotAuthor
		}
		recipient = sql.NullString{String: scope.Peer(authorID), Valid: true}
	case models.ScopePlan:
		plan = sql.NullString{String: scope.PlanID, Valid: true}
	default:
		return models.Message{}, errors.New("message repository does not store " + string(scope.Kind) + " messages")
	}

	query := `WITH m AS (
            INSERT INTO messages (id, author_id, recipient_id, plan_id, body, attachment_url)
            VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
            RETURNING *
        )
        SELECT ` + messageColumns + `
        FROM m
        ` + messageJoins + ``
	var row messageRow
	if err := r.db.GetContext(ctx, &row, query, uuid.NewString(), authorID, recipient, plan, body, attachmentURL); err != nil {
		return models.Message{}, err
	}
	return row.toMessage()
}

// Get retrieves a single message with its author snapshot.
func (r *MessageRepo) Get(ctx context.Context, id string) (models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, `SELECT `+messageColumns+` FROM messages m `+messageJoins+` WHERE m.id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return row.toMessage()
}

// Delete removes a message authored by actorID.
func (r *MessageRepo) Delete(ctx context.Context, id, actorID string) error {
	return deleteAuthored(ctx, r.db, "messages", id, actorID)
}

// MarkDirectRead flags every unread message peerID sent to readerID.
func (r *MessageRepo) MarkDirectRead(ctx context.Context, readerID, peerID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET read = TRUE WHERE recipient_id=$1 AND author_id=$2 AND read = FALSE`, readerID, peerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// deleteAuthored deletes id from table when actorID wrote it, telling a missing row
// apart from someone else's.
func deleteAuthored(ctx context.Context, db *sqlx.DB, table, id, actorID string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id=$1 AND author_id=$2`, id, actorID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	var exists bool
	if err := db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM `+table+` WHERE id=$1)`, id); err != nil {
		return err
	}
	if exists {
		return ErrNotAuthor
	}
	return ErrMessageNotFound
}
