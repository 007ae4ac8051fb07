package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"coach-chat/internal/models"
)

var ErrInvalidRow = errors.New("invalid message row")

// messageColumns selects a message joined with its author (u) and, for direct
// messages, its recipient (r); use it with messageJoins. Room rows alias the columns
// they do not have.
const messageColumns = `m.id, m.author_id, m.recipient_id, m.plan_id, m.body, m.attachment_url, m.read, m.created_at,
    u.email AS author_email, u.display_name AS author_display_name, u.role AS author_role, u.avatar_url AS author_avatar_url,
    r.email AS recipient_email, r.display_name AS recipient_display_name, r.role AS recipient_role, r.avatar_url AS recipient_avatar_url`

const messageJoins = `LEFT JOIN users u ON u.id = m.author_id
        LEFT JOIN users r ON r.id = m.recipient_id`

const roomMessageColumns = `m.id, m.author_id, NULL::text AS recipient_id, NULL::text AS plan_id, m.body, m.attachment_url, FALSE AS read, m.created_at,
    u.email AS author_email, u.display_name AS author_display_name, u.role AS author_role, u.avatar_url AS author_avatar_url,
    NULL::text AS recipient_email, NULL::text AS recipient_display_name, NULL::text AS recipient_role, NULL::text AS recipient_avatar_url`

type messageRow struct {
	ID                sql.NullString `db:"id"`
	AuthorID          sql.NullString `db:"author_id"`
	RecipientID       sql.NullString `db:"recipient_id"`
	PlanID            sql.NullString `db:"plan_id"`
	Body              sql.NullString `db:"body"`
	AttachmentURL     sql.NullString `db:"attachment_url"`
	Read              sql.NullBool   `db:"read"`
	CreatedAt         sql.NullTime   `db:"created_at"`
	AuthorEmail       sql.NullString `db:"author_email"`
	AuthorDisplayName sql.NullString `db:"author_display_name"`
	AuthorRole        sql.NullString `db:"author_role"`
	AuthorAvatarURL   sql.NullString `db:"author_avatar_url"`

	RecipientEmail       sql.NullString `db:"recipient_email"`
	RecipientDisplayName sql.NullString `db:"recipient_display_name"`
	RecipientRole        sql.NullString `db:"recipient_role"`
	RecipientAvatarURL   sql.NullString `db:"recipient_avatar_url"`
}

// toMessage validates the row and builds a Message. The scope comes from the row: a
// plan id makes a plan thread, a recipient a direct conversation, neither the room.
func (r messageRow) toMessage() (models.Message, error) {
	if !r.ID.Valid || r.ID.String == "" {
		return models.Message{}, fmt.Errorf("%w: missing id", ErrInvalidRow)
	}
	if !r.AuthorID.Valid || r.AuthorID.String == "" {
		return models.Message{}, fmt.Errorf("%w: message %s has no author", ErrInvalidRow, r.ID.String)
	}
	if !r.CreatedAt.Valid {
		return models.Message{}, fmt.Errorf("%w: message %s has no timestamp", ErrInvalidRow, r.ID.String)
	}

	var scope models.Scope
	switch {
	case r.PlanID.Valid:
		scope = models.PlanThread(r.PlanID.String)
	case r.RecipientID.Valid:
		scope = models.DirectConversation(r.AuthorID.String, r.RecipientID.String)
	default:
		scope = models.GlobalRoom()
	}

	author := models.UnknownAuthor
	if snap, ok := snapshot(r.AuthorEmail, r.AuthorDisplayName, r.AuthorRole, r.AuthorAvatarURL); ok {
		author = snap
	}
	var recipient *models.AuthorSnapshot
	if snap, ok := snapshot(r.RecipientEmail, r.RecipientDisplayName, r.RecipientRole, r.RecipientAvatarURL); ok && r.RecipientID.Valid {
		recipient = &snap
	}

	return models.Message{
		ID:            r.ID.String,
		Scope:         scope,
		AuthorID:      r.AuthorID.String,
		RecipientID:   r.RecipientID.String,
		Body:          r.Body.String,
		AttachmentURL: r.AttachmentURL.String,
		Read:          r.Read.Bool,
		CreatedAt:     r.CreatedAt.Time,
		Author:        author,
		Recipient:     recipient,
	}, nil
}

// snapshot builds display fields from joined user columns; a missing email means the
// join found nobody.
func snapshot(email, displayName, role, avatarURL sql.NullString) (models.AuthorSnapshot, bool) {
	if !email.Valid || email.String == "" {
		return models.AuthorSnapshot{}, false
	}
	snap := models.AuthorSnapshot{
		Email:       email.String,
		DisplayName: displayName.String,
		Role:        models.Role(role.String),
		AvatarURL:   avatarURL.String,
	}
	if snap.Role == "" {
		snap.Role = models.RoleTrainee
	}
	return snap, true
}

func toMessages(rows []messageRow) ([]models.Message, error) {
	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msg, err := row.toMessage()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}
