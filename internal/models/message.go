package models

import "time"

// AttachmentPlaceholder is stored as the body of attachment-only messages.
const AttachmentPlaceholder = "📷 Photo"

// Message is one entry of a chat feed.
type Message struct {
	ID            string         `json:"id"`
	Scope         Scope          `json:"scope"`
	AuthorID      string         `json:"author_id"`
	RecipientID   string         `json:"recipient_id,omitempty"`
	Body          string         `json:"body"`
	AttachmentURL string         `json:"attachment_url,omitempty"`
	Read          bool           `json:"read"`
	CreatedAt     time.Time      `json:"created_at"`
	Author        AuthorSnapshot `json:"author"`
	// Recipient is set on direct messages whose recipient profile was resolved.
	Recipient *AuthorSnapshot `json:"recipient,omitempty"`
}

// HasAttachment reports whether the message references an uploaded blob.
func (m Message) HasAttachment() bool {
	return m.AttachmentURL != ""
}

// AuthorSnapshot carries denormalized author display fields resolved at read time.
type AuthorSnapshot struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	Role        Role   `json:"role"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// UnknownAuthor is attached when the author of a row cannot be resolved.
var UnknownAuthor = AuthorSnapshot{
	Email: "unknown@user.local",
	Role:  RoleTrainee,
}

// InsertRow is the scalar payload of an insert event. It never carries joined fields.
type InsertRow struct {
	ID            string    `json:"id"`
	Scope         Scope     `json:"scope"`
	AuthorID      string    `json:"author_id"`
	RecipientID   string    `json:"recipient_id,omitempty"`
	Body          string    `json:"body"`
	AttachmentURL string    `json:"attachment_url,omitempty"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"created_at"`
}

// Message converts the row into a message with the given author snapshot.
func (r InsertRow) Message(author AuthorSnapshot) Message {
	return Message{
		ID:            r.ID,
		Scope:         r.Scope,
		AuthorID:      r.AuthorID,
		RecipientID:   r.RecipientID,
		Body:          r.Body,
		AttachmentURL: r.AttachmentURL,
		Read:          r.Read,
		CreatedAt:     r.CreatedAt,
		Author:        author,
	}
}
