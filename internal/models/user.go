package models

import "time"

// Role distinguishes trainers, who author plans, from the trainees following them.
type Role string

const (
	RoleTrainer Role = "trainer"
	RoleTrainee Role = "trainee"
)

// User is the profile row referenced by message authors.
type User struct {
	ID          string    `db:"id" json:"id"`
	Email       string    `db:"email" json:"email"`
	DisplayName string    `db:"display_name" json:"display_name,omitempty"`
	Role        Role      `db:"role" json:"role"`
	AvatarURL   string    `db:"avatar_url" json:"avatar_url,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Snapshot returns the display fields copied onto messages.
func (u User) Snapshot() AuthorSnapshot {
	return AuthorSnapshot{
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		AvatarURL:   u.AvatarURL,
	}
}
