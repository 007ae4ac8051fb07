package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"coach-chat/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository abstracts user profile lookups.
type UserRepository interface {
	GetUser(ctx context.Context, id string) (models.User, error)
	ListByRole(ctx context.Context, role models.Role) ([]models.User, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

type userRow struct {
	ID          string         `db:"id"`
	Email       string         `db:"email"`
	DisplayName sql.NullString `db:"display_name"`
	Role        string         `db:"role"`
	AvatarURL   sql.NullString `db:"avatar_url"`
	CreatedAt   sql.NullTime   `db:"created_at"`
}

func (r userRow) toUser() models.User {
	return models.User{
		ID:          r.ID,
		Email:       r.Email,
		DisplayName: r.DisplayName.String,
		Role:        models.Role(r.Role),
		AvatarURL:   r.AvatarURL.String,
		CreatedAt:   r.CreatedAt.Time,
	}
}

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, id string) (models.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row, `SELECT id, email, display_name, role, avatar_url, created_at FROM users WHERE id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return row.toUser(), nil
}

// ListByRole returns users with the given role ordered by email, e.g. the trainers a
// trainee can open a conversation with.
func (r *UserRepo) ListByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	var rows []userRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT id, email, display_name, role, avatar_url, created_at FROM users WHERE role=$1 ORDER BY email ASC`, string(role)); err != nil {
		return nil, err
	}
	users := make([]models.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	return users, nil
}
