package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

var ErrInvalidSession = errors.New("invalid session")

// SessionValidator resolves bearer tokens through session keys written by the sign-in
// service: GET prefix+token holds the user id.
type SessionValidator struct {
	rdb    *redis.Client
	prefix string
}

// NewSessionValidator constructs a SessionValidator.
func NewSessionValidator(rdb *redis.Client, prefix string) *SessionValidator {
	return &SessionValidator{rdb: rdb, prefix: prefix}
}

// ValidateToken returns the user id owning token.
func (v *SessionValidator) ValidateToken(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if v == nil || v.rdb == nil || token == "" {
		return "", ErrInvalidSession
	}
	userID, err := v.rdb.Get(ctx, v.prefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrInvalidSession
	}
	if err != nil {
		return "", err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", ErrInvalidSession
	}
	return userID, nil
}
