package auth

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateToken(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, mr.Set("session:abc", "user-42"))
	require.NoError(t, mr.Set("session:blank", "  "))

	v := NewSessionValidator(client, "session:")
	ctx := context.Background()

	userID, err := v.ValidateToken(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "user-42", userID)

	for _, token := range []string{"", "missing", "blank"} {
		_, err := v.ValidateToken(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidSession, token)
	}
}

func TestValidateTokenReportsRedisFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, err := NewSessionValidator(client, "session:").ValidateToken(context.Background(), "abc")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidSession)
}
