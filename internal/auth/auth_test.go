package auth

import (
	"context"
	"testing"
	"time"

	"classbook/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestJWTManager(t *testing.T) {
	ctx := context.Background()
	m := NewJWTManager("secret", 5*time.Hour)

	t.Run("IssueAndResolve", func(t *testing.T) {
		token, exp, err := m.IssueToken("u1")
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(5*time.Hour), exp, time.Minute)

		caller, err := m.ResolveCaller(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "u1", caller)

		caller, err = m.ResolveCaller(ctx, "Bearer "+token)
		require.NoError(t, err)
		assert.Equal(t, "u1", caller)
	})

	t.Run("EmptyUserID", func(t *testing.T) {
		_, _, err := m.IssueToken("")
		assert.Error(t, err)
	})

	t.Run("Rejects", func(t *testing.T) {
		other := NewJWTManager("other-secret", time.Hour)
		foreign, _, err := other.IssueToken("u1")
		require.NoError(t, err)

		expired := NewJWTManager("secret", time.Hour)
		expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		old, _, err := expired.IssueToken("u1")
		require.NoError(t, err)

		none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "u1", Issuer: issuer}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		for name, cred := range map[string]string{
			"Empty":      "",
			"BearerOnly": "Bearer ",
			"Garbage":    "not-a-token",
			"WrongKey":   foreign,
			"Expired":    old,
			"AlgNone":    none,
		} {
			t.Run(name, func(t *testing.T) {
				_, err := m.ResolveCaller(ctx, cred)
				assert.ErrorIs(t, err, domain.ErrUnauthenticated)
			})
		}
	})
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("s3cret", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)
	assert.True(t, VerifyPassword(hash, "s3cret"))
	assert.False(t, VerifyPassword(hash, "wrong"))
	assert.False(t, VerifyPassword("not-a-hash", "s3cret"))
}
