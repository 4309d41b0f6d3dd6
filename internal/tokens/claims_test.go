package tokens_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-dashboard/internal/tokens"
)

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("whatever"))
	require.NoError(t, err)
	return tok
}

func TestPeek_RecoverUsernameAndExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	raw := sign(t, jwt.MapClaims{
		"username": "operator",
		"sub":      "42",
		"exp":      exp.Unix(),
	})

	claims, err := tokens.Peek(raw)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Username)
	assert.Equal(t, "42", claims.Subject)
	assert.False(t, claims.Expired(time.Now()))
	assert.True(t, claims.Expired(exp.Add(time.Minute)))
}

func TestPeek_NoExpMeansNotExpired(t *testing.T) {
	raw := sign(t, jwt.MapClaims{"username": "operator"})

	claims, err := tokens.Peek(raw)
	require.NoError(t, err)
	assert.False(t, claims.Expired(time.Now().Add(1000*time.Hour)))
}

func TestPeek_Malformed(t *testing.T) {
	for _, raw := range []string{"", "garbage", "a.b", "a.b.c.d"} {
		_, err := tokens.Peek(raw)
		assert.ErrorIs(t, err, tokens.ErrMalformedToken, "input %q", raw)
	}
}
