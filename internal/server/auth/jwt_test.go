package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParseToken(t *testing.T) {
	secret := []byte("test-secret")
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "alice"},
		Email:            "alice@example.com",
		Name:             "Alice",
		Roles:            []string{"admin", "user"},
	}

	token, err := generateToken(claims, secret, time.Minute)
	require.NoError(t, err)

	parsed, err := parseToken(token, secret)
	require.NoError(t, err)
	assert.Equal(t, "alice", parsed.Subject)
	assert.Equal(t, "alice@example.com", parsed.Email)
	assert.Equal(t, "Alice", parsed.Name)
	assert.Equal(t, []string{"admin", "user"}, parsed.Roles)
}

func TestParseTokenExpired(t *testing.T) {
	secret := []byte("test-secret")
	token, err := generateToken(Claims{}, secret, -time.Minute)
	require.NoError(t, err)

	_, err = parseToken(token, secret)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestParseTokenWrongKey(t *testing.T) {
	token, err := generateToken(Claims{}, []byte("key-one"), time.Minute)
	require.NoError(t, err)

	_, err = parseToken(token, []byte("key-two"))
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestParseTokenGarbage(t *testing.T) {
	_, err := parseToken("not.a.token", []byte("test-secret"))
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestHasRole(t *testing.T) {
	c := &Claims{Roles: []string{"admin"}}
	assert.True(t, c.HasRole("admin"))
	assert.False(t, c.HasRole("user"))

	empty := &Claims{}
	assert.False(t, empty.HasRole("admin"))
}
