package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte(strings.Repeat("s", 32))

func TestTokenManager_IssueAndVerify(t *testing.T) {
	m := NewTokenManager(testSecret, time.Hour, "thumbforge")

	token, err := m.Issue("user-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestTokenManager_Expired(t *testing.T) {
	issuedAt := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	m := NewTokenManager(testSecret, time.Hour, "thumbforge").WithClock(func() time.Time { return issuedAt })

	token, err := m.Issue("user-1")
	require.NoError(t, err)

	later := m.WithClock(func() time.Time { return issuedAt.Add(2 * time.Hour) })
	_, err = later.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenManager_WrongSecret(t *testing.T) {
	token, err := NewTokenManager(testSecret, time.Hour, "").Issue("user-1")
	require.NoError(t, err)

	other := NewTokenManager([]byte(strings.Repeat("o", 32)), time.Hour, "")
	_, err = other.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_RejectsTamperedAndGarbage(t *testing.T) {
	m := NewTokenManager(testSecret, time.Hour, "")
	token, err := m.Issue("user-1")
	require.NoError(t, err)

	_, err = m.Verify(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Verify("not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Verify("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_RejectsNoneAlgorithm(t *testing.T) {
	claims := Claims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewTokenManager(testSecret, time.Hour, "").Verify(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_RequiresExpiry(t *testing.T) {
	unbounded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "user-1"}).SignedString(testSecret)
	require.NoError(t, err)

	_, err = NewTokenManager(testSecret, time.Hour, "").Verify(unbounded)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc.def")
	assert.True(t, ok)
	assert.Equal(t, "abc.def", tok)

	tok, ok = BearerToken("bearer  abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	_, ok = BearerToken("Basic abc")
	assert.False(t, ok)

	_, ok = BearerToken("Bearer ")
	assert.False(t, ok)

	_, ok = BearerToken("")
	assert.False(t, ok)
}
