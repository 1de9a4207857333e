package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/izposoja/internal/model"
)

var librarian = &model.User{ID: 7, Username: "mojca", Role: model.RoleLibrarian}

func TestIssueAndParse(t *testing.T) {
	issuer := NewIssuer("test-secret-key", 0)

	token, issued, err := issuer.Issue(librarian)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "mojca", claims.Username)
	assert.Equal(t, model.RoleLibrarian, claims.Role)
	assert.Equal(t, issued.ID, claims.ID)
	assert.WithinDuration(t, time.Now().Add(TokenExpiry), claims.ExpiresAt.Time, 5*time.Second)
}

func TestTokensHaveUniqueIDs(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	_, a, err := issuer.Issue(librarian)
	require.NoError(t, err)
	_, b, err := issuer.Issue(librarian)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestParseWrongSecret(t *testing.T) {
	token, _, err := NewIssuer("secret1", 0).Issue(librarian)
	require.NoError(t, err)

	_, err = NewIssuer("secret2", 0).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseGarbage(t *testing.T) {
	_, err := NewIssuer("secret", 0).Parse("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseExpired(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := issuer.Issue(librarian)
	require.NoError(t, err)

	issuer.now = time.Now
	_, err = issuer.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseRejectsOtherAlgorithms(t *testing.T) {
	claims := &Claims{UserID: 1, Role: model.RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{
		ID:        "x",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewIssuer("secret", 0).Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
