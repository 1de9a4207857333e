package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/izposoja/internal/db"
)

func TestRevokeAndCheckToken(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	revoked, err := IsTokenRevoked(ctx, database, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, RevokeToken(ctx, database, "jti-1", now.Add(time.Hour), now))
	// Revoking twice is a no-op.
	require.NoError(t, RevokeToken(ctx, database, "jti-1", now.Add(time.Hour), now))

	revoked, err = IsTokenRevoked(ctx, database, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = IsTokenRevoked(ctx, database, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRevokeTokenPurgesExpired(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, RevokeToken(ctx, database, "old", now.Add(time.Minute), now))
	require.NoError(t, RevokeToken(ctx, database, "new", now.Add(3*time.Hour), now.Add(2*time.Hour)))

	revoked, err := IsTokenRevoked(ctx, database, "old")
	require.NoError(t, err)
	assert.False(t, revoked)

	revoked, err = IsTokenRevoked(ctx, database, "new")
	require.NoError(t, err)
	assert.True(t, revoked)
}
