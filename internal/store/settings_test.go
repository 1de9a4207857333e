package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/izposoja/internal/db"
)

func TestGetJWTSecretGeneratesOnce(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	first, err := GetJWTSecret(ctx, database)
	require.NoError(t, err)
	assert.Len(t, first, 64)

	second, err := GetJWTSecret(ctx, database)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPutSettingOverwrites(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	v, err := GetSetting(ctx, database, "schema_note")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, PutSetting(ctx, database, "schema_note", "one"))
	require.NoError(t, PutSetting(ctx, database, "schema_note", "two"))

	v, err = GetSetting(ctx, database, "schema_note")
	require.NoError(t, err)
	assert.Equal(t, "two", v)
}
