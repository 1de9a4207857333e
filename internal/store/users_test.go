package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/izposoja/internal/db"
	"github.com/erazemk/izposoja/internal/model"
)

func TestCreateAndGetUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, database, "mojca", "hash123", model.RoleLibrarian)
	require.NoError(t, err)
	assert.Equal(t, "mojca", user.Username)
	assert.Equal(t, model.RoleLibrarian, user.Role)

	got, err := GetUser(ctx, database, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hash123", got.PasswordHash)

	missing, err := GetUser(ctx, database, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCreateUserRejectsUnknownRole(t *testing.T) {
	database := db.NewTestDB(t)

	_, err := CreateUser(context.Background(), database, "x", "hash", "manager")
	assert.Error(t, err)
}

func TestGetUserByUsernameSkipsDeleted(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, database, "alice", "hash", model.RoleAdmin)
	require.NoError(t, err)

	got, err := GetUserByUsername(ctx, database, "alice")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, user.ID, got.ID)

	require.NoError(t, DeleteUser(ctx, database, user.ID))

	got, err = GetUserByUsername(ctx, database, "alice")
	require.NoError(t, err)
	assert.Nil(t, got)

	// The username is free again once the old account is soft-deleted.
	_, err = CreateUser(ctx, database, "alice", "hash", model.RoleClerk)
	assert.NoError(t, err)
}

func TestListUsersAndCountAdmins(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	n, err := CountAdmins(ctx, database)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = CreateUser(ctx, database, "a", "hash", model.RoleClerk)
	require.NoError(t, err)
	_, err = CreateUser(ctx, database, "b", "hash", model.RoleAdmin)
	require.NoError(t, err)

	users, err := ListUsers(ctx, database)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	n, err = CountAdmins(ctx, database)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpdateUserRoleAndPassword(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user, err := CreateUser(ctx, database, "pwuser", "oldhash", model.RoleClerk)
	require.NoError(t, err)

	require.NoError(t, UpdateUserPassword(ctx, database, user.ID, "newhash"))
	require.NoError(t, UpdateUserRole(ctx, database, user.ID, model.RoleLibrarian))
	assert.Error(t, UpdateUserRole(ctx, database, user.ID, "owner"))

	got, err := GetUser(ctx, database, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "newhash", got.PasswordHash)
	assert.Equal(t, model.RoleLibrarian, got.Role)
}
