package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleAtLeast(t *testing.T) {
	roles := []string{RoleClerk, RoleLibrarian, RoleAdmin}

	// A role passes every check at or below its own rank.
	for i, role := range roles {
		for j, minimum := range roles {
			assert.Equal(t, i >= j, RoleAtLeast(role, minimum), "RoleAtLeast(%q, %q)", role, minimum)
		}
	}

	// Unknown roles never pass.
	assert.False(t, RoleAtLeast("reader", RoleClerk))
	assert.False(t, RoleAtLeast(RoleAdmin, "reader"))
	assert.False(t, RoleAtLeast("", ""))
}

func TestValidRole(t *testing.T) {
	for _, role := range []string{RoleAdmin, RoleLibrarian, RoleClerk} {
		assert.True(t, ValidRole(role), role)
	}
	for _, role := range []string{"", "Admin", "manager", "reader"} {
		assert.False(t, ValidRole(role), role)
	}
}

func TestValidatePassword(t *testing.T) {
	assert.Error(t, ValidatePassword(""))
	assert.Error(t, ValidatePassword("kratko"))
	assert.Error(t, ValidatePassword("1234567"))
	assert.NoError(t, ValidatePassword("12345678"))
	assert.NoError(t, ValidatePassword("knjiznica-2025"))
}
