package model

import (
	"fmt"
	"time"
)

// User represents a staff account (separate from readers).
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Roles.
const (
	RoleAdmin     = "admin"
	RoleLibrarian = "librarian"
	RoleClerk     = "clerk"
)

// MinPasswordLength is the shortest accepted staff password.
const MinPasswordLength = 8

// RoleAtLeast checks if role meets or exceeds the minimum required role.
func RoleAtLeast(role, minimum string) bool {
	levels := map[string]int{
		RoleAdmin:     3,
		RoleLibrarian: 2,
		RoleClerk:     1,
	}
	return levels[role] >= levels[minimum] && levels[minimum] > 0
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleLibrarian || role == RoleClerk
}

// ValidatePassword checks password requirements.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}
