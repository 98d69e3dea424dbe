package models

import (
	"strings"
	"time"
)

// Role determines which permissions a principal holds
type Role string

const (
	RoleAnonymous Role = "anonymous"
	RoleEmployee  Role = "employee"
	RoleStaff     Role = "staff"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleAnonymous || r == RoleEmployee || r == RoleStaff
}

// User is a login account
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Never serialize
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Principal is the caller of a request after authentication.
// Anonymous callers get a Principal with ID 0 and RoleAnonymous.
type Principal struct {
	UserID      int64
	Username    string
	Role        Role
	Permissions []string
	TokenID     string
	ExpiresAt   time.Time
}

// Authenticated reports whether the caller presented a valid token
func (p *Principal) Authenticated() bool {
	return p != nil && p.UserID != 0
}

// IsStaff reports whether the caller has the staff role
func (p *Principal) IsStaff() bool {
	return p != nil && p.Role == RoleStaff
}

// HasPermission checks if principal has specific permission
// Supports wildcard permissions like "desks:*"
func (p *Principal) HasPermission(required string) bool {
	if p == nil {
		return false
	}

	for _, perm := range p.Permissions {
		if perm == required || perm == "*" {
			return true
		}

		// "desks:*" matches "desks:read"
		if strings.HasSuffix(perm, ":*") {
			prefix := strings.TrimSuffix(perm, "*")
			if strings.HasPrefix(required, prefix) {
				return true
			}
		}
	}

	return false
}

// TokenRequest exchanges credentials for tokens
type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest exchanges a refresh token for a new access token
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// TokenPair is returned on successful login
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}
