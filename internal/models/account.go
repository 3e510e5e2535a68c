package models

import (
	"strings"
	"time"
)

// Role represents an account's role within its organization.
type Role string

const (
	// RoleOwner is the organization's founding administrator.
	RoleOwner Role = "owner"
	// RoleAdmin can manage members and invitations.
	RoleAdmin Role = "admin"
	// RoleUser has standard access without admin functions.
	RoleUser Role = "user"
)

// ParseRole maps a string to a Role, defaulting to RoleUser for
// anything outside the closed set.
func ParseRole(s string) Role {
	switch Role(strings.ToLower(s)) {
	case RoleOwner:
		return RoleOwner
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUser
	}
}

// Account is a login-capable member of exactly one organization. The
// organization link is immutable after creation.
type Account struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Email          string `json:"email"`
	PasswordHash   string `json:"-"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Role           Role   `json:"role"`
	IsActive       bool   `json:"is_active"`
	IsVerified     bool   `json:"is_verified"`

	// Verification workflow state. All nil once the account is verified.
	VerificationCode     *string    `json:"-"`
	VerificationExpires  *time.Time `json:"-"`
	VerificationAttempts int        `json:"-"`
	LastVerificationSent *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// DisplayName returns the account's "first last" name.
func (a *Account) DisplayName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}
