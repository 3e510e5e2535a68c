package models

import (
	"time"
)

// InvitationStatus represents the stored status of an invitation.
// Expiry is derived from ExpiresAt at read time, never stored.
type InvitationStatus string

const (
	// InvitationStatusPending indicates the invitation has not been accepted.
	InvitationStatusPending InvitationStatus = "pending"
	// InvitationStatusAccepted indicates the invitation has been accepted.
	InvitationStatusAccepted InvitationStatus = "accepted"
)

// Invitation is a single-use, organization-scoped offer of membership.
// Re-inviting the same email creates a new row with a fresh token;
// older pending rows are left untouched.
type Invitation struct {
	ID             string           `json:"id"`
	Email          string           `json:"email"`
	Token          string           `json:"token"`
	InviterID      string           `json:"inviter_id"`
	OrganizationID string           `json:"organization_id"`
	Status         InvitationStatus `json:"status"`
	ExpiresAt      time.Time        `json:"expires_at"`
	AcceptedAt     *time.Time       `json:"accepted_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// IsExpired returns true if the invitation has passed its expiry.
func (i *Invitation) IsExpired() bool {
	return time.Now().After(i.ExpiresAt)
}
