package models

import (
	"time"
)

// PlanType represents the purchased license plan.
type PlanType string

const (
	// PlanYearly expires one year after purchase.
	PlanYearly PlanType = "yearly"
	// PlanThreeYears expires three years after purchase.
	PlanThreeYears PlanType = "3years"
	// PlanFloating is the legacy lifetime-ish plan. It carries a very
	// long fixed expiry rather than pooled seats.
	PlanFloating PlanType = "floating"
)

// PlanYears returns the number of years a plan remains valid.
func (p PlanType) PlanYears() int {
	switch p {
	case PlanThreeYears:
		return 3
	case PlanFloating:
		return 100
	default:
		return 1
	}
}

// Valid reports whether the plan is one of the closed set.
func (p PlanType) Valid() bool {
	switch p {
	case PlanYearly, PlanThreeYears, PlanFloating:
		return true
	}
	return false
}

// License is one seat's activation credential, owned by exactly one
// organization and bound to at most one machine for life. A purchase of
// N seats creates N rows sharing issue/expiry dates and plan type.
type License struct {
	ID             string   `json:"id"`
	OrganizationID string   `json:"organization_id"`
	Key            string   `json:"key"`
	Plan           PlanType `json:"plan"`
	SeatNumber     int      `json:"seat_number"`

	IssueDate  time.Time `json:"issue_date"`
	ExpiryDate time.Time `json:"expiry_date"`

	// MachineID is nil until the first successful validation binds the
	// license. Once set it is never cleared or re-bound.
	MachineID *string `json:"machine_id,omitempty"`
	// Username is an informational label recorded at bind time.
	Username *string `json:"username,omitempty"`

	IsActive     bool       `json:"is_active"`
	IsFree       bool       `json:"is_free"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// IsBound reports whether the license has been bound to a machine.
func (l *License) IsBound() bool {
	return l.MachineID != nil && *l.MachineID != ""
}

// IsValidAt reports whether the license is active and unexpired at the
// given instant. Expiry is always computed, never stored as a state.
func (l *License) IsValidAt(now time.Time) bool {
	return l.IsActive && !now.After(l.ExpiryDate)
}
