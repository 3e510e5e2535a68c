package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleOwner, ParseRole("owner"))
	assert.Equal(t, RoleOwner, ParseRole("OWNER"))
	assert.Equal(t, RoleAdmin, ParseRole("Admin"))
	assert.Equal(t, RoleUser, ParseRole("user"))
	// Unknown strings fall back to the least privileged role.
	assert.Equal(t, RoleUser, ParseRole("superuser"))
	assert.Equal(t, RoleUser, ParseRole(""))
}

func TestPlanYears(t *testing.T) {
	assert.Equal(t, 1, PlanYearly.PlanYears())
	assert.Equal(t, 3, PlanThreeYears.PlanYears())
	assert.Equal(t, 100, PlanFloating.PlanYears())
}

func TestPlanValid(t *testing.T) {
	assert.True(t, PlanYearly.Valid())
	assert.True(t, PlanThreeYears.Valid())
	assert.True(t, PlanFloating.Valid())
	assert.False(t, PlanType("monthly").Valid())
	assert.False(t, PlanType("").Valid())
}

func TestLicenseIsValidAt(t *testing.T) {
	now := time.Now()
	l := &License{IsActive: true, ExpiryDate: now.Add(time.Hour)}
	assert.True(t, l.IsValidAt(now))

	// Expiry wins over the active flag.
	l.ExpiryDate = now.Add(-time.Hour)
	assert.False(t, l.IsValidAt(now))

	l.ExpiryDate = now.Add(time.Hour)
	l.IsActive = false
	assert.False(t, l.IsValidAt(now))
}

func TestLicenseIsBound(t *testing.T) {
	l := &License{}
	assert.False(t, l.IsBound())
	machine := "machine-1"
	l.MachineID = &machine
	assert.True(t, l.IsBound())
}

func TestInvitationExpiry(t *testing.T) {
	inv := &Invitation{Status: InvitationStatusPending, ExpiresAt: time.Now().Add(time.Hour)}
	assert.False(t, inv.IsExpired())

	inv.ExpiresAt = time.Now().Add(-time.Hour)
	assert.True(t, inv.IsExpired())
}

func TestOrganizationDisplayName(t *testing.T) {
	org := &Organization{FirstName: "Ada", LastName: "Lovelace"}
	assert.Equal(t, "Ada Lovelace", org.DisplayName())

	org.CompanyName = "Acme Ltd"
	assert.Equal(t, "Acme Ltd", org.DisplayName())
}

func TestAccountDisplayName(t *testing.T) {
	a := &Account{FirstName: "Grace", LastName: "Hopper"}
	assert.Equal(t, "Grace Hopper", a.DisplayName())
}
