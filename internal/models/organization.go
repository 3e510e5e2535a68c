// Package models provides data structures for the licensing service.
package models

import (
	"strings"
	"time"
)

// OrgType distinguishes company tenants from individual tenants.
type OrgType string

const (
	// OrgTypeIndividual is a single-person tenant.
	OrgTypeIndividual OrgType = "individual"
	// OrgTypeCompany is a company tenant.
	OrgTypeCompany OrgType = "company"
)

// Address holds the postal address fields for an organization.
type Address struct {
	Street     string `json:"street,omitempty"`
	Building   string `json:"building,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Organization is the tenant root. It owns accounts and licenses and is
// never deleted by any workflow.
type Organization struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	CompanyName string    `json:"company_name,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Type        OrgType   `json:"type"`
	Address     Address   `json:"address,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DisplayName returns the company name for company tenants and the
// "first last" personal name otherwise.
func (o *Organization) DisplayName() string {
	if o.CompanyName != "" {
		return o.CompanyName
	}
	return strings.TrimSpace(o.FirstName + " " + o.LastName)
}
