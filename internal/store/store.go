// Package store provides database access interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/powerflow/licensing/internal/models"
)

// Common store errors.
var (
	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrDuplicateEmail is returned when a unique email constraint is violated.
	ErrDuplicateEmail = errors.New("duplicate email")

	// ErrDuplicateKey is returned when a unique key or token constraint is violated.
	ErrDuplicateKey = errors.New("duplicate key")
)

// OrgStore defines operations for organization management.
// Organizations are never deleted.
type OrgStore interface {
	// Create creates a new organization.
	Create(ctx context.Context, org *models.Organization) error
	// Get retrieves an organization by ID.
	Get(ctx context.Context, id string) (*models.Organization, error)
	// Update updates an organization's mutable fields (names, phone, address).
	Update(ctx context.Context, org *models.Organization) error
}

// AccountStore defines operations for account management. Emails are
// globally unique and stored lowercase; callers normalize before lookup.
type AccountStore interface {
	// Create creates a new account.
	Create(ctx context.Context, account *models.Account) error
	// GetByEmail retrieves an account by its normalized email.
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	// GetByID retrieves an account by ID.
	GetByID(ctx context.Context, id string) (*models.Account, error)
	// Update updates an existing account's mutable fields. The
	// organization link is immutable and never written by Update.
	Update(ctx context.Context, account *models.Account) error
	// ListByOrg retrieves all accounts of an organization.
	ListByOrg(ctx context.Context, orgID string) ([]*models.Account, error)
	// Delete removes an account. The organization id scopes the delete,
	// so an id belonging to another tenant reads as ErrNotFound.
	Delete(ctx context.Context, id, orgID string) error
}

// InvitationStore defines operations for invitation management.
type InvitationStore interface {
	// Create creates a new invitation.
	Create(ctx context.Context, invitation *models.Invitation) error
	// GetByToken retrieves an invitation by its token.
	GetByToken(ctx context.Context, token string) (*models.Invitation, error)
	// Update updates an invitation's status fields.
	Update(ctx context.Context, invitation *models.Invitation) error
	// ListPendingByOrg retrieves pending invitations for an organization,
	// newest first.
	ListPendingByOrg(ctx context.Context, orgID string) ([]*models.Invitation, error)
}

// LicenseStore defines operations for license management. Licenses are
// never deleted; machine binding is write-once.
type LicenseStore interface {
	// Create creates a new license row.
	Create(ctx context.Context, license *models.License) error
	// GetByKey retrieves a license by its key.
	GetByKey(ctx context.Context, key string) (*models.License, error)
	// ListByOrg retrieves all licenses of an organization, newest issue
	// date first.
	ListByOrg(ctx context.Context, orgID string) ([]*models.License, error)
	// Bind atomically sets the machine id, username and last activity on
	// an unbound license. It returns false when the license is already
	// bound, without modifying the row. This is the only write path that
	// sets the machine id.
	Bind(ctx context.Context, id, machineID, username string, now time.Time) (bool, error)
	// TouchActivity updates the last activity timestamp.
	TouchActivity(ctx context.Context, id string, now time.Time) error
}

// Store is the main interface for database operations.
type Store interface {
	// Orgs returns the OrgStore for organization operations.
	Orgs() OrgStore
	// Accounts returns the AccountStore for account operations.
	Accounts() AccountStore
	// Invitations returns the InvitationStore for invitation operations.
	Invitations() InvitationStore
	// Licenses returns the LicenseStore for license operations.
	Licenses() LicenseStore

	// WithTx executes the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// Otherwise, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close closes the underlying connection.
	Close() error
}
