// Package invitation implements organization-scoped membership
// invitations: role-gated issuance and public token-based acceptance.
package invitation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/powerflow/licensing/internal/auth"
	"github.com/powerflow/licensing/internal/mail"
	"github.com/powerflow/licensing/internal/models"
	"github.com/powerflow/licensing/internal/registration"
	"github.com/powerflow/licensing/internal/store"
)

// Workflow errors.
var (
	// ErrAccountExists is returned when the target email already has an
	// account anywhere in the system.
	ErrAccountExists = errors.New("account with this email already exists")
	// ErrInvitationNotFound is returned for an unknown token.
	ErrInvitationNotFound = errors.New("invitation not found")
	// ErrInvitationUsed is returned when the invitation is no longer pending.
	ErrInvitationUsed = errors.New("invitation has already been used")
	// ErrInvitationExpired is returned when the invitation has expired.
	ErrInvitationExpired = errors.New("invitation has expired")
	// ErrMemberNotFound is returned when the target account does not
	// exist in the principal's organization.
	ErrMemberNotFound = errors.New("member not found")
)

// Expiry is the invitation validity window.
const Expiry = 7 * 24 * time.Hour

// Service implements the invitation workflow.
type Service struct {
	store         store.Store
	auth          *auth.Service
	mailer        mail.Sender
	inviteBaseURL string
	logger        *slog.Logger
}

// NewService creates a new invitation service.
func NewService(st store.Store, authSvc *auth.Service, mailer mail.Sender, inviteBaseURL string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:         st,
		auth:          authSvc,
		mailer:        mailer,
		inviteBaseURL: inviteBaseURL,
		logger:        logger,
	}
}

// Invite creates a new pending invitation for the principal's
// organization. Re-inviting an email always creates a fresh row with a
// new token; earlier pending rows are left untouched. Email delivery is
// best-effort: a failure is logged and the invitation persists.
func (s *Service) Invite(ctx context.Context, p auth.Principal, targetEmail string) (*models.Invitation, error) {
	if err := auth.RequireAnyRole(p, auth.AdminRoles...); err != nil {
		return nil, err
	}

	email := registration.NormalizeEmail(targetEmail)

	existing, err := s.store.Accounts().GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrAccountExists
	}

	now := time.Now()
	inv := &models.Invitation{
		Email:          email,
		Token:          uuid.New().String(),
		InviterID:      p.AccountID,
		OrganizationID: p.OrganizationID,
		Status:         models.InvitationStatusPending,
		ExpiresAt:      now.Add(Expiry),
		CreatedAt:      now,
	}
	if err := s.store.Invitations().Create(ctx, inv); err != nil {
		return nil, err
	}

	link := fmt.Sprintf("%s/accept-invite?token=%s", s.inviteBaseURL, inv.Token)
	if err := s.mailer.SendInvitation(ctx, email, link); err != nil {
		s.logger.Error("failed to deliver invitation email", "email", email, "error", err)
	}

	return inv, nil
}

// Accept redeems an invitation token. The new account joins the
// invitation's organization with role user, already verified and active;
// the invite itself proves email ownership. Account creation and the
// status flip happen in one transaction.
func (s *Service) Accept(ctx context.Context, token, password, firstName, lastName string) (*models.Account, error) {
	inv, err := s.store.Invitations().GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInvitationNotFound
	}
	if inv.Status != models.InvitationStatusPending {
		return nil, ErrInvitationUsed
	}
	if inv.IsExpired() {
		return nil, ErrInvitationExpired
	}

	passwordHash, err := s.auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	account := &models.Account{
		OrganizationID: inv.OrganizationID,
		Email:          inv.Email,
		PasswordHash:   passwordHash,
		FirstName:      firstName,
		LastName:       lastName,
		Role:           models.RoleUser,
		IsActive:       true,
		IsVerified:     true,
		CreatedAt:      now,
	}

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.Accounts().Create(ctx, account); err != nil {
			return err
		}
		inv.Status = models.InvitationStatusAccepted
		inv.AcceptedAt = &now
		return tx.Invitations().Update(ctx, inv)
	})
	if err != nil {
		return nil, err
	}

	return account, nil
}

// ListPending returns the pending invitations of the principal's
// organization, newest first.
func (s *Service) ListPending(ctx context.Context, p auth.Principal) ([]*models.Invitation, error) {
	if err := auth.RequireAnyRole(p, auth.AdminRoles...); err != nil {
		return nil, err
	}
	return s.store.Invitations().ListPendingByOrg(ctx, p.OrganizationID)
}

// ListMembers returns the accounts of the principal's organization. The
// team view shows members next to the pending invitations, so it shares
// the same role gate.
func (s *Service) ListMembers(ctx context.Context, p auth.Principal) ([]*models.Account, error) {
	if err := auth.RequireAnyRole(p, auth.AdminRoles...); err != nil {
		return nil, err
	}
	return s.store.Accounts().ListByOrg(ctx, p.OrganizationID)
}

// RemoveMember deletes an account from the principal's organization.
// The delete is scoped by the principal's organization id, so an
// account id from another tenant reads as not found rather than
// leaking its existence.
func (s *Service) RemoveMember(ctx context.Context, p auth.Principal, accountID string) error {
	if err := auth.RequireAnyRole(p, auth.AdminRoles...); err != nil {
		return err
	}
	err := s.store.Accounts().Delete(ctx, accountID, p.OrganizationID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrMemberNotFound
	}
	return err
}
