// Package registration implements account signup, email verification and
// login against the verification state machine: an account moves from
// unverified to verified exactly once, on a correct unexpired code.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/powerflow/licensing/internal/auth"
	"github.com/powerflow/licensing/internal/mail"
	"github.com/powerflow/licensing/internal/models"
	"github.com/powerflow/licensing/internal/store"
)

// Workflow errors.
var (
	// ErrEmailTaken is returned when a verified account already holds the email.
	ErrEmailTaken = errors.New("email already registered")
	// ErrAccountNotFound is returned when no account holds the email.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAlreadyVerified is returned for verification operations on a verified account.
	ErrAlreadyVerified = errors.New("account is already verified")
	// ErrNoCodeIssued is returned when no verification code is outstanding.
	ErrNoCodeIssued = errors.New("no verification code issued")
	// ErrInvalidCode is returned on a code mismatch or expiry.
	ErrInvalidCode = errors.New("invalid or expired verification code")
	// ErrResendTooSoon is returned when a resend is requested within the minimum interval.
	ErrResendTooSoon = errors.New("verification code requested too recently")
	// ErrInvalidCredentials is returned on a failed login.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrNotVerified is returned when an unverified account attempts to log in.
	ErrNotVerified = errors.New("account is not verified")
	// ErrAccountInactive is returned when a deactivated account attempts to log in.
	ErrAccountInactive = errors.New("account is deactivated")
	// ErrWrongPassword is returned when the current password does not match.
	ErrWrongPassword = errors.New("current password is incorrect")
	// ErrDeliveryFailed is returned when the account was persisted but the
	// verification email could not be delivered. The caller retries by
	// registering again (overwrite) or requesting a resend.
	ErrDeliveryFailed = errors.New("verification email delivery failed")
)

const (
	codeValidity      = 15 * time.Minute
	minResendInterval = 60 * time.Second
)

// registrationTransition tags the outcome of the duplicate-email check.
type registrationTransition int

const (
	createNew registrationTransition = iota
	overwriteUnverified
)

// decideRegistration maps the existing account state to the transition
// to apply. Overwriting is allowed only for unverified accounts.
func decideRegistration(existing *models.Account) (registrationTransition, error) {
	if existing == nil {
		return createNew, nil
	}
	if existing.IsVerified {
		return 0, ErrEmailTaken
	}
	return overwriteUnverified, nil
}

// RegisterInput carries the signup request.
type RegisterInput struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	Phone       string
	OrgType     models.OrgType
	Role        models.Role
	CompanyName string
}

// Service implements the registration and verification workflow.
type Service struct {
	store  store.Store
	auth   *auth.Service
	mailer mail.Sender
	logger *slog.Logger
}

// NewService creates a new registration service.
func NewService(st store.Store, authSvc *auth.Service, mailer mail.Sender, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  st,
		auth:   authSvc,
		mailer: mailer,
		logger: logger,
	}
}

// Register creates a new organization and unverified account, or
// overwrites an existing unverified account in place. All writes happen
// in one transaction; the verification email is delivered after commit,
// and a delivery failure leaves the account persisted (ErrDeliveryFailed).
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.Account, error) {
	email := NormalizeEmail(in.Email)

	passwordHash, err := s.auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	code, err := s.auth.GenerateVerificationCode()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	expires := now.Add(codeValidity)

	var account *models.Account
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		existing, err := tx.Accounts().GetByEmail(ctx, email)
		if err != nil {
			return err
		}

		transition, err := decideRegistration(existing)
		if err != nil {
			return err
		}

		switch transition {
		case overwriteUnverified:
			existing.PasswordHash = passwordHash
			existing.FirstName = in.FirstName
			existing.LastName = in.LastName
			existing.VerificationCode = &code
			existing.VerificationExpires = &expires
			existing.VerificationAttempts = 0
			existing.LastVerificationSent = &now
			if err := tx.Accounts().Update(ctx, existing); err != nil {
				return err
			}

			org, err := tx.Orgs().Get(ctx, existing.OrganizationID)
			if err != nil {
				return err
			}
			if org == nil {
				return fmt.Errorf("organization %s missing for account %s", existing.OrganizationID, existing.ID)
			}
			org.FirstName = in.FirstName
			org.LastName = in.LastName
			org.Phone = in.Phone
			if in.OrgType == models.OrgTypeCompany && in.CompanyName != "" {
				org.CompanyName = in.CompanyName
			} else {
				org.CompanyName = ""
			}
			if err := tx.Orgs().Update(ctx, org); err != nil {
				return err
			}

			account = existing
			return nil

		default:
			org := &models.Organization{
				Email:     email,
				FirstName: in.FirstName,
				LastName:  in.LastName,
				Phone:     in.Phone,
				Type:      in.OrgType,
				CreatedAt: now,
			}
			if in.OrgType == models.OrgTypeCompany && in.CompanyName != "" {
				org.CompanyName = in.CompanyName
			}
			if err := tx.Orgs().Create(ctx, org); err != nil {
				return err
			}

			role := in.Role
			if role == "" {
				role = models.RoleUser
			}

			account = &models.Account{
				OrganizationID:       org.ID,
				Email:                email,
				PasswordHash:         passwordHash,
				FirstName:            in.FirstName,
				LastName:             in.LastName,
				Role:                 role,
				IsActive:             true,
				IsVerified:           false,
				VerificationCode:     &code,
				VerificationExpires:  &expires,
				LastVerificationSent: &now,
				CreatedAt:            now,
			}
			return tx.Accounts().Create(ctx, account)
		}
	})
	if err != nil {
		return nil, err
	}

	// Delivery runs outside the transaction. The account row persists on
	// failure so a retried registration hits the overwrite path.
	if err := s.mailer.SendVerificationCode(ctx, email, code); err != nil {
		s.logger.Error("failed to deliver verification code", "email", email, "error", err)
		return account, ErrDeliveryFailed
	}

	return account, nil
}

// VerifyCode consumes an outstanding verification code. On success the
// account becomes verified and all verification state is cleared in one
// write. On mismatch or expiry the attempt counter is incremented; no
// lockout is enforced here.
func (s *Service) VerifyCode(ctx context.Context, email, code string) error {
	email = NormalizeEmail(email)

	account, err := s.store.Accounts().GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if account == nil {
		return ErrAccountNotFound
	}
	if account.IsVerified {
		return ErrAlreadyVerified
	}
	if account.VerificationCode == nil || account.VerificationExpires == nil {
		return ErrNoCodeIssued
	}

	if !s.auth.ValidateVerificationCode(code, *account.VerificationCode, *account.VerificationExpires) {
		account.VerificationAttempts++
		if err := s.store.Accounts().Update(ctx, account); err != nil {
			return err
		}
		return ErrInvalidCode
	}

	account.IsVerified = true
	account.VerificationCode = nil
	account.VerificationExpires = nil
	account.VerificationAttempts = 0
	account.LastVerificationSent = nil
	return s.store.Accounts().Update(ctx, account)
}

// ResendCode issues a fresh verification code, enforcing a 60-second
// minimum interval between sends.
func (s *Service) ResendCode(ctx context.Context, email string) error {
	email = NormalizeEmail(email)

	account, err := s.store.Accounts().GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if account == nil {
		return ErrAccountNotFound
	}
	if account.IsVerified {
		return ErrAlreadyVerified
	}

	now := time.Now()
	if account.LastVerificationSent != nil && now.Sub(*account.LastVerificationSent) < minResendInterval {
		return ErrResendTooSoon
	}

	code, err := s.auth.GenerateVerificationCode()
	if err != nil {
		return err
	}
	expires := now.Add(codeValidity)

	account.VerificationCode = &code
	account.VerificationExpires = &expires
	account.VerificationAttempts = 0
	account.LastVerificationSent = &now
	if err := s.store.Accounts().Update(ctx, account); err != nil {
		return err
	}

	if err := s.mailer.SendVerificationCode(ctx, email, code); err != nil {
		s.logger.Error("failed to deliver verification code", "email", email, "error", err)
		return ErrDeliveryFailed
	}
	return nil
}

// Login verifies credentials and issues a session token. Unverified and
// deactivated accounts are rejected after the existence check so that a
// wrong password and an unknown email fail identically.
func (s *Service) Login(ctx context.Context, email, password string) (*models.Account, string, error) {
	email = NormalizeEmail(email)

	account, err := s.store.Accounts().GetByEmail(ctx, email)
	if err != nil {
		return nil, "", err
	}
	if account == nil {
		return nil, "", ErrInvalidCredentials
	}
	if !account.IsVerified {
		return nil, "", ErrNotVerified
	}
	if !account.IsActive {
		return nil, "", ErrAccountInactive
	}
	if !s.auth.VerifyPassword(password, account.PasswordHash) {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.auth.IssueSessionToken(account.ID, account.Role, account.Email, account.OrganizationID)
	if err != nil {
		return nil, "", err
	}
	return account, token, nil
}

// ChangePassword replaces the account's password after verifying the
// current one.
func (s *Service) ChangePassword(ctx context.Context, accountID, current, next string) error {
	account, err := s.store.Accounts().GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return ErrAccountNotFound
	}
	if !s.auth.VerifyPassword(current, account.PasswordHash) {
		return ErrWrongPassword
	}

	hash, err := s.auth.HashPassword(next)
	if err != nil {
		return err
	}
	account.PasswordHash = hash
	return s.store.Accounts().Update(ctx, account)
}

// NormalizeEmail lowercases and trims an email address. All lookups and
// writes use the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
