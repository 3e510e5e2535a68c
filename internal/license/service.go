// Package license implements the license lifecycle engine: batch seat
// purchase, machine binding on first validation, activity tracking and
// lazily evaluated expiry. A license moves from unbound to bound exactly
// once; validity (active and unexpired) is computed at read time, never
// stored or swept.
package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/powerflow/licensing/internal/auth"
	"github.com/powerflow/licensing/internal/models"
	"github.com/powerflow/licensing/internal/store"
)

// Purchase errors.
var (
	// ErrInvalidPlan is returned for a plan outside the closed set.
	ErrInvalidPlan = errors.New("invalid plan type")
	// ErrInvalidSeatCount is returned for a non-positive seat count.
	ErrInvalidSeatCount = errors.New("seat count must be at least 1")
)

// Rejection reasons returned by Validate. These are business answers
// carried in the response body, not errors.
const (
	ReasonNotFound        = "license_not_found"
	ReasonInactive        = "inactive"
	ReasonExpired         = "expired"
	ReasonMachineMismatch = "machine_mismatch"
)

// defaultUsername labels a binding when the client omits a username.
const defaultUsername = "Unknown"

// ValidationResult is the answer to a client validation call.
type ValidationResult struct {
	Valid  bool            `json:"valid"`
	Reason string          `json:"reason,omitempty"`
	Plan   models.PlanType `json:"plan,omitempty"`
	Expiry *time.Time      `json:"expiry,omitempty"`
}

// DashboardStats is the derived per-organization license summary.
type DashboardStats struct {
	ActiveLicenses int        `json:"active_licenses"`
	TotalSeats     int        `json:"total_seats"`
	SeatsUsed      int        `json:"seats_used"`
	PlanName       string     `json:"plan_name"`
	ExpiryDate     *time.Time `json:"expiry_date,omitempty"`
	CustomerName   string     `json:"customer_name"`
}

// Service implements the license lifecycle engine.
type Service struct {
	store    store.Store
	payments PaymentVerifier
	logger   *slog.Logger
}

// NewService creates a new license service.
func NewService(st store.Store, payments PaymentVerifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		payments: payments,
		logger:   logger,
	}
}

// Purchase verifies payment and creates one license row per seat inside
// a single transaction. All rows share plan, issue and expiry dates;
// each carries a distinct key and seat number 1..N. Partial batches are
// never visible.
func (s *Service) Purchase(ctx context.Context, p auth.Principal, plan models.PlanType, seats int, paymentToken string) ([]*models.License, error) {
	if !plan.Valid() {
		return nil, ErrInvalidPlan
	}
	if seats < 1 {
		return nil, ErrInvalidSeatCount
	}

	if err := s.payments.Verify(ctx, paymentToken); err != nil {
		return nil, err
	}

	issueDate := time.Now()
	expiryDate := issueDate.AddDate(plan.PlanYears(), 0, 0)

	batch := make([]*models.License, 0, seats)
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		for seat := 1; seat <= seats; seat++ {
			license := &models.License{
				OrganizationID: p.OrganizationID,
				Key:            generateKey(),
				Plan:           plan,
				SeatNumber:     seat,
				IssueDate:      issueDate,
				ExpiryDate:     expiryDate,
				IsActive:       true,
			}
			if err := tx.Licenses().Create(ctx, license); err != nil {
				return err
			}
			batch = append(batch, license)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("license batch purchased",
		"organization_id", p.OrganizationID,
		"plan", plan,
		"seats", seats,
	)
	return batch, nil
}

// Validate answers a licensed client's activation check. The first
// successful validation binds the license to the calling machine; the
// binding is permanent. All reject paths are returned as data.
func (s *Service) Validate(ctx context.Context, key, machineID, username string) (*ValidationResult, error) {
	license, err := s.store.Licenses().GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if license == nil {
		return &ValidationResult{Valid: false, Reason: ReasonNotFound}, nil
	}

	now := time.Now()
	if !license.IsActive {
		return &ValidationResult{Valid: false, Reason: ReasonInactive}, nil
	}
	if now.After(license.ExpiryDate) {
		return &ValidationResult{Valid: false, Reason: ReasonExpired}, nil
	}

	if username == "" {
		username = defaultUsername
	}

	if !license.IsBound() {
		bound, err := s.store.Licenses().Bind(ctx, license.ID, machineID, username, now)
		if err != nil {
			return nil, err
		}
		if !bound {
			// Lost the race for the first bind. Re-read to learn the winner.
			license, err = s.store.Licenses().GetByKey(ctx, key)
			if err != nil {
				return nil, err
			}
			if license == nil || !license.IsBound() || *license.MachineID != machineID {
				return &ValidationResult{Valid: false, Reason: ReasonMachineMismatch}, nil
			}
			if err := s.store.Licenses().TouchActivity(ctx, license.ID, now); err != nil {
				return nil, err
			}
		}
	} else if *license.MachineID != machineID {
		return &ValidationResult{Valid: false, Reason: ReasonMachineMismatch}, nil
	} else {
		if err := s.store.Licenses().TouchActivity(ctx, license.ID, now); err != nil {
			return nil, err
		}
	}

	expiry := license.ExpiryDate
	return &ValidationResult{
		Valid:  true,
		Plan:   license.Plan,
		Expiry: &expiry,
	}, nil
}

// List returns all licenses of the principal's organization, newest
// issue date first. The organization id always comes from the principal,
// never from the client, so tenants cannot see each other's rows.
func (s *Service) List(ctx context.Context, p auth.Principal) ([]*models.License, error) {
	return s.store.Licenses().ListByOrg(ctx, p.OrganizationID)
}

// Stats derives the dashboard summary for the principal's organization.
// The plan shown is the valid license with the latest expiry; ties keep
// the first encountered.
func (s *Service) Stats(ctx context.Context, p auth.Principal) (*DashboardStats, error) {
	licenses, err := s.store.Licenses().ListByOrg(ctx, p.OrganizationID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	stats := &DashboardStats{PlanName: "Free Plan"}

	var latest *models.License
	for _, license := range licenses {
		if !license.IsValidAt(now) {
			continue
		}
		stats.ActiveLicenses++
		stats.TotalSeats += license.SeatNumber
		if license.IsBound() {
			stats.SeatsUsed++
		}
		if latest == nil || license.ExpiryDate.After(latest.ExpiryDate) {
			latest = license
		}
	}

	if latest != nil {
		stats.PlanName = string(latest.Plan)
		expiry := latest.ExpiryDate
		stats.ExpiryDate = &expiry
	}

	org, err := s.store.Orgs().Get(ctx, p.OrganizationID)
	if err != nil {
		return nil, err
	}
	if org != nil {
		stats.CustomerName = org.DisplayName()
	}

	return stats, nil
}

// generateKey produces an opaque license key. The uppercased uuid prefix
// plus issue timestamp keeps keys unique and human-quotable.
func generateKey() string {
	return fmt.Sprintf("LIC-%s-%d", strings.ToUpper(uuid.New().String()[:8]), time.Now().UnixMilli())
}
