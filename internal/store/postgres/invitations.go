package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/powerflow/licensing/internal/models"
	"github.com/powerflow/licensing/internal/store"
)

// InvitationStore implements store.InvitationStore using PostgreSQL.
type InvitationStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *InvitationStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Create creates a new invitation.
func (s *InvitationStore) Create(ctx context.Context, invitation *models.Invitation) error {
	if invitation.ID == "" {
		invitation.ID = uuid.New().String()
	}
	if invitation.CreatedAt.IsZero() {
		invitation.CreatedAt = time.Now()
	}
	if invitation.Status == "" {
		invitation.Status = models.InvitationStatusPending
	}

	query := `
		INSERT INTO invitations (id, email, token, inviter_id, organization_id, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.conn().ExecContext(ctx, query,
		invitation.ID,
		invitation.Email,
		invitation.Token,
		invitation.InviterID,
		invitation.OrganizationID,
		statusToStorage(invitation.Status),
		invitation.ExpiresAt,
		invitation.CreatedAt,
	)
	if isUniqueViolation(err) {
		return store.ErrDuplicateKey
	}
	return err
}

// GetByToken retrieves an invitation by its token.
func (s *InvitationStore) GetByToken(ctx context.Context, token string) (*models.Invitation, error) {
	query := `
		SELECT id, email, token, inviter_id, organization_id, status, expires_at, accepted_at, created_at
		FROM invitations WHERE token = $1
	`

	var inv models.Invitation
	var status string
	var acceptedAt sql.NullTime

	err := s.conn().QueryRowContext(ctx, query, token).Scan(
		&inv.ID, &inv.Email, &inv.Token, &inv.InviterID, &inv.OrganizationID,
		&status, &inv.ExpiresAt, &acceptedAt, &inv.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	inv.Status = statusFromStorage(status)
	if acceptedAt.Valid {
		inv.AcceptedAt = &acceptedAt.Time
	}
	return &inv, nil
}

// Update updates an invitation's status fields.
func (s *InvitationStore) Update(ctx context.Context, invitation *models.Invitation) error {
	query := `
		UPDATE invitations
		SET status = $1, accepted_at = $2
		WHERE id = $3
	`
	_, err := s.conn().ExecContext(ctx, query,
		statusToStorage(invitation.Status),
		nullTimePtr(invitation.AcceptedAt),
		invitation.ID,
	)
	return err
}

// ListPendingByOrg retrieves pending invitations for an organization, newest first.
func (s *InvitationStore) ListPendingByOrg(ctx context.Context, orgID string) ([]*models.Invitation, error) {
	query := `
		SELECT id, email, token, inviter_id, organization_id, status, expires_at, accepted_at, created_at
		FROM invitations
		WHERE organization_id = $1 AND status = $2
		ORDER BY created_at DESC
	`

	rows, err := s.conn().QueryContext(ctx, query, orgID, statusToStorage(models.InvitationStatusPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invitations []*models.Invitation
	for rows.Next() {
		var inv models.Invitation
		var status string
		var acceptedAt sql.NullTime

		if err := rows.Scan(
			&inv.ID, &inv.Email, &inv.Token, &inv.InviterID, &inv.OrganizationID,
			&status, &inv.ExpiresAt, &acceptedAt, &inv.CreatedAt,
		); err != nil {
			return nil, err
		}

		inv.Status = statusFromStorage(status)
		if acceptedAt.Valid {
			inv.AcceptedAt = &acceptedAt.Time
		}
		invitations = append(invitations, &inv)
	}
	return invitations, rows.Err()
}

func statusToStorage(s models.InvitationStatus) string {
	return strings.ToUpper(string(s))
}

func statusFromStorage(s string) models.InvitationStatus {
	if strings.EqualFold(s, string(models.InvitationStatusAccepted)) {
		return models.InvitationStatusAccepted
	}
	return models.InvitationStatusPending
}
