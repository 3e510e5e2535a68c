package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/powerflow/licensing/internal/models"
	"github.com/powerflow/licensing/internal/store"
)

// LicenseStore implements store.LicenseStore using PostgreSQL.
type LicenseStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *LicenseStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const licenseColumns = `
	id, organization_id, license_key, plan_type, seat_number,
	issue_date, expiry_date, machine_id, username, is_active, is_free, last_activity
`

// Create creates a new license row.
func (s *LicenseStore) Create(ctx context.Context, license *models.License) error {
	if license.ID == "" {
		license.ID = uuid.New().String()
	}

	query := `
		INSERT INTO licenses (` + licenseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.conn().ExecContext(ctx, query,
		license.ID,
		license.OrganizationID,
		license.Key,
		string(license.Plan),
		license.SeatNumber,
		license.IssueDate,
		license.ExpiryDate,
		nullStringPtr(license.MachineID),
		nullStringPtr(license.Username),
		license.IsActive,
		license.IsFree,
		nullTimePtr(license.LastActivity),
	)
	if isUniqueViolation(err) {
		return store.ErrDuplicateKey
	}
	return err
}

// GetByKey retrieves a license by its key.
func (s *LicenseStore) GetByKey(ctx context.Context, key string) (*models.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE license_key = $1`

	license, err := scanLicense(s.conn().QueryRowContext(ctx, query, key).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return license, nil
}

// ListByOrg retrieves all licenses of an organization, newest issue date first.
func (s *LicenseStore) ListByOrg(ctx context.Context, orgID string) ([]*models.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE organization_id = $1 ORDER BY issue_date DESC`

	rows, err := s.conn().QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var licenses []*models.License
	for rows.Next() {
		license, err := scanLicense(rows.Scan)
		if err != nil {
			return nil, err
		}
		licenses = append(licenses, license)
	}
	return licenses, rows.Err()
}

// Bind atomically sets the machine id on an unbound license. The guard
// on machine_id IS NULL makes the check-and-set a single atomically
// visible read-modify-write: when two machines race for the first bind,
// exactly one UPDATE matches.
func (s *LicenseStore) Bind(ctx context.Context, id, machineID, username string, now time.Time) (bool, error) {
	query := `
		UPDATE licenses
		SET machine_id = $2, username = $3, last_activity = $4
		WHERE id = $1 AND machine_id IS NULL
	`

	res, err := s.conn().ExecContext(ctx, query, id, machineID, username, now)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// TouchActivity updates the last activity timestamp.
func (s *LicenseStore) TouchActivity(ctx context.Context, id string, now time.Time) error {
	query := `UPDATE licenses SET last_activity = $2 WHERE id = $1`
	_, err := s.conn().ExecContext(ctx, query, id, now)
	return err
}

func scanLicense(scan func(dest ...any) error) (*models.License, error) {
	var license models.License
	var plan string
	var machineID, username sql.NullString
	var lastActivity sql.NullTime

	err := scan(
		&license.ID, &license.OrganizationID, &license.Key, &plan, &license.SeatNumber,
		&license.IssueDate, &license.ExpiryDate,
		&machineID, &username, &license.IsActive, &license.IsFree, &lastActivity,
	)
	if err != nil {
		return nil, err
	}

	license.Plan = models.PlanType(plan)
	if machineID.Valid {
		license.MachineID = &machineID.String
	}
	if username.Valid {
		license.Username = &username.String
	}
	if lastActivity.Valid {
		license.LastActivity = &lastActivity.Time
	}
	return &license, nil
}
