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

// OrgStore implements store.OrgStore using PostgreSQL.
type OrgStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *OrgStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Create creates a new organization.
func (s *OrgStore) Create(ctx context.Context, org *models.Organization) error {
	if org.ID == "" {
		org.ID = uuid.New().String()
	}
	if org.CreatedAt.IsZero() {
		org.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO organizations (
			id, email, first_name, last_name, company_name, phone, org_type,
			street, building, city, state, postal_code, country, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := s.conn().ExecContext(ctx, query,
		org.ID,
		org.Email,
		org.FirstName,
		org.LastName,
		nullString(org.CompanyName),
		nullString(org.Phone),
		orgTypeToStorage(org.Type),
		nullString(org.Address.Street),
		nullString(org.Address.Building),
		nullString(org.Address.City),
		nullString(org.Address.State),
		nullString(org.Address.PostalCode),
		nullString(org.Address.Country),
		org.CreatedAt,
	)
	if isUniqueViolation(err) {
		return store.ErrDuplicateEmail
	}
	return err
}

// Get retrieves an organization by ID.
func (s *OrgStore) Get(ctx context.Context, id string) (*models.Organization, error) {
	query := `
		SELECT id, email, first_name, last_name, company_name, phone, org_type,
		       street, building, city, state, postal_code, country, created_at
		FROM organizations WHERE id = $1
	`

	var org models.Organization
	var companyName, phone, orgType sql.NullString
	var street, building, city, state, postalCode, country sql.NullString

	err := s.conn().QueryRowContext(ctx, query, id).Scan(
		&org.ID, &org.Email, &org.FirstName, &org.LastName,
		&companyName, &phone, &orgType,
		&street, &building, &city, &state, &postalCode, &country,
		&org.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	org.CompanyName = companyName.String
	org.Phone = phone.String
	org.Type = orgTypeFromStorage(orgType.String)
	org.Address = models.Address{
		Street:     street.String,
		Building:   building.String,
		City:       city.String,
		State:      state.String,
		PostalCode: postalCode.String,
		Country:    country.String,
	}
	return &org, nil
}

// Update updates an organization's mutable fields.
func (s *OrgStore) Update(ctx context.Context, org *models.Organization) error {
	query := `
		UPDATE organizations
		SET first_name = $1, last_name = $2, company_name = $3, phone = $4,
		    street = $5, building = $6, city = $7, state = $8,
		    postal_code = $9, country = $10
		WHERE id = $11
	`
	_, err := s.conn().ExecContext(ctx, query,
		org.FirstName,
		org.LastName,
		nullString(org.CompanyName),
		nullString(org.Phone),
		nullString(org.Address.Street),
		nullString(org.Address.Building),
		nullString(org.Address.City),
		nullString(org.Address.State),
		nullString(org.Address.PostalCode),
		nullString(org.Address.Country),
		org.ID,
	)
	return err
}

// orgTypeToStorage maps the in-process enum to the uppercase storage value.
// Case mapping lives only at this boundary.
func orgTypeToStorage(t models.OrgType) string {
	return strings.ToUpper(string(t))
}

func orgTypeFromStorage(s string) models.OrgType {
	if strings.EqualFold(s, string(models.OrgTypeCompany)) {
		return models.OrgTypeCompany
	}
	return models.OrgTypeIndividual
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
