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

// AccountStore implements store.AccountStore using PostgreSQL.
type AccountStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

func (s *AccountStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

const accountColumns = `
	id, organization_id, email, password_hash, first_name, last_name, role,
	is_active, is_verified, verification_code, verification_expires,
	verification_attempts, last_verification_sent, created_at
`

// Create creates a new account.
func (s *AccountStore) Create(ctx context.Context, account *models.Account) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := s.conn().ExecContext(ctx, query,
		account.ID,
		account.OrganizationID,
		account.Email,
		account.PasswordHash,
		account.FirstName,
		account.LastName,
		roleToStorage(account.Role),
		account.IsActive,
		account.IsVerified,
		nullStringPtr(account.VerificationCode),
		nullTimePtr(account.VerificationExpires),
		account.VerificationAttempts,
		nullTimePtr(account.LastVerificationSent),
		account.CreatedAt,
	)
	if isUniqueViolation(err) {
		return store.ErrDuplicateEmail
	}
	return err
}

// GetByEmail retrieves an account by its normalized email.
func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`
	return s.scanOne(s.conn().QueryRowContext(ctx, query, email))
}

// GetByID retrieves an account by ID.
func (s *AccountStore) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return s.scanOne(s.conn().QueryRowContext(ctx, query, id))
}

// Update updates an account's mutable fields. The organization link and
// email are immutable after creation.
func (s *AccountStore) Update(ctx context.Context, account *models.Account) error {
	query := `
		UPDATE accounts
		SET password_hash = $1, first_name = $2, last_name = $3, role = $4,
		    is_active = $5, is_verified = $6, verification_code = $7,
		    verification_expires = $8, verification_attempts = $9,
		    last_verification_sent = $10
		WHERE id = $11
	`
	_, err := s.conn().ExecContext(ctx, query,
		account.PasswordHash,
		account.FirstName,
		account.LastName,
		roleToStorage(account.Role),
		account.IsActive,
		account.IsVerified,
		nullStringPtr(account.VerificationCode),
		nullTimePtr(account.VerificationExpires),
		account.VerificationAttempts,
		nullTimePtr(account.LastVerificationSent),
		account.ID,
	)
	return err
}

// ListByOrg retrieves all accounts of an organization.
func (s *AccountStore) ListByOrg(ctx context.Context, orgID string) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE organization_id = $1 ORDER BY created_at`

	rows, err := s.conn().QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows.Scan)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// Delete removes an account. The organization id in the predicate keeps
// the delete tenant-scoped.
func (s *AccountStore) Delete(ctx context.Context, id, orgID string) error {
	query := `DELETE FROM accounts WHERE id = $1 AND organization_id = $2`

	res, err := s.conn().ExecContext(ctx, query, id, orgID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *AccountStore) scanOne(row *sql.Row) (*models.Account, error) {
	account, err := scanAccount(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

func scanAccount(scan func(dest ...any) error) (*models.Account, error) {
	var account models.Account
	var role string
	var code sql.NullString
	var codeExpires, lastSent sql.NullTime

	err := scan(
		&account.ID, &account.OrganizationID, &account.Email, &account.PasswordHash,
		&account.FirstName, &account.LastName, &role,
		&account.IsActive, &account.IsVerified,
		&code, &codeExpires, &account.VerificationAttempts, &lastSent,
		&account.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.Role = models.ParseRole(role)
	if code.Valid {
		account.VerificationCode = &code.String
	}
	if codeExpires.Valid {
		account.VerificationExpires = &codeExpires.Time
	}
	if lastSent.Valid {
		account.LastVerificationSent = &lastSent.Time
	}
	return &account, nil
}

// roleToStorage maps the in-process role enum to the uppercase storage
// value. Case mapping lives only at this boundary.
func roleToStorage(r models.Role) string {
	return strings.ToUpper(string(r))
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
