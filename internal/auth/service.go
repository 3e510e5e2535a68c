// Package auth provides authentication and authorization services.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/powerflow/licensing/internal/models"
)

// Common errors returned by the auth service. Token verification fails
// uniformly: callers must not reveal to clients which check failed.
var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingClaims = errors.New("missing required claims")
)

// Claims represents the verified session token claims.
type Claims struct {
	AccountID      string      `json:"account_id"`
	Email          string      `json:"email"`
	Role           models.Role `json:"role"`
	OrganizationID string      `json:"organization_id"`
	Exp            time.Time   `json:"exp"`
}

// Config holds authentication configuration.
type Config struct {
	JWTSecret   []byte
	TokenExpiry time.Duration
	BcryptCost  int
}

// Service provides credential handling: password hashing, verification
// codes, and signed session tokens.
type Service struct {
	jwtSecret   []byte
	tokenExpiry time.Duration
	bcryptCost  int
	logger      *slog.Logger
}

// NewService creates a new authentication service.
func NewService(cfg *Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		jwtSecret:   cfg.JWTSecret,
		tokenExpiry: cfg.TokenExpiry,
		bcryptCost:  cost,
		logger:      logger,
	}
}

// HashPassword returns a salted one-way hash of the plaintext.
func (s *Service) HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether the plaintext matches the stored hash.
func (s *Service) VerifyPassword(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// GenerateVerificationCode returns a 4-digit numeric code drawn
// uniformly from [1000, 9999].
func (s *Service) GenerateVerificationCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", fmt.Errorf("generating verification code: %w", err)
	}
	return fmt.Sprintf("%04d", n.Int64()+1000), nil
}

// ValidateVerificationCode reports whether the input matches the stored
// code and the expiry has not passed. No leeway window.
func (s *Service) ValidateVerificationCode(input, stored string, expiry time.Time) bool {
	return input == stored && !time.Now().After(expiry)
}

// IssueSessionToken creates a signed session token for the given
// account. Claims are tamper-evident but readable.
func (s *Service) IssueSessionToken(accountID string, role models.Role, email, organizationID string) (string, error) {
	if accountID == "" || organizationID == "" {
		return "", ErrMissingClaims
	}

	now := time.Now()
	exp := now.Add(s.tokenExpiry)

	claims := jwt.MapClaims{
		"sub":    accountID,
		"email":  email,
		"role":   string(role),
		"org_id": organizationID,
		"iat":    now.Unix(),
		"exp":    exp.Unix(),
		"nbf":    now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.jwtSecret)
	if err != nil {
		s.logger.Error("failed to sign token", "error", err)
		return "", fmt.Errorf("signing token: %w", err)
	}

	return signedToken, nil
}

// VerifySessionToken validates a session token and returns its claims.
// Malformed, unsigned and expired tokens all fail with ErrInvalidToken.
func (s *Service) VerifySessionToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	accountID, ok := mapClaims["sub"].(string)
	if !ok || accountID == "" {
		return nil, ErrInvalidToken
	}
	orgID, ok := mapClaims["org_id"].(string)
	if !ok || orgID == "" {
		return nil, ErrInvalidToken
	}
	expFloat, ok := mapClaims["exp"].(float64)
	if !ok {
		return nil, ErrInvalidToken
	}

	email, _ := mapClaims["email"].(string)
	roleStr, _ := mapClaims["role"].(string)

	return &Claims{
		AccountID:      accountID,
		Email:          email,
		Role:           models.ParseRole(roleStr),
		OrganizationID: orgID,
		Exp:            time.Unix(int64(expFloat), 0),
	}, nil
}

// ExtractBearerToken extracts the token from a Bearer authorization header.
func ExtractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
