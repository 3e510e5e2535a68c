package middleware

import (
	"context"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/powerflow/licensing/internal/api/errors"
	"github.com/powerflow/licensing/internal/auth"
	"github.com/powerflow/licensing/internal/store"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// PrincipalKey is the context key for the authenticated principal.
const PrincipalKey contextKey = "principal"

// GetPrincipal extracts the authenticated principal from the request
// context. The second return is false on public routes.
func GetPrincipal(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(auth.Principal)
	return p, ok
}

// AuthMiddleware resolves the session token to a principal and rejects
// requests from unknown or deactivated accounts. Role and organization
// are re-read from the store so revocations take effect immediately.
type AuthMiddleware struct {
	authService *auth.Service
	store       store.Store
	logger      *slog.Logger
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(authService *auth.Service, st store.Store, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authService: authService,
		store:       st,
		logger:      logger,
	}
}

// Authenticate validates the bearer token and attaches the principal to
// the request context. All failure modes answer a uniform 401.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.ExtractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeUnauthorized(w, r, "Missing authentication")
			return
		}

		claims, err := m.authService.VerifySessionToken(token)
		if err != nil {
			m.logger.Debug("session token validation failed", "error", err)
			writeUnauthorized(w, r, "Invalid token")
			return
		}

		account, err := m.store.Accounts().GetByID(r.Context(), claims.AccountID)
		if err != nil {
			m.logger.Error("failed to load account for session", "error", err)
			writeUnauthorized(w, r, "Invalid token")
			return
		}
		if account == nil || !account.IsActive {
			writeUnauthorized(w, r, "Invalid token")
			return
		}

		principal := auth.Principal{
			AccountID:      account.ID,
			OrganizationID: account.OrganizationID,
			Role:           account.Role,
		}

		ctx := context.WithValue(r.Context(), PrincipalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	apierrors.WriteErrorWithRequestID(w, apierrors.NewUnauthorizedError(message), chimiddleware.GetReqID(r.Context()))
}
