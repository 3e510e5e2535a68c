package auth

import (
	"errors"

	"github.com/powerflow/licensing/internal/models"
)

// ErrPermissionDenied is returned when the principal's role is not in
// the allowed set for an operation.
var ErrPermissionDenied = errors.New("permission denied")

// Principal is the authenticated caller, resolved once from a session
// token and threaded explicitly through handlers and workflows. There
// is no module-global request state.
type Principal struct {
	AccountID      string      `json:"account_id"`
	OrganizationID string      `json:"organization_id"`
	Role           models.Role `json:"role"`
}

// AdminRoles is the role set allowed to manage members and invitations.
var AdminRoles = []models.Role{models.RoleAdmin, models.RoleOwner}

// RequireAnyRole is the single role gate used by every role-restricted
// operation. It returns ErrPermissionDenied unless the principal's role
// is in the allowed set.
func RequireAnyRole(p Principal, allowed ...models.Role) error {
	for _, role := range allowed {
		if p.Role == role {
			return nil
		}
	}
	return ErrPermissionDenied
}
