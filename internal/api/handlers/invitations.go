package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/powerflow/licensing/internal/api/errors"
	"github.com/powerflow/licensing/internal/api/middleware"
	"github.com/powerflow/licensing/internal/auth"
	"github.com/powerflow/licensing/internal/invitation"
	"github.com/powerflow/licensing/internal/models"
)

// InvitationHandler handles invitation endpoints.
type InvitationHandler struct {
	invitations *invitation.Service
	logger      *slog.Logger
}

// NewInvitationHandler creates a new invitation handler.
func NewInvitationHandler(inv *invitation.Service, logger *slog.Logger) *InvitationHandler {
	return &InvitationHandler{
		invitations: inv,
		logger:      logger,
	}
}

type inviteRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type invitationResponse struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Status     string     `json:"status"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
}

func toInvitationResponse(inv *models.Invitation) invitationResponse {
	return invitationResponse{
		ID:         inv.ID,
		Email:      inv.Email,
		Status:     string(inv.Status),
		ExpiresAt:  inv.ExpiresAt,
		CreatedAt:  inv.CreatedAt,
		AcceptedAt: inv.AcceptedAt,
	}
}

// Create handles POST /v1/invitations.
func (h *InvitationHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		respondError(w, r, apierrors.NewUnauthorizedError("Authentication required"))
		return
	}

	var req inviteRequest
	if apiErr := decodeAndValidate(r, &req); apiErr != nil {
		respondError(w, r, apiErr)
		return
	}

	inv, err := h.invitations.Invite(r.Context(), principal, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrPermissionDenied):
			respondError(w, r, apierrors.NewForbiddenError("Only owners and admins can invite members"))
		case errors.Is(err, invitation.ErrAccountExists):
			respondError(w, r, apierrors.NewConflictError("An account with this email already exists"))
		default:
			h.logger.Error("invitation failed", "error", err)
			respondError(w, r, apierrors.NewInternalError("Failed to create invitation"))
		}
		return
	}

	apierrors.WriteJSON(w, http.StatusCreated, toInvitationResponse(inv))
}

// ListPending handles GET /v1/invitations.
func (h *InvitationHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		respondError(w, r, apierrors.NewUnauthorizedError("Authentication required"))
		return
	}

	invs, err := h.invitations.ListPending(r.Context(), principal)
	if err != nil {
		if errors.Is(err, auth.ErrPermissionDenied) {
			respondError(w, r, apierrors.NewForbiddenError("Only owners and admins can view invitations"))
			return
		}
		h.logger.Error("failed to list invitations", "error", err)
		respondError(w, r, apierrors.NewInternalError("Failed to list invitations"))
		return
	}

	out := make([]invitationResponse, 0, len(invs))
	for _, inv := range invs {
		out = append(out, toInvitationResponse(inv))
	}
	apierrors.WriteJSON(w, http.StatusOK, map[string]any{"invitations": out})
}

// ListMembers handles GET /v1/members.
func (h *InvitationHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		respondError(w, r, apierrors.NewUnauthorizedError("Authentication required"))
		return
	}

	members, err := h.invitations.ListMembers(r.Context(), principal)
	if err != nil {
		if errors.Is(err, auth.ErrPermissionDenied) {
			respondError(w, r, apierrors.NewForbiddenError("Only owners and admins can view members"))
			return
		}
		h.logger.Error("failed to list members", "error", err)
		respondError(w, r, apierrors.NewInternalError("Failed to list members"))
		return
	}

	out := make([]accountResponse, 0, len(members))
	for _, m := range members {
		out = append(out, toAccountResponse(m))
	}
	apierrors.WriteJSON(w, http.StatusOK, map[string]any{"members": out})
}

// Remove handles DELETE /v1/members/{id}.
func (h *InvitationHandler) Remove(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		respondError(w, r, apierrors.NewUnauthorizedError("Authentication required"))
		return
	}

	err := h.invitations.RemoveMember(r.Context(), principal, chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrPermissionDenied):
			respondError(w, r, apierrors.NewForbiddenError("Only owners and admins can remove members"))
		case errors.Is(err, invitation.ErrMemberNotFound):
			respondError(w, r, apierrors.NewNotFoundError("Member not found"))
		default:
			h.logger.Error("failed to remove member", "error", err)
			respondError(w, r, apierrors.NewInternalError("Failed to remove member"))
		}
		return
	}

	apierrors.WriteJSON(w, http.StatusOK, map[string]any{"removed": true})
}

type acceptInviteRequest struct {
	Token     string `json:"token" validate:"required"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
}

// Accept handles POST /auth/invite/accept. This route is public; the
// token itself proves the caller was invited.
func (h *InvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	var req acceptInviteRequest
	if apiErr := decodeAndValidate(r, &req); apiErr != nil {
		respondError(w, r, apiErr)
		return
	}

	account, err := h.invitations.Accept(r.Context(), req.Token, req.Password, req.FirstName, req.LastName)
	if err != nil {
		switch {
		case errors.Is(err, invitation.ErrInvitationNotFound):
			respondError(w, r, apierrors.NewNotFoundError("Invitation not found"))
		case errors.Is(err, invitation.ErrInvitationUsed):
			respondError(w, r, apierrors.NewValidationError("Invitation has already been used"))
		case errors.Is(err, invitation.ErrInvitationExpired):
			respondError(w, r, apierrors.NewValidationError("Invitation has expired"))
		default:
			h.logger.Error("invitation acceptance failed", "error", err)
			respondError(w, r, apierrors.NewInternalError("Failed to accept invitation"))
		}
		return
	}

	apierrors.WriteJSON(w, http.StatusCreated, toAccountResponse(account))
}
