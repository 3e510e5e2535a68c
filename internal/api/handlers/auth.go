// Package handlers contains HTTP request handlers for the API.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	apierrors "github.com/powerflow/licensing/internal/api/errors"
	"github.com/powerflow/licensing/internal/api/middleware"
	"github.com/powerflow/licensing/internal/models"
	"github.com/powerflow/licensing/internal/registration"
	"github.com/powerflow/licensing/internal/store"
)

var validate = validator.New()

// respondError writes an APIError with the chi request id threaded into
// the envelope, so clients can quote it in support requests.
func respondError(w http.ResponseWriter, r *http.Request, apiErr *apierrors.APIError) {
	apierrors.WriteErrorWithRequestID(w, apiErr, chimiddleware.GetReqID(r.Context()))
}

// decodeAndValidate decodes the request body into dst and runs struct
// validation. The returned error is ready to write.
func decodeAndValidate(r *http.Request, dst any) *apierrors.APIError {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apierrors.NewValidationError("Invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make(map[string]any, len(verrs))
			for _, fe := range verrs {
				details[fe.Field()] = fe.Tag()
			}
			return apierrors.NewValidationError("Validation failed").WithDetails(details)
		}
		return apierrors.NewValidationError("Validation failed")
	}
	return nil
}

// AuthHandler handles registration, verification and session endpoints.
type AuthHandler struct {
	registration *registration.Service
	store        store.Store
	logger       *slog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(reg *registration.Service, st store.Store, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		registration: reg,
		store:        st,
		logger:       logger,
	}
}

type registerRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	FirstName   string `json:"first_name" validate:"required"`
	LastName    string `json:"last_name" validate:"required"`
	Phone       string `json:"phone"`
	Type        string `json:"type" validate:"required,oneof=individual company"`
	Role        string `json:"role" validate:"omitempty,oneof=owner admin user"`
	CompanyName string `json:"company_name"`
}

type accountResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Role       string `json:"role"`
	IsVerified bool   `json:"is_verified"`
}

func toAccountResponse(a *models.Account) accountResponse {
	return accountResponse{
		ID:         a.ID,
		Email:      a.Email,
		FirstName:  a.FirstName,
		LastName:   a.LastName,
		Role:       string(a.Role),
		IsVerified: a.IsVerified,
	}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if apiErr := decodeAndValidate(r, &req); apiErr != nil {
		respondError(w, r, apiErr)
		return
	}
	if req.Type == string(models.OrgTypeCompany) && req.CompanyName == "" {
		respondError(w, r, apierrors.NewValidationError("Company name is required for company accounts"))
		return
	}

	account, err := h.registration.Register(r.Context(), registration.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Phone:       req.Phone,
		OrgType:     models.OrgType(req.Type),
		Role:        models.Role(req.Role),
		CompanyName: req.CompanyName,
	})
	if err != nil {
		switch {
		case errors.Is(err, registration.ErrEmailTaken):
			respondError(w, r, apierrors.NewConflictError("An account with this email already exists"))
		case errors.Is(err, registration.ErrDeliveryFailed):
			// The account was persisted. Tell the caller to request a resend.
			apierrors.WriteJSON(w, http.StatusOK, map[string]any{
				"email":     account.Email,
				"next_step": "resend",
				"message":   "Account created but the verification email could not be sent. Please request a new code.",
			})
		default:
			h.logger.Error("registration failed", "error", err)
			respondError(w, r, apierrors.NewInternalError("Failed to register account"))
		}
		return
	}

	apierrors.WriteJSON(w, http.StatusOK, map[string]any{
		"email":     account.Email,
		"next_step": "verify",
	})
}

type verifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=4,numeric"`
}

// VerifyCode handles POST /auth/verify.
func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if apiErr := decodeAndValidate(r, &req); apiErr != nil {
		respondError(w, r, apiErr)
		return
	}

	err := h.registration.VerifyCode(r.Context(), req.Email, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, registration.ErrAccountNotFound):
			respondError(w, r, apierrors.NewNotFoundError("Account not found"))
		case errors.Is(err, registration.ErrAlreadyVerified):
			respondError(w, r, apierrors.NewConflictError("Account is already verified"))
		case errors.Is(err, registration.ErrNoCodeIssued), errors.Is(err, registration.ErrInvalidCode):
			respondError(w, r, apierrors.NewValidationError("Invalid or expired verification code"))
		default:
			h.logger.Error("verification failed", "error", err)
			respondError(w, r, apierrors.NewInternalError("Failed to verify account"))
		}
		return
	}

	apierrors.WriteJSON(w, http.StatusOK, map[string]any{"verified": true})
}

type resendRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResendCode handles POST /auth/resend.
func (h *AuthHandler) ResendCode(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if apiErr := decodeAndValidate(r, &req); apiErr != nil {
		respondError(w, r, apiErr)
		return
	}

	err := h.registration.ResendCode(r.Context(), req.Email)
	if err != nil {
		switch {
		case errors.Is(err, registration.ErrAccountNotFound):
			respondError(w, r, apierrors.NewNotFoundError("Account not found"))
		case errors.Is(err, registration.ErrAlreadyVerified):
			respondError(w, r, apierrors.NewConflictError("Account is already verified"))
		case errors.Is(err, registration.ErrResendTooSoon):
			respondError(w, r, apierrors.NewRateLimitedError("Please wait before requesting another code"))
		case errors.Is(err, registration.ErrDeliveryFailed):
			respondError(w, r, apierrors.NewInternalError("Failed to deliver verification email"))
		default:
			h.logger.Error("resend failed", "error", err)
			respondError(w, r, apierrors.NewInternalError("Failed to resend code"))
		}
		return
	}

	apierrors.WriteJSON(w, http.StatusOK, map[string]any{"sent": true})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if apiErr := decodeAndValidate(r, &req); apiErr != nil {
		respondError(w, r, apiErr)
		return
	}

	account, token, err := h.registration.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, registration.ErrInvalidCredentials):
			respondError(w, r, apierrors.NewUnauthorizedError("Invalid email or password"))
		case errors.Is(err, registration.ErrNotVerified):
			respondError(w, r, apierrors.NewForbiddenError("Account is not verified"))
		case errors.Is(err, registration.ErrAccountInactive):
			respondError(w, r, apierrors.NewForbiddenError("Account is deactivated"))
		default:
			h.logger.Error("login failed", "error", err)
			respondError(w, r, apierrors.NewInternalError("Failed to log in"))
		}
		return
	}

	apierrors.WriteJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  toAccountResponse(account),
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

// ChangePassword handles POST /v1/auth/change-password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		respondError(w, r, apierrors.NewUnauthorizedError("Authentication required"))
		return
	}

	var req changePasswordRequest
	if apiErr := decodeAndValidate(r, &req); apiErr != nil {
		respondError(w, r, apiErr)
		return
	}

	err := h.registration.ChangePassword(r.Context(), principal.AccountID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, registration.ErrWrongPassword):
			respondError(w, r, apierrors.NewValidationError("Current password is incorrect"))
		case errors.Is(err, registration.ErrAccountNotFound):
			respondError(w, r, apierrors.NewNotFoundError("Account not found"))
		default:
			h.logger.Error("password change failed", "error", err)
			respondError(w, r, apierrors.NewInternalError("Failed to change password"))
		}
		return
	}

	apierrors.WriteJSON(w, http.StatusOK, map[string]any{"changed": true})
}

// Me handles GET /v1/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		respondError(w, r, apierrors.NewUnauthorizedError("Authentication required"))
		return
	}

	account, err := h.store.Accounts().GetByID(r.Context(), principal.AccountID)
	if err != nil || account == nil {
		respondError(w, r, apierrors.NewNotFoundError("Account not found"))
		return
	}

	apierrors.WriteJSON(w, http.StatusOK, toAccountResponse(account))
}
