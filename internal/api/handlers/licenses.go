package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/powerflow/licensing/internal/api/errors"
	"github.com/powerflow/licensing/internal/api/middleware"
	"github.com/powerflow/licensing/internal/license"
	"github.com/powerflow/licensing/internal/models"
)

// LicenseHandler handles license purchase, validation and listing.
type LicenseHandler struct {
	licenses *license.Service
	logger   *slog.Logger
}

// NewLicenseHandler creates a new license handler.
func NewLicenseHandler(svc *license.Service, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		licenses: svc,
		logger:   logger,
	}
}

type purchaseRequest struct {
	Plan         string `json:"plan" validate:"required,oneof=yearly 3years floating"`
	Seats        int    `json:"seats" validate:"required,min=1"`
	PaymentPhone string `json:"payment_phone" validate:"required"`
}

type licenseResponse struct {
	ID           string     `json:"id"`
	Key          string     `json:"key"`
	Plan         string     `json:"plan"`
	SeatNumber   int        `json:"seat_number"`
	IssueDate    time.Time  `json:"issue_date"`
	ExpiryDate   time.Time  `json:"expiry_date"`
	MachineID    *string    `json:"machine_id,omitempty"`
	Username     *string    `json:"username,omitempty"`
	IsActive     bool       `json:"is_active"`
	IsFree       bool       `json:"is_free"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

func toLicenseResponse(l *models.License) licenseResponse {
	return licenseResponse{
		ID:           l.ID,
		Key:          l.Key,
		Plan:         string(l.Plan),
		SeatNumber:   l.SeatNumber,
		IssueDate:    l.IssueDate,
		ExpiryDate:   l.ExpiryDate,
		MachineID:    l.MachineID,
		Username:     l.Username,
		IsActive:     l.IsActive,
		IsFree:       l.IsFree,
		LastActivity: l.LastActivity,
	}
}

// Purchase handles POST /v1/licenses.
func (h *LicenseHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		respondError(w, r, apierrors.NewUnauthorizedError("Authentication required"))
		return
	}

	var req purchaseRequest
	if apiErr := decodeAndValidate(r, &req); apiErr != nil {
		respondError(w, r, apiErr)
		return
	}

	batch, err := h.licenses.Purchase(r.Context(), principal, models.PlanType(req.Plan), req.Seats, req.PaymentPhone)
	if err != nil {
		switch {
		case errors.Is(err, license.ErrInvalidPlan), errors.Is(err, license.ErrInvalidSeatCount):
			respondError(w, r, apierrors.NewValidationError(err.Error()))
		case errors.Is(err, license.ErrPaymentRejected):
			respondError(w, r, apierrors.NewPaymentRejectedError("Payment verification failed"))
		default:
			h.logger.Error("license purchase failed", "error", err)
			respondError(w, r, apierrors.NewInternalError("Failed to purchase licenses"))
		}
		return
	}

	out := make([]licenseResponse, 0, len(batch))
	for _, l := range batch {
		out = append(out, toLicenseResponse(l))
	}
	apierrors.WriteJSON(w, http.StatusCreated, map[string]any{"licenses": out})
}

type validateRequest struct {
	Key       string `json:"key" validate:"required"`
	MachineID string `json:"machine_id" validate:"required"`
	Username  string `json:"username"`
}

// Validate handles POST /v1/licenses/validate. This route is public and
// always answers 200; rejection reasons travel in the body so licensed
// clients can distinguish an invalid key from a transport failure.
func (h *LicenseHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if apiErr := decodeAndValidate(r, &req); apiErr != nil {
		respondError(w, r, apiErr)
		return
	}

	result, err := h.licenses.Validate(r.Context(), req.Key, req.MachineID, req.Username)
	if err != nil {
		h.logger.Error("license validation failed", "error", err)
		respondError(w, r, apierrors.NewInternalError("Failed to validate license"))
		return
	}

	apierrors.WriteJSON(w, http.StatusOK, result)
}

// List handles GET /v1/licenses.
func (h *LicenseHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		respondError(w, r, apierrors.NewUnauthorizedError("Authentication required"))
		return
	}

	licenses, err := h.licenses.List(r.Context(), principal)
	if err != nil {
		h.logger.Error("failed to list licenses", "error", err)
		respondError(w, r, apierrors.NewInternalError("Failed to list licenses"))
		return
	}

	out := make([]licenseResponse, 0, len(licenses))
	for _, l := range licenses {
		out = append(out, toLicenseResponse(l))
	}
	apierrors.WriteJSON(w, http.StatusOK, map[string]any{"licenses": out})
}

// DashboardStats handles GET /v1/dashboard/stats.
func (h *LicenseHandler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		respondError(w, r, apierrors.NewUnauthorizedError("Authentication required"))
		return
	}

	stats, err := h.licenses.Stats(r.Context(), principal)
	if err != nil {
		h.logger.Error("failed to compute dashboard stats", "error", err)
		respondError(w, r, apierrors.NewInternalError("Failed to compute stats"))
		return
	}

	apierrors.WriteJSON(w, http.StatusOK, stats)
}
