package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerflow/licensing/internal/auth"
	"github.com/powerflow/licensing/internal/mail"
	"github.com/powerflow/licensing/internal/store/memory"
	"github.com/powerflow/licensing/pkg/config"
)

func newTestServer(t *testing.T) (*Server, *memory.MemoryStore) {
	t.Helper()
	cfg := config.LoadWithDefaults()
	cfg.BcryptCost = 4
	st := memory.NewMemoryStore()
	authSvc := auth.NewService(&auth.Config{
		JWTSecret:   []byte(cfg.JWTSecret),
		TokenExpiry: time.Hour,
		BcryptCost:  cfg.BcryptCost,
	}, nil)
	return NewServer(cfg, st, authSvc, mail.NewLogSender(nil), nil), st
}

func doJSON(t *testing.T, srv *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// registerAndLogin walks the full signup flow and returns a session token.
func registerAndLogin(t *testing.T, srv *Server, st *memory.MemoryStore, email, role string) string {
	t.Helper()

	rec := doJSON(t, srv, http.MethodPost, "/auth/register", "", map[string]any{
		"email":      email,
		"password":   "password123",
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"type":       "individual",
		"role":       role,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	account, err := st.Accounts().GetByEmail(context.Background(), email)
	require.NoError(t, err)
	require.NotNil(t, account.VerificationCode)

	rec = doJSON(t, srv, http.MethodPost, "/auth/verify", "", map[string]any{
		"email": email,
		"code":  *account.VerificationCode,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, srv, http.MethodPost, "/auth/login", "", map[string]any{
		"email":    email,
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody(t, rec)["token"].(string)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestRegisterVerifyLoginFlow(t *testing.T) {
	srv, st := newTestServer(t)
	token := registerAndLogin(t, srv, st, "ada@example.com", "owner")
	require.NotEmpty(t, token)

	rec := doJSON(t, srv, http.MethodGet, "/v1/me", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "ada@example.com", body["email"])
	assert.Equal(t, "owner", body["role"])
	assert.Equal(t, true, body["is_verified"])
}

func TestRegisterValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/auth/register", "", map[string]any{
		"email":      "not-an-email",
		"password":   "password123",
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"type":       "individual",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeBody(t, rec)["code"])

	// Company registrations must carry a company name.
	rec = doJSON(t, srv, http.MethodPost, "/auth/register", "", map[string]any{
		"email":      "co@example.com",
		"password":   "password123",
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"type":       "company",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginBeforeVerificationForbidden(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/auth/register", "", map[string]any{
		"email":      "ada@example.com",
		"password":   "password123",
		"first_name": "Ada",
		"last_name":  "Lovelace",
		"type":       "individual",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/auth/login", "", map[string]any{
		"email":    "ada@example.com",
		"password": "password123",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv, _ := newTestServer(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/v1/me"},
		{http.MethodGet, "/v1/licenses/"},
		{http.MethodPost, "/v1/licenses/"},
		{http.MethodGet, "/v1/invitations/"},
		{http.MethodGet, "/v1/dashboard/stats"},
	}
	for _, p := range paths {
		rec := doJSON(t, srv, p.method, p.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", p.method, p.path)
	}

	rec := doJSON(t, srv, http.MethodGet, "/v1/me", "not.a.token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPurchaseAndValidateFlow(t *testing.T) {
	srv, st := newTestServer(t)
	token := registerAndLogin(t, srv, st, "ada@example.com", "owner")

	rec := doJSON(t, srv, http.MethodPost, "/v1/licenses/", token, map[string]any{
		"plan":          "yearly",
		"seats":         2,
		"payment_phone": "0966262458",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var purchased struct {
		Licenses []struct {
			Key        string `json:"key"`
			SeatNumber int    `json:"seat_number"`
		} `json:"licenses"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &purchased))
	require.Len(t, purchased.Licenses, 2)

	// Validation is public and binds the first machine.
	rec = doJSON(t, srv, http.MethodPost, "/v1/licenses/validate", "", map[string]any{
		"key":        purchased.Licenses[0].Key,
		"machine_id": "machine-1",
		"username":   "alice",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["valid"])

	// A second machine is rejected with 200 and a reason.
	rec = doJSON(t, srv, http.MethodPost, "/v1/licenses/validate", "", map[string]any{
		"key":        purchased.Licenses[0].Key,
		"machine_id": "machine-2",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "machine_mismatch", body["reason"])

	// Stats reflect the purchase.
	rec = doJSON(t, srv, http.MethodGet, "/v1/dashboard/stats", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeBody(t, rec)
	assert.Equal(t, float64(2), stats["active_licenses"])
	assert.Equal(t, float64(1), stats["seats_used"])
}

func TestValidateUnknownKeyIsDataNotError(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/v1/licenses/validate", "", map[string]any{
		"key":        "LIC-DEADBEEF-0",
		"machine_id": "machine-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, "license_not_found", body["reason"])
}

func TestPurchasePaymentRejected(t *testing.T) {
	srv, st := newTestServer(t)
	token := registerAndLogin(t, srv, st, "ada@example.com", "owner")

	rec := doJSON(t, srv, http.MethodPost, "/v1/licenses/", token, map[string]any{
		"plan":          "yearly",
		"seats":         1,
		"payment_phone": "0000000000",
	})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "PAYMENT_REJECTED", decodeBody(t, rec)["code"])
}

func TestInvitationFlow(t *testing.T) {
	srv, st := newTestServer(t)
	ownerToken := registerAndLogin(t, srv, st, "owner@example.com", "owner")

	rec := doJSON(t, srv, http.MethodPost, "/v1/invitations/", ownerToken, map[string]any{
		"email": "invitee@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	inv, err := st.Invitations().ListPendingByOrg(context.Background(), orgIDFor(t, st, "owner@example.com"))
	require.NoError(t, err)
	require.Len(t, inv, 1)

	// Accepting is public.
	rec = doJSON(t, srv, http.MethodPost, "/auth/invite/accept", "", map[string]any{
		"token":      inv[0].Token,
		"password":   "password123",
		"first_name": "Grace",
		"last_name":  "Hopper",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// The invited member logs in without verification.
	rec = doJSON(t, srv, http.MethodPost, "/auth/login", "", map[string]any{
		"email":    "invitee@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	memberToken := decodeBody(t, rec)["token"].(string)

	// A plain member cannot invite.
	rec = doJSON(t, srv, http.MethodPost, "/v1/invitations/", memberToken, map[string]any{
		"email": "another@example.com",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMemberRemovalFlow(t *testing.T) {
	srv, st := newTestServer(t)
	ownerToken := registerAndLogin(t, srv, st, "owner@example.com", "owner")

	rec := doJSON(t, srv, http.MethodPost, "/v1/invitations/", ownerToken, map[string]any{
		"email": "invitee@example.com",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	inv, err := st.Invitations().ListPendingByOrg(context.Background(), orgIDFor(t, st, "owner@example.com"))
	require.NoError(t, err)
	require.Len(t, inv, 1)

	rec = doJSON(t, srv, http.MethodPost, "/auth/invite/accept", "", map[string]any{
		"token":      inv[0].Token,
		"password":   "password123",
		"first_name": "Grace",
		"last_name":  "Hopper",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	memberID := decodeBody(t, rec)["id"].(string)

	rec = doJSON(t, srv, http.MethodDelete, "/v1/members/"+memberID, ownerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The removed member's session no longer resolves.
	account, err := st.Accounts().GetByEmail(context.Background(), "invitee@example.com")
	require.NoError(t, err)
	assert.Nil(t, account)

	// Removing again answers not found.
	rec = doJSON(t, srv, http.MethodDelete, "/v1/members/"+memberID, ownerToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// A cross-tenant admin cannot remove the owner.
	otherToken := registerAndLogin(t, srv, st, "other@example.com", "owner")
	ownerID := orgOwnerID(t, st, "owner@example.com")
	rec = doJSON(t, srv, http.MethodDelete, "/v1/members/"+ownerID, otherToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestErrorEnvelopeCarriesRequestID(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/v1/me", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "UNAUTHORIZED", body["code"])
	assert.NotEmpty(t, body["request_id"])

	rec = doJSON(t, srv, http.MethodPost, "/auth/register", "", map[string]any{
		"email": "not-an-email",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, decodeBody(t, rec)["request_id"])
}

func TestLicenseListIsTenantScoped(t *testing.T) {
	srv, st := newTestServer(t)
	tokenA := registerAndLogin(t, srv, st, "a@example.com", "owner")
	tokenB := registerAndLogin(t, srv, st, "b@example.com", "owner")

	rec := doJSON(t, srv, http.MethodPost, "/v1/licenses/", tokenA, map[string]any{
		"plan":          "yearly",
		"seats":         3,
		"payment_phone": "0966262458",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/v1/licenses/", tokenB, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Licenses []json.RawMessage `json:"licenses"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Empty(t, listed.Licenses, "tenant B must not see tenant A's licenses")
}

func TestDuplicateRegistrationConflict(t *testing.T) {
	srv, st := newTestServer(t)
	registerAndLogin(t, srv, st, "ada@example.com", "owner")

	rec := doJSON(t, srv, http.MethodPost, "/auth/register", "", map[string]any{
		"email":      "ada@example.com",
		"password":   "password456",
		"first_name": "Mallory",
		"last_name":  "Intruder",
		"type":       "individual",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", decodeBody(t, rec)["code"])
}

func orgIDFor(t *testing.T, st *memory.MemoryStore, email string) string {
	t.Helper()
	account, err := st.Accounts().GetByEmail(context.Background(), email)
	require.NoError(t, err)
	require.NotNil(t, account, fmt.Sprintf("no account for %s", email))
	return account.OrganizationID
}

func orgOwnerID(t *testing.T, st *memory.MemoryStore, email string) string {
	t.Helper()
	account, err := st.Accounts().GetByEmail(context.Background(), email)
	require.NoError(t, err)
	require.NotNil(t, account, fmt.Sprintf("no account for %s", email))
	return account.ID
}
