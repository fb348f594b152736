package users

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/identity"
	"github.com/platinummonkey/warden/pkg/rbac"
)

func setupHandlerTest(t *testing.T) (*mux.Router, *fixture) {
	t.Helper()

	f := setupFixture(t)
	router := mux.NewRouter()
	NewHandler(f.service, f.guard, testLogger()).RegisterRoutes(router)
	return router, f
}

// adminFixture adds an administrator account (ext-admin) to the fixture.
func adminFixture(t *testing.T) (*mux.Router, *fixture, *Account) {
	t.Helper()

	router, f := setupHandlerTest(t)
	admin := f.createAccount(t, "ext-admin", "admin@example.com", StatusActive)
	require.NoError(t, f.rbacStore.AssignRoleToAccount(context.Background(),
		admin.ID, f.seed.RoleIDs[rbac.SuperuserRoleName]))
	return router, f, admin
}

func doRequest(router *mux.Router, method, path, externalID string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if externalID != "" {
		req = req.WithContext(identityContext(externalID))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestListUsersEndpoint(t *testing.T) {
	router, f, _ := adminFixture(t)
	f.createAccount(t, "ext-1", "jan@example.com", StatusActive)

	rec := doRequest(router, "GET", "/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(router, "GET", "/users", "ext-admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Users []UserWithRoles `json:"users"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Users, 2)
}

func TestInviteEndpoint(t *testing.T) {
	router, f, _ := adminFixture(t)

	body := InviteParams{Email: "nowy@example.com", RoleID: f.seed.RoleIDs["user"]}

	rec := doRequest(router, "POST", "/users/invite", "ext-admin", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var result InviteResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, StatusInvitationSent, result.Account.Status)

	// The retry is a conflict, not a second invitation.
	rec = doRequest(router, "POST", "/users/invite", "ext-admin", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestInviteEndpointDispatchFailure(t *testing.T) {
	router, f, _ := adminFixture(t)
	f.provider.resetErr = errors.New("smtp down")

	body := InviteParams{Email: "nowy@example.com", RoleID: f.seed.RoleIDs["user"]}
	rec := doRequest(router, "POST", "/users/invite", "ext-admin", body)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestResendInvitationEndpoint(t *testing.T) {
	router, f, _ := adminFixture(t)
	invited := f.createAccount(t, "ext-1", "invited@example.com", StatusInvitationSent)
	active := f.createAccount(t, "ext-2", "active@example.com", StatusActive)

	rec := doRequest(router, "POST", fmt.Sprintf("/users/%d/resend-invitation", invited.ID), "ext-admin", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(router, "POST", fmt.Sprintf("/users/%d/resend-invitation", active.ID), "ext-admin", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestInviteEndpointConflict(t *testing.T) {
	router, f, _ := adminFixture(t)
	f.createAccount(t, "ext-1", "taken@example.com", StatusActive)

	body := InviteParams{Email: "taken@example.com", RoleID: f.seed.RoleIDs["user"]}
	rec := doRequest(router, "POST", "/users/invite", "ext-admin", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateStatusEndpoint(t *testing.T) {
	router, f, _ := adminFixture(t)
	target := f.createAccount(t, "ext-1", "jan@example.com", StatusActive)

	path := fmt.Sprintf("/users/%d/status", target.ID)
	rec := doRequest(router, "PATCH", path, "ext-admin", updateStatusRequest{Status: StatusBlocked})
	require.Equal(t, http.StatusOK, rec.Code)

	var account Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &account))
	assert.Equal(t, StatusBlocked, account.Status)

	// Illegal transition maps to conflict.
	rec = doRequest(router, "PATCH", path, "ext-admin", updateStatusRequest{Status: StatusInvitationSent})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateStatusRequiresPermission(t *testing.T) {
	router, f, _ := adminFixture(t)
	plain := f.createAccount(t, "ext-plain", "plain@example.com", StatusActive)
	target := f.createAccount(t, "ext-1", "jan@example.com", StatusActive)
	require.NoError(t, f.rbacStore.AssignRoleToAccount(context.Background(),
		plain.ID, f.seed.RoleIDs["user"]))

	path := fmt.Sprintf("/users/%d/status", target.ID)
	rec := doRequest(router, "PATCH", path, "ext-plain", updateStatusRequest{Status: StatusBlocked})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestProfileEndpoint(t *testing.T) {
	router, f := setupHandlerTest(t)
	account := f.createAccount(t, "ext-1", "jan@example.com", StatusActive)

	rec := doRequest(router, "GET", "/me", "ext-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, account.ID, got.ID)

	rec = doRequest(router, "GET", "/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(router, "GET", "/me", "ext-stranger", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestChangePasswordEndpoint(t *testing.T) {
	router, f := setupHandlerTest(t)
	f.createAccount(t, "ext-1", "jan@example.com", StatusActive)

	rec := doRequest(router, "POST", "/me/password", "ext-1",
		changePasswordRequest{CurrentPassword: "old", NewPassword: "new-password-1"})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(router, "POST", "/me/password", "ext-1",
		changePasswordRequest{CurrentPassword: "old", NewPassword: "short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A rejected current password is the caller's fault, not a server
	// error.
	f.provider.changeErr = identity.ErrWrongPassword
	rec = doRequest(router, "POST", "/me/password", "ext-1",
		changePasswordRequest{CurrentPassword: "wrong", NewPassword: "new-password-1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMyRBACEndpointIsPublic(t *testing.T) {
	router, _ := setupHandlerTest(t)

	rec := doRequest(router, "GET", "/me/rbac", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var info MyRBACInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.False(t, info.IsAuthenticated)
}

func TestBlockedByEmailEndpoint(t *testing.T) {
	router, f := setupHandlerTest(t)
	f.createAccount(t, "ext-1", "blocked@example.com", StatusBlocked)

	rec := doRequest(router, "GET", "/users/blocked?email=blocked@example.com", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp["blocked"])

	rec = doRequest(router, "GET", "/users/blocked?email=nobody@example.com", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp["blocked"])

	rec = doRequest(router, "GET", "/users/blocked", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
