package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/contextkeys"
	"github.com/platinummonkey/warden/pkg/identity"
	"github.com/platinummonkey/warden/pkg/observability"
)

// fakeVerifier accepts tokens listed in valid.
type fakeVerifier struct {
	valid map[string]*identity.Identity
}

func (v *fakeVerifier) Verify(_ context.Context, rawToken string) (*identity.Identity, error) {
	if ident, ok := v.valid[rawToken]; ok {
		return ident, nil
	}
	return nil, identity.ErrInvalidToken
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

// identityProbe returns a handler capturing the context identity.
func identityProbe(got **identity.Identity) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ident, ok := r.Context().Value(contextkeys.IdentityKey).(*identity.Identity); ok {
			*got = ident
		}
		w.WriteHeader(http.StatusOK)
	})
}

func doAuth(t *testing.T, m *AuthMiddleware, authorization string) *identity.Identity {
	t.Helper()
	var got *identity.Identity
	req := httptest.NewRequest("GET", "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	m.Middleware(identityProbe(&got)).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	return got
}

func TestAuthMiddlewareSetsIdentity(t *testing.T) {
	verifier := &fakeVerifier{valid: map[string]*identity.Identity{
		"good-token": {Subject: "idp-1", Email: "jan@example.com"},
	}}
	m := NewAuthMiddleware(verifier, nil, testLogger())

	got := doAuth(t, m, "Bearer good-token")
	require.NotNil(t, got)
	assert.Equal(t, "idp-1", got.ExternalID())
}

func TestAuthMiddlewarePassesThroughWithoutToken(t *testing.T) {
	m := NewAuthMiddleware(&fakeVerifier{}, nil, testLogger())

	assert.Nil(t, doAuth(t, m, ""))
	assert.Nil(t, doAuth(t, m, "Basic dXNlcjpwYXNz"))
	assert.Nil(t, doAuth(t, m, "Bearer bad-token"))
}

func TestGraceWindowAcceptsRecentlyVerifiedToken(t *testing.T) {
	verifier := &fakeVerifier{valid: map[string]*identity.Identity{
		"rotating-token": {Subject: "idp-1"},
	}}
	grace := NewGraceTracker(time.Minute)
	m := NewAuthMiddleware(verifier, grace, testLogger())

	// First request verifies and is remembered.
	require.NotNil(t, doAuth(t, m, "Bearer rotating-token"))

	// The provider rotates the session; verification now fails, but the
	// grace window keeps the request authenticated.
	delete(verifier.valid, "rotating-token")
	got := doAuth(t, m, "Bearer rotating-token")
	require.NotNil(t, got)
	assert.Equal(t, "idp-1", got.ExternalID())

	// A token never seen before gets no grace.
	assert.Nil(t, doAuth(t, m, "Bearer unseen-token"))
}

func TestGraceWindowExpires(t *testing.T) {
	verifier := &fakeVerifier{valid: map[string]*identity.Identity{
		"rotating-token": {Subject: "idp-1"},
	}}
	grace := NewGraceTracker(50 * time.Millisecond)
	m := NewAuthMiddleware(verifier, grace, testLogger())

	require.NotNil(t, doAuth(t, m, "Bearer rotating-token"))
	delete(verifier.valid, "rotating-token")

	time.Sleep(120 * time.Millisecond)
	assert.Nil(t, doAuth(t, m, "Bearer rotating-token"))
}

func TestGraceTrackerDefaults(t *testing.T) {
	assert.Equal(t, DefaultGraceWindow, NewGraceTracker(0).Window())
	assert.Equal(t, time.Second, NewGraceTracker(time.Second).Window())
}
