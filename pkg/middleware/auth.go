package middleware

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/warden/pkg/contextkeys"
	"github.com/platinummonkey/warden/pkg/identity"
	"github.com/platinummonkey/warden/pkg/observability"
)

// AuthMiddleware verifies bearer tokens and places the identity in the
// request context.
type AuthMiddleware struct {
	verifier identity.TokenVerifier
	grace    *GraceTracker
	logger   *observability.Logger
}

// NewAuthMiddleware creates the middleware. grace may be nil to disable
// the stale-token window.
func NewAuthMiddleware(verifier identity.TokenVerifier, grace *GraceTracker, logger *observability.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		grace:    grace,
		logger:   logger,
	}
}

// Middleware wraps next. Requests without a bearer token, or with one that
// fails verification outside the grace window, proceed without identity;
// the gate turns that into 401 on protected operations.
func (m *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawToken := bearerToken(r)
		if rawToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		ident, err := m.verifier.Verify(r.Context(), rawToken)
		if err != nil {
			if m.grace != nil {
				if stale, ok := m.grace.Lookup(rawToken); ok {
					m.logger.WithField("external_id", stale.ExternalID()).
						Debug("accepting recently verified token within grace window")
					next.ServeHTTP(w, r.WithContext(contextkeys.WithIdentity(r.Context(), stale)))
					return
				}
			}
			m.logger.WithError(err).Debug("bearer token rejected")
			next.ServeHTTP(w, r)
			return
		}

		if m.grace != nil {
			m.grace.Remember(rawToken, ident)
		}
		next.ServeHTTP(w, r.WithContext(contextkeys.WithIdentity(r.Context(), ident)))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
