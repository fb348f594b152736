package api

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/users"
)

// HookSecretHeader carries the shared secret on provider hook calls.
const HookSecretHeader = "X-Warden-Hook-Secret"

// hookSecretMiddleware authenticates hook calls with a constant-time
// comparison. An unset secret closes the endpoints entirely rather than
// leaving them open.
func hookSecretMiddleware(secret string, logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				logger.Warn("hook endpoint called but no hook secret is configured")
				httputil.WriteForbidden(w, "hooks are not configured")
				return
			}
			got := r.Header.Get(HookSecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				logger.WithField("path", r.URL.Path).Warn("hook call with bad secret rejected")
				httputil.WriteForbidden(w, "invalid hook secret")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func registerHookRoutes(router *mux.Router, service *users.Service) {
	h := &hookHandler{service: service}
	router.HandleFunc("/before-sign-in", h.beforeSignIn).Methods("POST")
	router.HandleFunc("/after-sign-in", h.afterSignIn).Methods("POST")
	router.HandleFunc("/reset-dispatch", h.resetDispatch).Methods("POST")
	router.HandleFunc("/reset-completed", h.resetCompleted).Methods("POST")
}

type hookHandler struct {
	service *users.Service
}

func hookStatus(err error) int {
	if errors.Is(err, users.ErrBlocked) {
		return http.StatusForbidden
	}
	return rbac.HTTPStatus(err)
}

type emailHookRequest struct {
	Email string `json:"email"`
}

type subjectHookRequest struct {
	ExternalID string `json:"external_id"`
}

type resetDispatchRequest struct {
	Email string `json:"email"`
	Link  string `json:"link"`
}

// beforeSignIn is the pre-credential guard. The provider shows the error
// message verbatim, so a blocked account gets the human-readable refusal.
func (h *hookHandler) beforeSignIn(w http.ResponseWriter, r *http.Request) {
	var req emailHookRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" {
		httputil.WriteBadRequest(w, "email is required")
		return
	}
	if err := h.service.BeforeSignIn(r.Context(), req.Email); err != nil {
		httputil.WriteError(w, hookStatus(err), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"allowed": true})
}

// afterSignIn acknowledges immediately; the last-login stamp runs detached.
func (h *hookHandler) afterSignIn(w http.ResponseWriter, r *http.Request) {
	var req subjectHookRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.ExternalID == "" {
		httputil.WriteBadRequest(w, "external_id is required")
		return
	}
	h.service.AfterSignIn(r.Context(), req.ExternalID)
	httputil.WriteJSON(w, http.StatusAccepted, nil)
}

func (h *hookHandler) resetDispatch(w http.ResponseWriter, r *http.Request) {
	var req resetDispatchRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" || req.Link == "" {
		httputil.WriteBadRequest(w, "email and link are required")
		return
	}
	if err := h.service.DispatchPasswordReset(r.Context(), req.Email, req.Link); err != nil {
		httputil.WriteError(w, hookStatus(err), err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *hookHandler) resetCompleted(w http.ResponseWriter, r *http.Request) {
	var req subjectHookRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.ExternalID == "" {
		httputil.WriteBadRequest(w, "external_id is required")
		return
	}
	if err := h.service.CompletePasswordReset(r.Context(), req.ExternalID); err != nil {
		httputil.WriteError(w, hookStatus(err), err)
		return
	}
	httputil.WriteNoContent(w)
}
