package users

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/identity"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
)

// httpStatus extends the gate's error mapping with the failure values this
// package introduces.
func httpStatus(err error) int {
	switch {
	case IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrEmailExists), errors.Is(err, ErrInvalidTransition),
		errors.Is(err, identity.ErrIdentityExists):
		return http.StatusConflict
	case errors.Is(err, ErrBlocked), errors.Is(err, identity.ErrWrongPassword):
		return http.StatusForbidden
	case errors.Is(err, ErrDispatchFailed):
		return http.StatusBadGateway
	default:
		return rbac.HTTPStatus(err)
	}
}

// Handler serves the user administration and self-service endpoints.
type Handler struct {
	service *Service
	guard   rbac.Authorizer
	logger  *observability.Logger
}

// NewHandler creates a users API handler.
func NewHandler(service *Service, guard rbac.Authorizer, logger *observability.Logger) *Handler {
	return &Handler{
		service: service,
		guard:   guard,
		logger:  logger,
	}
}

// RegisterRoutes registers user routes on the router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users", h.listUsers).Methods("GET")
	router.HandleFunc("/users/invite", h.inviteUser).Methods("POST")
	router.HandleFunc("/users/blocked", h.isBlockedByEmail).Methods("GET")
	router.HandleFunc("/users/{id:[0-9]+}/status", h.updateStatus).Methods("PATCH")
	router.HandleFunc("/users/{id:[0-9]+}/resend-invitation", h.resendInvitation).Methods("POST")
	router.HandleFunc("/me", h.profile).Methods("GET")
	router.HandleFunc("/me/password", h.changePassword).Methods("POST")
	router.HandleFunc("/me/rbac", h.myRBAC).Methods("GET")
}

type listUsersArgs struct {
	limit  int
	offset int
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	op := rbac.Operation[listUsersArgs, []UserWithRoles]{
		Name:       "listUsers",
		Permission: rbac.PermUserList,
		Handler: func(ctx context.Context, args listUsersArgs, _ *rbac.Snapshot) ([]UserWithRoles, error) {
			return h.service.ListUsers(ctx, args.limit, args.offset)
		},
	}
	users, err := rbac.Query(r.Context(), h.guard, op, listUsersArgs{
		limit:  httputil.ParseQueryInt(r, "limit", 50),
		offset: httputil.ParseQueryInt(r, "offset", 0),
	})
	if err != nil {
		httputil.WriteError(w, httpStatus(err), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

func (h *Handler) inviteUser(w http.ResponseWriter, r *http.Request) {
	var params InviteParams
	if !httputil.ParseJSONOrError(w, r, &params) {
		return
	}

	op := rbac.Operation[InviteParams, *InviteResult]{
		Name:       "inviteUser",
		Permission: rbac.PermUserCreate,
		Handler: func(ctx context.Context, p InviteParams, _ *rbac.Snapshot) (*InviteResult, error) {
			return h.service.Invite(ctx, p)
		},
	}
	result, err := rbac.Mutation(r.Context(), h.guard, op, params)
	if err != nil {
		httputil.WriteError(w, httpStatus(err), err)
		return
	}
	httputil.WriteCreated(w, result)
}

func (h *Handler) resendInvitation(w http.ResponseWriter, r *http.Request) {
	accountID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid account id")
		return
	}

	op := rbac.Operation[int64, struct{}]{
		Name:       "resendInvitation",
		Permission: rbac.PermUserCreate,
		Handler: func(ctx context.Context, id int64, _ *rbac.Snapshot) (struct{}, error) {
			return struct{}{}, h.service.ResendInvitation(ctx, id)
		},
	}
	if _, err := rbac.Mutation(r.Context(), h.guard, op, accountID); err != nil {
		httputil.WriteError(w, httpStatus(err), err)
		return
	}
	httputil.WriteNoContent(w)
}

type updateStatusRequest struct {
	Status Status `json:"status"`
}

type updateStatusArgs struct {
	accountID int64
	target    Status
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	accountID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid account id")
		return
	}
	var req updateStatusRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	op := rbac.Operation[updateStatusArgs, *Account]{
		Name:       "updateUserStatus",
		Permission: rbac.PermUserUpdate,
		Handler: func(ctx context.Context, args updateStatusArgs, snap *rbac.Snapshot) (*Account, error) {
			return h.service.UpdateStatus(ctx, snap, args.accountID, args.target)
		},
	}
	account, err := rbac.Mutation(r.Context(), h.guard, op, updateStatusArgs{
		accountID: accountID,
		target:    req.Status,
	})
	if err != nil {
		httputil.WriteError(w, httpStatus(err), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, account)
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	op := rbac.Operation[struct{}, *Account]{
		Name: "getCurrentUserProfile",
		Handler: func(ctx context.Context, _ struct{}, snap *rbac.Snapshot) (*Account, error) {
			return h.service.Profile(ctx, snap.AccountID)
		},
	}
	account, err := rbac.Query(r.Context(), h.guard, op, struct{}{})
	if err != nil {
		httputil.WriteError(w, httpStatus(err), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, account)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	op := rbac.Operation[changePasswordRequest, struct{}]{
		Name: "changePassword",
		Handler: func(ctx context.Context, args changePasswordRequest, snap *rbac.Snapshot) (struct{}, error) {
			return struct{}{}, h.service.ChangePassword(ctx, snap.AccountID, args.CurrentPassword, args.NewPassword)
		},
	}
	if _, err := rbac.Mutation(r.Context(), h.guard, op, req); err != nil {
		httputil.WriteError(w, httpStatus(err), err)
		return
	}
	httputil.WriteNoContent(w)
}

// myRBAC and isBlockedByEmail are deliberately outside the gate: both are
// part of the unauthenticated pre-sign-in surface.

func (h *Handler) myRBAC(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.MyRBAC(r.Context())
	if err != nil {
		httputil.WriteError(w, httpStatus(err), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, info)
}

func (h *Handler) isBlockedByEmail(w http.ResponseWriter, r *http.Request) {
	email := httputil.ParseQueryString(r, "email", "")
	if email == "" {
		httputil.WriteBadRequest(w, "email is required")
		return
	}

	blocked, err := h.service.IsBlockedByEmail(r.Context(), email)
	if err != nil {
		httputil.WriteError(w, httpStatus(err), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"blocked": blocked})
}
