package rbac

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/observability"
)

// HTTPStatus maps gate and store errors to HTTP status codes. Shared by
// every handler package that runs operations behind the gate.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAccountNotProvisioned):
		return http.StatusForbidden
	case IsForbidden(err):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Handler serves the role and permission administration endpoints.
type Handler struct {
	store  *Store
	guard  Authorizer
	logger *observability.Logger
}

// NewHandler creates an RBAC API handler.
func NewHandler(store *Store, guard Authorizer, logger *observability.Logger) *Handler {
	return &Handler{
		store:  store,
		guard:  guard,
		logger: logger,
	}
}

// RegisterRoutes registers RBAC routes on the router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/rbac/roles", h.listRoles).Methods("GET")
	router.HandleFunc("/rbac/roles/invitable", h.listInvitableRoles).Methods("GET")
	router.HandleFunc("/rbac/roles/{id:[0-9]+}/permissions", h.getRolePermissions).Methods("GET")
	router.HandleFunc("/rbac/permissions", h.listPermissions).Methods("GET")
	router.HandleFunc("/rbac/users/{id:[0-9]+}/roles", h.assignRole).Methods("POST")
	router.HandleFunc("/rbac/users/{id:[0-9]+}/roles/{roleID:[0-9]+}", h.removeRole).Methods("DELETE")
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	op := Operation[struct{}, []Role]{
		Name:       "listRoles",
		Permission: PermRBACManage,
		Handler: func(ctx context.Context, _ struct{}, _ *Snapshot) ([]Role, error) {
			return h.store.ListRoles(ctx)
		},
	}
	roles, err := Query(r.Context(), h.guard, op, struct{}{})
	if err != nil {
		httputil.WriteError(w, HTTPStatus(err), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"roles": roles})
}

// listInvitableRoles returns the full role list but requires only the
// invitation permission, so an inviter can populate a role picker without
// holding rbac.manage.
func (h *Handler) listInvitableRoles(w http.ResponseWriter, r *http.Request) {
	op := Operation[struct{}, []Role]{
		Name:       "listInvitableRoles",
		Permission: PermUserCreate,
		Handler: func(ctx context.Context, _ struct{}, _ *Snapshot) ([]Role, error) {
			return h.store.ListRoles(ctx)
		},
	}
	roles, err := Query(r.Context(), h.guard, op, struct{}{})
	if err != nil {
		httputil.WriteError(w, HTTPStatus(err), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"roles": roles})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	op := Operation[struct{}, []Permission]{
		Name:       "listPermissions",
		Permission: PermRBACManage,
		Handler: func(ctx context.Context, _ struct{}, _ *Snapshot) ([]Permission, error) {
			return h.store.ListPermissions(ctx)
		},
	}
	perms, err := Query(r.Context(), h.guard, op, struct{}{})
	if err != nil {
		httputil.WriteError(w, HTTPStatus(err), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"permissions": perms})
}

func (h *Handler) getRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid role id")
		return
	}

	op := Operation[int64, []int64]{
		Name:       "getRolePermissions",
		Permission: PermRBACManage,
		Handler: func(ctx context.Context, id int64, _ *Snapshot) ([]int64, error) {
			if _, err := h.store.GetRole(ctx, id); err != nil {
				return nil, err
			}
			return h.store.RolePermissionIDs(ctx, id)
		},
	}
	ids, err := Query(r.Context(), h.guard, op, roleID)
	if err != nil {
		httputil.WriteError(w, HTTPStatus(err), err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"permission_ids": ids})
}

type assignRoleRequest struct {
	RoleID int64 `json:"role_id"`
}

type roleEdgeArgs struct {
	AccountID int64
	RoleID    int64
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	accountID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid account id")
		return
	}
	var req assignRoleRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, "invalid request body")
		return
	}
	if req.RoleID == 0 {
		httputil.WriteBadRequest(w, "role_id is required")
		return
	}

	op := Operation[roleEdgeArgs, struct{}]{
		Name:       "assignRole",
		Permission: PermRBACManage,
		Handler: func(ctx context.Context, args roleEdgeArgs, _ *Snapshot) (struct{}, error) {
			if _, err := h.store.GetRole(ctx, args.RoleID); err != nil {
				return struct{}{}, err
			}
			return struct{}{}, h.store.AssignRoleToAccount(ctx, args.AccountID, args.RoleID)
		},
	}
	if _, err := Mutation(r.Context(), h.guard, op, roleEdgeArgs{AccountID: accountID, RoleID: req.RoleID}); err != nil {
		httputil.WriteError(w, HTTPStatus(err), err)
		return
	}
	httputil.WriteJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	accountID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid account id")
		return
	}
	roleID, err := httputil.ParsePathInt64(r, "roleID")
	if err != nil {
		httputil.WriteBadRequest(w, "invalid role id")
		return
	}

	op := Operation[roleEdgeArgs, struct{}]{
		Name:       "removeRole",
		Permission: PermRBACManage,
		Handler: func(ctx context.Context, args roleEdgeArgs, _ *Snapshot) (struct{}, error) {
			return struct{}{}, h.store.RemoveRoleFromAccount(ctx, args.AccountID, args.RoleID)
		},
	}
	if _, err := Mutation(r.Context(), h.guard, op, roleEdgeArgs{AccountID: accountID, RoleID: roleID}); err != nil {
		httputil.WriteError(w, HTTPStatus(err), err)
		return
	}
	httputil.WriteJSON(w, http.StatusNoContent, nil)
}
