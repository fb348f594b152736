package rbac

import (
	"context"
	"fmt"

	"github.com/platinummonkey/warden/pkg/observability"
)

// SeedResult reports what the seed routine created or found.
type SeedResult struct {
	RoleIDs       map[string]int64
	PermissionIDs map[string]int64
}

type seedPermission struct {
	key         string
	resource    string
	action      string
	description string
}

var builtinPermissions = []seedPermission{
	{PermRBACManage, "rbac", "manage", "Manage roles, permissions and assignments"},
	{PermUserList, "user", "list", "List user accounts"},
	{PermUserCreate, "user", "create", "Invite and create user accounts"},
	{PermUserUpdate, "user", "update", "Update user accounts and their status"},
	{PermUserDelete, "user", "delete", "Delete user accounts"},
}

// Seed ensures the built-in roles and permissions exist. It is idempotent:
// every create is keyed by name or key, so running it on every startup is
// safe and picks up newly added built-ins.
//
// The administrator role is created with the superuser flag and no explicit
// grants; the gate's bypass makes grants redundant for it. The user role
// gets user.list so a freshly invited account can see the member list.
func Seed(ctx context.Context, store *Store, logger *observability.Logger) (*SeedResult, error) {
	result := &SeedResult{
		RoleIDs:       make(map[string]int64),
		PermissionIDs: make(map[string]int64),
	}

	adminID, err := store.CreateRole(ctx, SuperuserRoleName, "Full access to every operation", true)
	if err != nil {
		return nil, fmt.Errorf("failed to seed administrator role: %w", err)
	}
	result.RoleIDs[SuperuserRoleName] = adminID

	userID, err := store.CreateRole(ctx, "user", "Standard member access", false)
	if err != nil {
		return nil, fmt.Errorf("failed to seed user role: %w", err)
	}
	result.RoleIDs["user"] = userID

	for _, p := range builtinPermissions {
		id, err := store.CreatePermission(ctx, p.key, p.resource, p.action, p.description)
		if err != nil {
			return nil, fmt.Errorf("failed to seed permission %q: %w", p.key, err)
		}
		result.PermissionIDs[p.key] = id
	}

	if err := store.AssignPermissionToRole(ctx, userID, result.PermissionIDs[PermUserList]); err != nil {
		return nil, fmt.Errorf("failed to grant %s to user role: %w", PermUserList, err)
	}

	logger.WithFields(map[string]interface{}{
		"roles":       len(result.RoleIDs),
		"permissions": len(result.PermissionIDs),
	}).Info("RBAC seed complete")

	return result, nil
}
