package rbac

import (
	"time"
)

// SuperuserRoleName is the reserved role name that bypasses all permission
// checks. Matching by name is fragile if the role is ever renamed; the
// IsSuperuser flag is the durable marker and both are honored.
const SuperuserRoleName = "administrator"

// Built-in permission keys, "<resource>.<action>".
const (
	PermRBACManage = "rbac.manage"
	PermUserList   = "user.list"
	PermUserCreate = "user.create"
	PermUserUpdate = "user.update"
	PermUserDelete = "user.delete"
)

// Role is a named capability bundle.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsSuperuser bool      `json:"is_superuser"`
	CreatedAt   time.Time `json:"created_at"`
}

// Permission is an atomic capability identified by a unique key.
type Permission struct {
	ID          int64     `json:"id"`
	Key         string    `json:"key"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RoleAssignment is the account-to-role edge. At most one edge exists per
// (account, role) pair.
type RoleAssignment struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	RoleID    int64     `json:"role_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RolePermission is the role-to-permission edge. At most one edge exists
// per (role, permission) pair.
type RolePermission struct {
	ID           int64     `json:"id"`
	RoleID       int64     `json:"role_id"`
	PermissionID int64     `json:"permission_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Snapshot is the per-request authorization bundle: the resolved account
// and its effective roles and permissions. It is derived, never stored.
type Snapshot struct {
	AccountID   int64        `json:"account_id"`
	Roles       []Role       `json:"roles"`
	Permissions []Permission `json:"permissions"`
}

// IsSuperuser reports whether any held role is the unconditional superuser.
func (s *Snapshot) IsSuperuser() bool {
	for _, role := range s.Roles {
		if role.IsSuperuser || role.Name == SuperuserRoleName {
			return true
		}
	}
	return false
}

// HasPermission reports whether the effective permission set contains key.
// It does not consider the superuser bypass; that lives in the gate.
func (s *Snapshot) HasPermission(key string) bool {
	for _, perm := range s.Permissions {
		if perm.Key == key {
			return true
		}
	}
	return false
}

// RoleNames returns the names of all held roles, in assignment order.
func (s *Snapshot) RoleNames() []string {
	names := make([]string, 0, len(s.Roles))
	for _, role := range s.Roles {
		names = append(names, role.Name)
	}
	return names
}
