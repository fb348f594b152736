package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Querier is the subset of database operations the store needs. Both
// *sql.DB and *sql.Tx satisfy it, so edge inserts can participate in a
// caller-owned transaction.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Store handles RBAC data persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for callers that open transactions
// spanning this store and others.
func (s *Store) DB() *sql.DB {
	return s.db
}

const roleColumns = "id, name, description, is_superuser, created_at"

func scanRole(scanner interface{ Scan(dest ...interface{}) error }) (*Role, error) {
	var role Role
	var description sql.NullString
	err := scanner.Scan(&role.ID, &role.Name, &description, &role.IsSuperuser, &role.CreatedAt)
	if err != nil {
		return nil, err
	}
	role.Description = description.String
	return &role, nil
}

const permissionColumns = "id, key, resource, action, description, created_at"

func scanPermission(scanner interface{ Scan(dest ...interface{}) error }) (*Permission, error) {
	var perm Permission
	var description sql.NullString
	err := scanner.Scan(&perm.ID, &perm.Key, &perm.Resource, &perm.Action, &description, &perm.CreatedAt)
	if err != nil {
		return nil, err
	}
	perm.Description = description.String
	return &perm, nil
}

// CreateRole creates a role, or returns the existing role's id when one
// with the same name already exists (idempotent by name).
func (s *Store) CreateRole(ctx context.Context, name, description string, isSuperuser bool) (int64, error) {
	existing, err := s.GetRoleByName(ctx, name)
	if err == nil {
		return existing.ID, nil
	}
	if !isNotFound(err) {
		return 0, err
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO roles (name, description, is_superuser)
		VALUES ($1, $2, $3)
		RETURNING id
	`, name, nullable(description), isSuperuser).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create role %q: %w", name, err)
	}
	return id, nil
}

// GetRole retrieves a role by id.
func (s *Store) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, roleID)
	role, err := scanRole(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %d: %w", roleID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// GetRoleByName retrieves a role by its unique name.
func (s *Store) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`, name)
	role, err := scanRole(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("role %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// ListRoles returns all roles ordered by id.
func (s *Store) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	roles := make([]Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, *role)
	}
	return roles, rows.Err()
}

// CreatePermission creates a permission, or returns the existing id when
// one with the same key already exists (idempotent by key).
func (s *Store) CreatePermission(ctx context.Context, key, resource, action, description string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM permissions WHERE key = $1`, key).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to check permission %q: %w", key, err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO permissions (key, resource, action, description)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, key, resource, action, nullable(description)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create permission %q: %w", key, err)
	}
	return id, nil
}

// ListPermissions returns all permissions ordered by id.
func (s *Store) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	perms := make([]Permission, 0)
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, *perm)
	}
	return perms, rows.Err()
}

// RolePermissionIDs returns the ids of permissions granted to a role, in
// grant order. A role with no grants yields an empty slice, not an error.
func (s *Store) RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT permission_id FROM role_permissions WHERE role_id = $1 ORDER BY id
	`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role permissions: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan permission id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AssignPermissionToRole creates a role→permission edge if absent.
func (s *Store) AssignPermissionToRole(ctx context.Context, roleID, permissionID int64) error {
	var existing int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM role_permissions WHERE role_id = $1 AND permission_id = $2
	`, roleID, permissionID).Scan(&existing)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check role permission: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
	`, roleID, permissionID)
	if err != nil {
		return fmt.Errorf("failed to assign permission to role: %w", err)
	}
	return nil
}

// AssignRoleToAccount creates an account→role edge if absent.
func (s *Store) AssignRoleToAccount(ctx context.Context, accountID, roleID int64) error {
	return AssignRole(ctx, s.db, accountID, roleID)
}

// AssignRole creates an account→role edge if absent, against any Querier
// so the insert can ride a caller-owned transaction (the invitation flow
// creates the account and its first role assignment atomically).
func AssignRole(ctx context.Context, q Querier, accountID, roleID int64) error {
	var existing int64
	err := q.QueryRowContext(ctx, `
		SELECT id FROM role_assignments WHERE account_id = $1 AND role_id = $2
	`, accountID, roleID).Scan(&existing)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check role assignment: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO role_assignments (account_id, role_id) VALUES ($1, $2)
	`, accountID, roleID)
	if err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

// RemoveRoleFromAccount deletes the account→role edge. Removing an edge
// that does not exist is not an error.
func (s *Store) RemoveRoleFromAccount(ctx context.Context, accountID, roleID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM role_assignments WHERE account_id = $1 AND role_id = $2
	`, accountID, roleID)
	if err != nil {
		return fmt.Errorf("failed to remove role: %w", err)
	}
	return nil
}

// RolesForAccount returns the roles assigned to an account, in assignment
// order. The join naturally skips assignment edges whose role has been
// deleted.
func (s *Store) RolesForAccount(ctx context.Context, accountID int64) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, r.description, r.is_superuser, r.created_at
		FROM roles r
		JOIN role_assignments ra ON ra.role_id = r.id
		WHERE ra.account_id = $1
		ORDER BY ra.id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles for account: %w", err)
	}
	defer rows.Close()

	roles := make([]Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, *role)
	}
	return roles, rows.Err()
}

// PermissionsForRoles returns the union of permissions across the given
// roles, deduplicated by permission id and ordered by id. An empty role
// set yields an empty slice.
func (s *Store) PermissionsForRoles(ctx context.Context, roleIDs []int64) ([]Permission, error) {
	perms := make([]Permission, 0)
	if len(roleIDs) == 0 {
		return perms, nil
	}

	placeholders := make([]string, len(roleIDs))
	args := make([]interface{}, len(roleIDs))
	for i, id := range roleIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT p.id, p.key, p.resource, p.action, p.description, p.created_at
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id IN (%s)
		ORDER BY p.id
	`, strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions for roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, *perm)
	}
	return perms, rows.Err()
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
