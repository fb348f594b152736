package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// DialectDDL adapts the postgres DDL the migrations are written in to the
// given driver. Only the fragments the supported dialects disagree on are
// rewritten; postgres DDL passes through untouched.
func DialectDDL(driver, ddl string) string {
	if driver != "sqlite3" {
		return ddl
	}
	return strings.NewReplacer(
		"BIGSERIAL PRIMARY KEY", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"DEFAULT NOW()", "DEFAULT CURRENT_TIMESTAMP",
	).Replace(ddl)
}

// Migrations returns the RBAC schema migrations in order for the given
// driver. Account tables live in pkg/users; role_assignments references
// them by id without a foreign key so the two schemas can migrate
// independently.
func Migrations(driver string) []Migration {
	migrations := []Migration{
		{
			Version:     1,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					is_superuser BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(name)
				);

				CREATE INDEX IF NOT EXISTS idx_roles_name ON roles(name);
			`,
		},
		{
			Version:     2,
			Description: "Create permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					id BIGSERIAL PRIMARY KEY,
					key VARCHAR(255) NOT NULL,
					resource VARCHAR(255) NOT NULL,
					action VARCHAR(255) NOT NULL,
					description TEXT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(key)
				);

				CREATE INDEX IF NOT EXISTS idx_permissions_resource ON permissions(resource);
			`,
		},
		{
			Version:     3,
			Description: "Create role_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_permissions (
					id BIGSERIAL PRIMARY KEY,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(role_id, permission_id)
				);

				CREATE INDEX IF NOT EXISTS idx_role_permissions_role_id ON role_permissions(role_id);
			`,
		},
		{
			Version:     4,
			Description: "Create role_assignments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_assignments (
					id BIGSERIAL PRIMARY KEY,
					account_id BIGINT NOT NULL,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(account_id, role_id)
				);

				CREATE INDEX IF NOT EXISTS idx_role_assignments_account_id ON role_assignments(account_id);
			`,
		},
	}
	for i := range migrations {
		migrations[i].SQL = DialectDDL(driver, migrations[i].SQL)
	}
	return migrations
}

// RunMigrations applies pending RBAC migrations, tracking applied versions
// in rbac_schema_migrations.
func RunMigrations(ctx context.Context, db *sql.DB, driver string) error {
	_, err := db.ExecContext(ctx, DialectDDL(driver, `
		CREATE TABLE IF NOT EXISTS rbac_schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`))
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, m := range Migrations(driver) {
		var applied int
		err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM rbac_schema_migrations WHERE version = $1`, m.Version,
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("failed to check migration %d: %w", m.Version, err)
		}
		if applied > 0 {
			continue
		}

		if _, err := db.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO rbac_schema_migrations (version) VALUES ($1)`, m.Version,
		); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
	}

	return nil
}
