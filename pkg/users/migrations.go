package users

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/warden/pkg/rbac"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations returns the account schema migrations in order for the given
// driver.
func Migrations(driver string) []Migration {
	migrations := []Migration{
		{
			Version:     1,
			Description: "Create accounts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS accounts (
					id BIGSERIAL PRIMARY KEY,
					external_id VARCHAR(255) NOT NULL,
					email VARCHAR(255) NOT NULL,
					first_name VARCHAR(255) NOT NULL DEFAULT '',
					last_name VARCHAR(255) NOT NULL DEFAULT '',
					phone VARCHAR(64),
					avatar_key VARCHAR(512),
					status VARCHAR(32) NOT NULL DEFAULT 'active',
					last_login_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(external_id),
					UNIQUE(email)
				);

				CREATE INDEX IF NOT EXISTS idx_accounts_email ON accounts(email);
				CREATE INDEX IF NOT EXISTS idx_accounts_status ON accounts(status);
			`,
		},
	}
	for i := range migrations {
		migrations[i].SQL = rbac.DialectDDL(driver, migrations[i].SQL)
	}
	return migrations
}

// RunMigrations applies pending account migrations, tracking applied
// versions in users_schema_migrations.
func RunMigrations(ctx context.Context, db *sql.DB, driver string) error {
	_, err := db.ExecContext(ctx, rbac.DialectDDL(driver, `
		CREATE TABLE IF NOT EXISTS users_schema_migrations (
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
			`SELECT COUNT(*) FROM users_schema_migrations WHERE version = $1`, m.Version,
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
			`INSERT INTO users_schema_migrations (version) VALUES ($1)`, m.Version,
		); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
	}

	return nil
}
