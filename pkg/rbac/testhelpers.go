package rbac

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
)

// RequirePostgres returns a connection to the postgres instance named by
// WARDEN_TEST_POSTGRES, skipping the test when none is configured or
// reachable. Most tests run on in-memory sqlite; the postgres-gated ones
// cover the production DDL.
func RequirePostgres(t *testing.T) *sql.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}
	dsn := os.Getenv("WARDEN_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("Skipping test: WARDEN_TEST_POSTGRES not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Skipf("Failed to connect to postgres: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("Postgres not reachable: %v", err)
	}
	return db
}
