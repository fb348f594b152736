package users

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/contextkeys"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	// Accounts plus the rbac tables; the service joins across both.
	_, err = db.Exec(`
		CREATE TABLE accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			external_id TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			phone TEXT,
			avatar_key TEXT,
			status TEXT NOT NULL DEFAULT 'active',
			last_login_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			description TEXT,
			is_superuser BOOLEAN NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			key TEXT NOT NULL UNIQUE,
			resource TEXT NOT NULL,
			action TEXT NOT NULL,
			description TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE role_permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			role_id INTEGER NOT NULL,
			permission_id INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(role_id, permission_id)
		);

		CREATE TABLE role_assignments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL,
			role_id INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(account_id, role_id)
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	return db
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

type testIdentity string

func (i testIdentity) ExternalID() string { return string(i) }

func identityContext(externalID string) context.Context {
	return contextkeys.WithIdentity(context.Background(), testIdentity(externalID))
}

// fakeProvider records identity provider calls.
type fakeProvider struct {
	mu            sync.Mutex
	nextID        int
	createErr     error
	resetErr      error
	changeErr     error
	revokeErr     error
	created       []string
	resetRequests []string
	revoked       []string
}

func (p *fakeProvider) CreateUser(_ context.Context, email, _, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return "", p.createErr
	}
	p.nextID++
	p.created = append(p.created, email)
	return fmt.Sprintf("ext-%d", p.nextID), nil
}

func (p *fakeProvider) RequestPasswordReset(_ context.Context, email string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resetErr != nil {
		return p.resetErr
	}
	p.resetRequests = append(p.resetRequests, email)
	return nil
}

func (p *fakeProvider) ChangePassword(_ context.Context, _, _, _ string) error {
	return p.changeErr
}

func (p *fakeProvider) RevokeSessions(_ context.Context, externalID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.revokeErr != nil {
		return p.revokeErr
	}
	p.revoked = append(p.revoked, externalID)
	return nil
}

// fakeMailer records sent emails by template.
type fakeMailer struct {
	mu          sync.Mutex
	sendErr     error
	invitations []string
	resets      []string
}

func (m *fakeMailer) SendInvitation(_ context.Context, to, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.invitations = append(m.invitations, to)
	return nil
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, to, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.resets = append(m.resets, to)
	return nil
}

// fakeCache is a map-backed BlockedCache that counts hits.
type fakeCache struct {
	mu      sync.Mutex
	entries map[string]bool
	hits    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]bool)}
}

func (c *fakeCache) Get(_ context.Context, email string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	blocked, found := c.entries[email]
	if found {
		c.hits++
	}
	return blocked, found
}

func (c *fakeCache) Set(_ context.Context, email string, blocked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[email] = blocked
}

type fixture struct {
	service   *Service
	store     *Store
	rbacStore *rbac.Store
	guard     *rbac.Guard
	provider  *fakeProvider
	mailer    *fakeMailer
	cache     *fakeCache
	seed      *rbac.SeedResult
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	db := setupTestDB(t)
	store := NewStore(db)
	rbacStore := rbac.NewStore(db)

	seed, err := rbac.Seed(context.Background(), rbacStore, testLogger())
	require.NoError(t, err)

	guard := rbac.NewGuard(rbac.NewResolver(store, rbacStore), nil, testLogger())
	provider := &fakeProvider{}
	mailer := &fakeMailer{}
	cache := newFakeCache()

	service := NewService(store, rbacStore, guard, provider, mailer, cache, nil, testLogger())
	return &fixture{
		service:   service,
		store:     store,
		rbacStore: rbacStore,
		guard:     guard,
		provider:  provider,
		mailer:    mailer,
		cache:     cache,
		seed:      seed,
	}
}

// createAccount inserts an account directly for test setup.
func (f *fixture) createAccount(t *testing.T, externalID, email string, status Status) *Account {
	t.Helper()
	account, err := CreateAccount(context.Background(), f.store.DB(), CreateParams{
		ExternalID: externalID,
		Email:      email,
		FirstName:  "Jan",
		LastName:   "Kowalski",
		Status:     status,
	})
	require.NoError(t, err)
	return account
}
