package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/identity"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/platinummonkey/warden/pkg/storage"
	"github.com/platinummonkey/warden/pkg/users"
)

const testHookSecret = "hook-secret"

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

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
	require.NoError(t, err)

	return db
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

// fakeVerifier accepts the tokens listed in valid.
type fakeVerifier struct {
	valid map[string]*identity.Identity
}

func (v *fakeVerifier) Verify(_ context.Context, rawToken string) (*identity.Identity, error) {
	if ident, ok := v.valid[rawToken]; ok {
		return ident, nil
	}
	return nil, identity.ErrInvalidToken
}

type fakeProvider struct {
	mu      sync.Mutex
	nextID  int
	revoked []string
}

func (p *fakeProvider) CreateUser(_ context.Context, email, _, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	return fmt.Sprintf("ext-%d", p.nextID), nil
}

func (p *fakeProvider) RequestPasswordReset(context.Context, string) error { return nil }

func (p *fakeProvider) ChangePassword(context.Context, string, string, string) error { return nil }

func (p *fakeProvider) RevokeSessions(_ context.Context, externalID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked = append(p.revoked, externalID)
	return nil
}

func (p *fakeProvider) revokedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.revoked...)
}

type fakeMailer struct {
	mu          sync.Mutex
	invitations []string
	resets      []string
}

func (m *fakeMailer) SendInvitation(_ context.Context, to, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invitations = append(m.invitations, to)
	return nil
}

func (m *fakeMailer) SendPasswordReset(_ context.Context, to, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets = append(m.resets, to)
	return nil
}

type apiFixture struct {
	server    *Server
	db        *sql.DB
	accounts  *users.Store
	rbacStore *rbac.Store
	service   *users.Service
	provider  *fakeProvider
	mailer    *fakeMailer
	verifier  *fakeVerifier
	seed      *rbac.SeedResult
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()

	db := setupTestDB(t)
	accounts := users.NewStore(db)
	rbacStore := rbac.NewStore(db)
	logger := testLogger()

	seed, err := rbac.Seed(context.Background(), rbacStore, logger)
	require.NoError(t, err)

	guard := rbac.NewGuard(rbac.NewResolver(accounts, rbacStore), nil, logger)
	provider := &fakeProvider{}
	mailer := &fakeMailer{}
	service := users.NewService(accounts, rbacStore, guard, provider, mailer, nil, nil, logger)

	blobs, err := storage.NewFileSystemStore(t.TempDir())
	require.NoError(t, err)

	verifier := &fakeVerifier{valid: make(map[string]*identity.Identity)}
	auth := middleware.NewAuthMiddleware(verifier, middleware.NewGraceTracker(0), logger)

	server := NewServer(Config{
		Addr:       "127.0.0.1:0",
		HookSecret: testHookSecret,
	}, Dependencies{
		Guard:    guard,
		RBAC:     rbac.NewHandler(rbacStore, guard, logger),
		Users:    users.NewHandler(service, guard, logger),
		Service:  service,
		Accounts: accounts,
		Blobs:    blobs,
		Auth:     auth,
		Health:   observability.NewHealthChecker(db, nil),
		Logger:   logger,
	})

	return &apiFixture{
		server:    server,
		db:        db,
		accounts:  accounts,
		rbacStore: rbacStore,
		service:   service,
		provider:  provider,
		mailer:    mailer,
		verifier:  verifier,
		seed:      seed,
	}
}

// addAccount inserts an account and registers a bearer token for it.
func (f *apiFixture) addAccount(t *testing.T, externalID, email string, status users.Status) *users.Account {
	t.Helper()
	account, err := users.CreateAccount(context.Background(), f.db, users.CreateParams{
		ExternalID: externalID,
		Email:      email,
		FirstName:  "Jan",
		LastName:   "Kowalski",
		Status:     status,
	})
	require.NoError(t, err)
	f.verifier.valid["token-"+externalID] = &identity.Identity{Subject: externalID, Email: email}
	return account
}

func (f *apiFixture) grantRole(t *testing.T, accountID int64, roleName string) {
	t.Helper()
	roleID, ok := f.seed.RoleIDs[roleName]
	require.True(t, ok, "unknown seeded role %q", roleName)
	require.NoError(t, f.rbacStore.AssignRoleToAccount(context.Background(), accountID, roleID))
}

type requestOptions struct {
	token      string
	hookSecret string
	body       interface{}
	rawBody    []byte
	headers    map[string]string
}

func (f *apiFixture) do(t *testing.T, method, path string, opts requestOptions) *httptest.ResponseRecorder {
	t.Helper()

	var body io.Reader
	switch {
	case opts.rawBody != nil:
		body = bytes.NewReader(opts.rawBody)
	case opts.body != nil:
		encoded, err := json.Marshal(opts.body)
		require.NoError(t, err)
		body = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, body)
	if opts.token != "" {
		req.Header.Set("Authorization", "Bearer "+opts.token)
	}
	if opts.hookSecret != "" {
		req.Header.Set(HookSecretHeader, opts.hookSecret)
	}
	for k, v := range opts.headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest), "body: %s", rec.Body.String())
}
