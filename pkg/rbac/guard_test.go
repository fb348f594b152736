package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/contextkeys"
	"github.com/platinummonkey/warden/pkg/observability"
)

type testIdentity string

func (i testIdentity) ExternalID() string { return string(i) }

func identityContext(externalID string) context.Context {
	return contextkeys.WithIdentity(context.Background(), testIdentity(externalID))
}

// guardFixture builds a guard over a seeded sqlite store with one
// administrator (account 1, ext-admin) and one plain user (account 2,
// ext-user) holding user.list.
func guardFixture(t *testing.T) (*Guard, *Store) {
	t.Helper()

	db := setupTestDB(t)
	store := NewStore(db)
	ctx := context.Background()

	result, err := Seed(ctx, store, testLogger())
	require.NoError(t, err)

	require.NoError(t, store.AssignRoleToAccount(ctx, 1, result.RoleIDs[SuperuserRoleName]))
	require.NoError(t, store.AssignRoleToAccount(ctx, 2, result.RoleIDs["user"]))

	directory := fakeDirectory{"ext-admin": 1, "ext-user": 2}
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	guard := NewGuard(NewResolver(directory, store), metrics, testLogger())
	return guard, store
}

func TestAuthorizeUnauthenticated(t *testing.T) {
	guard, _ := guardFixture(t)

	_, err := guard.Authorize(context.Background(), PermUserList)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestAuthorizeUnprovisioned(t *testing.T) {
	guard, _ := guardFixture(t)

	_, err := guard.Authorize(identityContext("ext-stranger"), PermUserList)
	assert.ErrorIs(t, err, ErrAccountNotProvisioned)
}

func TestAuthorizeGrantedPermission(t *testing.T) {
	guard, _ := guardFixture(t)

	snap, err := guard.Authorize(identityContext("ext-user"), PermUserList)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.AccountID)
}

func TestAuthorizeMissingPermission(t *testing.T) {
	guard, _ := guardFixture(t)

	_, err := guard.Authorize(identityContext("ext-user"), PermUserDelete)
	require.Error(t, err)
	assert.True(t, IsForbidden(err))

	var pe *PermissionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, PermUserDelete, pe.Permission)
	assert.Equal(t, `forbidden: missing permission "user.delete"`, err.Error())
}

func TestAuthorizeSuperuserBypassesChecks(t *testing.T) {
	guard, _ := guardFixture(t)
	ctx := identityContext("ext-admin")

	for _, perm := range []string{PermRBACManage, PermUserDelete, "totally.made.up"} {
		snap, err := guard.Authorize(ctx, perm)
		require.NoError(t, err, "permission %s", perm)
		assert.True(t, snap.IsSuperuser())
	}
}

func TestAuthorizeSuperuserStillNeedsAccount(t *testing.T) {
	db := setupTestDB(t)
	store := NewStore(db)
	guard := NewGuard(NewResolver(fakeDirectory{}, store), nil, testLogger())

	// A verified identity with no account record fails before any role or
	// permission logic runs.
	_, err := guard.Authorize(identityContext("ext-admin"), PermRBACManage)
	assert.ErrorIs(t, err, ErrAccountNotProvisioned)
}

func TestAuthorizeEmptyPermission(t *testing.T) {
	guard, _ := guardFixture(t)

	snap, err := guard.Authorize(identityContext("ext-user"), "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.AccountID)
}

func TestSecuredOperationsShareTheGate(t *testing.T) {
	guard, _ := guardFixture(t)

	doubled := Operation[int, int]{
		Name:       "double",
		Permission: PermUserList,
		Handler: func(_ context.Context, n int, snap *Snapshot) (int, error) {
			require.NotNil(t, snap)
			return n * 2, nil
		},
	}

	got, err := Query(identityContext("ext-user"), guard, doubled, 21)
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	got, err = Mutation(identityContext("ext-user"), guard, doubled, 3)
	require.NoError(t, err)
	assert.Equal(t, 6, got)

	got, err = Action(identityContext("ext-user"), guard, doubled, 5)
	require.NoError(t, err)
	assert.Equal(t, 10, got)

	// Denied callers never reach the handler.
	forbidden := Operation[int, int]{
		Name:       "forbidden",
		Permission: PermUserDelete,
		Handler: func(_ context.Context, _ int, _ *Snapshot) (int, error) {
			t.Fatal("handler must not run")
			return 0, nil
		},
	}
	_, err = Mutation(identityContext("ext-user"), guard, forbidden, 1)
	assert.True(t, IsForbidden(err))
}

func TestAuthorizeFuncAdapter(t *testing.T) {
	guard, _ := guardFixture(t)

	var auth Authorizer = AuthorizeFunc(guard.Authorize)
	snap, err := auth.Authorize(identityContext("ext-user"), PermUserList)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.AccountID)
}

func TestIdentityFromContextMissing(t *testing.T) {
	assert.Equal(t, "", IdentityFromContext(context.Background()))
}
