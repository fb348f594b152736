// Package rbac implements role-based access control for Warden.
//
// # Overview
//
// Authorization is computed per request as a Snapshot: the application
// account linked to the caller's external identity, the roles assigned to
// that account, and the deduplicated union of permissions granted by those
// roles. Snapshots are never cached across requests, so role and
// permission edits take effect on the very next call.
//
// # Snapshot Resolution
//
//	resolver := rbac.NewResolver(accountDirectory, store)
//	snap, err := resolver.Resolve(ctx, externalID)
//
// Resolution fails with ErrNotAuthenticated when no identity is present
// and with ErrAccountNotProvisioned when the identity has no linked
// account record; callers surface the two differently.
//
// # The Gate
//
// Every sensitive operation is defined as an Operation and wrapped by the
// gate. The wrapper resolves a snapshot, enforces the optional required
// permission, and only then invokes the body:
//
//	listUsers := rbac.Query(guard, rbac.Operation[struct{}, []User]{
//		Name:       "listUsers",
//		Permission: rbac.PermUserList,
//		Handler: func(ctx context.Context, _ struct{}, snap *rbac.Snapshot) ([]User, error) {
//			return store.List(ctx)
//		},
//	})
//
// Query, Mutation, and Action carry identical authorization semantics.
// Action exists for deferred execution contexts that cannot share the
// request's read view: it authorizes through an explicitly injected
// synchronous sub-call (see ActionAuthorizer) and re-attaches the result
// before the body runs.
//
// # Superuser
//
// An account holding the "administrator" role passes every permission
// check without consulting the permission table. Role.IsSuperuser exists
// as the forward-compatible flag; the name match is preserved for
// compatibility with existing data.
package rbac
