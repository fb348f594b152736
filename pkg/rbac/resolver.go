package rbac

import (
	"context"
	"fmt"
)

// AccountDirectory resolves external identities to application accounts.
// Implemented by the users store; defined here so this package does not
// depend on the account schema.
type AccountDirectory interface {
	// AccountIDByExternalID returns the id of the account linked to the
	// external identity, or 0 when no account record exists.
	AccountIDByExternalID(ctx context.Context, externalID string) (int64, error)
}

// Resolver computes per-request RBAC snapshots.
//
// Every call re-reads the stores. The throughput cost is accepted so that
// role and permission edits are visible on the next request; RBAC checks
// gate low-frequency administrative operations, not a hot data path.
type Resolver struct {
	directory AccountDirectory
	store     *Store
}

// NewResolver creates a snapshot resolver.
func NewResolver(directory AccountDirectory, store *Store) *Resolver {
	return &Resolver{
		directory: directory,
		store:     store,
	}
}

// Resolve maps an external identity to its authorization snapshot.
//
// It fails with ErrNotAuthenticated when externalID is empty and with
// ErrAccountNotProvisioned when no account is linked to the identity.
func (r *Resolver) Resolve(ctx context.Context, externalID string) (*Snapshot, error) {
	if externalID == "" {
		return nil, ErrNotAuthenticated
	}

	accountID, err := r.directory.AccountIDByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account for identity: %w", err)
	}
	if accountID == 0 {
		return nil, ErrAccountNotProvisioned
	}

	roles, err := r.store.RolesForAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}

	roleIDs := make([]int64, 0, len(roles))
	for _, role := range roles {
		roleIDs = append(roleIDs, role.ID)
	}

	permissions, err := r.store.PermissionsForRoles(ctx, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions: %w", err)
	}

	return &Snapshot{
		AccountID:   accountID,
		Roles:       roles,
		Permissions: permissions,
	}, nil
}
