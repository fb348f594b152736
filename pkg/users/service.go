package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/rbac"
)

// IdentityProvider is the subset of the identity provider's admin API the
// user service needs. pkg/identity's client implements it.
type IdentityProvider interface {
	// CreateUser provisions the identity and returns its external id.
	CreateUser(ctx context.Context, email, firstName, lastName string) (string, error)
	// RequestPasswordReset makes the provider issue a reset link; the
	// provider calls the reset-dispatch hook back with the link.
	RequestPasswordReset(ctx context.Context, email string) error
	// ChangePassword verifies the current password and sets a new one.
	ChangePassword(ctx context.Context, externalID, currentPassword, newPassword string) error
	// RevokeSessions terminates every live session of the identity.
	RevokeSessions(ctx context.Context, externalID string) error
}

// Mailer sends the templated account emails. pkg/email implements it.
type Mailer interface {
	SendInvitation(ctx context.Context, to, name, link string) error
	SendPasswordReset(ctx context.Context, to, name, link string) error
}

// BlockedCache is the advisory cache backing the public blocked-email
// probe. Implementations may lose or expire entries at any time; the
// database stays authoritative.
type BlockedCache interface {
	Get(ctx context.Context, email string) (blocked bool, found bool)
	Set(ctx context.Context, email string, blocked bool)
}

// Service implements the user administration and lifecycle operations.
type Service struct {
	store     *Store
	rbacStore *rbac.Store
	guard     rbac.Authorizer
	provider  IdentityProvider
	mailer    Mailer
	cache     BlockedCache
	metrics   *observability.Metrics
	logger    *observability.Logger
}

// NewService wires the user service. cache and metrics may be nil.
func NewService(store *Store, rbacStore *rbac.Store, guard rbac.Authorizer,
	provider IdentityProvider, mailer Mailer, cache BlockedCache,
	metrics *observability.Metrics, logger *observability.Logger) *Service {
	return &Service{
		store:     store,
		rbacStore: rbacStore,
		guard:     guard,
		provider:  provider,
		mailer:    mailer,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
	}
}

// NormalizeEmail lowercases and trims an email address. Every email
// comparison in the service goes through it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ListUsers returns all accounts with their role names.
func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]UserWithRoles, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	accounts, err := s.store.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	out := make([]UserWithRoles, 0, len(accounts))
	for _, account := range accounts {
		roles, err := s.rbacStore.RolesForAccount(ctx, account.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load roles for account %d: %w", account.ID, err)
		}
		names := make([]string, 0, len(roles))
		for _, role := range roles {
			names = append(names, role.Name)
		}
		out = append(out, UserWithRoles{Account: account, Roles: names})
	}
	return out, nil
}

// Profile returns the account for the resolved caller.
func (s *Service) Profile(ctx context.Context, accountID int64) (*Account, error) {
	return s.store.GetByID(ctx, accountID)
}

// UpdateStatus moves an account through the lifecycle state machine.
// Blocking an account also revokes its live sessions; same-status updates
// are no-ops.
func (s *Service) UpdateStatus(ctx context.Context, actor *rbac.Snapshot, accountID int64, target Status) (*Account, error) {
	if !target.Valid() {
		return nil, &ValidationError{Field: "status", Message: "unknown status"}
	}
	if target == StatusBlocked && actor != nil && actor.AccountID == accountID {
		return nil, &ValidationError{Field: "status", Message: "cannot block your own account"}
	}

	account, err := s.store.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Status == target {
		return account, nil
	}
	if !account.Status.CanTransition(target) {
		return nil, fmt.Errorf("%s -> %s: %w", account.Status, target, ErrInvalidTransition)
	}

	if err := s.store.UpdateStatus(ctx, accountID, target); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.StatusChangesTotal.WithLabelValues(string(target)).Inc()
	}
	if s.cache != nil {
		s.cache.Set(ctx, account.Email, target == StatusBlocked)
	}

	if target == StatusBlocked {
		if err := s.provider.RevokeSessions(ctx, account.ExternalID); err != nil {
			// The account is already persisted as blocked; the reconcile
			// sweep retries revocation for any session the provider kept.
			s.logger.WithError(err).WithField("account_id", accountID).
				Warn("failed to revoke sessions of blocked account")
		}
	}

	return s.store.GetByID(ctx, accountID)
}

// ChangePassword delegates to the provider, which verifies the current
// password. Authenticated-only; no permission is required.
func (s *Service) ChangePassword(ctx context.Context, accountID int64, currentPassword, newPassword string) error {
	if len(newPassword) < 8 {
		return &ValidationError{Field: "new_password", Message: "must be at least 8 characters"}
	}

	account, err := s.store.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if err := s.provider.ChangePassword(ctx, account.ExternalID, currentPassword, newPassword); err != nil {
		return fmt.Errorf("failed to change password: %w", err)
	}
	return nil
}

// IsBlockedByEmail answers the public pre-sign-in probe. The advisory
// cache absorbs repeated probes; misses fall through to the database and
// unknown emails report false so the endpoint leaks nothing.
func (s *Service) IsBlockedByEmail(ctx context.Context, email string) (bool, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return false, nil
	}

	if s.cache != nil {
		if blocked, found := s.cache.Get(ctx, email); found {
			return blocked, nil
		}
	}

	account, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}

	blocked := account.Status == StatusBlocked
	if s.cache != nil {
		s.cache.Set(ctx, email, blocked)
	}
	return blocked, nil
}

// MyRBACInfo is the public self-describing payload clients use to render
// navigation before any other call.
type MyRBACInfo struct {
	IsAuthenticated bool        `json:"isAuthenticated"`
	IsBlocked       bool        `json:"isBlocked"`
	User            *MyRBACUser `json:"user,omitempty"`
}

// MyRBACUser carries the caller's resolved snapshot.
type MyRBACUser struct {
	AccountID   int64    `json:"accountId"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	IsSuperuser bool     `json:"isSuperuser"`
}

// MyRBAC resolves the caller's own snapshot, degrading instead of failing:
// anonymous and unprovisioned callers get a payload with IsAuthenticated
// false rather than an error. A blocked account whose session has not been
// revoked yet gets only the blocked flag, never its roles or permissions.
func (s *Service) MyRBAC(ctx context.Context) (*MyRBACInfo, error) {
	snap, err := s.guard.Authorize(ctx, "")
	if err != nil {
		switch err {
		case rbac.ErrNotAuthenticated, rbac.ErrAccountNotProvisioned:
			return &MyRBACInfo{}, nil
		default:
			return nil, err
		}
	}

	account, err := s.store.GetByID(ctx, snap.AccountID)
	if err != nil {
		return nil, err
	}
	if account.Status == StatusBlocked {
		return &MyRBACInfo{IsBlocked: true}, nil
	}

	keys := make([]string, 0, len(snap.Permissions))
	for _, perm := range snap.Permissions {
		keys = append(keys, perm.Key)
	}
	return &MyRBACInfo{
		IsAuthenticated: true,
		IsBlocked:       false,
		User: &MyRBACUser{
			AccountID:   snap.AccountID,
			Roles:       snap.RoleNames(),
			Permissions: keys,
			IsSuperuser: snap.IsSuperuser(),
		},
	}, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, rbac.ErrNotFound)
}
