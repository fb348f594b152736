package rbac

import (
	"context"
	"time"

	"github.com/platinummonkey/warden/pkg/contextkeys"
	"github.com/platinummonkey/warden/pkg/observability"
)

// ExternalIdentity is the minimal view of a verified session identity the
// gate needs. pkg/identity's Identity satisfies it; defining the interface
// here keeps this package free of transport concerns.
type ExternalIdentity interface {
	ExternalID() string
}

// IdentityFromContext extracts the verified identity placed in the context
// by the auth middleware. Returns "" when no identity is present.
func IdentityFromContext(ctx context.Context) string {
	if ident, ok := ctx.Value(contextkeys.IdentityKey).(ExternalIdentity); ok {
		return ident.ExternalID()
	}
	return ""
}

// Authorizer checks a single permission against the caller's identity and
// returns the snapshot the decision was made from.
type Authorizer interface {
	Authorize(ctx context.Context, permission string) (*Snapshot, error)
}

// Guard is the uniform authorization gate. It resolves a fresh snapshot
// per call and enforces a required permission, with the superuser role
// bypassing the permission check (but never the account lookup).
type Guard struct {
	resolver *Resolver
	metrics  *observability.Metrics
	logger   *observability.Logger
}

// NewGuard creates an authorization gate.
func NewGuard(resolver *Resolver, metrics *observability.Metrics, logger *observability.Logger) *Guard {
	return &Guard{
		resolver: resolver,
		metrics:  metrics,
		logger:   logger,
	}
}

// Authorize resolves the caller's snapshot and checks the permission.
// An empty permission means "authenticated and provisioned is enough".
func (g *Guard) Authorize(ctx context.Context, permission string) (*Snapshot, error) {
	start := time.Now()
	snap, err := g.resolver.Resolve(ctx, IdentityFromContext(ctx))
	if g.metrics != nil {
		g.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		g.record(permission, outcomeForResolveError(err))
		return nil, err
	}

	if snap.IsSuperuser() {
		g.record(permission, "superuser")
		return snap, nil
	}

	if permission != "" && !snap.HasPermission(permission) {
		g.record(permission, "forbidden")
		g.logger.WithFields(map[string]interface{}{
			"account_id": snap.AccountID,
			"permission": permission,
			"roles":      snap.RoleNames(),
		}).Warn("permission denied")
		return nil, &PermissionError{Permission: permission}
	}

	g.record(permission, "allowed")
	return snap, nil
}

func (g *Guard) record(permission, outcome string) {
	if g.metrics == nil {
		return
	}
	if permission == "" {
		permission = "(none)"
	}
	g.metrics.AuthzDecisionsTotal.WithLabelValues(permission, outcome).Inc()
}

func outcomeForResolveError(err error) string {
	switch err {
	case ErrNotAuthenticated:
		return "unauthenticated"
	case ErrAccountNotProvisioned:
		return "unprovisioned"
	default:
		return "error"
	}
}

// Operation is a named, permission-gated handler. The handler receives the
// snapshot the gate authorized with, so it can make further decisions
// (filtering, self-service checks) without a second resolution.
type Operation[A any, R any] struct {
	Name       string
	Permission string
	Handler    func(ctx context.Context, args A, snap *Snapshot) (R, error)
}

// Query runs a read operation behind the gate.
func Query[A any, R any](ctx context.Context, auth Authorizer, op Operation[A, R], args A) (R, error) {
	return secured(ctx, auth, op, args)
}

// Mutation runs a write operation behind the gate.
func Mutation[A any, R any](ctx context.Context, auth Authorizer, op Operation[A, R], args A) (R, error) {
	return secured(ctx, auth, op, args)
}

// Action runs a side-effecting operation behind the gate. Actions that run
// outside the request path must carry the caller's identity in ctx; the
// gate re-resolves rather than trusting a snapshot captured earlier.
func Action[A any, R any](ctx context.Context, auth Authorizer, op Operation[A, R], args A) (R, error) {
	return secured(ctx, auth, op, args)
}

func secured[A any, R any](ctx context.Context, auth Authorizer, op Operation[A, R], args A) (R, error) {
	var zero R
	snap, err := auth.Authorize(ctx, op.Permission)
	if err != nil {
		return zero, err
	}
	return op.Handler(ctx, args, snap)
}

// AuthorizeFunc adapts a function to the Authorizer interface. Async task
// wiring passes the guard's Authorize method directly instead of routing
// through a name registry, so the compiler checks the reference.
type AuthorizeFunc func(ctx context.Context, permission string) (*Snapshot, error)

// Authorize implements Authorizer.
func (f AuthorizeFunc) Authorize(ctx context.Context, permission string) (*Snapshot, error) {
	return f(ctx, permission)
}
