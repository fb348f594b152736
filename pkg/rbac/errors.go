package rbac

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated indicates no valid session identity was presented.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrAccountNotProvisioned indicates a valid session whose identity has
	// no linked account record. Distinct from ErrNotAuthenticated so callers
	// can tell "never provisioned" from "not logged in".
	ErrAccountNotProvisioned = errors.New("account record not found for identity")

	// ErrNotFound indicates a missing record; wrapped by store lookups.
	ErrNotFound = errors.New("not found")
)

// PermissionError indicates an authenticated account that lacks the
// required permission. The superuser role never produces this error.
type PermissionError struct {
	Permission string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("forbidden: missing permission %q", e.Permission)
}

// IsForbidden reports whether err is a permission failure.
func IsForbidden(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}
