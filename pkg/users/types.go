package users

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of an account.
type Status string

const (
	// StatusInvitationSent marks an account created by invitation whose
	// owner has not yet set a password.
	StatusInvitationSent Status = "invitation_sent"

	// StatusActive marks a normally usable account.
	StatusActive Status = "active"

	// StatusBlocked marks an account refused at sign-in and stripped of
	// live sessions.
	StatusBlocked Status = "blocked"
)

// Valid reports whether s is a known lifecycle status.
func (s Status) Valid() bool {
	switch s {
	case StatusInvitationSent, StatusActive, StatusBlocked:
		return true
	}
	return false
}

// CanTransition reports whether the administrative status update may move
// from s to target. Same-status transitions are allowed so retries stay
// idempotent. invitation_sent becomes active only through password-reset
// completion, never through this path; an unblocked account always returns
// to active, never to invitation_sent.
func (s Status) CanTransition(target Status) bool {
	if s == target {
		return true
	}
	switch s {
	case StatusInvitationSent:
		return target == StatusBlocked
	case StatusActive:
		return target == StatusBlocked
	case StatusBlocked:
		return target == StatusActive
	}
	return false
}

// BlockedAccountMessage is the user-facing refusal shown at sign-in and on
// reset attempts for blocked accounts.
const BlockedAccountMessage = "Konto zostało zablokowane. Skontaktuj się z administratorem."

var (
	// ErrBlocked indicates an operation refused because the account is
	// blocked.
	ErrBlocked = errors.New("account is blocked")

	// ErrEmailExists indicates an invitation for an email that already
	// has an account, whatever its status.
	ErrEmailExists = errors.New("account with this email already exists")

	// ErrInvalidTransition indicates a lifecycle transition outside the
	// state machine.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDispatchFailed indicates the password-set link could not be
	// dispatched. The account state is already persisted, so the send can
	// be retried without repeating the invitation.
	ErrDispatchFailed = errors.New("link dispatch failed")
)

// ValidationError reports a rejected input field. It is a failure value,
// not a gate error; handlers map it to 400.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Account is the application-side user record.
type Account struct {
	ID          int64      `json:"id"`
	ExternalID  string     `json:"external_id"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Phone       string     `json:"phone,omitempty"`
	AvatarKey   string     `json:"avatar_key,omitempty"`
	Status      Status     `json:"status"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// FullName joins the name parts for display and email templates.
func (a *Account) FullName() string {
	switch {
	case a.FirstName == "":
		return a.LastName
	case a.LastName == "":
		return a.FirstName
	default:
		return a.FirstName + " " + a.LastName
	}
}

// UserWithRoles is the listUsers row: the account plus its role names.
type UserWithRoles struct {
	Account
	Roles []string `json:"roles"`
}

// InviteResult reports the outcome of an invitation.
type InviteResult struct {
	Account *Account `json:"account"`
}
