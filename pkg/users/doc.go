// Package users manages application accounts and their lifecycle.
//
// An account is the application-side record linked to an external identity
// by external_id. Accounts move through a small state machine:
//
//	invitation_sent -> active <-> blocked
//
// invitation_sent is entered by inviteUser and left only by completing the
// password reset the invitation email carries. blocked accounts are
// refused before credential verification and their live sessions are
// revoked.
//
// The package exposes the account store, the invitation flow, the
// lifecycle hooks the identity provider calls back into (pre/post sign-in,
// reset dispatch and completion), and the HTTP handlers for the user
// administration surface. All permission-gated operations run behind the
// rbac gate.
package users
