package users

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/warden/pkg/async"
)

// lastLoginTimeout bounds the detached post-sign-in update.
const lastLoginTimeout = 10 * time.Second

// BeforeSignIn is the pre-credential guard the provider calls before
// verifying a password. Blocked accounts are refused here, before any
// credential check. Unknown emails pass; the provider fails them itself
// without revealing whether the account exists.
func (s *Service) BeforeSignIn(ctx context.Context, email string) error {
	email = NormalizeEmail(email)

	account, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			s.countSignIn("unknown")
			return nil
		}
		s.countSignIn("error")
		return err
	}

	if account.Status == StatusBlocked {
		s.countSignIn("blocked")
		s.logger.WithField("account_id", account.ID).Info("blocked account refused at sign-in")
		return fmt.Errorf("%w: %s", ErrBlocked, BlockedAccountMessage)
	}

	s.countSignIn("allowed")
	return nil
}

// AfterSignIn records the successful sign-in. The lastLoginAt stamp is
// best-effort and must not delay or fail the sign-in response, so it runs
// detached from the request context.
func (s *Service) AfterSignIn(ctx context.Context, externalID string) {
	async.SafeGoDetached(ctx, lastLoginTimeout, "touch-last-login", func(taskCtx context.Context) error {
		return s.store.TouchLastLogin(taskCtx, externalID)
	})
}

// DispatchPasswordReset decides whether and how to send a reset link the
// provider has issued. Blocked accounts are refused; invitation_sent
// accounts get the invitation template instead of the reset one; unknown
// emails are silently dropped so the reset endpoint leaks nothing.
func (s *Service) DispatchPasswordReset(ctx context.Context, email, link string) error {
	email = NormalizeEmail(email)

	account, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			s.logger.WithField("email", email).Debug("reset requested for unknown email, dropped")
			return nil
		}
		return err
	}

	if account.Status == StatusBlocked {
		s.countEmail("reset", "refused_blocked")
		return fmt.Errorf("%w: %s", ErrBlocked, BlockedAccountMessage)
	}

	if account.Status == StatusInvitationSent {
		if err := s.mailer.SendInvitation(ctx, account.Email, account.FullName(), link); err != nil {
			s.countEmail("invitation", "error")
			return fmt.Errorf("failed to send invitation email: %w", err)
		}
		s.countEmail("invitation", "sent")
		return nil
	}

	if err := s.mailer.SendPasswordReset(ctx, account.Email, account.FullName(), link); err != nil {
		s.countEmail("reset", "error")
		return fmt.Errorf("failed to send reset email: %w", err)
	}
	s.countEmail("reset", "sent")
	return nil
}

// CompletePasswordReset runs after the provider accepted a new password:
// every live session is revoked, and an invited account becomes active.
// Activation applies only to invitation_sent, so resetting a blocked
// account's password never unblocks it.
func (s *Service) CompletePasswordReset(ctx context.Context, externalID string) error {
	if err := s.provider.RevokeSessions(ctx, externalID); err != nil {
		return fmt.Errorf("failed to revoke sessions after reset: %w", err)
	}

	activated, err := s.store.ActivateIfInvited(ctx, externalID)
	if err != nil {
		return err
	}
	if activated {
		if s.metrics != nil {
			s.metrics.StatusChangesTotal.WithLabelValues(string(StatusActive)).Inc()
		}
		s.logger.WithField("external_id", externalID).Info("invited account activated")
	}
	return nil
}

func (s *Service) countSignIn(outcome string) {
	if s.metrics != nil {
		s.metrics.SignInGuardTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) countEmail(template, outcome string) {
	if s.metrics != nil {
		s.metrics.EmailDispatchTotal.WithLabelValues(template, outcome).Inc()
	}
}
