package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/platinummonkey/warden/pkg/identity"
	"github.com/platinummonkey/warden/pkg/rbac"
)

// InviteParams are the inviteUser inputs.
type InviteParams struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone,omitempty"`
	RoleID    int64  `json:"role_id"`
}

func (p *InviteParams) validate() error {
	p.Email = NormalizeEmail(p.Email)
	if p.Email == "" {
		return &ValidationError{Field: "email", Message: "is required"}
	}
	at := strings.Index(p.Email, "@")
	if at <= 0 || at == len(p.Email)-1 {
		return &ValidationError{Field: "email", Message: "is not a valid address"}
	}
	if p.RoleID == 0 {
		return &ValidationError{Field: "role_id", Message: "is required"}
	}
	return nil
}

// Invite creates an account in invitation_sent and makes the provider send
// the invitation link (via the reset-dispatch hook, which picks the
// invitation template for invitation_sent accounts).
//
// An email that already holds an account is a conflict regardless of its
// status; ResendInvitation is the retry path when the link never arrived.
func (s *Service) Invite(ctx context.Context, params InviteParams) (*InviteResult, error) {
	if err := params.validate(); err != nil {
		s.countInvite("invalid")
		return nil, err
	}

	existing, err := s.store.GetByEmail(ctx, params.Email)
	if err != nil && !isNotFound(err) {
		s.countInvite("error")
		return nil, err
	}
	if existing != nil {
		s.countInvite("conflict")
		return nil, fmt.Errorf("email %s: %w", params.Email, ErrEmailExists)
	}

	if _, err := s.rbacStore.GetRole(ctx, params.RoleID); err != nil {
		s.countInvite("invalid")
		return nil, err
	}

	externalID, err := s.provider.CreateUser(ctx, params.Email, params.FirstName, params.LastName)
	if err != nil {
		if errors.Is(err, identity.ErrIdentityExists) {
			// Lost a race against a concurrent invitation; same outcome
			// as the existence check above.
			s.countInvite("conflict")
			return nil, fmt.Errorf("email %s: %w", params.Email, ErrEmailExists)
		}
		s.countInvite("error")
		return nil, fmt.Errorf("failed to provision identity: %w", err)
	}

	// Account row and first role assignment land atomically; a provider
	// identity without an account row is recoverable by retrying, the
	// reverse is not.
	tx, err := s.store.DB().BeginTx(ctx, nil)
	if err != nil {
		s.countInvite("error")
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	account, err := CreateAccount(ctx, tx, CreateParams{
		ExternalID: externalID,
		Email:      params.Email,
		FirstName:  params.FirstName,
		LastName:   params.LastName,
		Phone:      params.Phone,
		Status:     StatusInvitationSent,
	})
	if err != nil {
		s.countInvite("error")
		return nil, err
	}
	if err := rbac.AssignRole(ctx, tx, account.ID, params.RoleID); err != nil {
		s.countInvite("error")
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		s.countInvite("error")
		return nil, fmt.Errorf("failed to commit invitation: %w", err)
	}

	if err := s.provider.RequestPasswordReset(ctx, params.Email); err != nil {
		// The committed account stays in invitation_sent; the caller
		// retries the send through ResendInvitation.
		s.countInvite("dispatch_failed")
		s.logger.WithError(err).WithField("email", params.Email).
			Warn("invitation created but link dispatch failed")
		return nil, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	s.countInvite("created")
	return &InviteResult{Account: account}, nil
}

// ResendInvitation makes the provider issue a fresh password-set link for
// an account still waiting in invitation_sent.
func (s *Service) ResendInvitation(ctx context.Context, accountID int64) error {
	account, err := s.store.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if account.Status != StatusInvitationSent {
		return fmt.Errorf("%s account: %w", account.Status, ErrInvalidTransition)
	}
	if err := s.provider.RequestPasswordReset(ctx, account.Email); err != nil {
		s.countInvite("dispatch_failed")
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	s.countInvite("resent")
	return nil
}

func (s *Service) countInvite(outcome string) {
	if s.metrics != nil {
		s.metrics.InvitationsTotal.WithLabelValues(outcome).Inc()
	}
}
