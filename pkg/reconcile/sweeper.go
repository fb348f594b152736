package reconcile

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/users"
)

// DefaultSchedule runs the sweep every 15 minutes.
const DefaultSchedule = "@every 15m"

// Sweeper revokes provider sessions of blocked accounts on a schedule.
type Sweeper struct {
	store    *users.Store
	provider users.IdentityProvider
	logger   *observability.Logger
	schedule string
	cron     *cron.Cron
}

// NewSweeper creates a sweeper. An empty schedule uses the default.
func NewSweeper(store *users.Store, provider users.IdentityProvider, schedule string, logger *observability.Logger) *Sweeper {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Sweeper{
		store:    store,
		provider: provider,
		logger:   logger,
		schedule: schedule,
	}
}

// Start schedules the sweep and begins running it.
func (s *Sweeper) Start() error {
	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.WithError(err).Warn("blocked-session sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c
	s.logger.WithField("schedule", s.schedule).Info("blocked-session sweep scheduled")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep revokes sessions for every blocked account and returns how many
// accounts were processed. Individual failures are logged and skipped so
// one unreachable identity does not stall the rest.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	blocked, err := s.store.ListByStatus(ctx, users.StatusBlocked)
	if err != nil {
		return 0, fmt.Errorf("failed to list blocked accounts: %w", err)
	}

	revoked := 0
	for _, account := range blocked {
		if err := s.provider.RevokeSessions(ctx, account.ExternalID); err != nil {
			s.logger.WithError(err).WithField("account_id", account.ID).
				Warn("failed to revoke sessions during sweep")
			continue
		}
		revoked++
	}

	if revoked > 0 {
		s.logger.WithFields(map[string]interface{}{
			"blocked": len(blocked),
			"revoked": revoked,
		}).Info("blocked-session sweep complete")
	}
	return revoked, nil
}
