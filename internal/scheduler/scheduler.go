package scheduler

import (
	"context"

	"github.com/festra/festra-api/internal/notification"
	"github.com/robfig/cron"
	"github.com/rs/zerolog"
)

// Scheduler runs the receipt reconciler on a cron schedule. Cron runs jobs
// sequentially per entry, which gives the reconciler its non-overlapping
// invocation guarantee.
type Scheduler struct {
	cron   *cron.Cron
	logger zerolog.Logger
}

func NewReconcileScheduler(schedule string, reconciler *notification.Reconciler, logger zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		logger: logger.With().Str("component", "scheduler").Logger(),
	}

	err := s.cron.AddFunc(schedule, func() {
		summary, err := reconciler.Reconcile(context.Background())
		if err != nil {
			s.logger.Error().Err(err).Msg("scheduled reconcile failed")
			return
		}
		s.logger.Info().
			Int("checked", summary.Checked).
			Int("delivered", summary.Delivered).
			Int("failed", summary.Failed).
			Int("abandoned", summary.Abandoned).
			Msg("scheduled reconcile finished")
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("schedule", schedule).Msg("reconcile schedule registered")
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}
