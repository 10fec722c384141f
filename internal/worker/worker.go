package worker

import (
	"context"
	"time"

	"github.com/festra/festra-api/internal/models"
	"github.com/festra/festra-api/internal/notification"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// NotificationStore is the slice of the notification repository the worker
// needs to claim and settle records.
type NotificationStore interface {
	Claim(ctx context.Context, id string) (models.Notification, bool, error)
	ClaimNextPending(ctx context.Context) (models.Notification, bool, error)
	MarkDispatched(ctx context.Context, id string, sent, failed int) error
	Release(ctx context.Context, id string) error
}

type Config struct {
	Notifications NotificationStore
	Dispatcher    *notification.Dispatcher
	PollInterval  time.Duration
}

// Worker drives the fan-out dispatcher. It serves two trigger paths: the
// queue consumer calls DispatchByID for prompt delivery, and the polling
// loop sweeps the store for pending notifications whose trigger never
// arrived. Both paths go through the same atomic pending->dispatching claim,
// so a notification is dispatched at most once.
type Worker struct {
	cfg    Config
	logger zerolog.Logger
}

func NewWorker(cfg Config, logger zerolog.Logger) *Worker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 15 * time.Second
	}
	return &Worker{
		cfg:    cfg,
		logger: logger.With().Str("component", "dispatch_worker").Logger(),
	}
}

// Start polls for pending notifications until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info().Dur("poll_interval", w.cfg.PollInterval).Msg("dispatch worker started")
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("dispatch worker stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := w.sweep(ctx); err != nil {
				w.logger.Error().Err(err).Msg("dispatch sweep failed")
			}
		}
	}
}

// sweep drains every pending notification, one claim at a time.
func (w *Worker) sweep(ctx context.Context) error {
	for {
		notif, claimed, err := w.cfg.Notifications.ClaimNextPending(ctx)
		if err != nil {
			return errors.Wrap(err, "claim next pending notification")
		}
		if !claimed {
			return nil
		}
		if err := w.run(ctx, notif); err != nil {
			w.logger.Error().Err(err).Str("notification_id", notif.ID).Msg("dispatch failed")
		}
	}
}

// DispatchByID claims one notification and dispatches it. A record already
// claimed or dispatched is a no-op, which makes duplicate triggers safe.
func (w *Worker) DispatchByID(ctx context.Context, notificationID string) error {
	notif, claimed, err := w.cfg.Notifications.Claim(ctx, notificationID)
	if err != nil {
		return errors.Wrapf(err, "claim notification %s", notificationID)
	}
	if !claimed {
		w.logger.Debug().Str("notification_id", notificationID).Msg("notification already claimed")
		return nil
	}
	return w.run(ctx, notif)
}

func (w *Worker) run(ctx context.Context, notif models.Notification) error {
	summary, err := w.cfg.Dispatcher.Dispatch(ctx, notif)
	if err != nil {
		// Dispatch only errors before anything was submitted, so releasing
		// the claim for the next sweep cannot double-send.
		if releaseErr := w.cfg.Notifications.Release(ctx, notif.ID); releaseErr != nil {
			w.logger.Error().Err(releaseErr).Str("notification_id", notif.ID).Msg("failed to release claim")
		}
		return errors.Wrapf(err, "dispatch notification %s", notif.ID)
	}

	if err := w.cfg.Notifications.MarkDispatched(ctx, notif.ID, summary.Sent, summary.Failed); err != nil {
		return errors.Wrapf(err, "mark notification %s dispatched", notif.ID)
	}
	return nil
}
