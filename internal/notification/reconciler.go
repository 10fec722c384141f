package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/festra/festra-api/internal/models"
	"github.com/festra/festra-api/internal/push"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const DefaultReceiptWindow = 24 * time.Hour

// Reconciler resolves pending push receipts to a terminal state and clears
// tokens the provider reports as permanently undeliverable. It runs on a
// schedule; the scheduler serializes invocations.
type Reconciler struct {
	receipts ReceiptStore
	users    TokenDirectory
	gateway  Gateway
	window   time.Duration
	alerter  Alerter
	logger   zerolog.Logger
}

func NewReconciler(receipts ReceiptStore, users TokenDirectory, gateway Gateway, window time.Duration, alerter Alerter, logger zerolog.Logger) *Reconciler {
	if window <= 0 {
		window = DefaultReceiptWindow
	}
	return &Reconciler{
		receipts: receipts,
		users:    users,
		gateway:  gateway,
		window:   window,
		alerter:  alerter,
		logger:   logger.With().Str("component", "reconciler").Logger(),
	}
}

// Reconcile loads pending receipts inside the recency window, asks the
// provider for their outcomes, and settles them. Receipts in a chunk whose
// provider query fails stay pending for the next run.
func (r *Reconciler) Reconcile(ctx context.Context) (ReconcileSummary, error) {
	var summary ReconcileSummary

	abandoned, err := r.receipts.CountAbandoned(ctx, r.window)
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to count abandoned receipts")
	} else if abandoned > 0 {
		summary.Abandoned = abandoned
		r.logger.Warn().Int("count", abandoned).Dur("window", r.window).
			Msg("pending receipts older than the window will never be reconciled")
		r.alert(ctx, abandoned)
	}

	pending, err := r.receipts.ListPending(ctx, r.window)
	if err != nil {
		return summary, errors.Wrap(err, "load pending receipts")
	}
	if len(pending) == 0 {
		r.logger.Debug().Msg("no pending receipts to reconcile")
		return summary, nil
	}
	summary.Checked = len(pending)

	byReceiptID := make(map[string]models.PushReceipt, len(pending))
	ids := make([]string, 0, len(pending))
	for _, receipt := range pending {
		byReceiptID[receipt.ReceiptID] = receipt
		ids = append(ids, receipt.ReceiptID)
	}

	for i, chunk := range push.ChunkReceiptIDs(ids) {
		results, err := r.gateway.FetchReceipts(ctx, chunk)
		if err != nil {
			r.logger.Warn().Err(err).Int("chunk", i).Int("size", len(chunk)).
				Msg("receipt fetch failed; receipts remain pending")
			continue
		}
		for receiptID, result := range results {
			record, ok := byReceiptID[receiptID]
			if !ok {
				continue
			}
			r.settle(ctx, record, result, &summary)
		}
	}

	r.logger.Info().
		Int("checked", summary.Checked).
		Int("delivered", summary.Delivered).
		Int("failed", summary.Failed).
		Msg("receipt reconciliation complete")
	return summary, nil
}

func (r *Reconciler) settle(ctx context.Context, record models.PushReceipt, result push.Receipt, summary *ReconcileSummary) {
	logger := r.logger.With().Str("receipt_id", record.ReceiptID).Logger()

	switch result.Status {
	case push.StatusOK:
		if err := r.receipts.MarkDelivered(ctx, record.ID); err != nil {
			logger.Error().Err(err).Msg("failed to mark receipt delivered")
			return
		}
		summary.Delivered++
	case push.StatusError:
		reason := result.ErrorReason()
		if err := r.receipts.MarkFailed(ctx, record.ID, reason); err != nil {
			logger.Error().Err(err).Msg("failed to mark receipt failed")
			return
		}
		summary.Failed++
		logger.Warn().Str("reason", reason).Msg("push delivery failed")

		if reason == push.ErrDeviceNotRegistered {
			if err := r.users.ClearPushTokenByValue(ctx, record.Token); err != nil {
				logger.Error().Err(err).Msg("failed to clear dead token")
			}
		}
	default:
		logger.Warn().Str("status", result.Status).Msg("unexpected receipt status")
	}
}

func (r *Reconciler) alert(ctx context.Context, abandoned int) {
	if r.alerter == nil {
		return
	}
	subject := "Abandoned push receipts"
	body := fmt.Sprintf("%d push receipts have been pending for longer than %s and will not be reconciled.", abandoned, r.window)
	if err := r.alerter.Alert(ctx, subject, body); err != nil {
		r.logger.Warn().Err(err).Msg("failed to send abandoned-receipt alert")
	}
}
