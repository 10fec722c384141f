package notification

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/festra/festra-api/internal/models"
	"github.com/festra/festra-api/internal/push"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingReceipt(i int) models.PushReceipt {
	return models.PushReceipt{
		ID:             fmt.Sprintf("receipt-%d", i),
		NotificationID: "n1",
		ReceiptID:      fmt.Sprintf("ticket-%d", i),
		Token:          token(i),
		Status:         models.ReceiptStatusPending,
		CreatedAt:      time.Now().Add(-time.Hour),
	}
}

func newTestReconciler(receipts *fakeReceiptStore, directory *fakeDirectory, gateway *fakeGateway, alerter Alerter) *Reconciler {
	return NewReconciler(receipts, directory, gateway, DefaultReceiptWindow, alerter, zerolog.Nop())
}

func TestReconcileSettlesReceipts(t *testing.T) {
	receipts := newFakeReceiptStore()
	receipts.pending = []models.PushReceipt{pendingReceipt(0), pendingReceipt(1)}
	directory := &fakeDirectory{}
	gateway := &fakeGateway{
		receiptFn: func(_ int, ids []string) (map[string]push.Receipt, error) {
			return map[string]push.Receipt{
				"ticket-0": {Status: push.StatusOK},
				"ticket-1": {Status: push.StatusError, Details: &push.ErrorDetails{Error: "MessageTooBig"}},
			}, nil
		},
	}

	summary, err := newTestReconciler(receipts, directory, gateway, nil).Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ReconcileSummary{Checked: 2, Delivered: 1, Failed: 1}, summary)
	assert.Equal(t, []string{"receipt-0"}, receipts.delivered)
	assert.Equal(t, "MessageTooBig", receipts.failed["receipt-1"])
	assert.Empty(t, directory.cleared)
}

func TestReconcileClearsDeadTokens(t *testing.T) {
	receipts := newFakeReceiptStore()
	receipts.pending = []models.PushReceipt{pendingReceipt(0)}
	directory := &fakeDirectory{}
	gateway := &fakeGateway{
		receiptFn: func(_ int, ids []string) (map[string]push.Receipt, error) {
			return map[string]push.Receipt{
				"ticket-0": {Status: push.StatusError, Details: &push.ErrorDetails{Error: push.ErrDeviceNotRegistered}},
			}, nil
		},
	}

	summary, err := newTestReconciler(receipts, directory, gateway, nil).Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, push.ErrDeviceNotRegistered, receipts.failed["receipt-0"])
	assert.Equal(t, []string{token(0)}, directory.cleared)
}

func TestReconcileChunkErrorLeavesReceiptsPending(t *testing.T) {
	receipts := newFakeReceiptStore()
	receipts.pending = []models.PushReceipt{pendingReceipt(0), pendingReceipt(1)}
	directory := &fakeDirectory{}
	gateway := &fakeGateway{
		receiptFn: func(_ int, ids []string) (map[string]push.Receipt, error) {
			return nil, errors.New("provider unavailable")
		},
	}

	summary, err := newTestReconciler(receipts, directory, gateway, nil).Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Checked)
	assert.Zero(t, summary.Delivered)
	assert.Zero(t, summary.Failed)
	assert.Len(t, receipts.pending, 2)
}

func TestReconcileIsIdempotent(t *testing.T) {
	receipts := newFakeReceiptStore()
	receipts.pending = []models.PushReceipt{pendingReceipt(0)}
	directory := &fakeDirectory{}
	gateway := &fakeGateway{
		receiptFn: func(_ int, ids []string) (map[string]push.Receipt, error) {
			return map[string]push.Receipt{
				"ticket-0": {Status: push.StatusError, Details: &push.ErrorDetails{Error: push.ErrDeviceNotRegistered}},
			}, nil
		},
	}
	reconciler := newTestReconciler(receipts, directory, gateway, nil)

	_, err := reconciler.Reconcile(context.Background())
	require.NoError(t, err)
	_, err = reconciler.Reconcile(context.Background())
	require.NoError(t, err)

	// The settled record left the pending set, so the second pass touched
	// nothing: the token was cleared exactly once.
	assert.Equal(t, []string{token(0)}, directory.cleared)
	assert.Len(t, receipts.failed, 1)
}

func TestReconcileIgnoresUnknownReceiptIDs(t *testing.T) {
	receipts := newFakeReceiptStore()
	receipts.pending = []models.PushReceipt{pendingReceipt(0)}
	directory := &fakeDirectory{}
	gateway := &fakeGateway{
		receiptFn: func(_ int, ids []string) (map[string]push.Receipt, error) {
			return map[string]push.Receipt{
				"ticket-0":       {Status: push.StatusOK},
				"ticket-unknown": {Status: push.StatusOK},
			}, nil
		},
	}

	summary, err := newTestReconciler(receipts, directory, gateway, nil).Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Delivered)
}

type fakeAlerter struct {
	subjects []string
}

func (f *fakeAlerter) Alert(_ context.Context, subject, _ string) error {
	f.subjects = append(f.subjects, subject)
	return nil
}

func TestReconcileReportsAbandonedReceipts(t *testing.T) {
	receipts := newFakeReceiptStore()
	receipts.abandoned = 3
	directory := &fakeDirectory{}
	gateway := &fakeGateway{}
	alerter := &fakeAlerter{}

	summary, err := newTestReconciler(receipts, directory, gateway, alerter).Reconcile(context.Background())
	require.NoError(t, err)

	// Abandoned receipts are reported but never fetched: they stay pending
	// outside the window for good.
	assert.Equal(t, 3, summary.Abandoned)
	assert.Zero(t, gateway.recvCalls)
	assert.Len(t, alerter.subjects, 1)
}
