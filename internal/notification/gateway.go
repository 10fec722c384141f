package notification

import (
	"context"
	"time"

	"github.com/festra/festra-api/internal/models"
	"github.com/festra/festra-api/internal/push"
	"github.com/festra/festra-api/internal/repository"
)

// Gateway is the push-provider capability the pipeline depends on. The
// production implementation is push.Client; tests substitute a fake.
type Gateway interface {
	// SendBatch submits one chunk; the returned tickets are index-aligned
	// with the submitted messages.
	SendBatch(ctx context.Context, messages []push.Message) ([]push.Ticket, error)
	// FetchReceipts resolves ticket IDs to delivery receipts, keyed by
	// ticket ID. Unsettled IDs are absent from the map.
	FetchReceipts(ctx context.Context, ids []string) (map[string]push.Receipt, error)
}

// TokenDirectory is the slice of the user store the pipeline needs: the set
// of push-capable addresses, and the ability to drop a dead one.
type TokenDirectory interface {
	ListPushTokens(ctx context.Context) ([]models.DeviceToken, error)
	ClearPushTokenByValue(ctx context.Context, value string) error
}

// ReceiptStore persists per-recipient delivery tracking records.
type ReceiptStore interface {
	CreateBatch(ctx context.Context, receipts []repository.CreateReceiptParams) error
	ListPending(ctx context.Context, window time.Duration) ([]models.PushReceipt, error)
	CountAbandoned(ctx context.Context, window time.Duration) (int, error)
	MarkDelivered(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, reason string) error
}

// Summary reports one dispatch invocation, for logging only.
type Summary struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// ReconcileSummary reports one reconcile pass, for logging only.
type ReconcileSummary struct {
	Checked   int `json:"checked"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Abandoned int `json:"abandoned"`
}
