package notification

import (
	"context"
	"time"

	"github.com/festra/festra-api/internal/models"
	"github.com/festra/festra-api/internal/push"
	"github.com/festra/festra-api/internal/repository"
)

type fakeDirectory struct {
	tokens  []models.DeviceToken
	listErr error
	cleared []string
}

func (f *fakeDirectory) ListPushTokens(context.Context) ([]models.DeviceToken, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.tokens, nil
}

func (f *fakeDirectory) ClearPushTokenByValue(_ context.Context, value string) error {
	f.cleared = append(f.cleared, value)
	return nil
}

type fakeReceiptStore struct {
	created   []repository.CreateReceiptParams
	pending   []models.PushReceipt
	abandoned int
	delivered []string
	failed    map[string]string
}

func newFakeReceiptStore() *fakeReceiptStore {
	return &fakeReceiptStore{failed: make(map[string]string)}
}

func (f *fakeReceiptStore) CreateBatch(_ context.Context, receipts []repository.CreateReceiptParams) error {
	f.created = append(f.created, receipts...)
	return nil
}

func (f *fakeReceiptStore) ListPending(context.Context, time.Duration) ([]models.PushReceipt, error) {
	out := make([]models.PushReceipt, len(f.pending))
	copy(out, f.pending)
	return out, nil
}

func (f *fakeReceiptStore) CountAbandoned(context.Context, time.Duration) (int, error) {
	return f.abandoned, nil
}

func (f *fakeReceiptStore) MarkDelivered(_ context.Context, id string) error {
	f.delivered = append(f.delivered, id)
	f.removePending(id)
	return nil
}

func (f *fakeReceiptStore) MarkFailed(_ context.Context, id, reason string) error {
	f.failed[id] = reason
	f.removePending(id)
	return nil
}

// removePending mimics the real store: settled records no longer show up in
// the pending-only query, which is what makes reconciliation idempotent.
func (f *fakeReceiptStore) removePending(id string) {
	remaining := f.pending[:0]
	for _, receipt := range f.pending {
		if receipt.ID != id {
			remaining = append(remaining, receipt)
		}
	}
	f.pending = remaining
}

type fakeGateway struct {
	batches   [][]push.Message
	sendFn    func(call int, messages []push.Message) ([]push.Ticket, error)
	receiptFn func(call int, ids []string) (map[string]push.Receipt, error)
	sendCalls int
	recvCalls int
}

func (f *fakeGateway) SendBatch(_ context.Context, messages []push.Message) ([]push.Ticket, error) {
	call := f.sendCalls
	f.sendCalls++
	f.batches = append(f.batches, messages)
	if f.sendFn != nil {
		return f.sendFn(call, messages)
	}
	return okTickets(messages), nil
}

func (f *fakeGateway) FetchReceipts(_ context.Context, ids []string) (map[string]push.Receipt, error) {
	call := f.recvCalls
	f.recvCalls++
	if f.receiptFn != nil {
		return f.receiptFn(call, ids)
	}
	return nil, nil
}

func okTickets(messages []push.Message) []push.Ticket {
	tickets := make([]push.Ticket, len(messages))
	for i := range messages {
		tickets[i] = push.Ticket{Status: push.StatusOK, ID: "ticket-" + messages[i].To}
	}
	return tickets
}
