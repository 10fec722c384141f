package worker

import (
	"context"
	"testing"
	"time"

	"github.com/festra/festra-api/internal/models"
	"github.com/festra/festra-api/internal/notification"
	"github.com/festra/festra-api/internal/push"
	"github.com/festra/festra-api/internal/repository"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	notif      models.Notification
	claimed    bool
	dispatched map[string][2]int
	released   []string
}

func newFakeStore(notif models.Notification) *fakeStore {
	return &fakeStore{notif: notif, dispatched: make(map[string][2]int)}
}

func (f *fakeStore) Claim(_ context.Context, id string) (models.Notification, bool, error) {
	if f.claimed || id != f.notif.ID {
		return models.Notification{}, false, nil
	}
	f.claimed = true
	return f.notif, true, nil
}

func (f *fakeStore) ClaimNextPending(_ context.Context) (models.Notification, bool, error) {
	if f.claimed {
		return models.Notification{}, false, nil
	}
	f.claimed = true
	return f.notif, true, nil
}

func (f *fakeStore) MarkDispatched(_ context.Context, id string, sent, failed int) error {
	f.dispatched[id] = [2]int{sent, failed}
	return nil
}

func (f *fakeStore) Release(_ context.Context, id string) error {
	f.released = append(f.released, id)
	f.claimed = false
	return nil
}

type fakeDirectory struct {
	tokens  []models.DeviceToken
	listErr error
}

func (f *fakeDirectory) ListPushTokens(context.Context) ([]models.DeviceToken, error) {
	return f.tokens, f.listErr
}

func (f *fakeDirectory) ClearPushTokenByValue(context.Context, string) error { return nil }

type fakeReceipts struct{}

func (fakeReceipts) CreateBatch(context.Context, []repository.CreateReceiptParams) error { return nil }

func (fakeReceipts) ListPending(context.Context, time.Duration) ([]models.PushReceipt, error) {
	return nil, nil
}

func (fakeReceipts) CountAbandoned(context.Context, time.Duration) (int, error) { return 0, nil }

func (fakeReceipts) MarkDelivered(context.Context, string) error { return nil }

func (fakeReceipts) MarkFailed(context.Context, string, string) error { return nil }

type fakeGateway struct {
	sendCalls int
}

func (f *fakeGateway) SendBatch(_ context.Context, messages []push.Message) ([]push.Ticket, error) {
	f.sendCalls++
	tickets := make([]push.Ticket, len(messages))
	for i := range messages {
		tickets[i] = push.Ticket{Status: push.StatusOK, ID: "ticket"}
	}
	return tickets, nil
}

func (f *fakeGateway) FetchReceipts(context.Context, []string) (map[string]push.Receipt, error) {
	return nil, nil
}

func newTestWorker(store *fakeStore, directory *fakeDirectory, gateway *fakeGateway) *Worker {
	dispatcher := notification.NewDispatcher(directory, fakeReceipts{}, gateway, zerolog.Nop())
	return NewWorker(Config{Notifications: store, Dispatcher: dispatcher}, zerolog.Nop())
}

func TestDispatchByIDClaimsOnce(t *testing.T) {
	notif := models.Notification{ID: "n1", Title: "Gate Update", Body: "Gates open at 10am"}
	store := newFakeStore(notif)
	directory := &fakeDirectory{tokens: []models.DeviceToken{
		{UserID: "u1", Token: "ExponentPushToken[a]", Group: "general"},
	}}
	gateway := &fakeGateway{}
	w := newTestWorker(store, directory, gateway)

	require.NoError(t, w.DispatchByID(context.Background(), "n1"))
	assert.Equal(t, 1, gateway.sendCalls)
	assert.Equal(t, [2]int{1, 0}, store.dispatched["n1"])

	// A duplicate trigger for the same record is a no-op.
	require.NoError(t, w.DispatchByID(context.Background(), "n1"))
	assert.Equal(t, 1, gateway.sendCalls)
}

func TestDispatchByIDUnknownNotification(t *testing.T) {
	store := newFakeStore(models.Notification{ID: "n1", Title: "t", Body: "b"})
	w := newTestWorker(store, &fakeDirectory{}, &fakeGateway{})

	require.NoError(t, w.DispatchByID(context.Background(), "other"))
	assert.Empty(t, store.dispatched)
}

func TestDispatchErrorReleasesClaim(t *testing.T) {
	notif := models.Notification{ID: "n1", Title: "Gate Update", Body: "Gates open at 10am"}
	store := newFakeStore(notif)
	directory := &fakeDirectory{listErr: errors.New("db down")}
	w := newTestWorker(store, directory, &fakeGateway{})

	err := w.DispatchByID(context.Background(), "n1")
	require.Error(t, err)
	assert.Equal(t, []string{"n1"}, store.released)
	assert.Empty(t, store.dispatched)
}
