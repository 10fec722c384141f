package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(ClientConfig{BaseURL: server.URL}, zerolog.Nop())
}

func TestSendBatch(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/push/send", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var messages []Message
		require.NoError(t, json.NewDecoder(r.Body).Decode(&messages))
		require.Len(t, messages, 2)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []Ticket{
				{Status: StatusOK, ID: "ticket-1"},
				{Status: StatusError, Details: &ErrorDetails{Error: ErrDeviceNotRegistered}},
			},
		})
	})

	tickets, err := client.SendBatch(context.Background(), []Message{
		{To: "ExponentPushToken[a]", Title: "Gate Update", Body: "Gates open at 10am"},
		{To: "ExponentPushToken[b]", Title: "Gate Update", Body: "Gates open at 10am"},
	})
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, "ticket-1", tickets[0].ID)
	assert.Equal(t, ErrDeviceNotRegistered, tickets[1].ErrorReason())
}

func TestSendBatchTicketCountMismatch(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []Ticket{{Status: StatusOK, ID: "ticket-1"}},
		})
	})

	_, err := client.SendBatch(context.Background(), []Message{
		{To: "ExponentPushToken[a]"},
		{To: "ExponentPushToken[b]"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 tickets for 2 messages")
}

func TestSendBatchAPIError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": []map[string]string{{"code": "PUSH_TOO_MANY_REQUESTS", "message": "rate limited"}},
		})
	})

	_, err := client.SendBatch(context.Background(), []Message{{To: "ExponentPushToken[a]"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PUSH_TOO_MANY_REQUESTS")
}

func TestSendBatchTransportError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := client.SendBatch(context.Background(), []Message{{To: "ExponentPushToken[a]"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestSendBatchRespectsProviderLimit(t *testing.T) {
	client := NewClient(ClientConfig{}, zerolog.Nop())

	oversized := make([]Message, SendBatchLimit+1)
	_, err := client.SendBatch(context.Background(), oversized)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds provider limit")
}

func TestFetchReceipts(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/push/getReceipts", r.URL.Path)

		var req struct {
			IDs []string `json:"ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, []string{"ticket-1", "ticket-2"}, req.IDs)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]Receipt{
				"ticket-1": {Status: StatusOK},
				"ticket-2": {Status: StatusError, Details: &ErrorDetails{Error: ErrDeviceNotRegistered}},
			},
		})
	})

	receipts, err := client.FetchReceipts(context.Background(), []string{"ticket-1", "ticket-2"})
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	assert.Equal(t, StatusOK, receipts["ticket-1"].Status)
	assert.Equal(t, ErrDeviceNotRegistered, receipts["ticket-2"].ErrorReason())
}

func TestFetchReceiptsEmpty(t *testing.T) {
	client := NewClient(ClientConfig{}, zerolog.Nop())
	receipts, err := client.FetchReceipts(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, receipts)
}
