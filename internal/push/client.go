package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const defaultBaseURL = "https://exp.host/--/api/v2"

// Client talks to the Expo push HTTP API. It carries no pipeline logic; the
// dispatcher and reconciler consume it through the notification.Gateway
// interface so tests can substitute a fake.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	logger      zerolog.Logger
}

type ClientConfig struct {
	BaseURL     string
	AccessToken string
	Timeout     time.Duration
}

func NewClient(cfg ClientConfig, logger zerolog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:     baseURL,
		accessToken: cfg.AccessToken,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger.With().Str("component", "push_client").Logger(),
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type sendResponse struct {
	Data   []Ticket   `json:"data"`
	Errors []apiError `json:"errors"`
}

type receiptsRequest struct {
	IDs []string `json:"ids"`
}

type receiptsResponse struct {
	Data   map[string]Receipt `json:"data"`
	Errors []apiError         `json:"errors"`
}

// SendBatch submits one chunk of messages and returns the provider tickets.
// The returned slice is index-aligned with messages; callers attribute
// per-message failures by position.
func (c *Client) SendBatch(ctx context.Context, messages []Message) ([]Ticket, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	if len(messages) > SendBatchLimit {
		return nil, fmt.Errorf("batch of %d exceeds provider limit of %d", len(messages), SendBatchLimit)
	}

	var resp sendResponse
	if err := c.post(ctx, "/push/send", messages, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, errors.Errorf("push send rejected: %s: %s", resp.Errors[0].Code, resp.Errors[0].Message)
	}
	if len(resp.Data) != len(messages) {
		return nil, errors.Errorf("push send returned %d tickets for %d messages", len(resp.Data), len(messages))
	}
	return resp.Data, nil
}

// FetchReceipts resolves ticket IDs to delivery receipts. IDs the provider has
// not settled yet are absent from the returned map.
func (c *Client) FetchReceipts(ctx context.Context, ids []string) (map[string]Receipt, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > ReceiptBatchLimit {
		return nil, fmt.Errorf("receipt batch of %d exceeds provider limit of %d", len(ids), ReceiptBatchLimit)
	}

	var resp receiptsResponse
	if err := c.post(ctx, "/push/getReceipts", receiptsRequest{IDs: ids}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, errors.Errorf("push receipts rejected: %s: %s", resp.Errors[0].Code, resp.Errors[0].Message)
	}
	return resp.Data, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal push request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build push request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "push request %s", path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "read push response")
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("push request %s failed with status %d: %s", path, resp.StatusCode, truncate(raw, 256))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, "decode push response")
	}
	return nil
}

func truncate(raw []byte, max int) string {
	if len(raw) <= max {
		return string(raw)
	}
	return string(raw[:max]) + "..."
}
