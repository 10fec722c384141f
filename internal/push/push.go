package push

import "strings"

// Limits documented by the Expo push API.
const (
	// SendBatchLimit is the maximum number of messages accepted by one
	// /push/send request.
	SendBatchLimit = 100
	// ReceiptBatchLimit is the maximum number of ticket IDs accepted by one
	// /push/getReceipts request.
	ReceiptBatchLimit = 300
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ErrDeviceNotRegistered is the provider's reason string for a token that is
// permanently undeliverable. Tokens reported with it must be dropped from the
// directory.
const ErrDeviceNotRegistered = "DeviceNotRegistered"

// Message is one outbound push message in the provider's wire shape.
type Message struct {
	To       string            `json:"to"`
	Title    string            `json:"title,omitempty"`
	Body     string            `json:"body,omitempty"`
	Sound    string            `json:"sound,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
	Priority string            `json:"priority,omitempty"`
}

// ErrorDetails carries the provider's machine-readable failure reason.
type ErrorDetails struct {
	Error string `json:"error,omitempty"`
}

// Ticket is the provider's immediate response to one submitted message.
// Tickets are index-aligned with the submitted batch.
type Ticket struct {
	Status  string        `json:"status"`
	ID      string        `json:"id,omitempty"`
	Message string        `json:"message,omitempty"`
	Details *ErrorDetails `json:"details,omitempty"`
}

// Receipt is the provider's final delivery outcome for one ticket.
type Receipt struct {
	Status  string        `json:"status"`
	Message string        `json:"message,omitempty"`
	Details *ErrorDetails `json:"details,omitempty"`
}

// ErrorReason extracts the failure reason from a ticket, preferring the
// structured details over the human-readable message.
func (t Ticket) ErrorReason() string {
	if t.Details != nil && t.Details.Error != "" {
		return t.Details.Error
	}
	return t.Message
}

func (r Receipt) ErrorReason() string {
	if r.Details != nil && r.Details.Error != "" {
		return r.Details.Error
	}
	return r.Message
}

// IsExpoPushToken reports whether token has the provider's address format.
// No network call is made.
func IsExpoPushToken(token string) bool {
	token = strings.TrimSpace(token)
	if !strings.HasSuffix(token, "]") {
		return false
	}
	var body string
	switch {
	case strings.HasPrefix(token, "ExponentPushToken["):
		body = token[len("ExponentPushToken[") : len(token)-1]
	case strings.HasPrefix(token, "ExpoPushToken["):
		body = token[len("ExpoPushToken[") : len(token)-1]
	default:
		return false
	}
	return body != ""
}

// Chunk partitions messages into batches no larger than SendBatchLimit.
// Concatenating the chunks in order reproduces the input exactly.
func Chunk(messages []Message) [][]Message {
	return chunkMessages(messages, SendBatchLimit)
}

func chunkMessages(messages []Message, size int) [][]Message {
	if len(messages) == 0 {
		return nil
	}
	chunks := make([][]Message, 0, (len(messages)+size-1)/size)
	for start := 0; start < len(messages); start += size {
		end := start + size
		if end > len(messages) {
			end = len(messages)
		}
		chunks = append(chunks, messages[start:end])
	}
	return chunks
}

// ChunkReceiptIDs partitions ticket IDs into batches no larger than
// ReceiptBatchLimit.
func ChunkReceiptIDs(ids []string) [][]string {
	if len(ids) == 0 {
		return nil
	}
	size := ReceiptBatchLimit
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
