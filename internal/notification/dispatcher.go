package notification

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/festra/festra-api/internal/models"
	"github.com/festra/festra-api/internal/push"
	"github.com/festra/festra-api/internal/repository"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Dispatcher fans one notification out to every targeted device token and
// records a pending receipt per accepted ticket.
type Dispatcher struct {
	users    TokenDirectory
	receipts ReceiptStore
	gateway  Gateway
	logger   zerolog.Logger
}

func NewDispatcher(users TokenDirectory, receipts ReceiptStore, gateway Gateway, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		users:    users,
		receipts: receipts,
		gateway:  gateway,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// outbound pairs a provider message with the token and user it targets, so
// ticket failures are attributed without re-deriving anything by position
// across pipeline stages. Within one chunk the provider's tickets are still
// parallel to the submitted messages; that alignment is the provider contract.
type outbound struct {
	message push.Message
	token   string
	userID  string
}

// Dispatch sends one notification to all matching tokens. Empty title/body
// and an empty recipient set are no-ops, not errors. Chunk submission
// failures are absorbed; only a token-directory read failure is returned.
func (d *Dispatcher) Dispatch(ctx context.Context, notif models.Notification) (Summary, error) {
	logger := d.logger.With().Str("notification_id", notif.ID).Logger()

	if strings.TrimSpace(notif.Title) == "" || strings.TrimSpace(notif.Body) == "" {
		logger.Info().Msg("skipping notification with empty title or body")
		return Summary{}, nil
	}

	tokens, err := d.users.ListPushTokens(ctx)
	if err != nil {
		return Summary{}, errors.Wrap(err, "load device tokens")
	}

	targets := filterTokens(tokens, notif.TargetGroups)
	if len(targets) == 0 {
		logger.Info().Msg("no deliverable tokens for notification")
		return Summary{}, nil
	}

	data := buildData(notif)
	envelopes := make([]outbound, 0, len(targets))
	for _, target := range targets {
		msg := push.Message{
			To:    target.Token,
			Title: notif.Title,
			Body:  notif.Body,
			Sound: "default",
			Data:  data,
		}
		if notif.Priority == models.NotificationPriorityHigh {
			msg.Priority = "high"
		}
		envelopes = append(envelopes, outbound{message: msg, token: target.Token, userID: target.UserID})
	}

	var summary Summary
	for i, chunk := range chunkEnvelopes(envelopes, push.SendBatchLimit) {
		summary.add(d.submitChunk(ctx, logger, notif.ID, i, chunk))
	}

	logger.Info().
		Int("sent", summary.Sent).
		Int("failed", summary.Failed).
		Msg("notification dispatched")
	return summary, nil
}

// submitChunk sends one chunk and persists its receipts. A transport error
// marks the whole chunk failed without touching sibling chunks.
func (d *Dispatcher) submitChunk(ctx context.Context, logger zerolog.Logger, notificationID string, index int, chunk []outbound) Summary {
	messages := make([]push.Message, len(chunk))
	for i, env := range chunk {
		messages[i] = env.message
	}

	tickets, err := d.gateway.SendBatch(ctx, messages)
	if err != nil {
		logger.Warn().Err(err).Int("chunk", index).Int("size", len(chunk)).Msg("chunk submission failed")
		return Summary{Failed: len(chunk)}
	}
	if len(tickets) != len(chunk) {
		logger.Error().Int("chunk", index).Int("tickets", len(tickets)).Int("messages", len(chunk)).
			Msg("ticket count does not match submitted messages")
		return Summary{Failed: len(chunk)}
	}

	var summary Summary
	var pending []repository.CreateReceiptParams
	for i, ticket := range tickets {
		env := chunk[i]
		if ticket.Status == push.StatusOK && ticket.ID != "" {
			summary.Sent++
			pending = append(pending, repository.CreateReceiptParams{
				NotificationID: notificationID,
				ReceiptID:      ticket.ID,
				Token:          env.token,
			})
			continue
		}

		summary.Failed++
		reason := ticket.ErrorReason()
		logger.Warn().
			Str("user_id", env.userID).
			Str("reason", reason).
			Msg("provider rejected message at submission")

		// The provider already knows the device is gone; drop the token
		// now instead of waiting for the reconciler.
		if reason == push.ErrDeviceNotRegistered {
			if err := d.users.ClearPushTokenByValue(ctx, env.token); err != nil {
				logger.Error().Err(err).Str("user_id", env.userID).Msg("failed to clear dead token")
			}
		}
	}

	if len(pending) > 0 {
		if err := d.receipts.CreateBatch(ctx, pending); err != nil {
			logger.Error().Err(err).Int("chunk", index).Int("count", len(pending)).
				Msg("failed to persist pending receipts")
		}
	}
	return summary
}

// filterTokens drops malformed tokens and applies the group filter. An empty
// targetGroups set means broadcast.
func filterTokens(tokens []models.DeviceToken, targetGroups []string) []models.DeviceToken {
	groups := make(map[string]bool, len(targetGroups))
	for _, group := range targetGroups {
		if trimmed := strings.TrimSpace(group); trimmed != "" {
			groups[trimmed] = true
		}
	}

	var targets []models.DeviceToken
	for _, token := range tokens {
		if !push.IsExpoPushToken(token.Token) {
			continue
		}
		if len(groups) > 0 {
			group := token.Group
			if group == "" {
				group = models.DefaultCategory
			}
			if !groups[group] {
				continue
			}
		}
		targets = append(targets, token)
	}
	return targets
}

// buildData flattens the notification payload into the string-valued map the
// provider requires. Non-string values are JSON-encoded; nil entries dropped.
func buildData(notif models.Notification) map[string]string {
	category := strings.TrimSpace(notif.Category)
	if category == "" {
		category = models.DefaultCategory
	}
	data := map[string]string{
		"id":       notif.ID,
		"category": category,
	}
	for key, value := range notif.Payload {
		if value == nil {
			continue
		}
		if s, ok := value.(string); ok {
			data[key] = s
			continue
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			continue
		}
		data[key] = string(encoded)
	}
	return data
}

func chunkEnvelopes(envelopes []outbound, size int) [][]outbound {
	if len(envelopes) == 0 {
		return nil
	}
	chunks := make([][]outbound, 0, (len(envelopes)+size-1)/size)
	for start := 0; start < len(envelopes); start += size {
		end := start + size
		if end > len(envelopes) {
			end = len(envelopes)
		}
		chunks = append(chunks, envelopes[start:end])
	}
	return chunks
}

func (s *Summary) add(other Summary) {
	s.Sent += other.Sent
	s.Failed += other.Failed
}
