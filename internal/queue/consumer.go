package queue

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

// DispatchHandler claims and dispatches one notification by ID.
type DispatchHandler interface {
	DispatchByID(ctx context.Context, notificationID string) error
}

// Consumer turns dispatch envelopes into dispatch invocations. It is the
// prompt trigger path; the polling worker sweeps up anything the broker
// drops.
type Consumer struct {
	conn    *amqp.Connection
	queue   string
	handler DispatchHandler
	logger  zerolog.Logger
}

func NewConsumer(conn *amqp.Connection, queue string, handler DispatchHandler, logger zerolog.Logger) *Consumer {
	return &Consumer{
		conn:    conn,
		queue:   queue,
		handler: handler,
		logger:  logger.With().Str("component", "dispatch_consumer").Logger(),
	}
}

// Start consumes until ctx is cancelled or the channel closes.
func (c *Consumer) Start(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	deliveries, err := ch.Consume(
		c.queue,
		"",    // consumer tag
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return err
	}

	c.logger.Info().Str("queue", c.queue).Msg("dispatch consumer started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("dispatch consumer stopped")
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn().Msg("dispatch channel closed")
				return nil
			}
			c.handle(ctx, delivery)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, delivery amqp.Delivery) {
	var envelope DispatchEnvelope
	if err := json.Unmarshal(delivery.Body, &envelope); err != nil {
		c.logger.Error().Err(err).Msg("malformed dispatch envelope; dropping")
		delivery.Nack(false, false)
		return
	}

	if err := c.handler.DispatchByID(ctx, envelope.NotificationID); err != nil {
		c.logger.Error().Err(err).
			Str("notification_id", envelope.NotificationID).
			Msg("dispatch failed; leaving record for the sweep worker")
	}
	// Ack either way: the claimed-status sweep retries transient failures,
	// so broker redelivery would only add noise.
	delivery.Ack(false)
}
