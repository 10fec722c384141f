package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
)

// DispatchEnvelope is the message the API publishes when a notification is
// created. The dispatcher claims the record by ID, so redelivery of the same
// envelope is harmless.
type DispatchEnvelope struct {
	MessageID      string    `json:"message_id"`
	NotificationID string    `json:"notification_id"`
	PublishedAt    time.Time `json:"published_at"`
}

// Publisher publishes dispatch triggers to RabbitMQ.
type Publisher struct {
	conn  *amqp.Connection
	queue string
}

func NewPublisher(conn *amqp.Connection, queue string) *Publisher {
	return &Publisher{conn: conn, queue: queue}
}

// PublishDispatch enqueues a trigger for the given notification.
func (p *Publisher) PublishDispatch(notificationID string) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	envelope := DispatchEnvelope{
		MessageID:      uuid.NewString(),
		NotificationID: notificationID,
		PublishedAt:    time.Now().UTC(),
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	return ch.Publish(
		"",      // default exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    envelope.MessageID,
			Body:         body,
		})
}
