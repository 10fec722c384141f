package queue

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/streadway/amqp"
)

// Manager maintains a single AMQP connection and declares the dispatch
// topology before anything publishes or consumes.
type Manager struct {
	url  string
	conn *amqp.Connection
	mu   sync.RWMutex
}

func NewManager(url string) (*Manager, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial rabbitmq")
	}
	return &Manager{url: url, conn: conn}, nil
}

func (m *Manager) Connection() *amqp.Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn
}

func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}

// DeclareDispatchTopology ensures the dispatch queue exists.
func (m *Manager) DeclareDispatchTopology(queue string) error {
	ch, err := m.Connection().Channel()
	if err != nil {
		return errors.Wrap(err, "open channel")
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		return errors.Wrapf(err, "declare queue %s", queue)
	}
	return nil
}
