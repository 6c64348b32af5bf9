package rabbitmq

import (
	"context"
	"io"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/stagebus/stagebus-go/internal/rabbitmq"
)

// Channel is the slice of *amqp.Channel the transport uses. Channels
// are not safe for unsynchronized concurrent use; the transport gives
// each consumer and each transaction its own.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	QueueUnbind(name, key, exchange string, args amqp.Table) error
	QueuePurge(name string, noWait bool) (int, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// ConnectionProvider hands out broker channels. Implementations must be
// safe for concurrent use and may reconnect internally.
type ConnectionProvider interface {
	// Channel opens a fresh channel on the current connection.
	Channel() (Channel, error)

	// Close releases the underlying connection.
	Close() error
}

// managedProvider adapts the internal connection manager to the
// ConnectionProvider contract.
type managedProvider struct {
	manager *rabbitmq.ConnectionManager
}

// NewConnectionProvider wraps a connection manager as a
// ConnectionProvider.
func NewConnectionProvider(manager *rabbitmq.ConnectionManager) ConnectionProvider {
	return &managedProvider{manager: manager}
}

func (p *managedProvider) Channel() (Channel, error) {
	conn, err := p.manager.GetConnection()
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (p *managedProvider) Close() error {
	return p.manager.Close()
}

// closeQuietly releases a resource and ignores secondary failures. This
// is the uniform teardown policy: at every release point the resource
// may already be gone, and there is no corrective action available.
func closeQuietly(c io.Closer) {
	if c == nil {
		return
	}
	_ = c.Close()
}
