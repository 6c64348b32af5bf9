package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/stagebus/stagebus-go/contracts"
	"github.com/stagebus/stagebus-go/internal/rabbitmq"
	"github.com/stagebus/stagebus-go/messaging"
)

// Transport is the RabbitMQ transport: point-to-point delivery through
// the direct exchange and publish/subscribe through the topic exchange,
// with sends staged per transaction and acknowledgements tied to the
// transaction outcome.
type Transport struct {
	provider ConnectionProvider
	cfg      config
	logger   *slog.Logger
	topology *topology
	consumer *consumerManager
	outgoing *outgoingCoordinator
}

var (
	_ messaging.Transport           = (*Transport)(nil)
	_ messaging.SubscriptionStorage = (*Transport)(nil)
)

// NewTransport creates a transport reading from inputQueue. An empty
// inputQueue makes the transport send-only. The configuration is
// validated immediately; an invalid prefetch is a fatal configuration
// error.
func NewTransport(provider ConnectionProvider, inputQueue string, opts ...Option) (*Transport, error) {
	cfg := defaultConfig()
	cfg.inputQueue = inputQueue
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.prefetch < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPrefetch, cfg.prefetch)
	}

	t := &Transport{
		provider: provider,
		cfg:      cfg,
		logger:   cfg.logger,
	}
	t.topology = newTopology(&t.cfg)
	t.consumer = newConsumerManager(provider, &t.cfg, t.logger)
	t.outgoing = newOutgoingCoordinator(provider, &t.cfg, t.topology, t.logger)
	return t, nil
}

// DialTransport connects to the broker and returns a transport backed
// by a managed connection. Connection options configure reconnection
// and client properties.
func DialTransport(ctx context.Context, url, inputQueue string, connOpts []rabbitmq.ConnectionOption, opts ...Option) (*Transport, error) {
	manager := rabbitmq.NewConnectionManager(url, connOpts...)
	if err := manager.Connect(ctx); err != nil {
		return nil, err
	}

	t, err := NewTransport(NewConnectionProvider(manager), inputQueue, opts...)
	if err != nil {
		closeQuietly(manager)
		return nil, err
	}
	return t, nil
}

// Address returns the transport's own input queue name, or an empty
// string for send-only transports.
func (t *Transport) Address() string {
	return t.cfg.inputQueue
}

// Initialize declares the core exchanges and, unless the transport is
// send-only, the input queue and its binding. It must run before the
// first Receive.
func (t *Transport) Initialize(ctx context.Context) error {
	ch, err := t.provider.Channel()
	if err != nil {
		return fmt.Errorf("initialize transport: %w", err)
	}
	defer closeQuietly(ch)

	if err := t.topology.declareCoreExchanges(ch); err != nil {
		return err
	}
	if t.cfg.inputQueue == "" {
		return nil
	}
	if err := t.topology.declareQueue(ch, t.cfg.inputQueue); err != nil {
		return err
	}
	if err := t.topology.bindQueue(ch, t.cfg.inputQueue); err != nil {
		return err
	}

	t.logger.Info("transport initialized",
		"queue", t.cfg.inputQueue,
		"directExchange", t.cfg.directExchange,
		"topicExchange", t.cfg.topicExchange)
	return nil
}

// Send stages a message for the destination inside the transaction.
// Nothing reaches the broker until the transaction commits.
func (t *Transport) Send(ctx context.Context, destination string, msg *contracts.TransportMessage, tx messaging.TxContext) error {
	return t.outgoing.Send(ctx, destination, msg, tx)
}

// Receive dequeues the next message with a bounded wait, returning
// (nil, nil) when nothing arrived within the poll window.
func (t *Transport) Receive(ctx context.Context, tx messaging.TxContext) (*contracts.TransportMessage, error) {
	return t.consumer.Receive(ctx, tx)
}

// CreateQueueTopology provisions the queue and bindings for an
// arbitrary destination address, e.g. from provisioning tooling.
func (t *Transport) CreateQueueTopology(ctx context.Context, address string) error {
	addr, err := ParseAddress(address)
	if err != nil {
		return err
	}

	ch, err := t.provider.Channel()
	if err != nil {
		return fmt.Errorf("create queue topology for %s: %w", address, err)
	}
	defer closeQuietly(ch)

	if err := t.topology.declareCoreExchanges(ch); err != nil {
		return err
	}
	if err := t.topology.declareQueue(ch, addr.RoutingKey); err != nil {
		return err
	}
	return t.topology.bindQueue(ch, addr.RoutingKey)
}

// PurgeInputQueue drops all messages from the input queue. A queue that
// does not exist is treated as success.
func (t *Transport) PurgeInputQueue(ctx context.Context) error {
	if t.cfg.inputQueue == "" {
		return ErrNoInputQueue
	}

	ch, err := t.provider.Channel()
	if err != nil {
		return fmt.Errorf("purge queue %s: %w", t.cfg.inputQueue, err)
	}
	defer closeQuietly(ch)

	if _, err := ch.QueuePurge(t.cfg.inputQueue, false); err != nil {
		var amqpErr *amqp.Error
		if errors.As(err, &amqpErr) && amqpErr.Code == amqp.NotFound {
			return nil
		}
		return &rabbitmq.TopologyError{
			Component: "queue",
			Name:      t.cfg.inputQueue,
			Op:        "purge",
			Err:       err,
			Timestamp: time.Now(),
		}
	}
	return nil
}

// Close releases the active consumer's channel and the connection.
func (t *Transport) Close() error {
	t.consumer.Close()
	return t.provider.Close()
}
