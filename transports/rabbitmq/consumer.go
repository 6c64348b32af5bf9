package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/stagebus/stagebus-go/contracts"
	"github.com/stagebus/stagebus-go/internal/rabbitmq"
	"github.com/stagebus/stagebus-go/messaging"
)

// ErrNoInputQueue is returned by Receive on a send-only transport.
var ErrNoInputQueue = errors.New("rabbitmq transport: transport has no input queue")

// receivePollTimeout bounds how long a single Receive waits for a
// delivery before reporting "no message".
var receivePollTimeout = 2 * time.Second

// consumerHandle owns one broker channel with an active consumer
// registered against the input queue.
type consumerHandle struct {
	channel    Channel
	deliveries <-chan amqp.Delivery
	tag        string
}

// consumerManager keeps the single live consumer for the transport's
// input queue: lazily created on first Receive, discarded when the
// channel fails, recreated on the next call. The mutex guards only the
// create-or-replace decision, never the blocking dequeue.
type consumerManager struct {
	provider ConnectionProvider
	cfg      *config
	logger   *slog.Logger

	mu     sync.Mutex
	handle *consumerHandle

	retryMu sync.Mutex
	retry   *backoff.ExponentialBackOff
}

func newConsumerManager(provider ConnectionProvider, cfg *config, logger *slog.Logger) *consumerManager {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 250 * time.Millisecond
	retry.MaxInterval = 5 * time.Second
	retry.MaxElapsedTime = 0 // the pause is throttling, not a deadline

	return &consumerManager{
		provider: provider,
		cfg:      cfg,
		logger:   logger,
		retry:    retry,
	}
}

// Receive waits up to the poll timeout for a delivery. It returns
// (nil, nil) when nothing arrived, so callers can poll again or exit
// cleanly. A dequeued delivery is acknowledged on transaction commit
// and requeued on abort.
func (m *consumerManager) Receive(ctx context.Context, tx messaging.TxContext) (*contracts.TransportMessage, error) {
	if m.cfg.inputQueue == "" {
		return nil, ErrNoInputQueue
	}

	handle, err := m.active(ctx)
	if err != nil {
		return nil, m.receiveError("create consumer", "", err)
	}

	if handle.channel.IsClosed() {
		m.invalidate(handle)
		m.pause(ctx)
		return nil, m.receiveError("receive", handle.tag, rabbitmq.ErrChannelClosed)
	}

	select {
	case delivery, ok := <-handle.deliveries:
		if !ok {
			m.invalidate(handle)
			m.pause(ctx)
			return nil, m.receiveError("receive", handle.tag, rabbitmq.ErrConsumerCancelled)
		}

		// Ack and nack are best effort: the delivery may already be
		// unreachable by the time the transaction completes.
		tx.OnCommitted(func(context.Context) error {
			_ = delivery.Ack(false)
			return nil
		})
		tx.OnAborted(func(context.Context) {
			_ = delivery.Nack(false, true)
		})
		return messageFromDelivery(delivery), nil

	case <-time.After(receivePollTimeout):
		return nil, nil

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// active returns the live consumer handle, creating it when absent.
// Exactly one caller performs creation; concurrent callers wait behind
// the lock. A failed creation pauses briefly before surfacing, to avoid
// hot-looping against a broken broker.
func (m *consumerManager) active(ctx context.Context) (*consumerHandle, error) {
	m.mu.Lock()
	if m.handle != nil {
		handle := m.handle
		m.mu.Unlock()
		return handle, nil
	}

	handle, err := m.create()
	if err != nil {
		m.mu.Unlock()
		m.pause(ctx)
		return nil, err
	}
	m.handle = handle
	m.mu.Unlock()

	m.resetPause()
	m.logger.Info("consumer created",
		"queue", m.cfg.inputQueue,
		"consumerTag", handle.tag,
		"prefetch", m.cfg.prefetch)
	return handle, nil
}

func (m *consumerManager) create() (*consumerHandle, error) {
	ch, err := m.provider.Channel()
	if err != nil {
		return nil, err
	}

	if err := ch.Qos(m.cfg.prefetch, 0, false); err != nil {
		closeQuietly(ch)
		return nil, fmt.Errorf("set qos: %w", err)
	}

	tag := "stagebus-" + uuid.NewString()
	deliveries, err := ch.Consume(m.cfg.inputQueue, tag, false, false, false, false, nil)
	if err != nil {
		closeQuietly(ch)
		return nil, fmt.Errorf("start consuming: %w", err)
	}

	return &consumerHandle{
		channel:    ch,
		deliveries: deliveries,
		tag:        tag,
	}, nil
}

// invalidate discards a failed handle so the next Receive recreates it.
// Only the handle that was actually current is dropped; a caller
// holding a stale handle must not clobber its replacement.
func (m *consumerManager) invalidate(handle *consumerHandle) {
	m.mu.Lock()
	if m.handle == handle {
		m.handle = nil
	}
	m.mu.Unlock()

	closeQuietly(handle.channel)
	m.logger.Warn("consumer invalidated",
		"queue", m.cfg.inputQueue,
		"consumerTag", handle.tag)
}

// Close releases the active consumer's channel.
func (m *consumerManager) Close() {
	m.mu.Lock()
	handle := m.handle
	m.handle = nil
	m.mu.Unlock()

	if handle != nil {
		closeQuietly(handle.channel)
	}
}

// pause throttles retry storms after a consumer failure.
func (m *consumerManager) pause(ctx context.Context) {
	m.retryMu.Lock()
	delay := m.retry.NextBackOff()
	m.retryMu.Unlock()

	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}

func (m *consumerManager) resetPause() {
	m.retryMu.Lock()
	m.retry.Reset()
	m.retryMu.Unlock()
}

func (m *consumerManager) receiveError(op, tag string, err error) error {
	return &rabbitmq.ConsumerError{
		Queue:       m.cfg.inputQueue,
		ConsumerTag: tag,
		Op:          op,
		Err:         err,
		Timestamp:   time.Now(),
	}
}

// messageFromDelivery translates a broker delivery into a transport
// message. Header values arriving as raw bytes are decoded here, once;
// already-decoded values pass through verbatim.
func messageFromDelivery(delivery amqp.Delivery) *contracts.TransportMessage {
	headers := make(map[string]contracts.HeaderValue, len(delivery.Headers))
	for name, value := range delivery.Headers {
		switch v := value.(type) {
		case []byte:
			headers[name] = contracts.BytesHeader(v)
		case string:
			headers[name] = contracts.TextHeader(v)
		default:
			headers[name] = contracts.TextHeader(fmt.Sprint(v))
		}
	}
	return &contracts.TransportMessage{
		Headers: headers,
		Body:    delivery.Body,
	}
}
