package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/stagebus/stagebus-go/contracts"
	"github.com/stagebus/stagebus-go/internal/rabbitmq"
	"github.com/stagebus/stagebus-go/messaging"
)

// Transaction item-store keys owned by the outgoing coordinator.
const (
	outgoingMessagesKey = "stagebus-outgoing-messages"
	outgoingChannelKey  = "stagebus-outgoing-channel"
)

// outgoingMessage pairs a parsed destination with the message staged
// for it. Lifetime is one transaction.
type outgoingMessage struct {
	destination Address
	message     *contracts.TransportMessage
}

// stagedQueue is the per-transaction ordered collection of outgoing
// messages.
type stagedQueue struct {
	mu    sync.Mutex
	items []outgoingMessage
}

func (q *stagedQueue) append(out outgoingMessage) {
	q.mu.Lock()
	q.items = append(q.items, out)
	q.mu.Unlock()
}

func (q *stagedQueue) drain() []outgoingMessage {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()
	return items
}

// outgoingCoordinator accumulates outgoing messages per transaction and
// flushes them to the broker exactly once, when the transaction
// commits. No broker interaction happens at Send time.
type outgoingCoordinator struct {
	provider ConnectionProvider
	cfg      *config
	topology *topology
	logger   *slog.Logger
}

func newOutgoingCoordinator(provider ConnectionProvider, cfg *config, topology *topology, logger *slog.Logger) *outgoingCoordinator {
	return &outgoingCoordinator{
		provider: provider,
		cfg:      cfg,
		topology: topology,
		logger:   logger,
	}
}

// Send stages a message for the destination inside the transaction.
func (c *outgoingCoordinator) Send(ctx context.Context, destination string, msg *contracts.TransportMessage, tx messaging.TxContext) error {
	addr, err := ParseAddress(destination)
	if err != nil {
		return err
	}
	c.staged(tx).append(outgoingMessage{destination: addr, message: msg})
	return nil
}

// staged returns the transaction's outgoing queue, registering the
// flush commit hook on first use.
func (c *outgoingCoordinator) staged(tx messaging.TxContext) *stagedQueue {
	value := tx.GetOrAdd(outgoingMessagesKey, func() any {
		queue := &stagedQueue{}
		tx.OnCommitted(func(ctx context.Context) error {
			return c.flush(ctx, tx, queue)
		})
		return queue
	})
	return value.(*stagedQueue)
}

// flush publishes the staged messages in staging order on the
// transaction-scoped channel. The first publish failure aborts the
// remainder and surfaces as a commit failure.
func (c *outgoingCoordinator) flush(ctx context.Context, tx messaging.TxContext, queue *stagedQueue) error {
	items := queue.drain()
	if len(items) == 0 {
		return nil
	}

	ch, err := c.transactionChannel(tx)
	if err != nil {
		return fmt.Errorf("open outgoing channel: %w", err)
	}

	for _, out := range items {
		publishing, err := buildPublishing(out.message)
		if err != nil {
			return c.publishError(out.destination, err)
		}

		exchange := out.destination.Exchange
		if exchange == "" {
			exchange = c.cfg.directExchange
		}

		// Point-to-point sends must never publish into a routing key
		// with no bound queue.
		if exchange == c.cfg.directExchange {
			if err := c.topology.ensureDestinationProvisioned(ch, out.destination.RoutingKey); err != nil {
				return err
			}
		}

		if err := ch.PublishWithContext(ctx, exchange, out.destination.RoutingKey, false, false, publishing); err != nil {
			return c.publishError(out.destination, err)
		}
	}

	c.logger.Debug("flushed outgoing messages", "count", len(items))
	return nil
}

// transactionChannel returns the transaction-scoped channel, opening it
// on first use and registering its release on transaction disposal.
func (c *outgoingCoordinator) transactionChannel(tx messaging.TxContext) (Channel, error) {
	type channelResult struct {
		ch  Channel
		err error
	}

	value := tx.GetOrAdd(outgoingChannelKey, func() any {
		ch, err := c.provider.Channel()
		if err != nil {
			return channelResult{err: err}
		}
		tx.OnDisposed(func() {
			closeQuietly(ch)
		})
		return channelResult{ch: ch}
	})

	result := value.(channelResult)
	return result.ch, result.err
}

func (c *outgoingCoordinator) publishError(addr Address, err error) error {
	exchange := addr.Exchange
	if exchange == "" {
		exchange = c.cfg.directExchange
	}
	return &rabbitmq.PublishError{
		Exchange:   exchange,
		RoutingKey: addr.RoutingKey,
		Err:        err,
		Timestamp:  time.Now(),
	}
}

// buildPublishing maps a transport message onto broker message
// properties: string headers encoded to bytes, the time-to-live header
// as a whole-millisecond expiration, persistent delivery unless the
// message is marked express, and a sniffed content type when none is
// set.
func buildPublishing(msg *contracts.TransportMessage) (amqp.Publishing, error) {
	headers := make(amqp.Table, len(msg.Headers))
	for name, value := range msg.Headers {
		headers[name] = value.Bytes()
	}

	publishing := amqp.Publishing{
		Headers:      headers,
		Body:         msg.Body,
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID(),
	}

	if contentType, ok := msg.Header(contracts.HeaderContentType); ok {
		publishing.ContentType = contentType
	} else if len(msg.Body) > 0 {
		publishing.ContentType = mimetype.Detect(msg.Body).String()
	}

	if ttl, ok := msg.Header(contracts.HeaderTimeToLive); ok {
		ms, err := ttlMilliseconds(ttl)
		if err != nil {
			return amqp.Publishing{}, fmt.Errorf("invalid %s header %q: %w", contracts.HeaderTimeToLive, ttl, err)
		}
		publishing.Expiration = strconv.FormatInt(ms, 10)
	}

	if _, ok := msg.Header(contracts.HeaderExpress); ok {
		publishing.DeliveryMode = amqp.Transient
	}

	return publishing, nil
}

// ttlMilliseconds parses a time-to-live header value: either a bare
// integer millisecond count or a duration string such as "5s".
func ttlMilliseconds(value string) (int64, error) {
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return ms, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	return d.Milliseconds(), nil
}
