package rabbitmq

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Fakes over the Channel and ConnectionProvider interfaces. They record
// every broker call so tests can assert on what would have reached the
// wire.

type declaredExchange struct {
	name, kind string
	durable    bool
}

type declaredQueue struct {
	name       string
	durable    bool
	autoDelete bool
	exclusive  bool
	args       amqp.Table
}

type recordedBinding struct {
	queue, key, exchange string
}

type recordedPublish struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	mu     sync.Mutex
	closed bool

	exchanges []declaredExchange
	queues    []declaredQueue
	binds     []recordedBinding
	unbinds   []recordedBinding
	purges    []string
	publishes []recordedPublish
	qosCounts []int

	deliveries chan amqp.Delivery

	declareErr error
	bindErr    error
	qosErr     error
	consumeErr error
	publishErr error
	purgeErr   error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery, 16)}
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.declareErr != nil {
		return c.declareErr
	}
	c.exchanges = append(c.exchanges, declaredExchange{name: name, kind: kind, durable: durable})
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.declareErr != nil {
		return amqp.Queue{}, c.declareErr
	}
	c.queues = append(c.queues, declaredQueue{name: name, durable: durable, autoDelete: autoDelete, exclusive: exclusive, args: args})
	return amqp.Queue{Name: name}, nil
}

func (c *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bindErr != nil {
		return c.bindErr
	}
	c.binds = append(c.binds, recordedBinding{queue: name, key: key, exchange: exchange})
	return nil
}

func (c *fakeChannel) QueueUnbind(name, key, exchange string, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unbinds = append(c.unbinds, recordedBinding{queue: name, key: key, exchange: exchange})
	return nil
}

func (c *fakeChannel) QueuePurge(name string, noWait bool) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.purgeErr != nil {
		return 0, c.purgeErr
	}
	c.purges = append(c.purges, name)
	return 0, nil
}

func (c *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.qosErr != nil {
		return c.qosErr
	}
	c.qosCounts = append(c.qosCounts, prefetchCount)
	return nil
}

func (c *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.consumeErr != nil {
		return nil, c.consumeErr
	}
	return c.deliveries, nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.publishes = append(c.publishes, recordedPublish{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeChannel) recordedPublishes() []recordedPublish {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]recordedPublish(nil), c.publishes...)
}

func (c *fakeChannel) recordedQueues() []declaredQueue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]declaredQueue(nil), c.queues...)
}

func (c *fakeChannel) recordedBinds() []recordedBinding {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]recordedBinding(nil), c.binds...)
}

type fakeProvider struct {
	mu         sync.Mutex
	channels   []*fakeChannel
	channelErr error
	closed     bool
	newChannel func() *fakeChannel
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{}
}

func (p *fakeProvider) Channel() (Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channelErr != nil {
		return nil, p.channelErr
	}
	ch := newFakeChannel()
	if p.newChannel != nil {
		ch = p.newChannel()
	}
	p.channels = append(p.channels, ch)
	return ch, nil
}

func (p *fakeProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakeProvider) created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.channels)
}

func (p *fakeProvider) channelAt(i int) *fakeChannel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channels[i]
}

type fakeAcknowledger struct {
	mu       sync.Mutex
	acks     int
	nacks    int
	rejects  int
	requeues []bool
	ackErr   error
	nackErr  error
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ackErr != nil {
		return a.ackErr
	}
	a.acks++
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.nackErr != nil {
		return a.nackErr
	}
	a.nacks++
	a.requeues = append(a.requeues, requeue)
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejects++
	return nil
}

func (a *fakeAcknowledger) counts() (acks, nacks int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acks, a.nacks
}
