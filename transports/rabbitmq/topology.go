package rabbitmq

import (
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/stagebus/stagebus-go/internal/rabbitmq"
)

// haQueueArgs asks the broker to replicate declared queues across the
// cluster.
var haQueueArgs = amqp.Table{"x-ha-policy": "all"}

// topology declares exchanges, queues and bindings, and memoizes which
// destinations have already been provisioned in this process. All
// declare and bind calls are idempotent on the broker side, so the
// memoization is a performance optimization only.
type topology struct {
	cfg         *config
	provisioned sync.Map // queue name -> *provisionState
}

type provisionState struct {
	mu   sync.Mutex
	done bool
}

func newTopology(cfg *config) *topology {
	return &topology{cfg: cfg}
}

// declareCoreExchanges declares the durable direct and topic exchanges,
// unless exchange declaration is disabled.
func (t *topology) declareCoreExchanges(ch Channel) error {
	if !t.cfg.declareExchanges {
		return nil
	}
	if err := ch.ExchangeDeclare(t.cfg.directExchange, "direct", true, false, false, false, nil); err != nil {
		return &rabbitmq.TopologyError{Component: "exchange", Name: t.cfg.directExchange, Op: "declare", Err: err, Timestamp: time.Now()}
	}
	if err := ch.ExchangeDeclare(t.cfg.topicExchange, "topic", true, false, false, false, nil); err != nil {
		return &rabbitmq.TopologyError{Component: "exchange", Name: t.cfg.topicExchange, Op: "declare", Err: err, Timestamp: time.Now()}
	}
	return nil
}

// declareQueue declares a durable, non-exclusive, non-auto-delete queue
// with the high-availability argument, unless queue declaration is
// disabled.
func (t *topology) declareQueue(ch Channel, queue string) error {
	if !t.cfg.declareInputQueue {
		return nil
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, haQueueArgs); err != nil {
		return &rabbitmq.TopologyError{Component: "queue", Name: queue, Op: "declare", Err: err, Timestamp: time.Now()}
	}
	return nil
}

// bindQueue binds a queue to the direct exchange with the queue name as
// routing key, unless queue binding is disabled.
func (t *topology) bindQueue(ch Channel, queue string) error {
	if !t.cfg.bindInputQueue {
		return nil
	}
	if err := ch.QueueBind(queue, queue, t.cfg.directExchange, false, nil); err != nil {
		return &rabbitmq.TopologyError{Component: "binding", Name: queue, Op: "bind", Err: err, Timestamp: time.Now()}
	}
	return nil
}

// ensureDestinationProvisioned declares and binds the destination queue
// once per process, so point-to-point senders never publish into a
// routing key with no bound queue. A failed attempt is retried on the
// next call; only success is memoized.
func (t *topology) ensureDestinationProvisioned(ch Channel, queue string) error {
	cell, _ := t.provisioned.LoadOrStore(queue, &provisionState{})
	state := cell.(*provisionState)

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.done {
		return nil
	}
	if err := t.declareQueue(ch, queue); err != nil {
		return err
	}
	if err := t.bindQueue(ch, queue); err != nil {
		return err
	}
	state.done = true
	return nil
}
