package rabbitmq

import (
	"context"
	"time"

	"github.com/stagebus/stagebus-go/internal/rabbitmq"
)

// Subscriptions are stored centrally on the broker: a subscriber is a
// binding from its own input queue to the shared topic exchange, so any
// transport instance can compute subscriber addresses from the topic
// name alone.

// SubscriberAddresses returns the single synthetic address
// "topic@<topicExchange>". Publishing to it routes onto the topic
// exchange with the topic as routing key; fan-out is performed by the
// broker's bindings.
func (t *Transport) SubscriberAddresses(ctx context.Context, topic string) ([]string, error) {
	addr := Address{Exchange: t.cfg.topicExchange, RoutingKey: topic}
	return []string{addr.String()}, nil
}

// RegisterSubscriber binds this transport's input queue to the topic
// exchange with the topic as binding key. The subscriber address is
// informational only: every subscriber manages the binding for its own
// queue.
func (t *Transport) RegisterSubscriber(ctx context.Context, topic, subscriberAddress string) error {
	if t.cfg.inputQueue == "" {
		return ErrNoInputQueue
	}

	ch, err := t.provider.Channel()
	if err != nil {
		return t.subscriptionError(topic, "bind", err)
	}
	defer closeQuietly(ch)

	if err := ch.QueueBind(t.cfg.inputQueue, topic, t.cfg.topicExchange, false, nil); err != nil {
		return t.subscriptionError(topic, "bind", err)
	}

	t.logger.Info("subscriber registered", "topic", topic, "queue", t.cfg.inputQueue)
	return nil
}

// UnregisterSubscriber removes the topic binding for this transport's
// input queue.
func (t *Transport) UnregisterSubscriber(ctx context.Context, topic, subscriberAddress string) error {
	if t.cfg.inputQueue == "" {
		return ErrNoInputQueue
	}

	ch, err := t.provider.Channel()
	if err != nil {
		return t.subscriptionError(topic, "unbind", err)
	}
	defer closeQuietly(ch)

	if err := ch.QueueUnbind(t.cfg.inputQueue, topic, t.cfg.topicExchange, nil); err != nil {
		return t.subscriptionError(topic, "unbind", err)
	}

	t.logger.Info("subscriber unregistered", "topic", topic, "queue", t.cfg.inputQueue)
	return nil
}

// IsCentralized reports that subscriptions live on the broker, so the
// outer runtime skips local subscriber bookkeeping.
func (t *Transport) IsCentralized() bool {
	return true
}

func (t *Transport) subscriptionError(topic, op string, err error) error {
	return &rabbitmq.TopologyError{
		Component: "binding",
		Name:      topic,
		Op:        op,
		Err:       err,
		Timestamp: time.Now(),
	}
}
