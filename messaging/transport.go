package messaging

import (
	"context"

	"github.com/stagebus/stagebus-go/contracts"
)

// Transport is the contract a bus runtime consumes. Sends are staged on
// the transaction context and only reach the broker when the
// transaction commits; received messages are acknowledged through the
// transaction's commit and abort hooks.
type Transport interface {
	// Address returns the transport's own input queue address, or an
	// empty string for send-only transports.
	Address() string

	// Initialize provisions the transport's own topology. It must be
	// called before the first Receive.
	Initialize(ctx context.Context) error

	// Send stages a message for the destination address inside the
	// given transaction. No broker interaction happens until commit.
	Send(ctx context.Context, destination string, msg *contracts.TransportMessage, tx TxContext) error

	// Receive dequeues the next message with a bounded wait. It returns
	// (nil, nil) when nothing arrived within the poll window.
	Receive(ctx context.Context, tx TxContext) (*contracts.TransportMessage, error)

	// CreateQueueTopology provisions the queue and bindings for an
	// arbitrary destination address ahead of time.
	CreateQueueTopology(ctx context.Context, address string) error

	// PurgeInputQueue drops all messages from the input queue.
	// A missing queue is treated as success.
	PurgeInputQueue(ctx context.Context) error

	// Close releases the transport's broker resources.
	Close() error
}

// SubscriptionStorage is the topic subscription contract. A
// centralized implementation derives subscriber addresses from the
// topic alone, so the runtime keeps no local subscriber lists.
type SubscriptionStorage interface {
	// SubscriberAddresses returns the addresses subscribed to topic.
	SubscriberAddresses(ctx context.Context, topic string) ([]string, error)

	// RegisterSubscriber subscribes subscriberAddress to topic.
	RegisterSubscriber(ctx context.Context, topic, subscriberAddress string) error

	// UnregisterSubscriber removes the subscription.
	UnregisterSubscriber(ctx context.Context, topic, subscriberAddress string) error

	// IsCentralized reports whether subscriptions are stored
	// centrally (for example as broker bindings).
	IsCentralized() bool
}
