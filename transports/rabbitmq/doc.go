// Package rabbitmq implements the stagebus transport over RabbitMQ.
//
// The transport provides point-to-point and topic-based publish/subscribe
// delivery on top of an AMQP broker:
//   - Destination addresses select a routing key and, optionally, an
//     exchange ("routingKey@exchange"); plain names route point-to-point
//     through the direct exchange.
//   - Outgoing messages are staged on the transaction context and
//     published in order on a transaction-scoped channel when the
//     transaction commits; an aborted transaction publishes nothing.
//   - Receiving uses a single lazily-created consumer with manual
//     acknowledgement; the ack is deferred to the transaction commit and
//     a requeueing nack to the abort.
//   - Point-to-point destinations are declared and bound before the
//     first publish to them, memoized per process.
//
// A transport is safe for concurrent Send and Receive calls. Connection
// management is delegated to a ConnectionProvider, typically backed by
// the internal connection manager:
//
//	t, err := rabbitmq.DialTransport(ctx, "amqp://localhost", "orders-input")
//	// handle error
//	defer t.Close()
package rabbitmq
