// Package rabbitmq provides the connection-level glue for the stagebus
// RabbitMQ transport.
//
// This package includes:
//   - ConnectionManager: manages the broker connection with automatic
//     reconnection and client-property metadata
//   - Structured error types carrying the failed operation and address
//
// The transport layer on top of this package only requires a connection
// to create channels from; reconnection policy lives entirely here.
package rabbitmq
