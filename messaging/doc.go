// Package messaging defines the abstractions between a message-bus
// runtime and its transports.
//
// The central piece is the transaction context: a per-transaction state
// carrier with a memoized item store and ordered commit, abort and
// dispose callbacks. Transports use it to stage outgoing messages until
// commit and to defer delivery acknowledgement to the transaction
// outcome.
package messaging
