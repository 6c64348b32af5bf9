// Package contracts provides the core message types for the stagebus transport.
//
// This package defines the wire-agnostic message contract that flows through
// the system:
//   - TransportMessage: headers plus an opaque byte payload
//   - HeaderValue: a tagged Text/RawBytes header variant decoded once at the
//     broker boundary
//   - Well-known header names recognized by transports
//
// The transport never interprets payload bytes; serialization is the
// responsibility of the layers above.
package contracts
