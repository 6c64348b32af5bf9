package contracts

import (
	"github.com/google/uuid"
)

// Well-known transport header names
const (
	// HeaderMessageID uniquely identifies a message
	HeaderMessageID = "sb-msg-id"

	// HeaderContentType describes the payload encoding
	HeaderContentType = "sb-content-type"

	// HeaderTimeToLive limits how long the broker keeps an undelivered
	// message. The value is either an integer millisecond count or a
	// duration string such as "5s".
	HeaderTimeToLive = "sb-time-to-live"

	// HeaderExpress marks a message as non-persistent. Express messages
	// trade durability for throughput.
	HeaderExpress = "sb-express"
)

// HeaderValue is a header value that arrived either as text or as raw
// bytes. It is decoded exactly once, at the broker-client boundary;
// downstream code only ever calls Text or Bytes and never inspects the
// underlying representation.
type HeaderValue struct {
	text string
	raw  []byte
}

// TextHeader creates a header value from already-decoded text.
func TextHeader(s string) HeaderValue {
	return HeaderValue{text: s}
}

// BytesHeader creates a header value from raw bytes as transmitted on
// the wire.
func BytesHeader(b []byte) HeaderValue {
	return HeaderValue{raw: b}
}

// Text returns the header value as a string, decoding raw bytes as
// UTF-8 text.
func (v HeaderValue) Text() string {
	if v.raw != nil {
		return string(v.raw)
	}
	return v.text
}

// Bytes returns the header value encoded for the wire.
func (v HeaderValue) Bytes() []byte {
	if v.raw != nil {
		return v.raw
	}
	return []byte(v.text)
}

// TransportMessage is the unit carried by a transport: a header map and
// an opaque byte payload.
type TransportMessage struct {
	Headers map[string]HeaderValue
	Body    []byte
}

// NewTransportMessage creates a transport message, assigning a fresh
// message ID header when the caller did not provide one.
func NewTransportMessage(body []byte, headers map[string]HeaderValue) *TransportMessage {
	if headers == nil {
		headers = make(map[string]HeaderValue)
	}
	if _, ok := headers[HeaderMessageID]; !ok {
		headers[HeaderMessageID] = TextHeader(uuid.NewString())
	}
	return &TransportMessage{
		Headers: headers,
		Body:    body,
	}
}

// Header returns the named header decoded as text.
func (m *TransportMessage) Header(name string) (string, bool) {
	v, ok := m.Headers[name]
	if !ok {
		return "", false
	}
	return v.Text(), true
}

// SetHeader sets the named header from text.
func (m *TransportMessage) SetHeader(name, value string) {
	if m.Headers == nil {
		m.Headers = make(map[string]HeaderValue)
	}
	m.Headers[name] = TextHeader(value)
}

// ID returns the message ID header, or an empty string when unset.
func (m *TransportMessage) ID() string {
	id, _ := m.Header(HeaderMessageID)
	return id
}
