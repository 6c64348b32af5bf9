package rabbitmq

import (
	"errors"
	"strings"
)

// ErrEmptyDestination is returned when a destination address is empty.
var ErrEmptyDestination = errors.New("rabbitmq transport: destination address is empty")

// Address is a parsed destination: a routing key and, optionally, the
// exchange to publish through. An empty Exchange means the transport's
// direct exchange. Immutable once parsed.
type Address struct {
	Exchange   string
	RoutingKey string
}

// ParseAddress parses a destination string. When the string contains
// one or more "@", everything after the last "@" is the exchange name
// and everything before it is the routing key; routing keys may
// themselves contain "@". A string with no "@" is a plain routing key
// on the default direct exchange.
func ParseAddress(destination string) (Address, error) {
	if destination == "" {
		return Address{}, ErrEmptyDestination
	}

	tokens := strings.Split(destination, "@")
	if len(tokens) == 1 {
		return Address{RoutingKey: destination}, nil
	}

	return Address{
		Exchange:   tokens[len(tokens)-1],
		RoutingKey: strings.Join(tokens[:len(tokens)-1], "@"),
	}, nil
}

// String re-encodes the address as a destination string.
func (a Address) String() string {
	if a.Exchange == "" {
		return a.RoutingKey
	}
	return a.RoutingKey + "@" + a.Exchange
}
