package rabbitmq

import (
	"errors"
	"log/slog"
)

// Default exchange names and prefetch window.
const (
	DefaultDirectExchange = "stagebus.direct"
	DefaultTopicExchange  = "stagebus.topics"
	defaultPrefetch       = 50
)

// ErrInvalidPrefetch is returned by NewTransport when the configured
// prefetch window is below 1.
var ErrInvalidPrefetch = errors.New("rabbitmq transport: prefetch must be at least 1")

type config struct {
	inputQueue        string
	directExchange    string
	topicExchange     string
	prefetch          int
	declareExchanges  bool
	declareInputQueue bool
	bindInputQueue    bool
	logger            *slog.Logger
}

func defaultConfig() config {
	return config{
		directExchange:    DefaultDirectExchange,
		topicExchange:     DefaultTopicExchange,
		prefetch:          defaultPrefetch,
		declareExchanges:  true,
		declareInputQueue: true,
		bindInputQueue:    true,
		logger:            slog.Default(),
	}
}

// Option configures the transport
type Option func(*config)

// WithDirectExchange sets the direct exchange used for point-to-point
// delivery.
func WithDirectExchange(name string) Option {
	return func(c *config) {
		c.directExchange = name
	}
}

// WithTopicExchange sets the topic exchange used for publish/subscribe.
func WithTopicExchange(name string) Option {
	return func(c *config) {
		c.topicExchange = name
	}
}

// WithPrefetch sets the maximum number of unacknowledged deliveries the
// broker hands to the consumer. Must be at least 1.
func WithPrefetch(count int) Option {
	return func(c *config) {
		c.prefetch = count
	}
}

// WithoutExchangeDeclaration disables declaring the direct and topic
// exchanges. Use when the broker topology is managed externally.
func WithoutExchangeDeclaration() Option {
	return func(c *config) {
		c.declareExchanges = false
	}
}

// WithoutQueueDeclaration disables declaring queues.
func WithoutQueueDeclaration() Option {
	return func(c *config) {
		c.declareInputQueue = false
	}
}

// WithoutQueueBinding disables binding queues to the direct exchange.
func WithoutQueueBinding() Option {
	return func(c *config) {
		c.bindInputQueue = false
	}
}

// WithTransportLogger sets the logger.
func WithTransportLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}
