package rabbitmq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
)

const dialTimeout = 30 * time.Second

// ConnectionManager manages the RabbitMQ connection with automatic
// reconnection. It is safe for concurrent use; channels are created
// from the connection it hands out.
type ConnectionManager struct {
	url         string
	conn        *amqp.Connection
	mu          sync.RWMutex
	properties  amqp.Table
	retryPolicy *backoff.ExponentialBackOff
	maxRetries  int
	logger      *slog.Logger
	notifyClose chan *amqp.Error
	isConnected bool
	done        chan bool
	closeOnce   sync.Once
}

// ConnectionOption configures the ConnectionManager
type ConnectionOption func(*ConnectionManager)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.logger = logger
	}
}

// WithReconnectDelay sets the initial reconnection delay
func WithReconnectDelay(delay time.Duration) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.retryPolicy.InitialInterval = delay
	}
}

// WithMaxRetries sets the maximum number of reconnection attempts.
// Negative means retry forever.
func WithMaxRetries(retries int) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.maxRetries = retries
	}
}

// WithClientProperties attaches informational metadata to the
// connection, visible in the broker's management views.
func WithClientProperties(properties amqp.Table) ConnectionOption {
	return func(cm *ConnectionManager) {
		for k, v := range properties {
			cm.properties[k] = v
		}
	}
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(url string, options ...ConnectionOption) *ConnectionManager {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 5 * time.Second
	retry.MaxInterval = 5 * time.Minute
	retry.MaxElapsedTime = 0 // retry count is bounded separately

	cm := &ConnectionManager{
		url:         url,
		properties:  amqp.Table{},
		retryPolicy: retry,
		maxRetries:  -1,
		logger:      slog.Default(),
		done:        make(chan bool),
	}

	for _, opt := range options {
		opt(cm)
	}

	return cm
}

// Connect establishes the initial connection
func (cm *ConnectionManager) Connect(ctx context.Context) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.isConnected {
		return nil
	}

	conn, err := cm.dial(ctx)
	if err != nil {
		return &ConnectionError{
			Op:        "connect",
			URL:       SanitizeURL(cm.url),
			Err:       err,
			Timestamp: time.Now(),
			Attempts:  1,
		}
	}

	cm.conn = conn
	cm.isConnected = true
	cm.notifyClose = make(chan *amqp.Error)
	cm.conn.NotifyClose(cm.notifyClose)

	cm.logger.Info("connected to RabbitMQ", "url", SanitizeURL(cm.url))

	go cm.handleReconnect()

	return nil
}

// GetConnection returns the current connection
func (cm *ConnectionManager) GetConnection() (*amqp.Connection, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if !cm.isConnected || cm.conn == nil {
		return nil, ErrConnectionNotReady
	}

	if cm.conn.IsClosed() {
		return nil, ErrConnectionClosed
	}

	return cm.conn, nil
}

// IsConnected returns the connection status
func (cm *ConnectionManager) IsConnected() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.isConnected
}

// Close closes the connection
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if !cm.isConnected {
		return nil
	}

	cm.closeOnce.Do(func() { close(cm.done) })
	cm.isConnected = false

	if cm.conn != nil {
		err := cm.conn.Close()
		cm.conn = nil
		return err
	}

	return nil
}

// dial opens a connection with the configured client properties,
// bounded by dialTimeout.
func (cm *ConnectionManager) dial(ctx context.Context) (*amqp.Connection, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	connChan := make(chan *amqp.Connection, 1)
	errChan := make(chan error, 1)

	go func() {
		conn, err := amqp.DialConfig(cm.url, amqp.Config{Properties: cm.properties})
		if err != nil {
			errChan <- err
			return
		}
		connChan <- conn
	}()

	select {
	case conn := <-connChan:
		return conn, nil
	case err := <-errChan:
		return nil, err
	case <-dialCtx.Done():
		return nil, ErrConnectionTimeout
	}
}

// handleReconnect monitors the connection and reconnects if necessary
func (cm *ConnectionManager) handleReconnect() {
	for {
		select {
		case err := <-cm.notifyClose:
			if err != nil {
				cm.logger.Error("connection closed", "error", err)
			}

			cm.mu.Lock()
			cm.isConnected = false
			cm.conn = nil
			cm.mu.Unlock()

			cm.reconnect()

		case <-cm.done:
			cm.logger.Info("connection manager shutting down")
			return
		}
	}
}

// reconnect attempts to reconnect to RabbitMQ
func (cm *ConnectionManager) reconnect() {
	retries := 0
	startTime := time.Now()
	cm.retryPolicy.Reset()

	for {
		select {
		case <-cm.done:
			return
		default:
		}

		if cm.maxRetries >= 0 && retries >= cm.maxRetries {
			cm.logger.Error("max reconnection attempts reached",
				"attempts", retries,
				"duration", time.Since(startTime))
			return
		}

		cm.logger.Info("attempting to reconnect",
			"attempt", retries+1,
			"maxRetries", cm.maxRetries)

		if retries > 0 {
			select {
			case <-time.After(cm.retryPolicy.NextBackOff()):
			case <-cm.done:
				return
			}
		}

		conn, err := cm.dial(context.Background())
		if err != nil {
			cm.logger.Error("reconnection failed",
				"error", err,
				"attempt", retries+1)
			retries++
			continue
		}

		cm.mu.Lock()
		cm.conn = conn
		cm.isConnected = true
		cm.notifyClose = make(chan *amqp.Error)
		cm.conn.NotifyClose(cm.notifyClose)
		cm.mu.Unlock()

		cm.logger.Info("successfully reconnected to RabbitMQ",
			"attempts", retries+1,
			"duration", time.Since(startTime))
		return
	}
}
