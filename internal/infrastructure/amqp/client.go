package amqp

import (
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	log "github.com/sirupsen/logrus"
)

// Client owns the RabbitMQ connection and a single channel shared by the
// publisher and consumer. A dropped connection is redialed in the
// background with exponential backoff.
type Client struct {
	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	url     string
	closed  bool
}

func NewClient(url string) (*Client, error) {
	c := &Client{url: url}
	if err := c.dial(); err != nil {
		return nil, fmt.Errorf("failed to create AMQP client: %w", err)
	}
	return c, nil
}

func (c *Client) dial() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	c.conn = conn
	c.channel = ch

	go c.watch(conn)

	log.Info("AMQP client connected successfully")
	return nil
}

// watch blocks until the connection drops, then redials unless the client
// was closed deliberately.
func (c *Client) watch(conn *amqp.Connection) {
	err := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if err == nil {
		return
	}
	log.Errorf("AMQP connection closed: %v", err)

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0
	policy.MaxInterval = 30 * time.Second
	redial := func() error {
		return c.dial()
	}
	if rerr := backoff.Retry(redial, policy); rerr != nil {
		log.WithError(rerr).Error("AMQP reconnect gave up")
	}
}

// Channel returns the current channel. Callers must not cache it across
// reconnects; prefer Publisher/Consumer.
func (c *Client) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// Close closes the channel and connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true

	var errs []error

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	log.Info("AMQP client closed successfully")
	return nil
}
