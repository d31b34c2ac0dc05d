// Package rabbitmq is the RabbitMQ transport: it declares the exchange/queue
// topology, feeds deliveries one at a time to a handler with manual
// acknowledgement, reconnects when the broker goes away, and publishes
// outbound XML messages.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/your-org/essencelink/internal/ports"
	"github.com/your-org/essencelink/pkg/retry"
)

// ErrNotConnected is returned by Publish while no broker connection is open.
var ErrNotConnected = errors.New("amqp: not connected")

var errDeliveriesClosed = errors.New("amqp: delivery channel closed")

// Config holds broker and topology settings.
type Config struct {
	Host         string
	Port         int
	Username     string
	Password     string
	VHost        string
	Exchange     string
	ExchangeType string
	Queue        string
	// RoutingKeys are bound from Exchange to Queue.
	RoutingKeys    []string
	Prefetch       int
	ReconnectDelay time.Duration
	ConsumerTag    string
}

// URI renders the connection string. The default vhost is left implicit.
func (c Config) URI() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
	}
	if c.VHost != "" && c.VHost != "/" {
		u.Path = "/" + c.VHost
		u.RawPath = "/" + url.PathEscape(c.VHost)
	}
	return u.String()
}

type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type connection interface {
	Channel() (channel, error)
	Close() error
}

type dialFunc func(uri string) (connection, error)

type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) Channel() (channel, error) {
	return c.Connection.Channel()
}

func dialAMQP(uri string) (connection, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, err
	}
	return amqpConnection{conn}, nil
}

// Client owns one broker connection. The publishing channel is separate from
// the consuming channel so a publish from inside a handler never interleaves
// with delivery traffic.
type Client struct {
	cfg   Config
	log   *zap.Logger
	dial  dialFunc
	sleep retry.SleepFunc
	now   func() time.Time

	mu      sync.Mutex
	conn    connection
	pub     channel
	healthy atomic.Bool
}

var (
	_ ports.MessageConsumer = (*Client)(nil)
	_ ports.Publisher       = (*Client)(nil)
)

// Dial connects to the broker and declares the topology.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	c := newClient(cfg, logger, dialAMQP)
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func newClient(cfg Config, logger *zap.Logger, dial dialFunc) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = "topic"
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 3 * time.Second
	}
	return &Client{cfg: cfg, log: logger, dial: dial, sleep: retry.Sleep, now: time.Now}
}

func (c *Client) connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := c.dial(c.cfg.URI())
	if err != nil {
		return fmt.Errorf("dial %s:%d: %w", c.cfg.Host, c.cfg.Port, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := c.declare(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn, c.pub = conn, ch
	c.mu.Unlock()
	c.healthy.Store(true)

	c.log.Info("connected to rabbitmq",
		zap.String("host", c.cfg.Host),
		zap.String("exchange", c.cfg.Exchange),
		zap.String("queue", c.cfg.Queue),
	)
	return nil
}

func (c *Client) declare(ch channel) error {
	if err := ch.ExchangeDeclare(c.cfg.Exchange, c.cfg.ExchangeType, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", c.cfg.Exchange, err)
	}
	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", c.cfg.Queue, err)
	}
	for _, key := range c.cfg.RoutingKeys {
		if err := ch.QueueBind(c.cfg.Queue, key, c.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", c.cfg.Queue, key, err)
		}
	}
	return nil
}

// Consume hands deliveries to handle one at a time until ctx ends. A lost
// channel or connection is logged and re-dialled after the reconnect delay.
func (c *Client) Consume(ctx context.Context, handle ports.MessageHandler) error {
	for {
		err := c.consumeOnce(ctx, handle)
		if ctx.Err() != nil {
			return nil
		}
		c.healthy.Store(false)
		c.log.Warn("rabbitmq consumer lost, reconnecting",
			zap.Error(err),
			zap.Duration("delay", c.cfg.ReconnectDelay),
		)
		if err := c.sleep(ctx, c.cfg.ReconnectDelay); err != nil {
			return nil
		}
		c.closeConn()
		if err := c.connect(ctx); err != nil {
			c.log.Error("rabbitmq reconnect failed", zap.Error(err))
		}
	}
}

func (c *Client) consumeOnce(ctx context.Context, handle ports.MessageHandler) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open consume channel: %w", err)
	}
	defer ch.Close() //nolint:errcheck

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(c.cfg.Queue, c.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.cfg.Queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errDeliveriesClosed
			}
			handle(ctx, toMessage(d))
		}
	}
}

func toMessage(d amqp.Delivery) ports.Message {
	return ports.Message{
		RoutingKey: d.RoutingKey,
		Body:       d.Body,
		Ack:        func() error { return d.Ack(false) },
		Nack:       func(requeue bool) error { return d.Nack(false, requeue) },
	}
}

// Publish sends a persistent XML message to the exchange.
func (c *Client) Publish(ctx context.Context, routingKey string, body []byte, correlationID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pub == nil {
		return ErrNotConnected
	}
	err := c.pub.Publish(c.cfg.Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:   "application/xml",
		DeliveryMode:  amqp.Persistent,
		MessageId:     uuid.NewString(),
		CorrelationId: correlationID,
		Timestamp:     c.now().UTC(),
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

// Healthy reports whether a broker connection is established.
func (c *Client) Healthy() bool {
	return c.healthy.Load()
}

func (c *Client) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pub != nil {
		_ = c.pub.Close()
		c.pub = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// Close tears down the connection.
func (c *Client) Close() error {
	c.healthy.Store(false)
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	if c.pub != nil {
		errs = append(errs, c.pub.Close())
		c.pub = nil
	}
	if c.conn != nil {
		errs = append(errs, c.conn.Close())
		c.conn = nil
	}
	return errors.Join(errs...)
}
