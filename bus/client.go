// Package bus is the durable event-bus client (C4): topic exchange
// declaration, persistent publish with a per-key retry scheduler, consumer
// loop with ack/nack-without-requeue, and reconnect with jittered
// exponential backoff.
package bus

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/Abraxas-365/craftable/logx"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mygads/govconnect-channelgateway/pkg/config"
)

// Handler processes one delivery on a routing key. A returned error nacks
// the delivery without requeue: the spec's poison-message policy is "drop
// after log", not infinite redelivery.
type Handler func(ctx context.Context, routingKey string, body []byte) error

type consumerBinding struct {
	queue      string
	routingKey string
	handler    Handler
}

// Client owns one AMQP connection and channel per process. Publish is
// safe for concurrent callers; each consumer's delivery loop acks or
// nacks only the delivery it received.
type Client struct {
	cfg      config.BusConfig
	url      string
	mu       sync.RWMutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	bindings []consumerBinding

	retryMu     sync.Mutex
	retryTimers map[string]*time.Timer

	shuttingDown bool
	reconnectN   int
	notifyClose  chan *amqp.Error
}

func NewClient(cfg config.BusConfig, url string) *Client {
	return &Client{
		cfg:         cfg,
		url:         url,
		retryTimers: make(map[string]*time.Timer),
	}
}

// IsConnected reports whether the AMQP connection is currently live, for
// the health endpoint.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// Connect dials RabbitMQ, opens a channel, and declares the durable topic
// exchange. Call Consume for each routing key before Start.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return ErrPublishFailed(err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return ErrPublishFailed(err)
	}
	if err := ch.ExchangeDeclare(c.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return ErrPublishFailed(err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.notifyClose = conn.NotifyClose(make(chan *amqp.Error, 1))
	c.reconnectN = 0
	c.mu.Unlock()

	logx.Info("bus: connected, exchange %s declared", c.cfg.Exchange)
	go c.watchClose(ctx)
	return nil
}

// Consume registers a queue bound to routingKey, to be started by Start.
// Safe to call only before Start; every later Start, including the one
// after a reconnect, declares the registered bindings again.
func (c *Client) Consume(queue, routingKey string, handler Handler) {
	c.bindings = append(c.bindings, consumerBinding{queue: queue, routingKey: routingKey, handler: handler})
}

// Start declares every registered queue/binding and launches its delivery
// loop. Call once after Connect, and again after every reconnect.
func (c *Client) Start(ctx context.Context) error {
	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()
	if ch == nil {
		return ErrNotConnected()
	}

	for _, b := range c.bindings {
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, nil); err != nil {
			return ErrPublishFailed(err)
		}
		if err := ch.QueueBind(b.queue, b.routingKey, c.cfg.Exchange, false, nil); err != nil {
			return ErrPublishFailed(err)
		}
		deliveries, err := ch.Consume(b.queue, "", false, false, false, false, nil)
		if err != nil {
			return ErrPublishFailed(err)
		}
		go c.consumeLoop(ctx, b, deliveries)
	}
	return nil
}

func (c *Client) consumeLoop(ctx context.Context, b consumerBinding, deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		if err := b.handler(ctx, b.routingKey, d.Body); err != nil {
			logx.Error("bus: handler for %s failed, nacking without requeue: %v", b.routingKey, err)
			d.Nack(false, false)
			continue
		}
		d.Ack(false)
	}
}

// Publish marshals payload as JSON and publishes it as a persistent
// message on routingKey. On failure it returns the error without
// retrying; PublishWithRetry is the variant that schedules a retry.
func (c *Client) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.publishBody(ctx, routingKey, body)
}

func (c *Client) publishBody(ctx context.Context, routingKey string, body []byte) error {
	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()
	if ch == nil {
		return ErrNotConnected()
	}

	pctx, cancel := context.WithTimeout(ctx, c.cfg.PublishTimeout)
	defer cancel()

	err := ch.PublishWithContext(pctx, c.cfg.Exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return ErrPublishFailed(err)
	}
	return nil
}

// PublishWithRetry publishes once; on failure it schedules exactly one
// retry per key after the configured delay, superseding any retry already
// pending for that key (spec.md §9's "immediate forward, retry at send
// site" redesign, not a durable delay queue).
func (c *Client) PublishWithRetry(ctx context.Context, key, routingKey string, payload any, retryDelay time.Duration) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := c.publishBody(ctx, routingKey, body); err == nil {
		return nil
	}

	c.retryMu.Lock()
	if t, ok := c.retryTimers[key]; ok {
		t.Stop()
	}
	c.retryTimers[key] = time.AfterFunc(retryDelay, func() {
		c.retryMu.Lock()
		delete(c.retryTimers, key)
		c.retryMu.Unlock()
		if err := c.publishBody(context.Background(), routingKey, body); err != nil {
			logx.Error("bus: retry publish for key %s failed: %v", key, err)
		}
	})
	c.retryMu.Unlock()
	return nil
}

func (c *Client) watchClose(ctx context.Context) {
	closeErr, ok := <-c.notifyClose
	c.mu.RLock()
	shuttingDown := c.shuttingDown
	c.mu.RUnlock()
	if shuttingDown {
		return
	}
	if ok {
		logx.Error("bus: connection closed: %v", closeErr)
	}
	c.reconnectLoop(ctx)
}

func (c *Client) reconnectLoop(ctx context.Context) {
	for {
		c.mu.Lock()
		n := c.reconnectN
		c.reconnectN++
		c.mu.Unlock()

		delay := backoffDelay(c.cfg.ReconnectBase, c.cfg.ReconnectMax, n, c.cfg.ReconnectJitter)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if err := c.Connect(ctx); err != nil {
			logx.Error("bus: reconnect attempt %d failed: %v", n+1, err)
			continue
		}
		if err := c.Start(ctx); err != nil {
			logx.Error("bus: re-establishing consumers after reconnect failed: %v", err)
			continue
		}
		logx.Info("bus: reconnected after %d attempt(s)", n+1)
		return
	}
}

// backoffDelay implements min(base·2^n, max)·(1 + rand·jitter).
func backoffDelay(base, max time.Duration, attempt int, jitter float64) time.Duration {
	d := base * time.Duration(1<<uint(attempt))
	if d > max || d <= 0 {
		d = max
	}
	j := 1 + jitter*rand.Float64()
	return time.Duration(float64(d) * j)
}

// Close shuts the connection down cleanly; no reconnect is attempted.
func (c *Client) Close() error {
	c.mu.Lock()
	c.shuttingDown = true
	ch := c.channel
	conn := c.conn
	c.mu.Unlock()

	c.retryMu.Lock()
	for _, t := range c.retryTimers {
		t.Stop()
	}
	c.retryMu.Unlock()

	if ch != nil {
		ch.Close()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}
