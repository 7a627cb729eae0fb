// Package amqp carries forecast requests and replies over RabbitMQ using an
// RPC pattern: requests name a ReplyTo queue and a CorrelationId, and the
// worker answers there.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"finora/internal/core"
	flog "finora/internal/log"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	maxBackoff     = 30 * time.Second
	publishTimeout = 5 * time.Second
	prefetchCount  = 10
)

var (
	// ErrMalformed marks a delivery that can never be processed. It is
	// rejected without requeue.
	ErrMalformed    = errors.New("malformed message")
	ErrNotConnected = errors.New("amqp client not connected")

	errDeliveriesClosed = errors.New("delivery channel closed")
)

// Request is one forecast RPC delivery.
type Request struct {
	Body          []byte
	ReplyTo       string
	CorrelationID string
}

// Handler turns a request into a reply body. Returning an error wrapping
// ErrMalformed drops the delivery; any other error requeues it.
type Handler func(ctx context.Context, req Request) ([]byte, error)

type Client struct {
	url          string
	exchangeName string
	queueName    string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	cbMu         sync.Mutex
	lastFailure  time.Time
}

// NewClient dials url and declares the request exchange and queue.
func NewClient(url, exchangeName, queueName string) (*Client, error) {
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) logger() *slog.Logger {
	return slog.Default().With(flog.FieldComponent, flog.ComponentAMQP)
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := c.setup(channel); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.mu.Lock()
	c.conn, c.channel = conn, channel
	c.mu.Unlock()
	return nil
}

func (c *Client) setup(ch *amqp091.Channel) error {
	err := ch.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Routing key equals the queue name on the direct exchange.
	if err := ch.QueueBind(c.queueName, c.queueName, c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	return nil
}

func (c *Client) currentChannel() *amqp091.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// publish sends msg through the circuit breaker.
func (c *Client) publish(ctx context.Context, exchange, key string, msg amqp091.Publishing) error {
	if c.isCircuitOpen() {
		return errors.New("publish: circuit breaker is open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	ch := c.currentChannel()
	if ch == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := ch.PublishWithContext(ctx, exchange, key, false, false, msg); err != nil {
		if isConnectionError(err) {
			c.recordFailure()
		}
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()
	return nil
}

// PublishForecastRequest enqueues req for a worker, asking for the reply on
// replyTo tagged with correlationID.
func (c *Client) PublishForecastRequest(ctx context.Context, req core.ForecastRequest, replyTo, correlationID string) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.publish(ctx, c.exchangeName, c.queueName, amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		Timestamp:     time.Now(),
		CorrelationId: correlationID,
		ReplyTo:       replyTo,
		Body:          body,
	})
}

// Reply publishes body to replyTo through the default exchange.
func (c *Client) Reply(ctx context.Context, replyTo, correlationID string, body []byte) error {
	return c.publish(ctx, "", replyTo, amqp091.Publishing{
		ContentType:   "application/json",
		Timestamp:     time.Now(),
		CorrelationId: correlationID,
		Body:          body,
	})
}

// Call sends req and waits for the matching reply on a private queue.
func (c *Client) Call(ctx context.Context, req core.ForecastRequest) (*ForecastReply, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open reply channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare reply queue: %w", err)
	}
	replies, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume reply queue: %w", err)
	}

	corrID := uuid.NewString()
	if err := c.PublishForecastRequest(ctx, req, q.Name, corrID); err != nil {
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case d, ok := <-replies:
			if !ok {
				return nil, errDeliveriesClosed
			}
			if d.CorrelationId != corrID {
				continue
			}
			reply, err := ForecastReplyFromJSON(d.Body)
			if err != nil {
				return nil, fmt.Errorf("decode reply: %w", err)
			}
			return reply, nil
		}
	}
}

// ConsumeForecastRequests feeds deliveries to handler until ctx ends or the
// delivery channel closes.
func (c *Client) ConsumeForecastRequests(ctx context.Context, handler Handler) error {
	ch := c.currentChannel()
	if ch == nil {
		return ErrNotConnected
	}
	msgs, err := ch.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	logger := c.logger()
	logger.InfoContext(ctx, "Started consuming forecast requests", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errDeliveriesClosed
			}
			dispatch(ctx, d, handler, c.Reply, logger)
		}
	}
}

// Run consumes until ctx ends, reconnecting with exponential backoff when
// the broker connection drops.
func (c *Client) Run(ctx context.Context, handler Handler) error {
	attempt := 0
	for {
		err := c.ConsumeForecastRequests(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isConnectionError(err) && !errors.Is(err, ErrNotConnected) {
			return err
		}

		wait := exponentialBackoff(attempt)
		c.logger().WarnContext(ctx, "AMQP consumer lost connection, reconnecting",
			flog.FieldError, err, "attempt", attempt+1, "backoff", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		_ = c.Close()
		if err := c.connect(); err != nil {
			c.logger().ErrorContext(ctx, "AMQP reconnect failed", flog.FieldError, err)
			attempt++
			continue
		}
		attempt = 0
	}
}

type replyFunc func(ctx context.Context, replyTo, correlationID string, body []byte) error

// dispatch runs handler on d and settles the delivery: ack after a reply is
// published, nack without requeue for unprocessable messages, nack with
// requeue otherwise.
func dispatch(ctx context.Context, d amqp091.Delivery, handler Handler, reply replyFunc, logger *slog.Logger) {
	if d.ReplyTo == "" {
		logger.WarnContext(ctx, "Dropping forecast request without reply queue", flog.FieldCorrID, d.CorrelationId)
		_ = d.Nack(false, false)
		return
	}

	body, err := handler(ctx, Request{Body: d.Body, ReplyTo: d.ReplyTo, CorrelationID: d.CorrelationId})
	switch {
	case errors.Is(err, ErrMalformed):
		logger.WarnContext(ctx, "Dropping malformed forecast request", flog.FieldCorrID, d.CorrelationId, flog.FieldError, err)
		_ = d.Nack(false, false)
		return
	case err != nil:
		logger.ErrorContext(ctx, "Failed to handle forecast request", flog.FieldCorrID, d.CorrelationId, flog.FieldError, err)
		_ = d.Nack(false, true)
		return
	}

	if err := reply(ctx, d.ReplyTo, d.CorrelationId, body); err != nil {
		logger.ErrorContext(ctx, "Failed to publish forecast reply", flog.FieldCorrID, d.CorrelationId, flog.FieldError, err)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// exponentialBackoff returns 1s, 2s, 4s, ... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) || errors.Is(err, errDeliveriesClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "closed"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.cbMu.Lock()
	last := c.lastFailure
	c.cbMu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordFailure() {
	n := atomic.AddInt64(&c.failureCount, 1)
	c.cbMu.Lock()
	c.lastFailure = time.Now()
	c.cbMu.Unlock()
	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
