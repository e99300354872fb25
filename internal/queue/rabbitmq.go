package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	dlxExchangeName  = "notifications.dlx"
	reconnectBackoff = time.Second
	maxBackoff       = 30 * time.Second
	heartbeat        = 10 * time.Second
	connectionName   = "site-notifier"
	dialTimeout      = 15 * time.Second
)

var errBrokerClosed = errors.New("rabbitmq client closed")

// RabbitMQ owns a single broker connection shared by the publisher and the
// consumers. Topology is declared once per connection.
type RabbitMQ struct {
	url    string
	logger *zap.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	declared bool
	closed   bool

	live atomic.Pointer[amqp.Connection]
}

func NewRabbitMQ(url string, logger *zap.Logger) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &RabbitMQ{url: url, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	ch, err := r.channel(ctx)
	if err != nil {
		return nil, err
	}
	_ = ch.Close()

	return r, nil
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.closed = true
	r.mu.Unlock()
	r.live.Store(nil)

	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

// Healthy reports whether the broker connection is currently open. It does
// not wait for a redial in progress.
func (r *RabbitMQ) Healthy() bool {
	if r == nil {
		return false
	}
	conn := r.live.Load()
	return conn != nil && !conn.IsClosed()
}

// channel opens a channel on the live connection, dialing again with backoff
// when the connection is gone.
func (r *RabbitMQ) channel(ctx context.Context) (*amqp.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 0; attempt < 2; attempt++ {
		if err := r.connectLocked(ctx); err != nil {
			return nil, err
		}

		ch, err := r.conn.Channel()
		if err != nil {
			r.logger.Warn("rabbitmq channel open failed, redialing", zap.Error(err))
			_ = r.conn.Close()
			r.conn = nil
			continue
		}

		if !r.declared {
			if err := declareTopology(ch); err != nil {
				_ = ch.Close()
				return nil, err
			}
			r.declared = true
		}
		return ch, nil
	}

	return nil, fmt.Errorf("failed to open rabbitmq channel after reconnect")
}

func (r *RabbitMQ) connectLocked(ctx context.Context) error {
	if r.closed {
		return errBrokerClosed
	}
	if r.conn != nil && !r.conn.IsClosed() {
		return nil
	}

	wait := reconnectBackoff
	for {
		conn, err := amqp.DialConfig(r.url, amqp.Config{
			Heartbeat:  heartbeat,
			Properties: amqp.Table{"connection_name": connectionName},
		})
		if err == nil {
			r.conn = conn
			r.declared = false
			r.live.Store(conn)
			r.watch(conn)
			return nil
		}

		r.logger.Warn("rabbitmq dial failed",
			zap.Duration("backoff", wait),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("rabbitmq connect canceled: %w", ctx.Err())
		case <-time.After(wait):
		}

		wait = min(wait*2, maxBackoff)
	}
}

func (r *RabbitMQ) watch(conn *amqp.Connection) {
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if amqpErr, ok := <-closed; ok && amqpErr != nil {
			r.logger.Warn("rabbitmq connection lost",
				zap.Int("code", amqpErr.Code),
				zap.String("reason", amqpErr.Reason),
			)
		}
	}()
}

type queueDeclaration struct {
	name       string
	args       amqp.Table
	bindTo     string
	routingKey string
}

// dispatchTopology lists the queues declared on a fresh connection. The
// dead-letter queue comes first so the work queue's DLX target exists.
func dispatchTopology() []queueDeclaration {
	return []queueDeclaration{
		{
			name:       DLQName(DispatchQueue),
			bindTo:     dlxExchangeName,
			routingKey: dispatchRoutingKey,
		},
		{
			name: DispatchQueue,
			args: amqp.Table{
				"x-dead-letter-exchange":    dlxExchangeName,
				"x-dead-letter-routing-key": dispatchRoutingKey,
				"x-max-priority":            queueMaxPriority,
			},
		},
	}
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(dlxExchangeName, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dlx exchange: %w", err)
	}

	for _, q := range dispatchTopology() {
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			return fmt.Errorf("failed to declare queue %q: %w", q.name, err)
		}
		if q.bindTo == "" {
			continue
		}
		if err := ch.QueueBind(q.name, q.routingKey, q.bindTo, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %q: %w", q.name, err)
		}
	}

	return nil
}
