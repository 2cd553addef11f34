// Package rabbitmq carries rendered notifications over a fanout exchange.
// Every subscriber gets its own auto-delete queue, so each one sees every
// notification published while it is connected.
package rabbitmq

import (
	"errors"
	"fmt"
	"sync"

	"github.com/YelzhanWeb/fooddelivery/internal/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

var errConnectionClosed = errors.New("rabbitmq connection closed")

// Connection is the subset of an AMQP connection the notification adapters
// use. Redial replaces a dropped connection; it is a no-op while the current
// one is healthy.
type Connection interface {
	Channel() (Channel, error)
	Redial() error
	IsClosed() bool
	Close() error
}

type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (string, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	NotifyClose() <-chan *amqp.Error
	Close() error
}

type amqpConnection struct {
	url string

	mu       sync.RWMutex
	conn     *amqp.Connection
	shutdown bool
}

func Connect(cfg config.RabbitMQConfig) (Connection, error) {
	url := cfg.URL()
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return &amqpConnection{url: url, conn: conn}, nil
}

func (c *amqpConnection) Channel() (Channel, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.shutdown {
		return nil, errConnectionClosed
	}
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return amqpChannel{ch}, nil
}

func (c *amqpConnection) Redial() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.shutdown:
		return errConnectionClosed
	case !c.conn.IsClosed():
		return nil
	}

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("failed to redial RabbitMQ: %w", err)
	}
	c.conn = conn
	return nil
}

func (c *amqpConnection) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.shutdown || c.conn.IsClosed()
}

func (c *amqpConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.shutdown = true
	if c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}

// amqpChannel adapts *amqp.Channel to Channel.
type amqpChannel struct {
	*amqp.Channel
}

func (ch amqpChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (string, error) {
	q, err := ch.Channel.QueueDeclare(name, durable, autoDelete, exclusive, noWait, args)
	if err != nil {
		return "", err
	}
	return q.Name, nil
}

func (ch amqpChannel) NotifyClose() <-chan *amqp.Error {
	return ch.Channel.NotifyClose(make(chan *amqp.Error, 1))
}

// declareFanout makes sure the notifications exchange exists before a
// publish or bind.
func declareFanout(ch Channel) error {
	if err := ch.ExchangeDeclare(NotificationsExchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", NotificationsExchange, err)
	}
	return nil
}
