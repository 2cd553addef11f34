package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/adapter/logger"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

const reconnectDelay = 5 * time.Second

type consumer struct {
	conn   Connection
	logger logger.Logger
}

// NewNotificationConsumer tails the notification fanout through a private
// auto-delete queue.
func NewNotificationConsumer(conn Connection, logger logger.Logger) interfaces.NotificationConsumer {
	return &consumer{conn: conn, logger: logger}
}

func (c *consumer) ConsumeNotifications(ctx context.Context, handler func(ctx context.Context, body []byte) error) error {
	for {
		err := c.consume(ctx, handler)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}

		c.logger.Warn("notifications_disconnected", fmt.Sprintf("Consumer disconnected, reconnecting in %s", reconnectDelay), "", map[string]interface{}{
			"error": err.Error(),
		})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}

		if c.conn.IsClosed() {
			if err := c.conn.Redial(); err != nil {
				c.logger.Error("notifications_reconnect_failed", "Failed to redial broker", "", nil, err)
			}
		}
	}
}

func (c *consumer) consume(ctx context.Context, handler func(ctx context.Context, body []byte) error) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	closeChan := ch.NotifyClose()

	if err := declareFanout(ch); err != nil {
		return err
	}

	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(queue, "", NotificationsExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	msgs, err := ch.Consume(queue, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-closeChan:
			if err != nil {
				return fmt.Errorf("channel closed: %w", err)
			}
			return fmt.Errorf("channel closed gracefully")

		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("messages channel closed")
			}

			// Notifications are best effort.
			if err := handler(ctx, msg.Body); err != nil {
				c.logger.Debug("notification_handler_failed", "Subscriber failed to handle notification", msg.MessageId, map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}
