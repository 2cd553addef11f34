package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
	amqp "github.com/rabbitmq/amqp091-go"
)

// NotificationsExchange fans every notification out to all subscribers.
const NotificationsExchange = "notifications_fanout"

type publisher struct {
	conn Connection
}

// NewNotificationSink publishes notifications to the fanout exchange.
func NewNotificationSink(conn Connection) interfaces.NotificationSink {
	return &publisher{conn: conn}
}

func (p *publisher) Send(ctx context.Context, n interfaces.Notification) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := declareFanout(ch); err != nil {
		return err
	}

	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	err = ch.Publish(NotificationsExchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   n.ID,
		Timestamp:   n.CreatedAt,
		Body:        body,
		Headers: amqp.Table{
			"topic":    n.Topic,
			"priority": n.Priority,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	return nil
}
