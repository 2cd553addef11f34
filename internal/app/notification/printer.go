package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/YelzhanWeb/fooddelivery/internal/adapter/logger"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

// Printer writes delivered notifications to a console.
type Printer struct {
	out    io.Writer
	logger logger.Logger
}

func NewPrinter(out io.Writer, logger logger.Logger) *Printer {
	return &Printer{
		out:    out,
		logger: logger,
	}
}

func (p *Printer) HandleNotification(ctx context.Context, body []byte) error {
	var n interfaces.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		p.logger.Error("message_parse_failed", "Failed to parse notification", "", nil, err)
		return err
	}

	p.logger.Debug("notification_received", fmt.Sprintf("Received %s for order %s", n.Topic, n.OrderID), n.OrderID, map[string]interface{}{
		"user_id":  n.UserID,
		"priority": n.Priority,
	})

	_, err := fmt.Fprintf(p.out, "[%s] to %s: %s - %s (order %s)\n", n.Priority, n.UserID, n.Title, n.Message, n.OrderID)
	return err
}
