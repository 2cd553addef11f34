package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/adapter/logger"
	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
	"github.com/google/uuid"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// payload holds the union of fields the templates read.
type payload struct {
	OrderID               string              `json:"orderId"`
	UserID                string              `json:"userId"`
	Total                 float64             `json:"total"`
	Status                domain.PaymentState `json:"status"`
	FailureReason         string              `json:"failureReason"`
	DriverID              string              `json:"driverId"`
	Reason                string              `json:"reason"`
	EstimatedDeliveryTime *time.Time          `json:"estimatedDeliveryTime"`
}

type template func(p payload) (title, message, priority string)

var templates = map[string]template{
	interfaces.TopicOrderCreated: func(p payload) (string, string, string) {
		return "Order received", fmt.Sprintf("Your order %s for %.2f was placed.", p.OrderID, p.Total), PriorityLow
	},
	interfaces.TopicPaymentProcessed: func(p payload) (string, string, string) {
		if p.Status == domain.PaymentStateSuccess {
			return "Payment successful", fmt.Sprintf("Payment for order %s went through.", p.OrderID), PriorityMedium
		}
		reason := p.FailureReason
		if reason == "" {
			reason = "payment declined"
		}
		return "Payment failed", fmt.Sprintf("Payment for order %s failed: %s.", p.OrderID, reason), PriorityHigh
	},
	interfaces.TopicOrderConfirmed: func(p payload) (string, string, string) {
		return "Order confirmed", fmt.Sprintf("The restaurant is preparing order %s.", p.OrderID), PriorityMedium
	},
	interfaces.TopicFoodReady: func(p payload) (string, string, string) {
		return "Food ready", fmt.Sprintf("Order %s is ready and waiting for a driver.", p.OrderID), PriorityMedium
	},
	interfaces.TopicDeliveryAssigned: func(p payload) (string, string, string) {
		msg := fmt.Sprintf("Driver %s is assigned to order %s.", p.DriverID, p.OrderID)
		if p.EstimatedDeliveryTime != nil {
			msg = fmt.Sprintf("Driver %s is assigned to order %s, arriving around %s.", p.DriverID, p.OrderID, p.EstimatedDeliveryTime.Format(time.Kitchen))
		}
		return "Driver assigned", msg, PriorityMedium
	},
	interfaces.TopicDeliveryAccepted: func(p payload) (string, string, string) {
		return "Driver on the way", fmt.Sprintf("Driver %s accepted order %s.", p.DriverID, p.OrderID), PriorityMedium
	},
	interfaces.TopicDeliveryDeclined: func(p payload) (string, string, string) {
		return "Finding another driver", fmt.Sprintf("We are finding a new driver for order %s.", p.OrderID), PriorityLow
	},
	interfaces.TopicDeliveryReassigned: func(p payload) (string, string, string) {
		return "New driver assigned", fmt.Sprintf("Driver %s took over order %s.", p.DriverID, p.OrderID), PriorityMedium
	},
	interfaces.TopicDeliveryUnassigned: func(p payload) (string, string, string) {
		return "Waiting for a driver", fmt.Sprintf("No driver is free for order %s yet. We keep trying.", p.OrderID), PriorityHigh
	},
	interfaces.TopicDeliveryPickedUp: func(p payload) (string, string, string) {
		return "Out for delivery", fmt.Sprintf("Order %s was picked up.", p.OrderID), PriorityMedium
	},
	interfaces.TopicDeliveryCompleted: func(p payload) (string, string, string) {
		return "Delivered", fmt.Sprintf("Order %s was delivered. Enjoy your meal!", p.OrderID), PriorityHigh
	},
}

// Render builds the notification for a saga message. ok is false for topics
// without a template or payloads without a user.
func Render(msg interfaces.Message, now time.Time) (n interfaces.Notification, ok bool, err error) {
	tmpl, found := templates[msg.Topic]
	if !found {
		return n, false, nil
	}

	var p payload
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		return n, false, fmt.Errorf("failed to decode %s payload: %w", msg.Topic, err)
	}
	if p.UserID == "" {
		return n, false, nil
	}
	if p.OrderID == "" {
		p.OrderID = msg.Key
	}

	title, text, priority := tmpl(p)
	return interfaces.Notification{
		ID:        uuid.NewString(),
		UserID:    p.UserID,
		OrderID:   p.OrderID,
		Topic:     msg.Topic,
		Title:     title,
		Message:   text,
		Priority:  priority,
		CreatedAt: now,
	}, true, nil
}

type Service struct {
	sink   interfaces.NotificationSink
	logger logger.Logger
	now    func() time.Time
}

func NewService(sink interfaces.NotificationSink, logger logger.Logger) *Service {
	return &Service{
		sink:   sink,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Handle turns one saga event into a user notification. Delivery is best
// effort and never retried.
func (s *Service) Handle(ctx context.Context, msg interfaces.Message) error {
	n, ok, err := Render(msg, s.now())
	if err != nil {
		s.logger.Warn("notification_malformed", "Dropping malformed event", msg.Key, map[string]interface{}{
			"topic": msg.Topic,
			"error": err.Error(),
		})
		return nil
	}
	if !ok {
		s.logger.Warn("notification_skipped", "No recipient for event", msg.Key, map[string]interface{}{
			"topic": msg.Topic,
		})
		return nil
	}

	s.logger.Info("notification_created", n.Title, n.OrderID, map[string]interface{}{
		"notification_id": n.ID,
		"user_id":         n.UserID,
		"topic":           n.Topic,
		"priority":        n.Priority,
		"message":         n.Message,
	})

	if s.sink == nil {
		return nil
	}
	if err := s.sink.Send(ctx, n); err != nil {
		s.logger.Error("notification_send_failed", "Failed to deliver notification", n.OrderID, map[string]interface{}{
			"notification_id": n.ID,
		}, err)
	}
	return nil
}
