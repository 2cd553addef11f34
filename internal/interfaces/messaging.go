package interfaces

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/google/uuid"
)

// Saga topics. Every message is keyed by order id.
const (
	TopicOrderCreated       = "order-created"
	TopicPaymentProcessed   = "payment-processed"
	TopicOrderConfirmed     = "order-confirmed"
	TopicFoodReady          = "food-ready"
	TopicDeliveryAssigned   = "delivery-assigned"
	TopicDeliveryAccepted   = "delivery-accepted"
	TopicDeliveryDeclined   = "delivery-declined"
	TopicDeliveryUnassigned = "delivery-unassigned"
	TopicDeliveryReassigned = "delivery-reassigned"
	TopicDeliveryPickedUp   = "delivery-picked-up"
	TopicDeliveryCompleted  = "delivery-completed"
)

// AllTopics lists every saga topic in causal order.
var AllTopics = []string{
	TopicOrderCreated,
	TopicPaymentProcessed,
	TopicOrderConfirmed,
	TopicFoodReady,
	TopicDeliveryAssigned,
	TopicDeliveryAccepted,
	TopicDeliveryDeclined,
	TopicDeliveryUnassigned,
	TopicDeliveryReassigned,
	TopicDeliveryPickedUp,
	TopicDeliveryCompleted,
}

// Event payloads

type OrderCreatedEvent struct {
	OrderID       string             `json:"orderId"`
	RestaurantID  string             `json:"restaurantId"`
	UserID        string             `json:"userId"`
	Items         []domain.OrderItem `json:"items"`
	Total         float64            `json:"total"`
	PaymentMethod string             `json:"paymentMethod"`
	CreatedAt     time.Time          `json:"createdAt"`
}

type PaymentProcessedEvent struct {
	OrderID       string              `json:"orderId"`
	PaymentID     string              `json:"paymentId"`
	UserID        string              `json:"userId"`
	Status        domain.PaymentState `json:"status"`
	Method        string              `json:"method"`
	Amount        float64             `json:"amount"`
	TransactionID string              `json:"transactionId,omitempty"`
	FailureReason string              `json:"failureReason,omitempty"`
	ProcessedAt   time.Time           `json:"processedAt"`
}

type OrderConfirmedEvent struct {
	OrderID         string             `json:"orderId"`
	RestaurantID    string             `json:"restaurantId"`
	UserID          string             `json:"userId"`
	Items           []domain.OrderItem `json:"items"`
	Total           float64            `json:"total"`
	DeliveryAddress string             `json:"deliveryAddress"`
	ConfirmedAt     time.Time          `json:"confirmedAt"`
}

type FoodReadyEvent struct {
	OrderID         string             `json:"orderId"`
	RestaurantID    string             `json:"restaurantId"`
	UserID          string             `json:"userId"`
	Items           []domain.OrderItem `json:"items"`
	DeliveryAddress string             `json:"deliveryAddress"`
	ReadyAt         time.Time          `json:"readyAt"`
}

// DeliveryEvent is shared by every delivery-* topic.
type DeliveryEvent struct {
	OrderID               string     `json:"orderId"`
	DeliveryID            string     `json:"deliveryId"`
	DriverID              string     `json:"driverId,omitempty"`
	PreviousDriverID      string     `json:"previousDriverId,omitempty"`
	UserID                string     `json:"userId,omitempty"`
	Reason                string     `json:"reason,omitempty"`
	EstimatedDeliveryTime *time.Time `json:"estimatedDeliveryTime,omitempty"`
	PickedUpAt            *time.Time `json:"pickedUpAt,omitempty"`
	CompletedAt           *time.Time `json:"completedAt,omitempty"`
	OccurredAt            time.Time  `json:"occurredAt"`
}

// Message is a record read from the event log.
type Message struct {
	Topic     string
	Key       string
	Value     []byte
	Partition int32
	Offset    int64
}

// OutboxEvent is an event stored together with the state change that caused it.
type OutboxEvent struct {
	ID          string
	Source      string
	Topic       string
	Key         string
	Payload     []byte
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// NewEvent encodes payload into an outbox event keyed by order id.
func NewEvent(source, topic, orderID string, payload any) (OutboxEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return OutboxEvent{}, fmt.Errorf("failed to marshal %s event: %w", topic, err)
	}
	return OutboxEvent{
		ID:        uuid.NewString(),
		Source:    source,
		Topic:     topic,
		Key:       orderID,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Messaging ports

// EventPublisher is fire-and-forget publish ordered per key.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
	Close() error
}

// EventSubscriber delivers each message of topics to exactly one handler per
// group. Subscribe returns once the subscription is set up; consumption runs
// in the background until ctx ends or Close. Handler errors are logged and
// never stop the loop.
type EventSubscriber interface {
	Subscribe(ctx context.Context, topics []string, groupID string, handler EventHandler) error
	Close() error
}

type EventHandler func(ctx context.Context, msg Message) error

// Notification is the user-facing record produced by the fan-out.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	OrderID   string    `json:"orderId"`
	Topic     string    `json:"topic"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Priority  string    `json:"priority"`
	CreatedAt time.Time `json:"createdAt"`
}

// NotificationSink delivers notification records to users.
type NotificationSink interface {
	Send(ctx context.Context, n Notification) error
}

// NotificationConsumer tails delivered notifications.
type NotificationConsumer interface {
	ConsumeNotifications(ctx context.Context, handler func(ctx context.Context, body []byte) error) error
}
