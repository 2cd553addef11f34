package interfaces

import (
	"context"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/domain"
)

// Commands

type CreateOrderCommand struct {
	RestaurantID    string
	UserID          string
	DeliveryAddress string
	PaymentMethod   string
	Items           []CreateOrderItemCommand
}

type CreateOrderItemCommand struct {
	ItemID   string
	Quantity int
}

type ProcessPaymentCommand struct {
	OrderID string
	UserID  string
	Amount  float64
	Method  string
}

// ProviderEvent is a payment provider callback.
type ProviderEvent struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	OrderID       string `json:"orderId"`
	SessionID     string `json:"sessionId"`
	Method        string `json:"method"`
	FailureReason string `json:"failureReason,omitempty"`
}

// Service ports used by the HTTP adapter

type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	GetOrderHistory(ctx context.Context, orderID string) ([]*domain.StatusLog, error)
}

type PaymentService interface {
	ProcessPayment(ctx context.Context, cmd ProcessPaymentCommand) (*domain.Payment, error)
	HandleProviderCallback(ctx context.Context, body []byte, signature string) (*domain.Payment, error)
	GetPayment(ctx context.Context, orderID string) (*domain.Payment, error)
}

type KitchenService interface {
	GetKitchenOrder(ctx context.Context, orderID string) (*domain.KitchenOrder, error)
}

type DeliveryService interface {
	Accept(ctx context.Context, deliveryID, driverID string) (*domain.Delivery, error)
	Decline(ctx context.Context, deliveryID, driverID, reason string) (*domain.Delivery, error)
	PickUp(ctx context.Context, deliveryID string) (*domain.Delivery, error)
	Complete(ctx context.Context, deliveryID string) (*domain.Delivery, error)
	ToggleAvailability(ctx context.Context, driverID string, isAvailable bool) (*domain.Driver, error)
	Heartbeat(ctx context.Context, driverID string, loc domain.Location) error
	GetDelivery(ctx context.Context, deliveryID string) (*domain.Delivery, error)
}

type DriverRosterEntry struct {
	DriverID        string          `json:"driverId"`
	Name            string          `json:"name"`
	Status          string          `json:"status"`
	Rating          float64         `json:"rating"`
	TotalDeliveries int             `json:"totalDeliveries"`
	Location        domain.Location `json:"location"`
	LastSeen        time.Time       `json:"lastSeen"`
}

// TrackingService serves the read-only driver roster.
type TrackingService interface {
	GetDriversStatus(ctx context.Context) ([]*DriverRosterEntry, error)
}

// Collaborators

type RestaurantStatus struct {
	RestaurantID string
	Name         string
	IsOpen       bool
	DeliveryFee  float64
}

type MenuSelection struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// RestaurantClient is the synchronous restaurant/menu read used at order
// creation. Transport failures must wrap domain.ErrUpstreamUnavailable.
type RestaurantClient interface {
	GetStatus(ctx context.Context, restaurantID string) (*RestaurantStatus, error)
	// ValidateMenu returns priced items, or domain.ErrValidation for unknown
	// or unavailable items.
	ValidateMenu(ctx context.Context, restaurantID string, items []MenuSelection) ([]domain.OrderItem, error)
}

type GatewayOutcome string

const (
	GatewaySucceeded GatewayOutcome = "succeeded"
	GatewayFailed    GatewayOutcome = "failed"
	// GatewayPending means the provider confirms later through a callback.
	GatewayPending GatewayOutcome = "pending"
)

type GatewayResult struct {
	Outcome       GatewayOutcome
	TransactionID string
	FailureReason string
}

// PaymentGateway charges a payment. Implementations may block for the
// provider's latency; callers run them off the consumer loop.
type PaymentGateway interface {
	Charge(ctx context.Context, payment *domain.Payment) (GatewayResult, error)
}

// Scheduling

// Task is a deferred continuation. ID is unique: scheduling an ID again
// replaces the earlier task.
type Task struct {
	ID      string    `json:"id"`
	Kind    string    `json:"kind"`
	OrderID string    `json:"orderId"`
	RunAt   time.Time `json:"runAt"`
	Payload []byte    `json:"payload,omitempty"`
}

type TaskFunc func(ctx context.Context, task Task) error

type Scheduler interface {
	Register(kind string, fn TaskFunc)
	Schedule(ctx context.Context, task Task) error
	Cancel(ctx context.Context, taskID string) error
	Stop()
}

const (
	TaskChargePayment     = "payment.charge"
	TaskKitchenComplete   = "kitchen.complete"
	TaskAcceptanceTimeout = "delivery.acceptance-timeout"
)
