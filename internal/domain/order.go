package domain

import (
	"math"
	"time"
)

// Order is the customer order owned by the order saga.
type Order struct {
	ID              string
	RestaurantID    string
	UserID          string
	Items           []OrderItem
	DeliveryAddress string
	PaymentMethod   string
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	DeliveryFee     float64
	Total           float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ConfirmedAt     *time.Time
	DeliveredAt     *time.Time
}

// OrderItem is a validated menu line of an order.
type OrderItem struct {
	ItemID   string  `json:"item_id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// NewOrder creates a pending order from already validated items
func NewOrder(id, restaurantID, userID string, items []OrderItem, address, paymentMethod string, deliveryFee float64) (*Order, error) {
	now := time.Now().UTC()
	order := &Order{
		ID:              id,
		RestaurantID:    restaurantID,
		UserID:          userID,
		Items:           items,
		DeliveryAddress: address,
		PaymentMethod:   paymentMethod,
		Status:          OrderStatusPending,
		PaymentStatus:   PaymentStatusPending,
		DeliveryFee:     deliveryFee,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := order.Validate(); err != nil {
		return nil, err
	}

	order.CalculateTotal()

	return order, nil
}

// Validate applies business validation rules
func (o *Order) Validate() error {
	if o.RestaurantID == "" {
		return Validationf("restaurant id is required")
	}
	if o.UserID == "" {
		return Validationf("user id is required")
	}
	if len(o.DeliveryAddress) < 5 {
		return Validationf("delivery address required (min 5 characters)")
	}
	if len(o.Items) < 1 || len(o.Items) > 50 {
		return Validationf("order must have 1-50 items")
	}
	for _, item := range o.Items {
		if item.ItemID == "" {
			return Validationf("item id is required")
		}
		if item.Quantity < 1 || item.Quantity > 20 {
			return Validationf("item %s quantity must be 1-20", item.ItemID)
		}
		if item.Price <= 0 {
			return Validationf("item %s has no price", item.ItemID)
		}
	}
	if o.DeliveryFee < 0 {
		return Validationf("delivery fee cannot be negative")
	}
	return nil
}

// CalculateTotal sums item lines and the restaurant delivery fee, rounded to cents
func (o *Order) CalculateTotal() {
	total := o.DeliveryFee
	for _, item := range o.Items {
		total += item.Price * float64(item.Quantity)
	}
	o.Total = RoundMoney(total)
}

// Confirm records a successful payment.
func (o *Order) Confirm(at time.Time) error {
	if err := o.transitionTo(OrderStatusConfirmed); err != nil {
		return err
	}
	o.PaymentStatus = PaymentStatusPaid
	o.ConfirmedAt = &at
	o.UpdatedAt = at
	return nil
}

// FailPayment records a failed payment. The order is terminal afterwards.
func (o *Order) FailPayment(at time.Time) error {
	if err := o.transitionTo(OrderStatusPaymentFailed); err != nil {
		return err
	}
	o.PaymentStatus = PaymentStatusFailed
	o.UpdatedAt = at
	return nil
}

// MarkDelivered records delivery completion.
func (o *Order) MarkDelivered(at time.Time) error {
	if err := o.transitionTo(OrderStatusDelivered); err != nil {
		return err
	}
	o.DeliveredAt = &at
	o.UpdatedAt = at
	return nil
}

func (o *Order) transitionTo(newStatus OrderStatus) error {
	if !o.CanTransitionTo(newStatus) {
		return Conflictf("order %s cannot move from %s to %s", o.ID, o.Status, newStatus)
	}
	o.Status = newStatus
	return nil
}

// CanTransitionTo checks if the order can transition to the new status
func (o *Order) CanTransitionTo(newStatus OrderStatus) bool {
	validTransitions := map[OrderStatus][]OrderStatus{
		OrderStatusPending:       {OrderStatusConfirmed, OrderStatusPaymentFailed},
		OrderStatusConfirmed:     {OrderStatusDelivered},
		OrderStatusPaymentFailed: {},
		OrderStatusDelivered:     {},
	}

	for _, s := range validTransitions[o.Status] {
		if s == newStatus {
			return true
		}
	}
	return false
}

// RoundMoney rounds an amount to two decimals.
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
