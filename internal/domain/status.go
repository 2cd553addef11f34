package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending       OrderStatus = "pending"
	OrderStatusConfirmed     OrderStatus = "confirmed"
	OrderStatusPaymentFailed OrderStatus = "payment_failed"
	OrderStatusDelivered     OrderStatus = "delivered"
)

// PaymentStatus is the order's view of its payment.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Milestones recorded in the order status log. They are a superset of
// OrderStatus: out_for_delivery is history only.
const (
	MilestoneCreated        = "created"
	MilestoneConfirmed      = "confirmed"
	MilestonePaymentFailed  = "payment_failed"
	MilestoneOutForDelivery = "out_for_delivery"
	MilestoneDelivered      = "delivered"
)

// StatusLog represents a log entry for order status changes
type StatusLog struct {
	ID        int
	OrderID   string
	Status    string
	ChangedBy string
	ChangedAt time.Time
	Notes     *string
}
