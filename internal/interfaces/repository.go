package interfaces

import (
	"context"

	"github.com/YelzhanWeb/fooddelivery/internal/domain"
)

// Repository ports. Mutating methods take the events caused by the change;
// adapters persist state and events atomically.

type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order, events ...OutboxEvent) error
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	// UpdateStatus persists status fields and appends milestone to the log.
	UpdateStatus(ctx context.Context, order *domain.Order, milestone, changedBy string, events ...OutboxEvent) error
	LogStatus(ctx context.Context, orderID, milestone, changedBy string) error
	GetStatusHistory(ctx context.Context, orderID string) ([]*domain.StatusLog, error)
}

type PaymentRepository interface {
	// Create fails with domain.ErrAlreadyExists when the order already has a payment.
	Create(ctx context.Context, payment *domain.Payment) error
	FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error)
	Update(ctx context.Context, payment *domain.Payment, events ...OutboxEvent) error
}

type KitchenRepository interface {
	// Create fails with domain.ErrAlreadyExists on a second order-confirmed.
	Create(ctx context.Context, order *domain.KitchenOrder) error
	FindByOrderID(ctx context.Context, orderID string) (*domain.KitchenOrder, error)
	Update(ctx context.Context, order *domain.KitchenOrder, events ...OutboxEvent) error
	ListByStatus(ctx context.Context, status domain.KitchenStatus) ([]*domain.KitchenOrder, error)
}

type DeliveryRepository interface {
	// Create fails with domain.ErrAlreadyExists when the order already has a delivery.
	Create(ctx context.Context, delivery *domain.Delivery, events ...OutboxEvent) error
	FindByID(ctx context.Context, id string) (*domain.Delivery, error)
	FindByOrderID(ctx context.Context, orderID string) (*domain.Delivery, error)
	Update(ctx context.Context, delivery *domain.Delivery, events ...OutboxEvent) error
	// Assign flips *delivery.DriverID from available to unavailable with a
	// compare-and-set and stores the delivery in the same transaction. A lost
	// race returns domain.ErrDriverUnavailable and changes nothing.
	Assign(ctx context.Context, delivery *domain.Delivery, events ...OutboxEvent) error
	// Release stores the delivery and frees driverID if it is on duty.
	// completed also increments the driver's delivery count.
	Release(ctx context.Context, delivery *domain.Delivery, driverID string, completed bool, events ...OutboxEvent) error
	ListByStatus(ctx context.Context, status domain.DeliveryStatus) ([]*domain.Delivery, error)
	ListActive(ctx context.Context) ([]*domain.Delivery, error)
	// FindActiveByDriver returns domain.ErrNotFound when the driver is idle.
	FindActiveByDriver(ctx context.Context, driverID string) (*domain.Delivery, error)
}

type DriverRepository interface {
	Create(ctx context.Context, driver *domain.Driver) error
	FindByID(ctx context.Context, id string) (*domain.Driver, error)
	// ListAvailable returns available drivers not in exclude, best ranked first.
	ListAvailable(ctx context.Context, exclude []string) ([]*domain.Driver, error)
	ListAll(ctx context.Context) ([]*domain.Driver, error)
	// SetDuty stores duty and availability if driver.Version still matches,
	// otherwise domain.ErrConflict.
	SetDuty(ctx context.Context, driver *domain.Driver) error
	// ReleaseIfIdle frees an on-duty unavailable driver holding no active
	// delivery. LockIfBusy marks an available driver holding one unavailable.
	// Both check and write atomically and report whether they changed the row.
	ReleaseIfIdle(ctx context.Context, driverID string) (bool, error)
	LockIfBusy(ctx context.Context, driverID string) (bool, error)
	UpdateHeartbeat(ctx context.Context, driverID string, loc domain.Location) error
}

type OutboxRepository interface {
	// Dispatch hands pending events of source to fn in creation order and marks
	// the successful ones published. It stops at the first failure.
	Dispatch(ctx context.Context, source string, limit int, fn func(OutboxEvent) error) (int, error)
}
