package domain

import "time"

type KitchenStatus string

const (
	KitchenStatusReceived  KitchenStatus = "received"
	KitchenStatusPreparing KitchenStatus = "preparing"
	KitchenStatusReady     KitchenStatus = "ready"
)

// KitchenOrder tracks food preparation for one order.
type KitchenOrder struct {
	OrderID                string
	RestaurantID           string
	UserID                 string
	Items                  []OrderItem
	DeliveryAddress        string
	Status                 KitchenStatus
	ReceivedAt             time.Time
	StartedAt              *time.Time
	EstimatedReadyTime     *time.Time
	ReadyAt                *time.Time
	PreparationTimeSeconds int
}

func NewKitchenOrder(orderID, restaurantID, userID string, items []OrderItem, address string) *KitchenOrder {
	return &KitchenOrder{
		OrderID:         orderID,
		RestaurantID:    restaurantID,
		UserID:          userID,
		Items:           items,
		DeliveryAddress: address,
		Status:          KitchenStatusReceived,
		ReceivedAt:      time.Now().UTC(),
	}
}

// StartPreparing moves a received order to preparing for the given duration.
func (k *KitchenOrder) StartPreparing(prep time.Duration, at time.Time) error {
	if k.Status != KitchenStatusReceived {
		return Conflictf("kitchen order %s is %s, not received", k.OrderID, k.Status)
	}
	ready := at.Add(prep)
	k.Status = KitchenStatusPreparing
	k.StartedAt = &at
	k.EstimatedReadyTime = &ready
	k.PreparationTimeSeconds = int(prep / time.Second)
	return nil
}

// MarkReady finishes preparation. Ready is terminal.
func (k *KitchenOrder) MarkReady(at time.Time) error {
	if k.Status != KitchenStatusPreparing {
		return Conflictf("kitchen order %s is %s, not preparing", k.OrderID, k.Status)
	}
	k.Status = KitchenStatusReady
	k.ReadyAt = &at
	return nil
}
