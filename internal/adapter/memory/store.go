// Package memory holds in-process adapters for standalone mode and tests.
// Every repository shares one Store so state and outbox rows change under
// the same lock, the way the postgres adapter changes them in one
// transaction.
package memory

import (
	"slices"
	"sync"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

type Store struct {
	mu sync.Mutex

	orders     map[string]*domain.Order
	statusLogs map[string][]*domain.StatusLog
	logSeq     int

	payments map[string]*domain.Payment
	kitchen  map[string]*domain.KitchenOrder

	deliveries      map[string]*domain.Delivery
	deliveryByOrder map[string]string
	drivers         map[string]*domain.Driver

	outbox []*interfaces.OutboxEvent
}

func NewStore() *Store {
	return &Store{
		orders:          make(map[string]*domain.Order),
		statusLogs:      make(map[string][]*domain.StatusLog),
		payments:        make(map[string]*domain.Payment),
		kitchen:         make(map[string]*domain.KitchenOrder),
		deliveries:      make(map[string]*domain.Delivery),
		deliveryByOrder: make(map[string]string),
		drivers:         make(map[string]*domain.Driver),
	}
}

func (s *Store) Orders() interfaces.OrderRepository        { return &orderRepository{s: s} }
func (s *Store) Payments() interfaces.PaymentRepository    { return &paymentRepository{s: s} }
func (s *Store) Kitchen() interfaces.KitchenRepository     { return &kitchenRepository{s: s} }
func (s *Store) Deliveries() interfaces.DeliveryRepository { return &deliveryRepository{s: s} }
func (s *Store) Drivers() interfaces.DriverRepository      { return &driverRepository{s: s} }
func (s *Store) Outbox() interfaces.OutboxRepository       { return &outboxRepository{s: s} }

// Events returns a copy of every outbox event written so far, optionally
// filtered by topic.
func (s *Store) Events(topic string) []interfaces.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []interfaces.OutboxEvent
	for _, e := range s.outbox {
		if topic == "" || e.Topic == topic {
			out = append(out, *e)
		}
	}
	return out
}

// appendEvents must be called with mu held.
func (s *Store) appendEvents(events []interfaces.OutboxEvent) {
	for i := range events {
		e := events[i]
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		e.PublishedAt = nil
		s.outbox = append(s.outbox, &e)
	}
}

func (s *Store) logStatus(orderID, status, changedBy string, at time.Time) {
	s.logSeq++
	s.statusLogs[orderID] = append(s.statusLogs[orderID], &domain.StatusLog{
		ID:        s.logSeq,
		OrderID:   orderID,
		Status:    status,
		ChangedBy: changedBy,
		ChangedAt: at,
	})
}

// driverBusy must be called with mu held.
func (s *Store) driverBusy(driverID string) bool {
	for _, d := range s.deliveries {
		if d.IsActive() && d.HeldBy(driverID) {
			return true
		}
	}
	return false
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Items = slices.Clone(o.Items)
	return &c
}

func clonePayment(p *domain.Payment) *domain.Payment {
	c := *p
	return &c
}

func cloneKitchenOrder(k *domain.KitchenOrder) *domain.KitchenOrder {
	c := *k
	c.Items = slices.Clone(k.Items)
	return &c
}

func cloneDelivery(d *domain.Delivery) *domain.Delivery {
	c := *d
	c.DeclinedByDrivers = slices.Clone(d.DeclinedByDrivers)
	return &c
}

func cloneDriver(d *domain.Driver) *domain.Driver {
	c := *d
	return &c
}
