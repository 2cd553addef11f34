package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

type orderRepository struct{ s *Store }

func (r *orderRepository) Create(ctx context.Context, order *domain.Order, events ...interfaces.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.orders[order.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.s.orders[order.ID] = cloneOrder(order)
	r.s.logStatus(order.ID, domain.MilestoneCreated, "order-service", order.CreatedAt)
	r.s.appendEvents(events)
	return nil
}

func (r *orderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.orders[id]
	if !ok {
		return nil, domain.NotFoundf("order %s", id)
	}
	return cloneOrder(o), nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, order *domain.Order, milestone, changedBy string, events ...interfaces.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.orders[order.ID]; !ok {
		return domain.NotFoundf("order %s", order.ID)
	}
	r.s.orders[order.ID] = cloneOrder(order)
	r.s.logStatus(order.ID, milestone, changedBy, order.UpdatedAt)
	r.s.appendEvents(events)
	return nil
}

func (r *orderRepository) LogStatus(ctx context.Context, orderID, milestone, changedBy string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.logStatus(orderID, milestone, changedBy, time.Now().UTC())
	return nil
}

func (r *orderRepository) GetStatusHistory(ctx context.Context, orderID string) ([]*domain.StatusLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	logs := r.s.statusLogs[orderID]
	out := make([]*domain.StatusLog, len(logs))
	for i, l := range logs {
		c := *l
		out[i] = &c
	}
	return out, nil
}

type paymentRepository struct{ s *Store }

func (r *paymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.payments[payment.OrderID]; ok {
		return domain.ErrAlreadyExists
	}
	r.s.payments[payment.OrderID] = clonePayment(payment)
	return nil
}

func (r *paymentRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.payments[orderID]
	if !ok {
		return nil, domain.NotFoundf("payment for order %s", orderID)
	}
	return clonePayment(p), nil
}

func (r *paymentRepository) Update(ctx context.Context, payment *domain.Payment, events ...interfaces.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.payments[payment.OrderID]; !ok {
		return domain.NotFoundf("payment for order %s", payment.OrderID)
	}
	r.s.payments[payment.OrderID] = clonePayment(payment)
	r.s.appendEvents(events)
	return nil
}

type kitchenRepository struct{ s *Store }

func (r *kitchenRepository) Create(ctx context.Context, order *domain.KitchenOrder) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.kitchen[order.OrderID]; ok {
		return domain.ErrAlreadyExists
	}
	r.s.kitchen[order.OrderID] = cloneKitchenOrder(order)
	return nil
}

func (r *kitchenRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.KitchenOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	k, ok := r.s.kitchen[orderID]
	if !ok {
		return nil, domain.NotFoundf("kitchen order %s", orderID)
	}
	return cloneKitchenOrder(k), nil
}

func (r *kitchenRepository) Update(ctx context.Context, order *domain.KitchenOrder, events ...interfaces.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.kitchen[order.OrderID]; !ok {
		return domain.NotFoundf("kitchen order %s", order.OrderID)
	}
	r.s.kitchen[order.OrderID] = cloneKitchenOrder(order)
	r.s.appendEvents(events)
	return nil
}

func (r *kitchenRepository) ListByStatus(ctx context.Context, status domain.KitchenStatus) ([]*domain.KitchenOrder, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*domain.KitchenOrder
	for _, k := range r.s.kitchen {
		if k.Status == status {
			out = append(out, cloneKitchenOrder(k))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out, nil
}

type deliveryRepository struct{ s *Store }

func (r *deliveryRepository) Create(ctx context.Context, delivery *domain.Delivery, events ...interfaces.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.deliveryByOrder[delivery.OrderID]; ok {
		return domain.ErrAlreadyExists
	}
	r.s.deliveries[delivery.ID] = cloneDelivery(delivery)
	r.s.deliveryByOrder[delivery.OrderID] = delivery.ID
	r.s.appendEvents(events)
	return nil
}

func (r *deliveryRepository) FindByID(ctx context.Context, id string) (*domain.Delivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d, ok := r.s.deliveries[id]
	if !ok {
		return nil, domain.NotFoundf("delivery %s", id)
	}
	return cloneDelivery(d), nil
}

func (r *deliveryRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Delivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, ok := r.s.deliveryByOrder[orderID]
	if !ok {
		return nil, domain.NotFoundf("delivery for order %s", orderID)
	}
	return cloneDelivery(r.s.deliveries[id]), nil
}

func (r *deliveryRepository) Update(ctx context.Context, delivery *domain.Delivery, events ...interfaces.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.checkVersion(delivery); err != nil {
		return err
	}
	r.save(delivery)
	r.s.appendEvents(events)
	return nil
}

func (r *deliveryRepository) Assign(ctx context.Context, delivery *domain.Delivery, events ...interfaces.OutboxEvent) error {
	if delivery.DriverID == nil {
		return domain.Conflictf("delivery %s has no driver to assign", delivery.ID)
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.checkVersion(delivery); err != nil {
		return err
	}
	driver, ok := r.s.drivers[*delivery.DriverID]
	if !ok {
		return domain.NotFoundf("driver %s", *delivery.DriverID)
	}
	if !driver.IsAvailable || !driver.OnDuty {
		return domain.ErrDriverUnavailable
	}

	driver.IsAvailable = false
	driver.Version++
	r.save(delivery)
	r.s.appendEvents(events)
	return nil
}

func (r *deliveryRepository) Release(ctx context.Context, delivery *domain.Delivery, driverID string, completed bool, events ...interfaces.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.checkVersion(delivery); err != nil {
		return err
	}
	r.save(delivery)

	if driver, ok := r.s.drivers[driverID]; ok {
		if driver.OnDuty {
			driver.IsAvailable = true
		}
		if completed {
			driver.IncrementDeliveries()
		}
		driver.Version++
	}

	r.s.appendEvents(events)
	return nil
}

func (r *deliveryRepository) ListByStatus(ctx context.Context, status domain.DeliveryStatus) ([]*domain.Delivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*domain.Delivery
	for _, d := range r.s.deliveries {
		if d.Status == status {
			out = append(out, cloneDelivery(d))
		}
	}
	sortDeliveries(out)
	return out, nil
}

func (r *deliveryRepository) ListActive(ctx context.Context) ([]*domain.Delivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*domain.Delivery
	for _, d := range r.s.deliveries {
		if d.IsActive() {
			out = append(out, cloneDelivery(d))
		}
	}
	sortDeliveries(out)
	return out, nil
}

func (r *deliveryRepository) FindActiveByDriver(ctx context.Context, driverID string) (*domain.Delivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, d := range r.s.deliveries {
		if d.IsActive() && d.HeldBy(driverID) {
			return cloneDelivery(d), nil
		}
	}
	return nil, domain.NotFoundf("active delivery for driver %s", driverID)
}

// checkVersion rejects a write based on an outdated read. Callers hold s.mu.
func (r *deliveryRepository) checkVersion(delivery *domain.Delivery) error {
	stored, ok := r.s.deliveries[delivery.ID]
	if !ok {
		return domain.NotFoundf("delivery %s", delivery.ID)
	}
	if stored.Version != delivery.Version {
		return domain.Conflictf("delivery %s changed concurrently (version %d, stored %d)", delivery.ID, delivery.Version, stored.Version)
	}
	return nil
}

func (r *deliveryRepository) save(delivery *domain.Delivery) {
	delivery.Version++
	r.s.deliveries[delivery.ID] = cloneDelivery(delivery)
}

func sortDeliveries(ds []*domain.Delivery) {
	sort.Slice(ds, func(i, j int) bool {
		if !ds[i].CreatedAt.Equal(ds[j].CreatedAt) {
			return ds[i].CreatedAt.Before(ds[j].CreatedAt)
		}
		return ds[i].ID < ds[j].ID
	})
}

type driverRepository struct{ s *Store }

func (r *driverRepository) Create(ctx context.Context, driver *domain.Driver) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.drivers[driver.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.s.drivers[driver.ID] = cloneDriver(driver)
	return nil
}

func (r *driverRepository) FindByID(ctx context.Context, id string) (*domain.Driver, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d, ok := r.s.drivers[id]
	if !ok {
		return nil, domain.NotFoundf("driver %s", id)
	}
	return cloneDriver(d), nil
}

func (r *driverRepository) ListAvailable(ctx context.Context, exclude []string) ([]*domain.Driver, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*domain.Driver
	for _, d := range r.s.drivers {
		if d.IsAvailable && d.OnDuty && !slices.Contains(exclude, d.ID) {
			out = append(out, cloneDriver(d))
		}
	}
	domain.RankDrivers(out)
	return out, nil
}

func (r *driverRepository) ListAll(ctx context.Context) ([]*domain.Driver, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]*domain.Driver, 0, len(r.s.drivers))
	for _, d := range r.s.drivers {
		out = append(out, cloneDriver(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *driverRepository) SetDuty(ctx context.Context, driver *domain.Driver) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.drivers[driver.ID]
	if !ok {
		return domain.NotFoundf("driver %s", driver.ID)
	}
	if stored.Version != driver.Version {
		return domain.Conflictf("driver %s was modified concurrently", driver.ID)
	}
	stored.OnDuty = driver.OnDuty
	stored.IsAvailable = driver.IsAvailable
	stored.Version++
	driver.Version = stored.Version
	return nil
}

func (r *driverRepository) ReleaseIfIdle(ctx context.Context, driverID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d, ok := r.s.drivers[driverID]
	if !ok {
		return false, domain.NotFoundf("driver %s", driverID)
	}
	if d.IsAvailable || !d.OnDuty || r.s.driverBusy(driverID) {
		return false, nil
	}
	d.IsAvailable = true
	d.Version++
	return true, nil
}

func (r *driverRepository) LockIfBusy(ctx context.Context, driverID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d, ok := r.s.drivers[driverID]
	if !ok {
		return false, domain.NotFoundf("driver %s", driverID)
	}
	if !d.IsAvailable || !r.s.driverBusy(driverID) {
		return false, nil
	}
	d.IsAvailable = false
	d.Version++
	return true, nil
}

func (r *driverRepository) UpdateHeartbeat(ctx context.Context, driverID string, loc domain.Location) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d, ok := r.s.drivers[driverID]
	if !ok {
		return domain.NotFoundf("driver %s", driverID)
	}
	d.Location = loc
	d.LastSeen = time.Now().UTC()
	return nil
}

type outboxRepository struct{ s *Store }

// Dispatch calls fn outside the lock so a publisher may block.
func (r *outboxRepository) Dispatch(ctx context.Context, source string, limit int, fn func(interfaces.OutboxEvent) error) (int, error) {
	r.s.mu.Lock()
	var batch []*interfaces.OutboxEvent
	for _, e := range r.s.outbox {
		if e.PublishedAt != nil || (source != "" && e.Source != source) {
			continue
		}
		batch = append(batch, e)
		if limit > 0 && len(batch) == limit {
			break
		}
	}
	r.s.mu.Unlock()

	sent := 0
	for _, e := range batch {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := fn(*e); err != nil {
			return sent, err
		}
		now := time.Now().UTC()
		r.s.mu.Lock()
		e.PublishedAt = &now
		r.s.mu.Unlock()
		sent++
	}
	return sent, nil
}
