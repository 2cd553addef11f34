package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

func newDriver(t *testing.T, store *Store, id string, rating float64, total int) {
	t.Helper()
	d, err := domain.NewDriver(id, "Driver "+id, rating)
	if err != nil {
		t.Fatalf("NewDriver failed: %v", err)
	}
	d.TotalDeliveries = total
	if err := store.Drivers().Create(context.Background(), d); err != nil {
		t.Fatalf("Create driver failed: %v", err)
	}
}

func TestAssignIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	newDriver(t, store, "driver-1", 4.8, 10)

	first := domain.NewDelivery("del-1", "order-1", "rest-1", "user-1", "12 Main Street")
	second := domain.NewDelivery("del-2", "order-2", "rest-1", "user-2", "14 Main Street")
	for _, d := range []*domain.Delivery{first, second} {
		if err := store.Deliveries().Create(ctx, d); err != nil {
			t.Fatalf("Create delivery failed: %v", err)
		}
		if err := d.AssignTo("driver-1", time.Now(), time.Now()); err != nil {
			t.Fatalf("AssignTo failed: %v", err)
		}
	}

	if err := store.Deliveries().Assign(ctx, first); err != nil {
		t.Fatalf("first Assign failed: %v", err)
	}
	if err := store.Deliveries().Assign(ctx, second); !errors.Is(err, domain.ErrDriverUnavailable) {
		t.Fatalf("Expected ErrDriverUnavailable for the losing assignment, got %v", err)
	}

	stored, _ := store.Deliveries().FindByID(ctx, "del-2")
	if stored.Status != domain.DeliveryStatusPendingAssignment {
		t.Errorf("Expected losing delivery unchanged, got %s", stored.Status)
	}
	driver, _ := store.Drivers().FindByID(ctx, "driver-1")
	if driver.IsAvailable {
		t.Error("Expected driver-1 unavailable after assignment")
	}
}

func TestReleaseRespectsDuty(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	newDriver(t, store, "driver-1", 4.8, 10)

	d := domain.NewDelivery("del-1", "order-1", "rest-1", "user-1", "12 Main Street")
	store.Deliveries().Create(ctx, d)
	d.AssignTo("driver-1", time.Now(), time.Now())
	if err := store.Deliveries().Assign(ctx, d); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	driver, _ := store.Drivers().FindByID(ctx, "driver-1")
	driver.OnDuty = false
	if err := store.Drivers().SetDuty(ctx, driver); err != nil {
		t.Fatalf("SetDuty failed: %v", err)
	}

	d.Accept("driver-1", time.Now())
	d.Complete(time.Now())
	if err := store.Deliveries().Release(ctx, d, "driver-1", true); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	driver, _ = store.Drivers().FindByID(ctx, "driver-1")
	if driver.IsAvailable {
		t.Error("Expected an off-duty driver to stay unavailable")
	}
	if driver.TotalDeliveries != 11 {
		t.Errorf("Expected 11 deliveries, got %d", driver.TotalDeliveries)
	}
}

func TestSetDutyDetectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	newDriver(t, store, "driver-1", 4.8, 10)

	a, _ := store.Drivers().FindByID(ctx, "driver-1")
	b, _ := store.Drivers().FindByID(ctx, "driver-1")

	a.OnDuty, a.IsAvailable = false, false
	if err := store.Drivers().SetDuty(ctx, a); err != nil {
		t.Fatalf("SetDuty failed: %v", err)
	}
	if err := store.Drivers().SetDuty(ctx, b); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Expected conflict for stale version, got %v", err)
	}
}

func TestDeliveryWritesRejectStaleVersion(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	newDriver(t, store, "driver-1", 4.8, 10)
	newDriver(t, store, "driver-2", 4.5, 10)

	d := domain.NewDelivery("del-1", "order-1", "rest-1", "user-1", "12 Main Street")
	store.Deliveries().Create(ctx, d)
	d.AssignTo("driver-1", time.Now(), time.Now())
	if err := store.Deliveries().Assign(ctx, d); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	accepted, _ := store.Deliveries().FindByID(ctx, "del-1")
	declined, _ := store.Deliveries().FindByID(ctx, "del-1")
	reassigned, _ := store.Deliveries().FindByID(ctx, "del-1")

	accepted.Accept("driver-1", time.Now())
	if err := store.Deliveries().Update(ctx, accepted); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if accepted.Version != d.Version+1 {
		t.Errorf("Expected version %d after update, got %d", d.Version+1, accepted.Version)
	}

	declined.Decline("driver-1", time.Now())
	if err := store.Deliveries().Release(ctx, declined, "driver-1", false); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Expected conflict for stale release, got %v", err)
	}

	reassigned.Decline("driver-1", time.Now())
	reassigned.AssignTo("driver-2", time.Now(), time.Now())
	if err := store.Deliveries().Assign(ctx, reassigned); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Expected conflict for stale assign, got %v", err)
	}
	if err := store.Deliveries().Update(ctx, declined); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Expected conflict for stale update, got %v", err)
	}

	stored, _ := store.Deliveries().FindByID(ctx, "del-1")
	if !stored.HeldBy("driver-1") || stored.AcceptanceStatus != domain.AcceptanceAccepted {
		t.Errorf("Expected accepted delivery held by driver-1, got %+v", stored)
	}
	if driver, _ := store.Drivers().FindByID(ctx, "driver-1"); driver.IsAvailable {
		t.Error("Expected driver-1 to stay busy")
	}
	if driver, _ := store.Drivers().FindByID(ctx, "driver-2"); !driver.IsAvailable {
		t.Error("Expected driver-2 to stay available")
	}
}

func TestListAvailableRanksAndExcludes(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	newDriver(t, store, "driver-1", 4.9, 80)
	newDriver(t, store, "driver-2", 4.9, 120)
	newDriver(t, store, "driver-3", 4.6, 45)

	got, err := store.Drivers().ListAvailable(ctx, []string{"driver-3"})
	if err != nil {
		t.Fatalf("ListAvailable failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "driver-2" || got[1].ID != "driver-1" {
		t.Errorf("unexpected ranking %v", driverIDs(got))
	}
}

func TestReconcileHelpers(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	newDriver(t, store, "idle", 4.5, 1)
	newDriver(t, store, "busy", 4.5, 1)

	idle, _ := store.Drivers().FindByID(ctx, "idle")
	idle.IsAvailable = false
	store.Drivers().SetDuty(ctx, idle)

	d := domain.NewDelivery("del-1", "order-1", "rest-1", "user-1", "12 Main Street")
	d.AssignTo("busy", time.Now(), time.Now())
	store.Deliveries().Create(ctx, d)

	freed, err := store.Drivers().ReleaseIfIdle(ctx, "idle")
	if err != nil || !freed {
		t.Errorf("Expected idle driver freed, got %v %v", freed, err)
	}
	locked, err := store.Drivers().LockIfBusy(ctx, "busy")
	if err != nil || !locked {
		t.Errorf("Expected busy driver locked, got %v %v", locked, err)
	}
	if locked, _ := store.Drivers().LockIfBusy(ctx, "idle"); locked {
		t.Error("Expected idle driver not locked")
	}
}

func TestOutboxDispatchStopsAtFailure(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	order, err := domain.NewOrder("order-1", "rest-1", "user-1",
		[]domain.OrderItem{{ItemID: "item-1", Price: 10, Quantity: 1}}, "12 Main Street", "card", 0)
	if err != nil {
		t.Fatalf("NewOrder failed: %v", err)
	}
	var events []interfaces.OutboxEvent
	for i := 0; i < 3; i++ {
		evt, _ := interfaces.NewEvent("order-service", "order-created", "order-1", map[string]int{"n": i})
		events = append(events, evt)
	}
	if err := store.Orders().Create(ctx, order, events...); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	calls := 0
	n, err := store.Outbox().Dispatch(ctx, "order-service", 10, func(e interfaces.OutboxEvent) error {
		calls++
		if calls == 2 {
			return errors.New("broker down")
		}
		return nil
	})
	if err == nil || n != 1 {
		t.Fatalf("Expected one published then failure, got n=%d err=%v", n, err)
	}

	var pending int
	for _, e := range store.Events("order-created") {
		if e.PublishedAt == nil {
			pending++
		}
	}
	if pending != 2 {
		t.Errorf("Expected 2 pending events, got %d", pending)
	}

	n, err = store.Outbox().Dispatch(ctx, "payment-service", 10, func(interfaces.OutboxEvent) error { return nil })
	if err != nil || n != 0 {
		t.Errorf("Expected other sources untouched, got n=%d err=%v", n, err)
	}
}

func TestOrderHistoryStartsWithCreated(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	order, _ := domain.NewOrder("order-1", "rest-1", "user-1",
		[]domain.OrderItem{{ItemID: "item-1", Price: 10, Quantity: 1}}, "12 Main Street", "card", 0)
	store.Orders().Create(ctx, order)
	if err := store.Orders().Create(ctx, order); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}

	order.Confirm(time.Now())
	store.Orders().UpdateStatus(ctx, order, domain.MilestoneConfirmed, "order-service")

	logs, err := store.Orders().GetStatusHistory(ctx, "order-1")
	if err != nil {
		t.Fatalf("GetStatusHistory failed: %v", err)
	}
	if len(logs) != 2 || logs[0].Status != domain.MilestoneCreated || logs[1].Status != domain.MilestoneConfirmed {
		t.Errorf("unexpected history %+v", logs)
	}
}

func driverIDs(ds []*domain.Driver) []string {
	ids := make([]string, len(ds))
	for i, d := range ds {
		ids[i] = d.ID
	}
	return ids
}
