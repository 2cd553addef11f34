package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/adapter/logger"
	"github.com/YelzhanWeb/fooddelivery/internal/adapter/memory"
	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *Service
	store *memory.Store
	sched *memory.Scheduler
}

func newFixture(t *testing.T, opts Options, drivers ...*domain.Driver) *fixture {
	t.Helper()
	store := memory.NewStore()
	for _, d := range drivers {
		if err := store.Drivers().Create(context.Background(), d); err != nil {
			t.Fatalf("Create driver failed: %v", err)
		}
	}
	sched := memory.NewScheduler(logger.Discard())
	svc := NewService(store.Deliveries(), store.Drivers(), sched, logger.Discard(), opts)
	svc.now = func() time.Time { return t0 }
	svc.eta = func() time.Duration { return 30 * time.Minute }
	return &fixture{svc: svc, store: store, sched: sched}
}

func driver(t *testing.T, id string, rating float64, total int) *domain.Driver {
	t.Helper()
	d, err := domain.NewDriver(id, "Driver "+id, rating)
	if err != nil {
		t.Fatalf("NewDriver failed: %v", err)
	}
	d.TotalDeliveries = total
	return d
}

func foodReady(orderID string) interfaces.FoodReadyEvent {
	return interfaces.FoodReadyEvent{OrderID: orderID, RestaurantID: "rest-1", UserID: "user-1", DeliveryAddress: "12 Main Street"}
}

func (f *fixture) open(t *testing.T, orderID string) *domain.Delivery {
	t.Helper()
	ctx := context.Background()
	if err := f.svc.HandleFoodReady(ctx, foodReady(orderID)); err != nil {
		t.Fatalf("HandleFoodReady failed: %v", err)
	}
	d, err := f.store.Deliveries().FindByOrderID(ctx, orderID)
	if err != nil {
		t.Fatalf("FindByOrderID failed: %v", err)
	}
	return d
}

func (f *fixture) driver(t *testing.T, id string) *domain.Driver {
	t.Helper()
	d, err := f.store.Drivers().FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	return d
}

func (f *fixture) events(t *testing.T, topic string) []interfaces.DeliveryEvent {
	t.Helper()
	var out []interfaces.DeliveryEvent
	for _, e := range f.store.Events(topic) {
		var evt interfaces.DeliveryEvent
		if err := json.Unmarshal(e.Payload, &evt); err != nil {
			t.Fatalf("bad payload: %v", err)
		}
		out = append(out, evt)
	}
	return out
}

func assignedTo(d *domain.Delivery) string {
	if d.DriverID == nil {
		return ""
	}
	return *d.DriverID
}

func TestFoodReadyAssignsBestRankedDriver(t *testing.T) {
	f := newFixture(t, Options{},
		driver(t, "driver-a", 4.9, 80),
		driver(t, "driver-b", 4.9, 120),
		driver(t, "driver-c", 4.6, 300),
	)

	d := f.open(t, "order-1")
	if assignedTo(d) != "driver-b" {
		t.Fatalf("Expected driver-b to win the tie on volume, got %s", assignedTo(d))
	}
	if d.Status != domain.DeliveryStatusAssigned || d.AcceptanceStatus != domain.AcceptancePending {
		t.Errorf("unexpected state %s/%s", d.Status, d.AcceptanceStatus)
	}
	if !d.EstimatedDeliveryTime.Equal(t0.Add(30 * time.Minute)) {
		t.Errorf("unexpected ETA %v", d.EstimatedDeliveryTime)
	}
	if f.driver(t, "driver-b").IsAvailable {
		t.Error("Expected driver-b unavailable")
	}

	assigned := f.events(t, interfaces.TopicDeliveryAssigned)
	if len(assigned) != 1 || assigned[0].DriverID != "driver-b" {
		t.Errorf("unexpected delivery-assigned events %+v", assigned)
	}
}

func TestFoodReadyIsIdempotent(t *testing.T) {
	f := newFixture(t, Options{}, driver(t, "driver-a", 4.9, 80), driver(t, "driver-b", 4.5, 10))
	ctx := context.Background()

	f.open(t, "order-1")
	if err := f.svc.HandleFoodReady(ctx, foodReady("order-1")); err != nil {
		t.Fatalf("duplicate HandleFoodReady failed: %v", err)
	}

	if n := len(f.events(t, interfaces.TopicDeliveryAssigned)); n != 1 {
		t.Errorf("Expected one assignment, got %d", n)
	}
	if !f.driver(t, "driver-b").IsAvailable {
		t.Error("Expected driver-b untouched by the duplicate")
	}
}

func TestFoodReadyWithoutDrivers(t *testing.T) {
	f := newFixture(t, Options{})

	d := f.open(t, "order-1")
	if d.Status != domain.DeliveryStatusPendingAssignment || d.DriverID != nil {
		t.Errorf("Expected pending assignment, got %s", d.Status)
	}
	unassigned := f.events(t, interfaces.TopicDeliveryUnassigned)
	if len(unassigned) != 1 || unassigned[0].Reason != reasonNoDrivers {
		t.Errorf("unexpected delivery-unassigned events %+v", unassigned)
	}
}

func TestDeclineReassignsToNextDriver(t *testing.T) {
	f := newFixture(t, Options{},
		driver(t, "driver-a", 4.9, 80),
		driver(t, "driver-c", 4.6, 45),
	)
	ctx := context.Background()

	d := f.open(t, "order-1")
	if assignedTo(d) != "driver-a" {
		t.Fatalf("Expected driver-a first, got %s", assignedTo(d))
	}

	d, err := f.svc.Decline(ctx, d.ID, "driver-a", " traffic ")
	if err != nil {
		t.Fatalf("Decline failed: %v", err)
	}
	if assignedTo(d) != "driver-c" || d.Status != domain.DeliveryStatusAssigned {
		t.Fatalf("Expected reassignment to driver-c, got %s/%s", assignedTo(d), d.Status)
	}
	if len(d.DeclinedByDrivers) != 1 || d.DeclinedByDrivers[0] != "driver-a" {
		t.Errorf("unexpected decliners %v", d.DeclinedByDrivers)
	}
	if !f.driver(t, "driver-a").IsAvailable {
		t.Error("Expected driver-a back in the pool")
	}

	declined := f.events(t, interfaces.TopicDeliveryDeclined)
	if len(declined) != 1 || declined[0].Reason != "traffic" {
		t.Errorf("unexpected delivery-declined events %+v", declined)
	}
	reassigned := f.events(t, interfaces.TopicDeliveryReassigned)
	if len(reassigned) != 1 || reassigned[0].DriverID != "driver-c" || reassigned[0].PreviousDriverID != "driver-a" {
		t.Errorf("unexpected delivery-reassigned events %+v", reassigned)
	}

	// the decliner is never offered the same order again
	d, err = f.svc.Decline(ctx, d.ID, "driver-c", "")
	if err != nil {
		t.Fatalf("second Decline failed: %v", err)
	}
	if d.Status != domain.DeliveryStatusPendingAssignment {
		t.Errorf("Expected pending assignment after everyone declined, got %s", d.Status)
	}
	if len(d.DeclinedByDrivers) != 2 {
		t.Errorf("Expected 2 decliners, got %v", d.DeclinedByDrivers)
	}
	unassigned := f.events(t, interfaces.TopicDeliveryUnassigned)
	if len(unassigned) != 1 || unassigned[0].Reason != reasonAllDeclined {
		t.Errorf("unexpected delivery-unassigned events %+v", unassigned)
	}
}

func TestDeclineRules(t *testing.T) {
	f := newFixture(t, Options{}, driver(t, "driver-a", 4.9, 80))
	ctx := context.Background()
	d := f.open(t, "order-1")

	if _, err := f.svc.Decline(ctx, d.ID, "driver-x", ""); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("Expected forbidden for another driver, got %v", err)
	}
	if _, err := f.svc.Accept(ctx, d.ID, "driver-a"); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if _, err := f.svc.Decline(ctx, d.ID, "driver-a", ""); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Expected conflict after accept, got %v", err)
	}
	if _, err := f.svc.Accept(ctx, d.ID, "driver-a"); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Expected conflict on second accept, got %v", err)
	}
	if _, err := f.svc.Decline(ctx, "missing", "driver-a", ""); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestDeliveryHappyPath(t *testing.T) {
	f := newFixture(t, Options{}, driver(t, "driver-a", 4.9, 80))
	ctx := context.Background()
	d := f.open(t, "order-1")

	if _, err := f.svc.PickUp(ctx, d.ID); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Expected pickup before accept to conflict, got %v", err)
	}

	if _, err := f.svc.Accept(ctx, d.ID, "driver-a"); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if _, err := f.svc.PickUp(ctx, d.ID); err != nil {
		t.Fatalf("PickUp failed: %v", err)
	}
	done, err := f.svc.Complete(ctx, d.ID)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if done.Status != domain.DeliveryStatusCompleted || done.ActualDeliveryTime == nil {
		t.Errorf("unexpected delivery %+v", done)
	}

	drv := f.driver(t, "driver-a")
	if !drv.IsAvailable || drv.TotalDeliveries != 81 {
		t.Errorf("Expected driver freed with 81 deliveries, got %v/%d", drv.IsAvailable, drv.TotalDeliveries)
	}

	for _, topic := range []string{interfaces.TopicDeliveryAccepted, interfaces.TopicDeliveryPickedUp, interfaces.TopicDeliveryCompleted} {
		if n := len(f.events(t, topic)); n != 1 {
			t.Errorf("Expected one %s, got %d", topic, n)
		}
	}

	if _, err := f.svc.Complete(ctx, d.ID); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Expected conflict completing twice, got %v", err)
	}
}

// racingDrivers hands out a candidate list that goes stale before Assign.
type racingDrivers struct {
	interfaces.DriverRepository
	steal string
}

func (r *racingDrivers) ListAvailable(ctx context.Context, exclude []string) ([]*domain.Driver, error) {
	list, err := r.DriverRepository.ListAvailable(ctx, exclude)
	if err != nil || r.steal == "" {
		return list, err
	}
	d, err := r.DriverRepository.FindByID(ctx, r.steal)
	if err != nil {
		return nil, err
	}
	d.IsAvailable = false
	if err := r.DriverRepository.SetDuty(ctx, d); err != nil {
		return nil, err
	}
	r.steal = ""
	return list, nil
}

func TestAssignmentSkipsDriverTakenConcurrently(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	store.Drivers().Create(ctx, driver(t, "driver-a", 4.9, 80))
	store.Drivers().Create(ctx, driver(t, "driver-b", 4.7, 80))

	drivers := &racingDrivers{DriverRepository: store.Drivers(), steal: "driver-a"}
	svc := NewService(store.Deliveries(), drivers, memory.NewScheduler(logger.Discard()), logger.Discard(), Options{})

	if err := svc.HandleFoodReady(ctx, foodReady("order-1")); err != nil {
		t.Fatalf("HandleFoodReady failed: %v", err)
	}
	d, _ := store.Deliveries().FindByOrderID(ctx, "order-1")
	if assignedTo(d) != "driver-b" {
		t.Errorf("Expected fallback to driver-b, got %q", assignedTo(d))
	}
	if len(store.Events(interfaces.TopicDeliveryAssigned)) != 1 {
		t.Error("Expected a single assignment event")
	}
}

func TestAcceptanceTimeoutActsLikeDecline(t *testing.T) {
	f := newFixture(t, Options{AcceptanceTimeout: 30 * time.Second},
		driver(t, "driver-a", 4.9, 80),
		driver(t, "driver-b", 4.5, 10),
	)
	ctx := context.Background()
	d := f.open(t, "order-1")

	if n := f.sched.RunDue(ctx, t0.Add(29*time.Second)); n != 0 {
		t.Fatalf("Expected nothing before the timeout, ran %d", n)
	}
	if n := f.sched.RunDue(ctx, t0.Add(30*time.Second)); n != 1 {
		t.Fatalf("Expected the timeout to fire, ran %d", n)
	}

	d, _ = f.svc.GetDelivery(ctx, d.ID)
	if assignedTo(d) != "driver-b" || !d.HasDeclined("driver-a") {
		t.Fatalf("Expected reassignment to driver-b, got %s declined=%v", assignedTo(d), d.DeclinedByDrivers)
	}
	declined := f.events(t, interfaces.TopicDeliveryDeclined)
	if len(declined) != 1 || declined[0].Reason != reasonAcceptanceTimeout {
		t.Errorf("unexpected delivery-declined events %+v", declined)
	}

	// driver-b accepts in time; the pending timer is cancelled
	if _, err := f.svc.Accept(ctx, d.ID, "driver-b"); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if len(f.sched.Pending()) != 0 {
		t.Errorf("Expected timeout cancelled, got %v", f.sched.Pending())
	}
}

func TestStaleAcceptanceTimeoutIsIgnored(t *testing.T) {
	f := newFixture(t, Options{AcceptanceTimeout: 30 * time.Second}, driver(t, "driver-a", 4.9, 80))
	ctx := context.Background()
	d := f.open(t, "order-1")

	if _, err := f.svc.Accept(ctx, d.ID, "driver-a"); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}

	payload, _ := json.Marshal(acceptanceTimeout{DeliveryID: d.ID, DriverID: "driver-a"})
	task := interfaces.Task{ID: acceptanceTaskID(d.ID), Kind: interfaces.TaskAcceptanceTimeout, OrderID: "order-1", Payload: payload}
	if err := f.svc.runAcceptanceTimeout(ctx, task); err != nil {
		t.Fatalf("runAcceptanceTimeout failed: %v", err)
	}

	d, _ = f.svc.GetDelivery(ctx, d.ID)
	if d.AcceptanceStatus != domain.AcceptanceAccepted || assignedTo(d) != "driver-a" {
		t.Errorf("Expected accepted delivery untouched, got %s/%s", d.AcceptanceStatus, assignedTo(d))
	}
	if n := len(f.events(t, interfaces.TopicDeliveryDeclined)); n != 0 {
		t.Errorf("Expected no decline, got %d", n)
	}
}

func TestToggleAvailability(t *testing.T) {
	f := newFixture(t, Options{}, driver(t, "driver-a", 4.9, 80))
	ctx := context.Background()

	drv, err := f.svc.ToggleAvailability(ctx, "driver-a", false)
	if err != nil {
		t.Fatalf("going offline failed: %v", err)
	}
	if drv.OnDuty || drv.IsAvailable {
		t.Errorf("Expected offline driver, got %+v", drv)
	}

	d := f.open(t, "order-1")
	if d.Status != domain.DeliveryStatusPendingAssignment {
		t.Fatalf("Expected no assignment to an offline driver, got %s", assignedTo(d))
	}

	if _, err := f.svc.ToggleAvailability(ctx, "driver-a", true); err != nil {
		t.Fatalf("going online failed: %v", err)
	}
	if n, _ := f.svc.RetryUnassigned(ctx); n != 1 {
		t.Fatalf("Expected the waiting delivery to be assigned, got %d", n)
	}

	if _, err := f.svc.Accept(ctx, d.ID, "driver-a"); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if _, err := f.svc.PickUp(ctx, d.ID); err != nil {
		t.Fatalf("PickUp failed: %v", err)
	}
	if _, err := f.svc.ToggleAvailability(ctx, "driver-a", false); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Expected conflict going offline with food, got %v", err)
	}

	// online again while busy keeps the driver out of the pool
	drv, err = f.svc.ToggleAvailability(ctx, "driver-a", true)
	if err != nil {
		t.Fatalf("ToggleAvailability failed: %v", err)
	}
	if drv.IsAvailable {
		t.Error("Expected busy driver to stay unavailable")
	}

	if _, err := f.svc.ToggleAvailability(ctx, "ghost", true); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestOfflineDriverStaysOfflineAfterCompletion(t *testing.T) {
	f := newFixture(t, Options{}, driver(t, "driver-a", 4.9, 80))
	ctx := context.Background()
	d := f.open(t, "order-1")

	f.svc.Accept(ctx, d.ID, "driver-a")
	if _, err := f.svc.ToggleAvailability(ctx, "driver-a", false); err != nil {
		t.Fatalf("going offline before pickup failed: %v", err)
	}
	if _, err := f.svc.Complete(ctx, d.ID); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if drv := f.driver(t, "driver-a"); drv.IsAvailable {
		t.Error("Expected offline driver to stay out of the pool")
	}
}

func TestReconcile(t *testing.T) {
	f := newFixture(t, Options{},
		driver(t, "orphaned", 4.9, 10),
		driver(t, "offline", 4.8, 10),
		driver(t, "holding", 4.7, 10),
	)
	ctx := context.Background()

	// orphaned: unavailable with no delivery, as after a crash between writes
	drv := f.driver(t, "orphaned")
	drv.IsAvailable = false
	f.store.Drivers().SetDuty(ctx, drv)

	off := f.driver(t, "offline")
	off.OnDuty, off.IsAvailable = false, false
	f.store.Drivers().SetDuty(ctx, off)

	// holding: has an active delivery but is flagged available
	d := domain.NewDelivery("del-1", "order-1", "rest-1", "user-1", "12 Main Street")
	d.AssignTo("holding", t0.Add(time.Hour), t0)
	f.store.Deliveries().Create(ctx, d)

	report, err := f.svc.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if report.Freed != 1 || report.Locked != 1 || report.Overbooked != 0 {
		t.Errorf("unexpected report %+v", report)
	}
	if !f.driver(t, "orphaned").IsAvailable {
		t.Error("Expected orphaned driver freed")
	}
	if f.driver(t, "offline").IsAvailable {
		t.Error("Expected offline driver untouched")
	}
	if f.driver(t, "holding").IsAvailable {
		t.Error("Expected holding driver locked")
	}

	report, _ = f.svc.Reconcile(ctx)
	if report != (ReconcileReport{}) {
		t.Errorf("Expected second pass to be a no-op, got %+v", report)
	}
}

func TestRunSweepsStopsWithContext(t *testing.T) {
	f := newFixture(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.svc.RunSweeps(ctx, time.Millisecond, time.Millisecond)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunSweeps did not return")
	}
}
