package domain

import (
	"errors"
	"testing"
	"time"
)

func assignedDelivery(t *testing.T, driverID string) *Delivery {
	t.Helper()
	d := NewDelivery("del-1", "order-1", "rest-1", "user-1", "12 Main Street")
	if err := d.AssignTo(driverID, time.Now().Add(25*time.Minute), time.Now()); err != nil {
		t.Fatalf("AssignTo failed: %v", err)
	}
	return d
}

func TestDeliveryHappyPath(t *testing.T) {
	now := time.Now().UTC()
	d := assignedDelivery(t, "driver-1")

	if !d.IsActive() {
		t.Fatal("Expected assigned delivery to be active")
	}
	if err := d.Accept("driver-1", now); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if err := d.PickUp(now); err != nil {
		t.Fatalf("PickUp failed: %v", err)
	}
	if err := d.Complete(now); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if d.Status != DeliveryStatusCompleted || d.IsActive() {
		t.Errorf("Expected completed and inactive, got %s", d.Status)
	}
	if d.ActualDeliveryTime == nil {
		t.Error("Expected actual delivery time to be set")
	}
}

func TestDeliveryAcceptRules(t *testing.T) {
	now := time.Now().UTC()

	t.Run("other driver is forbidden", func(t *testing.T) {
		d := assignedDelivery(t, "driver-1")
		if err := d.Accept("driver-2", now); !errors.Is(err, ErrForbidden) {
			t.Errorf("Expected forbidden, got %v", err)
		}
	})

	t.Run("double accept conflicts", func(t *testing.T) {
		d := assignedDelivery(t, "driver-1")
		if err := d.Accept("driver-1", now); err != nil {
			t.Fatalf("Accept failed: %v", err)
		}
		if err := d.Accept("driver-1", now); !errors.Is(err, ErrConflict) {
			t.Errorf("Expected conflict, got %v", err)
		}
	})

	t.Run("decline after accept conflicts", func(t *testing.T) {
		d := assignedDelivery(t, "driver-1")
		if err := d.Accept("driver-1", now); err != nil {
			t.Fatalf("Accept failed: %v", err)
		}
		if err := d.Decline("driver-1", now); !errors.Is(err, ErrConflict) {
			t.Errorf("Expected conflict, got %v", err)
		}
	})

	t.Run("pickup needs acceptance", func(t *testing.T) {
		d := assignedDelivery(t, "driver-1")
		if err := d.PickUp(now); !errors.Is(err, ErrConflict) {
			t.Errorf("Expected conflict, got %v", err)
		}
	})
}

func TestDeliveryDeclineReturnsToPending(t *testing.T) {
	now := time.Now().UTC()
	d := assignedDelivery(t, "driver-1")

	if err := d.Decline("driver-1", now); err != nil {
		t.Fatalf("Decline failed: %v", err)
	}
	if d.Status != DeliveryStatusPendingAssignment || d.DriverID != nil {
		t.Errorf("Expected pending assignment without driver, got %s", d.Status)
	}
	if !d.HasDeclined("driver-1") || len(d.DeclinedByDrivers) != 1 {
		t.Errorf("Expected driver-1 in declined list, got %v", d.DeclinedByDrivers)
	}

	if err := d.AssignTo("driver-1", now, now); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected conflict re-offering to a decliner, got %v", err)
	}

	if err := d.AssignTo("driver-2", now, now); err != nil {
		t.Fatalf("AssignTo failed: %v", err)
	}
	if err := d.Decline("driver-2", now); err != nil {
		t.Fatalf("Decline failed: %v", err)
	}
	if len(d.DeclinedByDrivers) != 2 {
		t.Errorf("Expected two decliners, got %v", d.DeclinedByDrivers)
	}
}

func TestRankDrivers(t *testing.T) {
	drivers := []*Driver{
		{ID: "driver-c", Rating: 4.6, TotalDeliveries: 300},
		{ID: "driver-b", Rating: 4.9, TotalDeliveries: 80},
		{ID: "driver-a", Rating: 4.9, TotalDeliveries: 120},
		{ID: "driver-d", Rating: 4.9, TotalDeliveries: 80},
	}
	RankDrivers(drivers)

	want := []string{"driver-a", "driver-b", "driver-d", "driver-c"}
	for i, id := range want {
		if drivers[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, drivers[i].ID)
		}
	}
}

func TestNewDriver(t *testing.T) {
	if _, err := NewDriver("", "Ann", 4.5); err == nil {
		t.Error("Expected error for missing id")
	}
	if _, err := NewDriver("driver-1", "Ann", 5.5); err == nil {
		t.Error("Expected error for rating above 5")
	}
	d, err := NewDriver("driver-1", "Ann", 4.5)
	if err != nil {
		t.Fatalf("NewDriver failed: %v", err)
	}
	if !d.IsAvailable || !d.OnDuty {
		t.Error("Expected a new driver to be on duty and available")
	}
}
