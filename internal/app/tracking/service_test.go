package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/adapter/logger"
	"github.com/YelzhanWeb/fooddelivery/internal/adapter/memory"
	"github.com/YelzhanWeb/fooddelivery/internal/domain"
)

func TestGetDriversStatus(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mk := func(id string, onDuty, available bool, lastSeen time.Time) {
		d, err := domain.NewDriver(id, "Driver "+id, 4.5)
		if err != nil {
			t.Fatalf("NewDriver failed: %v", err)
		}
		d.OnDuty = onDuty
		d.IsAvailable = available
		d.LastSeen = lastSeen
		if err := store.Drivers().Create(ctx, d); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	mk("driver-1", true, true, now.Add(-10*time.Second))
	mk("driver-2", true, false, now.Add(-10*time.Second))
	mk("driver-3", false, false, now.Add(-time.Hour))
	mk("driver-4", true, true, now.Add(-2*time.Minute))

	svc := NewService(store.Drivers(), time.Minute, logger.Discard())
	svc.now = func() time.Time { return now }

	roster, err := svc.GetDriversStatus(ctx)
	if err != nil {
		t.Fatalf("GetDriversStatus failed: %v", err)
	}

	want := map[string]string{
		"driver-1": DriverAvailable,
		"driver-2": DriverBusy,
		"driver-3": DriverOffline,
		"driver-4": DriverStale,
	}
	if len(roster) != len(want) {
		t.Fatalf("Expected %d entries, got %d", len(want), len(roster))
	}
	for _, e := range roster {
		if e.Status != want[e.DriverID] {
			t.Errorf("%s: expected %s, got %s", e.DriverID, want[e.DriverID], e.Status)
		}
	}
}

func TestHeartbeatTimeoutDisabled(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	d, _ := domain.NewDriver("driver-1", "Driver One", 4.5)
	d.LastSeen = time.Now().Add(-24 * time.Hour)
	store.Drivers().Create(ctx, d)

	roster, err := NewService(store.Drivers(), 0, logger.Discard()).GetDriversStatus(ctx)
	if err != nil {
		t.Fatalf("GetDriversStatus failed: %v", err)
	}
	if len(roster) != 1 || roster[0].Status != DriverAvailable {
		t.Errorf("Expected available without a heartbeat timeout, got %+v", roster)
	}
}
