package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/domain"
)

type ReconcileReport struct {
	Freed      int
	Locked     int
	Overbooked int
}

// Reconcile repairs the driver availability flag left wrong by a partial
// failure. Drivers are read before deliveries so an assignment committed in
// between is always seen as active.
func (s *Service) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	drivers, err := s.drivers.ListAll(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list drivers: %w", err)
	}
	active, err := s.deliveries.ListActive(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list active deliveries: %w", err)
	}

	held := make(map[string]int, len(active))
	for _, d := range active {
		held[*d.DriverID]++
	}

	for _, driver := range drivers {
		n := held[driver.ID]
		switch {
		case n > 1:
			report.Overbooked++
			s.logger.Error("driver_overbooked", "Driver holds more than one active delivery", "", map[string]interface{}{
				"driver_id":  driver.ID,
				"deliveries": n,
			}, domain.ErrConflict)
		case n == 0 && !driver.IsAvailable && driver.OnDuty:
			changed, err := s.drivers.ReleaseIfIdle(ctx, driver.ID)
			if err != nil {
				s.logger.Error("reconcile_failed", "Failed to free orphaned driver", "", map[string]interface{}{"driver_id": driver.ID}, err)
				continue
			}
			if changed {
				report.Freed++
			}
		case n > 0 && driver.IsAvailable:
			changed, err := s.drivers.LockIfBusy(ctx, driver.ID)
			if err != nil {
				s.logger.Error("reconcile_failed", "Failed to lock busy driver", "", map[string]interface{}{"driver_id": driver.ID}, err)
				continue
			}
			if changed {
				report.Locked++
			}
		}
	}

	if report.Freed > 0 || report.Locked > 0 || report.Overbooked > 0 {
		s.logger.Warn("reconcile_repaired", "Driver availability reconciled", "", map[string]interface{}{
			"freed":      report.Freed,
			"locked":     report.Locked,
			"overbooked": report.Overbooked,
		})
	}
	return report, nil
}

// RetryUnassigned offers every pending_assignment delivery again and returns
// how many got a driver.
func (s *Service) RetryUnassigned(ctx context.Context) (int, error) {
	pending, err := s.deliveries.ListByStatus(ctx, domain.DeliveryStatusPendingAssignment)
	if err != nil {
		return 0, fmt.Errorf("failed to list unassigned deliveries: %w", err)
	}

	assigned := 0
	for _, d := range pending {
		result, err := s.assignNext(ctx, d, "", reasonNoDrivers, false)
		if errors.Is(err, domain.ErrConflict) {
			s.logger.Debug("rescan_skipped", "Delivery changed during re-scan", d.OrderID, map[string]interface{}{
				"delivery_id": d.ID,
			})
			continue
		}
		if err != nil {
			s.logger.Error("rescan_assign_failed", "Retrying unassigned delivery failed", d.OrderID, nil, err)
			continue
		}
		if result.Status == domain.DeliveryStatusAssigned {
			assigned++
		}
	}
	return assigned, nil
}

// RunSweeps runs reconciliation and the unassigned re-scan until ctx ends.
// A zero interval disables that job.
func (s *Service) RunSweeps(ctx context.Context, reconcileEvery, rescanEvery time.Duration) {
	var reconcileC, rescanC <-chan time.Time
	if reconcileEvery > 0 {
		t := time.NewTicker(reconcileEvery)
		defer t.Stop()
		reconcileC = t.C
	}
	if rescanEvery > 0 {
		t := time.NewTicker(rescanEvery)
		defer t.Stop()
		rescanC = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-reconcileC:
			if _, err := s.Reconcile(ctx); err != nil {
				s.logger.Error("reconcile_failed", "Reconciliation sweep failed", "", nil, err)
			}
		case <-rescanC:
			n, err := s.RetryUnassigned(ctx)
			if err != nil {
				s.logger.Error("rescan_failed", "Unassigned re-scan failed", "", nil, err)
				continue
			}
			if n > 0 {
				s.logger.Info("rescan_assigned", fmt.Sprintf("Assigned %d waiting deliveries", n), "", nil)
			}
		}
	}
}
