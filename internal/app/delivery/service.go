package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/adapter/logger"
	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
	"github.com/google/uuid"
)

const serviceName = "delivery-service"

const (
	reasonNoDrivers         = "no available drivers"
	reasonAllDeclined       = "all eligible drivers declined"
	reasonAcceptanceTimeout = "acceptance timeout"
)

type Options struct {
	MinETA            time.Duration
	MaxETA            time.Duration
	AcceptanceTimeout time.Duration
}

type Service struct {
	deliveries interfaces.DeliveryRepository
	drivers    interfaces.DriverRepository
	scheduler  interfaces.Scheduler
	logger     logger.Logger
	opts       Options
	now        func() time.Time
	eta        func() time.Duration
}

func NewService(
	deliveries interfaces.DeliveryRepository,
	drivers interfaces.DriverRepository,
	scheduler interfaces.Scheduler,
	logger logger.Logger,
	opts Options,
) *Service {
	s := &Service{
		deliveries: deliveries,
		drivers:    drivers,
		scheduler:  scheduler,
		logger:     logger,
		opts:       opts,
		now:        func() time.Time { return time.Now().UTC() },
	}
	s.eta = s.randomETA
	scheduler.Register(interfaces.TaskAcceptanceTimeout, s.runAcceptanceTimeout)
	return s
}

// HandleFoodReady opens the delivery of an order and offers it to the best
// ranked available driver.
func (s *Service) HandleFoodReady(ctx context.Context, evt interfaces.FoodReadyEvent) error {
	d := domain.NewDelivery(uuid.NewString(), evt.OrderID, evt.RestaurantID, evt.UserID, evt.DeliveryAddress)

	if err := s.deliveries.Create(ctx, d); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			s.logger.Debug("delivery_duplicate", "Delivery already opened, skipping", evt.OrderID, nil)
			return nil
		}
		return err
	}

	_, err := s.assignNext(ctx, d, "", reasonNoDrivers, true)
	return err
}

// assignNext offers d (pending_assignment) to the best ranked driver that has
// not declined it. A driver taken by a concurrent assignment is skipped. With
// no driver left the delivery stays pending_assignment.
func (s *Service) assignNext(ctx context.Context, d *domain.Delivery, previousDriverID, reason string, announce bool) (*domain.Delivery, error) {
	candidates, err := s.drivers.ListAvailable(ctx, d.DeclinedByDrivers)
	if err != nil {
		return d, fmt.Errorf("failed to list available drivers: %w", err)
	}

	for _, driver := range candidates {
		if d.HasDeclined(driver.ID) {
			continue
		}

		attempt := cloneDelivery(d)
		now := s.now()
		if err := attempt.AssignTo(driver.ID, now.Add(s.eta()), now); err != nil {
			return d, err
		}

		events, err := s.assignmentEvents(attempt, previousDriverID)
		if err != nil {
			return d, err
		}

		if err := s.deliveries.Assign(ctx, attempt, events...); err != nil {
			if errors.Is(err, domain.ErrDriverUnavailable) {
				s.logger.Debug("driver_taken", "Driver taken by another assignment, trying next", d.OrderID, map[string]interface{}{
					"driver_id": driver.ID,
				})
				continue
			}
			return d, fmt.Errorf("failed to assign driver: %w", err)
		}

		s.scheduleAcceptanceTimeout(ctx, attempt)

		s.logger.Info("driver_assigned", "Driver assigned", attempt.OrderID, map[string]interface{}{
			"delivery_id":        attempt.ID,
			"driver_id":          driver.ID,
			"rating":             driver.Rating,
			"total_deliveries":   driver.TotalDeliveries,
			"previous_driver_id": previousDriverID,
		})
		return attempt, nil
	}

	if !announce {
		return d, nil
	}

	event, err := interfaces.NewEvent(serviceName, interfaces.TopicDeliveryUnassigned, d.OrderID, interfaces.DeliveryEvent{
		OrderID:          d.OrderID,
		DeliveryID:       d.ID,
		PreviousDriverID: previousDriverID,
		UserID:           d.UserID,
		Reason:           reason,
		OccurredAt:       s.now(),
	})
	if err != nil {
		return d, err
	}
	if err := s.deliveries.Update(ctx, d, event); err != nil {
		return d, fmt.Errorf("failed to record unassigned delivery: %w", err)
	}

	s.logger.Warn("delivery_unassigned", "No driver available for delivery", d.OrderID, map[string]interface{}{
		"delivery_id": d.ID,
		"declined_by": d.DeclinedByDrivers,
		"reason":      reason,
	})
	return d, nil
}

func (s *Service) assignmentEvents(d *domain.Delivery, previousDriverID string) ([]interfaces.OutboxEvent, error) {
	payload := interfaces.DeliveryEvent{
		OrderID:               d.OrderID,
		DeliveryID:            d.ID,
		DriverID:              *d.DriverID,
		PreviousDriverID:      previousDriverID,
		UserID:                d.UserID,
		EstimatedDeliveryTime: d.EstimatedDeliveryTime,
		OccurredAt:            *d.AssignedAt,
	}

	assigned, err := interfaces.NewEvent(serviceName, interfaces.TopicDeliveryAssigned, d.OrderID, payload)
	if err != nil {
		return nil, err
	}
	if previousDriverID == "" {
		return []interfaces.OutboxEvent{assigned}, nil
	}

	reassigned, err := interfaces.NewEvent(serviceName, interfaces.TopicDeliveryReassigned, d.OrderID, payload)
	if err != nil {
		return nil, err
	}
	return []interfaces.OutboxEvent{assigned, reassigned}, nil
}

// Accept confirms the offer for the assigned driver.
func (s *Service) Accept(ctx context.Context, deliveryID, driverID string) (*domain.Delivery, error) {
	d, err := s.deliveries.FindByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := d.Accept(driverID, now); err != nil {
		return nil, err
	}

	event, err := interfaces.NewEvent(serviceName, interfaces.TopicDeliveryAccepted, d.OrderID, interfaces.DeliveryEvent{
		OrderID:               d.OrderID,
		DeliveryID:            d.ID,
		DriverID:              driverID,
		UserID:                d.UserID,
		EstimatedDeliveryTime: d.EstimatedDeliveryTime,
		OccurredAt:            now,
	})
	if err != nil {
		return nil, err
	}
	if err := s.deliveries.Update(ctx, d, event); err != nil {
		return nil, fmt.Errorf("failed to accept delivery: %w", err)
	}

	s.cancelAcceptanceTimeout(ctx, d.ID)

	s.logger.Info("delivery_accepted", "Driver accepted delivery", d.OrderID, map[string]interface{}{
		"delivery_id": d.ID,
		"driver_id":   driverID,
	})
	return d, nil
}

// Decline records the refusal, frees the driver and reassigns the order to
// the next eligible driver.
func (s *Service) Decline(ctx context.Context, deliveryID, driverID, reason string) (*domain.Delivery, error) {
	d, err := s.deliveries.FindByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	return s.decline(ctx, d, driverID, strings.TrimSpace(reason))
}

func (s *Service) decline(ctx context.Context, d *domain.Delivery, driverID, reason string) (*domain.Delivery, error) {
	now := s.now()
	if err := d.Decline(driverID, now); err != nil {
		return nil, err
	}

	event, err := interfaces.NewEvent(serviceName, interfaces.TopicDeliveryDeclined, d.OrderID, interfaces.DeliveryEvent{
		OrderID:    d.OrderID,
		DeliveryID: d.ID,
		DriverID:   driverID,
		UserID:     d.UserID,
		Reason:     reason,
		OccurredAt: now,
	})
	if err != nil {
		return nil, err
	}
	if err := s.deliveries.Release(ctx, d, driverID, false, event); err != nil {
		return nil, fmt.Errorf("failed to decline delivery: %w", err)
	}

	s.cancelAcceptanceTimeout(ctx, d.ID)

	s.logger.Info("delivery_declined", "Driver declined delivery", d.OrderID, map[string]interface{}{
		"delivery_id": d.ID,
		"driver_id":   driverID,
		"reason":      reason,
		"declined_by": d.DeclinedByDrivers,
	})

	// The decline is committed; a failed lookup leaves the delivery pending
	// assignment for the re-scan.
	reassigned, err := s.assignNext(ctx, d, driverID, reasonAllDeclined, true)
	if err != nil {
		s.logger.Error("reassignment_failed", "Reassignment failed", d.OrderID, map[string]interface{}{
			"delivery_id": d.ID,
		}, err)
		return d, nil
	}
	return reassigned, nil
}

// PickUp records that the accepting driver collected the food.
func (s *Service) PickUp(ctx context.Context, deliveryID string) (*domain.Delivery, error) {
	d, err := s.deliveries.FindByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := d.PickUp(now); err != nil {
		return nil, err
	}

	event, err := interfaces.NewEvent(serviceName, interfaces.TopicDeliveryPickedUp, d.OrderID, interfaces.DeliveryEvent{
		OrderID:    d.OrderID,
		DeliveryID: d.ID,
		DriverID:   *d.DriverID,
		UserID:     d.UserID,
		PickedUpAt: d.PickedUpAt,
		OccurredAt: now,
	})
	if err != nil {
		return nil, err
	}
	if err := s.deliveries.Update(ctx, d, event); err != nil {
		return nil, fmt.Errorf("failed to record pickup: %w", err)
	}

	s.logger.Info("delivery_picked_up", "Food picked up", d.OrderID, map[string]interface{}{
		"delivery_id": d.ID,
	})
	return d, nil
}

// Complete finishes the delivery and returns the driver to the pool.
func (s *Service) Complete(ctx context.Context, deliveryID string) (*domain.Delivery, error) {
	d, err := s.deliveries.FindByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if d.DriverID == nil {
		return nil, domain.Conflictf("delivery %s has no driver", d.ID)
	}
	driverID := *d.DriverID

	now := s.now()
	if err := d.Complete(now); err != nil {
		return nil, err
	}

	event, err := interfaces.NewEvent(serviceName, interfaces.TopicDeliveryCompleted, d.OrderID, interfaces.DeliveryEvent{
		OrderID:     d.OrderID,
		DeliveryID:  d.ID,
		DriverID:    driverID,
		UserID:      d.UserID,
		CompletedAt: d.ActualDeliveryTime,
		OccurredAt:  now,
	})
	if err != nil {
		return nil, err
	}
	if err := s.deliveries.Release(ctx, d, driverID, true, event); err != nil {
		return nil, fmt.Errorf("failed to complete delivery: %w", err)
	}

	s.cancelAcceptanceTimeout(ctx, d.ID)

	s.logger.Info("delivery_completed", "Delivery completed", d.OrderID, map[string]interface{}{
		"delivery_id": d.ID,
		"driver_id":   driverID,
	})
	return d, nil
}

// ToggleAvailability applies the driver's online/offline choice. Going
// offline is refused while carrying food.
func (s *Service) ToggleAvailability(ctx context.Context, driverID string, isAvailable bool) (*domain.Driver, error) {
	driver, err := s.drivers.FindByID(ctx, driverID)
	if err != nil {
		return nil, err
	}

	active, err := s.deliveries.FindActiveByDriver(ctx, driverID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if errors.Is(err, domain.ErrNotFound) {
		active = nil
	}

	if isAvailable {
		driver.OnDuty = true
		driver.IsAvailable = active == nil
	} else {
		if active != nil && active.Status == domain.DeliveryStatusPickedUp {
			return nil, domain.Conflictf("driver %s cannot go offline during delivery %s", driverID, active.ID)
		}
		driver.OnDuty = false
		driver.IsAvailable = false
	}

	if err := s.drivers.SetDuty(ctx, driver); err != nil {
		return nil, err
	}

	s.logger.Info("driver_availability_changed", "Driver availability changed", "", map[string]interface{}{
		"driver_id":    driverID,
		"on_duty":      driver.OnDuty,
		"is_available": driver.IsAvailable,
	})
	return driver, nil
}

// Heartbeat stores the driver's last position.
func (s *Service) Heartbeat(ctx context.Context, driverID string, loc domain.Location) error {
	return s.drivers.UpdateHeartbeat(ctx, driverID, loc)
}

func (s *Service) GetDelivery(ctx context.Context, deliveryID string) (*domain.Delivery, error) {
	return s.deliveries.FindByID(ctx, deliveryID)
}

type acceptanceTimeout struct {
	DeliveryID string `json:"deliveryId"`
	DriverID   string `json:"driverId"`
}

func acceptanceTaskID(deliveryID string) string {
	return interfaces.TaskAcceptanceTimeout + ":" + deliveryID
}

func (s *Service) scheduleAcceptanceTimeout(ctx context.Context, d *domain.Delivery) {
	if s.opts.AcceptanceTimeout <= 0 || d.DriverID == nil {
		return
	}
	payload, err := json.Marshal(acceptanceTimeout{DeliveryID: d.ID, DriverID: *d.DriverID})
	if err != nil {
		s.logger.Error("timeout_schedule_failed", "Failed to encode acceptance timeout", d.OrderID, map[string]interface{}{
			"delivery_id": d.ID,
		}, err)
		return
	}
	task := interfaces.Task{
		ID:      acceptanceTaskID(d.ID),
		Kind:    interfaces.TaskAcceptanceTimeout,
		OrderID: d.OrderID,
		RunAt:   d.AssignedAt.Add(s.opts.AcceptanceTimeout),
		Payload: payload,
	}
	if err := s.scheduler.Schedule(ctx, task); err != nil {
		s.logger.Error("timeout_schedule_failed", "Failed to schedule acceptance timeout", d.OrderID, nil, err)
	}
}

func (s *Service) cancelAcceptanceTimeout(ctx context.Context, deliveryID string) {
	if s.opts.AcceptanceTimeout <= 0 {
		return
	}
	if err := s.scheduler.Cancel(ctx, acceptanceTaskID(deliveryID)); err != nil {
		s.logger.Error("timeout_cancel_failed", "Failed to cancel acceptance timeout", "", map[string]interface{}{
			"delivery_id": deliveryID,
		}, err)
	}
}

// runAcceptanceTimeout declines on behalf of a driver who never answered.
// Stale timers are ignored.
func (s *Service) runAcceptanceTimeout(ctx context.Context, task interfaces.Task) error {
	var payload acceptanceTimeout
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		s.logger.Error("timeout_task_invalid", "Invalid acceptance timeout payload", task.OrderID, nil, err)
		return nil
	}

	d, err := s.deliveries.FindByID(ctx, payload.DeliveryID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	if !d.HeldBy(payload.DriverID) || d.Status != domain.DeliveryStatusAssigned || d.AcceptanceStatus != domain.AcceptancePending {
		return nil
	}

	s.logger.Info("acceptance_timed_out", "Driver did not answer in time", d.OrderID, map[string]interface{}{
		"delivery_id": d.ID,
		"driver_id":   payload.DriverID,
	})
	_, err = s.decline(ctx, d, payload.DriverID, reasonAcceptanceTimeout)
	if errors.Is(err, domain.ErrConflict) {
		// The driver answered between the read and the write.
		s.logger.Debug("acceptance_timeout_stale", "Delivery changed before the timeout applied", d.OrderID, map[string]interface{}{
			"delivery_id": d.ID,
			"driver_id":   payload.DriverID,
		})
		return nil
	}
	return err
}

func (s *Service) randomETA() time.Duration {
	if s.opts.MaxETA <= s.opts.MinETA {
		return s.opts.MinETA
	}
	return s.opts.MinETA + rand.N(s.opts.MaxETA-s.opts.MinETA+1)
}

func cloneDelivery(d *domain.Delivery) *domain.Delivery {
	c := *d
	c.DeclinedByDrivers = append([]string(nil), d.DeclinedByDrivers...)
	return &c
}
