package kitchen

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/adapter/logger"
	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

const serviceName = "kitchen-service"

type Service struct {
	repo      interfaces.KitchenRepository
	scheduler interfaces.Scheduler
	logger    logger.Logger
	minPrep   time.Duration
	maxPrep   time.Duration
	now       func() time.Time
	prepTime  func() time.Duration
}

func NewService(
	repo interfaces.KitchenRepository,
	scheduler interfaces.Scheduler,
	logger logger.Logger,
	minPrep, maxPrep time.Duration,
) *Service {
	s := &Service{
		repo:      repo,
		scheduler: scheduler,
		logger:    logger,
		minPrep:   minPrep,
		maxPrep:   maxPrep,
		now:       func() time.Time { return time.Now().UTC() },
	}
	s.prepTime = s.randomPrepTime
	scheduler.Register(interfaces.TaskKitchenComplete, s.runCompletion)
	return s
}

// Start resumes orders that were in flight when the process stopped:
// received orders begin preparing, preparing orders are rescheduled at their
// persisted ready time.
func (s *Service) Start(ctx context.Context) error {
	resumed := 0
	for _, status := range []domain.KitchenStatus{domain.KitchenStatusReceived, domain.KitchenStatusPreparing} {
		orders, err := s.repo.ListByStatus(ctx, status)
		if err != nil {
			return fmt.Errorf("failed to load %s orders: %w", status, err)
		}
		for _, ko := range orders {
			if err := s.resume(ctx, ko); err != nil {
				s.logger.Error("recovery_schedule_failed", "Failed to resume preparation", ko.OrderID, nil, err)
				continue
			}
			resumed++
		}
	}

	s.logger.Info("kitchen_recovered", fmt.Sprintf("Resumed %d preparations", resumed), "", nil)
	return nil
}

// HandleOrderConfirmed starts preparation once per order. A redelivered
// order-confirmed picks up where an earlier attempt stopped and never
// restarts a running or finished preparation.
func (s *Service) HandleOrderConfirmed(ctx context.Context, evt interfaces.OrderConfirmedEvent) error {
	ko := domain.NewKitchenOrder(evt.OrderID, evt.RestaurantID, evt.UserID, evt.Items, evt.DeliveryAddress)

	if err := s.repo.Create(ctx, ko); err != nil {
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return err
		}
		existing, err := s.repo.FindByOrderID(ctx, evt.OrderID)
		if err != nil {
			return err
		}
		s.logger.Debug("kitchen_order_duplicate", "Order already in kitchen", evt.OrderID, map[string]interface{}{
			"status": existing.Status,
		})
		ko = existing
	}
	return s.resume(ctx, ko)
}

func (s *Service) resume(ctx context.Context, ko *domain.KitchenOrder) error {
	switch ko.Status {
	case domain.KitchenStatusReceived:
		return s.startPreparing(ctx, ko)
	case domain.KitchenStatusPreparing:
		runAt := s.now()
		if ko.EstimatedReadyTime != nil && ko.EstimatedReadyTime.After(runAt) {
			runAt = *ko.EstimatedReadyTime
		}
		return s.scheduleCompletion(ctx, ko.OrderID, runAt)
	default:
		return nil
	}
}

func (s *Service) startPreparing(ctx context.Context, ko *domain.KitchenOrder) error {
	if err := ko.StartPreparing(s.prepTime(), s.now()); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, ko); err != nil {
		return fmt.Errorf("failed to start preparation: %w", err)
	}

	if err := s.scheduleCompletion(ctx, ko.OrderID, *ko.EstimatedReadyTime); err != nil {
		return err
	}

	s.logger.Info("preparation_started", "Preparation started", ko.OrderID, map[string]interface{}{
		"restaurant_id":   ko.RestaurantID,
		"prep_seconds":    ko.PreparationTimeSeconds,
		"estimated_ready": ko.EstimatedReadyTime,
	})
	return nil
}

func (s *Service) scheduleCompletion(ctx context.Context, orderID string, at time.Time) error {
	return s.scheduler.Schedule(ctx, interfaces.Task{
		ID:      interfaces.TaskKitchenComplete + ":" + orderID,
		Kind:    interfaces.TaskKitchenComplete,
		OrderID: orderID,
		RunAt:   at,
	})
}

func (s *Service) runCompletion(ctx context.Context, task interfaces.Task) error {
	return s.CompletePreparation(ctx, task.OrderID)
}

// CompletePreparation marks the order ready and emits food-ready. It is a
// no-op for orders that are already ready.
func (s *Service) CompletePreparation(ctx context.Context, orderID string) error {
	ko, err := s.repo.FindByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("kitchen_order_not_found", "Completion for unknown kitchen order", orderID, nil)
			return nil
		}
		return err
	}

	if ko.Status == domain.KitchenStatusReady {
		return nil
	}

	now := s.now()
	if err := ko.MarkReady(now); err != nil {
		return err
	}

	event, err := interfaces.NewEvent(serviceName, interfaces.TopicFoodReady, ko.OrderID, interfaces.FoodReadyEvent{
		OrderID:         ko.OrderID,
		RestaurantID:    ko.RestaurantID,
		UserID:          ko.UserID,
		Items:           ko.Items,
		DeliveryAddress: ko.DeliveryAddress,
		ReadyAt:         now,
	})
	if err != nil {
		return err
	}

	if err := s.repo.Update(ctx, ko, event); err != nil {
		return fmt.Errorf("failed to mark food ready: %w", err)
	}

	s.logger.Info("food_ready", "Food ready for pickup", ko.OrderID, nil)
	return nil
}

func (s *Service) GetKitchenOrder(ctx context.Context, orderID string) (*domain.KitchenOrder, error) {
	return s.repo.FindByOrderID(ctx, orderID)
}

func (s *Service) randomPrepTime() time.Duration {
	if s.maxPrep <= s.minPrep {
		return s.minPrep
	}
	return s.minPrep + rand.N(s.maxPrep-s.minPrep+1)
}
