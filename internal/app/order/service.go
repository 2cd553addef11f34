package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/adapter/logger"
	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
	"github.com/google/uuid"
)

const serviceName = "order-service"

const defaultPaymentMethod = "card"

type Service struct {
	repo        interfaces.OrderRepository
	restaurants interfaces.RestaurantClient
	logger      logger.Logger
	now         func() time.Time
}

func NewService(repo interfaces.OrderRepository, restaurants interfaces.RestaurantClient, logger logger.Logger) *Service {
	return &Service{
		repo:        repo,
		restaurants: restaurants,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder validates the order against the restaurant, persists it as
// pending and emits order-created.
func (s *Service) CreateOrder(ctx context.Context, cmd interfaces.CreateOrderCommand) (*domain.Order, error) {
	if cmd.RestaurantID == "" {
		return nil, domain.Validationf("restaurant id is required")
	}
	if len(cmd.Items) == 0 {
		return nil, domain.Validationf("order must have at least one item")
	}

	// 1. Restaurant must be open
	status, err := s.restaurants.GetStatus(ctx, cmd.RestaurantID)
	if err != nil {
		s.logger.Error("restaurant_status_failed", "Restaurant status check failed", "", map[string]interface{}{
			"restaurant_id": cmd.RestaurantID,
		}, err)
		return nil, err
	}
	if !status.IsOpen {
		return nil, domain.Validationf("restaurant %s is closed", cmd.RestaurantID)
	}

	// 2. Items are priced by the menu, never by the caller
	selections := make([]interfaces.MenuSelection, len(cmd.Items))
	for i, item := range cmd.Items {
		selections[i] = interfaces.MenuSelection{ItemID: item.ItemID, Quantity: item.Quantity}
	}
	items, err := s.restaurants.ValidateMenu(ctx, cmd.RestaurantID, selections)
	if err != nil {
		s.logger.Error("menu_validation_failed", "Menu validation failed", "", map[string]interface{}{
			"restaurant_id": cmd.RestaurantID,
		}, err)
		return nil, err
	}

	method := strings.TrimSpace(cmd.PaymentMethod)
	if method == "" {
		method = defaultPaymentMethod
	}

	order, err := domain.NewOrder(uuid.NewString(), cmd.RestaurantID, cmd.UserID, items, strings.TrimSpace(cmd.DeliveryAddress), method, status.DeliveryFee)
	if err != nil {
		s.logger.Error("validation_failed", "Order validation failed", "", nil, err)
		return nil, err
	}

	// 3. Order and order-created are written together
	event, err := interfaces.NewEvent(serviceName, interfaces.TopicOrderCreated, order.ID, interfaces.OrderCreatedEvent{
		OrderID:       order.ID,
		RestaurantID:  order.RestaurantID,
		UserID:        order.UserID,
		Items:         order.Items,
		Total:         order.Total,
		PaymentMethod: order.PaymentMethod,
		CreatedAt:     order.CreatedAt,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, order, event); err != nil {
		s.logger.Error("db_transaction_failed", "Failed to create order", order.ID, nil, err)
		return nil, err
	}

	s.logger.Info("order_created", "Order created", order.ID, map[string]interface{}{
		"restaurant_id": order.RestaurantID,
		"user_id":       order.UserID,
		"total":         order.Total,
	})

	return order, nil
}

// HandlePaymentProcessed confirms or fails the order. Orders that already
// left pending are left untouched.
func (s *Service) HandlePaymentProcessed(ctx context.Context, evt interfaces.PaymentProcessedEvent) error {
	order, err := s.repo.FindByID(ctx, evt.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("order_not_found", "Payment for unknown order", evt.OrderID, map[string]interface{}{
				"payment_id": evt.PaymentID,
			})
			return nil
		}
		return err
	}

	if order.Status != domain.OrderStatusPending {
		s.logger.Debug("payment_event_duplicate", "Order already settled, skipping", order.ID, map[string]interface{}{
			"status": order.Status,
		})
		return nil
	}

	now := s.now()

	if evt.Status != domain.PaymentStateSuccess {
		if err := order.FailPayment(now); err != nil {
			return err
		}
		if err := s.repo.UpdateStatus(ctx, order, domain.MilestonePaymentFailed, serviceName); err != nil {
			return fmt.Errorf("failed to mark payment failed: %w", err)
		}
		s.logger.Info("order_payment_failed", "Order payment failed", order.ID, map[string]interface{}{
			"reason": evt.FailureReason,
		})
		return nil
	}

	if err := order.Confirm(now); err != nil {
		return err
	}

	// Only what the kitchen and courier need leaves the order service
	event, err := interfaces.NewEvent(serviceName, interfaces.TopicOrderConfirmed, order.ID, interfaces.OrderConfirmedEvent{
		OrderID:         order.ID,
		RestaurantID:    order.RestaurantID,
		UserID:          order.UserID,
		Items:           sanitizeItems(order.Items),
		Total:           order.Total,
		DeliveryAddress: order.DeliveryAddress,
		ConfirmedAt:     now,
	})
	if err != nil {
		return err
	}

	if err := s.repo.UpdateStatus(ctx, order, domain.MilestoneConfirmed, serviceName, event); err != nil {
		return fmt.Errorf("failed to confirm order: %w", err)
	}

	s.logger.Info("order_confirmed", "Order confirmed", order.ID, map[string]interface{}{
		"payment_id": evt.PaymentID,
	})
	return nil
}

// HandleDeliveryPickedUp records the milestone only.
func (s *Service) HandleDeliveryPickedUp(ctx context.Context, evt interfaces.DeliveryEvent) error {
	if _, err := s.repo.FindByID(ctx, evt.OrderID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("order_not_found", "Pickup for unknown order", evt.OrderID, nil)
			return nil
		}
		return err
	}
	return s.repo.LogStatus(ctx, evt.OrderID, domain.MilestoneOutForDelivery, "delivery-service")
}

// HandleDeliveryCompleted marks the order delivered once.
func (s *Service) HandleDeliveryCompleted(ctx context.Context, evt interfaces.DeliveryEvent) error {
	order, err := s.repo.FindByID(ctx, evt.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("order_not_found", "Delivery completed for unknown order", evt.OrderID, map[string]interface{}{
				"delivery_id": evt.DeliveryID,
			})
			return nil
		}
		return err
	}

	if order.Status == domain.OrderStatusDelivered {
		return nil
	}

	at := s.now()
	if evt.CompletedAt != nil {
		at = evt.CompletedAt.UTC()
	}
	if err := order.MarkDelivered(at); err != nil {
		s.logger.Warn("order_not_deliverable", err.Error(), order.ID, map[string]interface{}{
			"status": order.Status,
		})
		return nil
	}

	if err := s.repo.UpdateStatus(ctx, order, domain.MilestoneDelivered, "delivery-service"); err != nil {
		return fmt.Errorf("failed to mark order delivered: %w", err)
	}

	s.logger.Info("order_delivered", "Order delivered", order.ID, nil)
	return nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.repo.FindByID(ctx, orderID)
}

func (s *Service) GetOrderHistory(ctx context.Context, orderID string) ([]*domain.StatusLog, error) {
	if _, err := s.repo.FindByID(ctx, orderID); err != nil {
		return nil, err
	}
	return s.repo.GetStatusHistory(ctx, orderID)
}

func sanitizeItems(items []domain.OrderItem) []domain.OrderItem {
	out := make([]domain.OrderItem, len(items))
	for i, item := range items {
		out[i] = domain.OrderItem{
			ItemID:   item.ItemID,
			Name:     strings.TrimSpace(item.Name),
			Price:    item.Price,
			Quantity: item.Quantity,
		}
	}
	return out
}
