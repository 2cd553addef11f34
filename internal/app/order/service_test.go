package order

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

type fakeRestaurants struct {
	open      bool
	fee       float64
	prices    map[string]float64
	statusErr error
}

func (f *fakeRestaurants) GetStatus(ctx context.Context, restaurantID string) (*interfaces.RestaurantStatus, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &interfaces.RestaurantStatus{RestaurantID: restaurantID, IsOpen: f.open, DeliveryFee: f.fee}, nil
}

func (f *fakeRestaurants) ValidateMenu(ctx context.Context, restaurantID string, items []interfaces.MenuSelection) ([]domain.OrderItem, error) {
	out := make([]domain.OrderItem, 0, len(items))
	for _, sel := range items {
		price, ok := f.prices[sel.ItemID]
		if !ok {
			return nil, domain.Validationf("item %s is not on the menu", sel.ItemID)
		}
		out = append(out, domain.OrderItem{ItemID: sel.ItemID, Name: " " + sel.ItemID + " ", Price: price, Quantity: sel.Quantity})
	}
	return out, nil
}

func newTestService(rest *fakeRestaurants) (*Service, *memory.Store) {
	store := memory.NewStore()
	return NewService(store.Orders(), rest, logger.Discard()), store
}

func openRestaurant() *fakeRestaurants {
	return &fakeRestaurants{
		open:   true,
		fee:    2.99,
		prices: map[string]float64{"burger": 10, "fries": 3.5},
	}
}

func validCommand() interfaces.CreateOrderCommand {
	return interfaces.CreateOrderCommand{
		RestaurantID:    "rest-1",
		UserID:          "user-1",
		DeliveryAddress: "  12 Main Street  ",
		Items: []interfaces.CreateOrderItemCommand{
			{ItemID: "burger", Quantity: 1},
			{ItemID: "fries", Quantity: 2},
		},
	}
}

func TestCreateOrder(t *testing.T) {
	svc, store := newTestService(openRestaurant())
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, validCommand())
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	if order.Total != 19.99 {
		t.Errorf("Expected total 19.99, got %v", order.Total)
	}
	if order.Status != domain.OrderStatusPending || order.PaymentStatus != domain.PaymentStatusPending {
		t.Errorf("unexpected status %s/%s", order.Status, order.PaymentStatus)
	}
	if order.PaymentMethod != "card" {
		t.Errorf("Expected default method card, got %s", order.PaymentMethod)
	}
	if order.DeliveryAddress != "12 Main Street" {
		t.Errorf("Expected trimmed address, got %q", order.DeliveryAddress)
	}

	events := store.Events(interfaces.TopicOrderCreated)
	if len(events) != 1 || events[0].Key != order.ID {
		t.Fatalf("Expected one order-created keyed by order id, got %+v", events)
	}
	var evt interfaces.OrderCreatedEvent
	if err := json.Unmarshal(events[0].Payload, &evt); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if evt.Total != 19.99 || evt.PaymentMethod != "card" {
		t.Errorf("unexpected event %+v", evt)
	}
}

func TestCreateOrderRejections(t *testing.T) {
	tests := []struct {
		name    string
		rest    *fakeRestaurants
		mutate  func(*interfaces.CreateOrderCommand)
		wantErr error
	}{
		{
			name:    "closed restaurant",
			rest:    &fakeRestaurants{open: false},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "restaurant service down",
			rest:    &fakeRestaurants{statusErr: domain.Upstream(errors.New("connection refused"))},
			wantErr: domain.ErrUpstreamUnavailable,
		},
		{
			name: "unknown item",
			rest: openRestaurant(),
			mutate: func(c *interfaces.CreateOrderCommand) {
				c.Items = append(c.Items, interfaces.CreateOrderItemCommand{ItemID: "sushi", Quantity: 1})
			},
			wantErr: domain.ErrValidation,
		},
		{
			name:    "no items",
			rest:    openRestaurant(),
			mutate:  func(c *interfaces.CreateOrderCommand) { c.Items = nil },
			wantErr: domain.ErrValidation,
		},
		{
			name:    "short address",
			rest:    openRestaurant(),
			mutate:  func(c *interfaces.CreateOrderCommand) { c.DeliveryAddress = " ab " },
			wantErr: domain.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTestService(tt.rest)
			cmd := validCommand()
			if tt.mutate != nil {
				tt.mutate(&cmd)
			}

			_, err := svc.CreateOrder(context.Background(), cmd)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %v, got %v", tt.wantErr, err)
			}
			if n := len(store.Events("")); n != 0 {
				t.Errorf("Expected no events, got %d", n)
			}
		})
	}
}

func TestHandlePaymentProcessedConfirmsOnce(t *testing.T) {
	svc, store := newTestService(openRestaurant())
	ctx := context.Background()

	order, err := svc.CreateOrder(ctx, validCommand())
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	evt := interfaces.PaymentProcessedEvent{OrderID: order.ID, PaymentID: "pay-1", Status: domain.PaymentStateSuccess}
	for i := 0; i < 2; i++ {
		if err := svc.HandlePaymentProcessed(ctx, evt); err != nil {
			t.Fatalf("HandlePaymentProcessed #%d failed: %v", i+1, err)
		}
	}

	got, _ := svc.GetOrder(ctx, order.ID)
	if got.Status != domain.OrderStatusConfirmed || got.PaymentStatus != domain.PaymentStatusPaid {
		t.Errorf("unexpected status %s/%s", got.Status, got.PaymentStatus)
	}
	if got.ConfirmedAt == nil {
		t.Error("Expected confirmedAt to be set")
	}

	confirmed := store.Events(interfaces.TopicOrderConfirmed)
	if len(confirmed) != 1 {
		t.Fatalf("Expected exactly one order-confirmed, got %d", len(confirmed))
	}
	var payload interfaces.OrderConfirmedEvent
	json.Unmarshal(confirmed[0].Payload, &payload)
	if payload.DeliveryAddress != "12 Main Street" || payload.Items[0].Name != "burger" {
		t.Errorf("unexpected confirmed payload %+v", payload)
	}

	history, _ := svc.GetOrderHistory(ctx, order.ID)
	if len(history) != 2 {
		t.Errorf("Expected created and confirmed milestones, got %d", len(history))
	}
}

func TestHandlePaymentProcessedFailure(t *testing.T) {
	svc, store := newTestService(openRestaurant())
	ctx := context.Background()

	order, _ := svc.CreateOrder(ctx, validCommand())
	failed := interfaces.PaymentProcessedEvent{OrderID: order.ID, Status: domain.PaymentStateFailed, FailureReason: "payment declined"}
	if err := svc.HandlePaymentProcessed(ctx, failed); err != nil {
		t.Fatalf("HandlePaymentProcessed failed: %v", err)
	}

	// a late success must not resurrect the order
	late := interfaces.PaymentProcessedEvent{OrderID: order.ID, Status: domain.PaymentStateSuccess}
	if err := svc.HandlePaymentProcessed(ctx, late); err != nil {
		t.Fatalf("HandlePaymentProcessed failed: %v", err)
	}

	got, _ := svc.GetOrder(ctx, order.ID)
	if got.Status != domain.OrderStatusPaymentFailed || got.PaymentStatus != domain.PaymentStatusFailed {
		t.Errorf("unexpected status %s/%s", got.Status, got.PaymentStatus)
	}
	if len(store.Events(interfaces.TopicOrderConfirmed)) != 0 {
		t.Error("Expected no order-confirmed for failed payment")
	}
}

func TestHandlePaymentProcessedUnknownOrder(t *testing.T) {
	svc, _ := newTestService(openRestaurant())
	err := svc.HandlePaymentProcessed(context.Background(), interfaces.PaymentProcessedEvent{OrderID: "missing", Status: domain.PaymentStateSuccess})
	if err != nil {
		t.Errorf("Expected unknown order to be skipped, got %v", err)
	}
}

func TestDeliveryMilestones(t *testing.T) {
	svc, _ := newTestService(openRestaurant())
	ctx := context.Background()

	order, _ := svc.CreateOrder(ctx, validCommand())
	svc.HandlePaymentProcessed(ctx, interfaces.PaymentProcessedEvent{OrderID: order.ID, Status: domain.PaymentStateSuccess})

	if err := svc.HandleDeliveryPickedUp(ctx, interfaces.DeliveryEvent{OrderID: order.ID}); err != nil {
		t.Fatalf("HandleDeliveryPickedUp failed: %v", err)
	}
	completedAt := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	evt := interfaces.DeliveryEvent{OrderID: order.ID, DeliveryID: "del-1", CompletedAt: &completedAt}
	for i := 0; i < 2; i++ {
		if err := svc.HandleDeliveryCompleted(ctx, evt); err != nil {
			t.Fatalf("HandleDeliveryCompleted failed: %v", err)
		}
	}

	got, _ := svc.GetOrder(ctx, order.ID)
	if got.Status != domain.OrderStatusDelivered {
		t.Errorf("Expected delivered, got %s", got.Status)
	}
	if got.DeliveredAt == nil || !got.DeliveredAt.Equal(completedAt) {
		t.Errorf("Expected deliveredAt %v, got %v", completedAt, got.DeliveredAt)
	}

	history, _ := svc.GetOrderHistory(ctx, order.ID)
	want := []string{domain.MilestoneCreated, domain.MilestoneConfirmed, domain.MilestoneOutForDelivery, domain.MilestoneDelivered}
	if len(history) != len(want) {
		t.Fatalf("Expected %d milestones, got %d", len(want), len(history))
	}
	for i, h := range history {
		if h.Status != want[i] {
			t.Errorf("milestone %d: expected %s, got %s", i, want[i], h.Status)
		}
	}
}

func TestGetOrderHistoryUnknownOrder(t *testing.T) {
	svc, _ := newTestService(openRestaurant())
	if _, err := svc.GetOrderHistory(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
