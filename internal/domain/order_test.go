package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewOrderTotal(t *testing.T) {
	items := []OrderItem{
		{ItemID: "item-1", Name: "Burger", Price: 10.00, Quantity: 1},
		{ItemID: "item-2", Name: "Fries", Price: 3.50, Quantity: 2},
	}
	order, err := NewOrder("order-1", "rest-1", "user-1", items, "12 Main Street", "card", 2.99)
	if err != nil {
		t.Fatalf("NewOrder failed: %v", err)
	}

	if order.Total != 19.99 {
		t.Errorf("Expected total 19.99, got %.2f", order.Total)
	}
	if order.Status != OrderStatusPending || order.PaymentStatus != PaymentStatusPending {
		t.Errorf("Expected pending/pending, got %s/%s", order.Status, order.PaymentStatus)
	}
}

func TestNewOrderTotalIncludesFee(t *testing.T) {
	items := []OrderItem{{ItemID: "item-1", Name: "Burger", Price: 10.00, Quantity: 2}}
	order, err := NewOrder("order-1", "rest-1", "user-1", items, "12 Main Street", "card", 2.99)
	if err != nil {
		t.Fatalf("NewOrder failed: %v", err)
	}
	if order.Total != 22.99 {
		t.Errorf("Expected total 22.99, got %.2f", order.Total)
	}
}

func TestNewOrderValidation(t *testing.T) {
	good := []OrderItem{{ItemID: "item-1", Price: 1, Quantity: 1}}

	tests := []struct {
		name    string
		rest    string
		user    string
		address string
		items   []OrderItem
		fee     float64
	}{
		{"missing restaurant", "", "user-1", "12 Main Street", good, 0},
		{"missing user", "rest-1", "", "12 Main Street", good, 0},
		{"short address", "rest-1", "user-1", "abc", good, 0},
		{"no items", "rest-1", "user-1", "12 Main Street", nil, 0},
		{"zero quantity", "rest-1", "user-1", "12 Main Street", []OrderItem{{ItemID: "item-1", Price: 1}}, 0},
		{"unpriced item", "rest-1", "user-1", "12 Main Street", []OrderItem{{ItemID: "item-1", Quantity: 1}}, 0},
		{"negative fee", "rest-1", "user-1", "12 Main Street", good, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOrder("order-1", tt.rest, tt.user, tt.items, tt.address, "card", tt.fee)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}

func TestOrderTransitions(t *testing.T) {
	now := time.Now().UTC()

	t.Run("confirm then deliver", func(t *testing.T) {
		o := &Order{ID: "order-1", Status: OrderStatusPending}
		if err := o.Confirm(now); err != nil {
			t.Fatalf("Confirm failed: %v", err)
		}
		if o.PaymentStatus != PaymentStatusPaid || o.ConfirmedAt == nil {
			t.Errorf("Expected paid with confirmedAt, got %s", o.PaymentStatus)
		}
		if err := o.MarkDelivered(now); err != nil {
			t.Fatalf("MarkDelivered failed: %v", err)
		}
		if o.Status != OrderStatusDelivered {
			t.Errorf("Expected delivered, got %s", o.Status)
		}
	})

	t.Run("payment failed is terminal", func(t *testing.T) {
		o := &Order{ID: "order-1", Status: OrderStatusPending}
		if err := o.FailPayment(now); err != nil {
			t.Fatalf("FailPayment failed: %v", err)
		}
		if err := o.Confirm(now); !errors.Is(err, ErrConflict) {
			t.Errorf("Expected conflict confirming a failed order, got %v", err)
		}
		if err := o.MarkDelivered(now); !errors.Is(err, ErrConflict) {
			t.Errorf("Expected conflict delivering a failed order, got %v", err)
		}
	})

	t.Run("pending cannot be delivered", func(t *testing.T) {
		o := &Order{ID: "order-1", Status: OrderStatusPending}
		if err := o.MarkDelivered(now); !errors.Is(err, ErrConflict) {
			t.Errorf("Expected conflict, got %v", err)
		}
	})
}

func TestRoundMoney(t *testing.T) {
	if got := RoundMoney(0.1 + 0.2); got != 0.3 {
		t.Errorf("Expected 0.3, got %v", got)
	}
	if got := RoundMoney(22.994999); got != 22.99 {
		t.Errorf("Expected 22.99, got %v", got)
	}
}
