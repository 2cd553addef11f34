package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

const testCatalog = `
restaurants:
  - id: rest-1
    name: Burger Barn
    is_open: true
    delivery_fee: 2.99
    menu:
      - id: burger
        name: Classic Burger
        price: 10
      - id: shake
        name: Milkshake
        price: 4.5
        available: false
  - id: rest-2
    name: Night Noodles
    is_open: false
    delivery_fee: 1.5
drivers:
  - id: driver-1
    name: Aida
    rating: 4.9
    total_deliveries: 120
    location: {lat: 43.25, lon: 76.9}
`

func mustParse(t *testing.T) *Catalog {
	t.Helper()
	c, err := Parse([]byte(testCatalog))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return c
}

func TestParseRejectsBadCatalogs(t *testing.T) {
	tests := map[string]string{
		"missing id": "restaurants:\n  - name: Nameless\n",
		"duplicate":  "restaurants:\n  - id: a\n  - id: a\n",
		"not yaml":   "restaurants: [",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(body)); err == nil {
				t.Error("Expected parse error")
			}
		})
	}
}

func TestGetStatus(t *testing.T) {
	c := mustParse(t)
	ctx := context.Background()

	st, err := c.GetStatus(ctx, "rest-1")
	if err != nil {
		t.Fatalf("GetStatus failed: %v", err)
	}
	if !st.IsOpen || st.DeliveryFee != 2.99 || st.Name != "Burger Barn" {
		t.Errorf("unexpected status %+v", st)
	}

	st, _ = c.GetStatus(ctx, "rest-2")
	if st.IsOpen {
		t.Error("Expected rest-2 closed")
	}

	if _, err := c.GetStatus(ctx, "rest-404"); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestValidateMenu(t *testing.T) {
	c := mustParse(t)
	ctx := context.Background()

	items, err := c.ValidateMenu(ctx, "rest-1", []interfaces.MenuSelection{{ItemID: "burger", Quantity: 2}})
	if err != nil {
		t.Fatalf("ValidateMenu failed: %v", err)
	}
	if len(items) != 1 || items[0].Price != 10 || items[0].Name != "Classic Burger" || items[0].Quantity != 2 {
		t.Errorf("unexpected items %+v", items)
	}

	_, err = c.ValidateMenu(ctx, "rest-1", []interfaces.MenuSelection{{ItemID: "shake", Quantity: 1}, {ItemID: "pizza", Quantity: 1}})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "shake unavailable") || !strings.Contains(err.Error(), "pizza not on menu") {
		t.Errorf("Expected every problem reported, got %v", err)
	}
}

func TestFleet(t *testing.T) {
	fleet, err := mustParse(t).Fleet()
	if err != nil {
		t.Fatalf("Fleet failed: %v", err)
	}
	if len(fleet) != 1 {
		t.Fatalf("Expected 1 driver, got %d", len(fleet))
	}
	d := fleet[0]
	if !d.OnDuty || !d.IsAvailable || d.TotalDeliveries != 120 || d.Location.Lat != 43.25 {
		t.Errorf("unexpected driver %+v", d)
	}

	bad, _ := Parse([]byte("drivers:\n  - id: d1\n    name: X\n    rating: 7\n"))
	if _, err := bad.Fleet(); err == nil {
		t.Error("Expected error for out of range rating")
	}
}

func TestFakeFleet(t *testing.T) {
	center := domain.Location{Lat: 43.2389, Lon: 76.8897}
	fleet, err := FakeFleet(25, center)
	if err != nil {
		t.Fatalf("FakeFleet failed: %v", err)
	}
	if len(fleet) != 25 {
		t.Fatalf("Expected 25 drivers, got %d", len(fleet))
	}

	ids := make(map[string]bool)
	for _, d := range fleet {
		if ids[d.ID] {
			t.Errorf("duplicate driver id %s", d.ID)
		}
		ids[d.ID] = true
		if d.Rating < 3 || d.Rating > 5 {
			t.Errorf("%s: rating %v out of range", d.ID, d.Rating)
		}
		if d.Location.Lat < center.Lat-0.06 || d.Location.Lat > center.Lat+0.06 {
			t.Errorf("%s: latitude %v too far from center", d.ID, d.Location.Lat)
		}
		if d.Name == "" || d.Vehicle == "" {
			t.Errorf("%s: missing generated fields %+v", d.ID, d)
		}
	}
}
