// Package catalog loads restaurants, menus and the driver fleet from YAML.
// It backs the restaurant collaborator in standalone mode and seeds drivers.
package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
	"gopkg.in/yaml.v3"
)

type MenuItem struct {
	ID        string  `yaml:"id"`
	Name      string  `yaml:"name"`
	Price     float64 `yaml:"price"`
	Available *bool   `yaml:"available"`
}

func (m MenuItem) IsAvailable() bool {
	return m.Available == nil || *m.Available
}

type Restaurant struct {
	ID          string     `yaml:"id"`
	Name        string     `yaml:"name"`
	IsOpen      bool       `yaml:"is_open"`
	DeliveryFee float64    `yaml:"delivery_fee"`
	Menu        []MenuItem `yaml:"menu"`
}

type Driver struct {
	ID              string          `yaml:"id"`
	Name            string          `yaml:"name"`
	Phone           string          `yaml:"phone"`
	Vehicle         string          `yaml:"vehicle"`
	LicensePlate    string          `yaml:"license_plate"`
	Rating          float64         `yaml:"rating"`
	TotalDeliveries int             `yaml:"total_deliveries"`
	Location        domain.Location `yaml:"location"`
}

type Catalog struct {
	Restaurants []Restaurant `yaml:"restaurants"`
	Drivers     []Driver     `yaml:"drivers"`
}

func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	seen := make(map[string]bool)
	for _, r := range c.Restaurants {
		if r.ID == "" {
			return nil, fmt.Errorf("catalog restaurant without id")
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("duplicate restaurant %s", r.ID)
		}
		seen[r.ID] = true
	}
	return &c, nil
}

func (c *Catalog) restaurant(id string) (*Restaurant, bool) {
	for i := range c.Restaurants {
		if c.Restaurants[i].ID == id {
			return &c.Restaurants[i], true
		}
	}
	return nil, false
}

// GetStatus implements interfaces.RestaurantClient.
func (c *Catalog) GetStatus(ctx context.Context, restaurantID string) (*interfaces.RestaurantStatus, error) {
	r, ok := c.restaurant(restaurantID)
	if !ok {
		return nil, domain.Validationf("restaurant %s not found", restaurantID)
	}
	return &interfaces.RestaurantStatus{
		RestaurantID: r.ID,
		Name:         r.Name,
		IsOpen:       r.IsOpen,
		DeliveryFee:  r.DeliveryFee,
	}, nil
}

// ValidateMenu prices the selection from the menu. Every unknown or
// unavailable item is reported.
func (c *Catalog) ValidateMenu(ctx context.Context, restaurantID string, items []interfaces.MenuSelection) ([]domain.OrderItem, error) {
	r, ok := c.restaurant(restaurantID)
	if !ok {
		return nil, domain.Validationf("restaurant %s not found", restaurantID)
	}

	menu := make(map[string]MenuItem, len(r.Menu))
	for _, m := range r.Menu {
		menu[m.ID] = m
	}

	var problems []string
	out := make([]domain.OrderItem, 0, len(items))
	for _, sel := range items {
		m, ok := menu[sel.ItemID]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("item %s not on menu", sel.ItemID))
		case !m.IsAvailable():
			problems = append(problems, fmt.Sprintf("item %s unavailable", sel.ItemID))
		default:
			out = append(out, domain.OrderItem{
				ItemID:   m.ID,
				Name:     m.Name,
				Price:    m.Price,
				Quantity: sel.Quantity,
			})
		}
	}
	if len(problems) > 0 {
		return nil, domain.Validationf("%s", strings.Join(problems, "; "))
	}
	return out, nil
}

// Fleet converts the catalog drivers into on-duty, available drivers.
func (c *Catalog) Fleet() ([]*domain.Driver, error) {
	out := make([]*domain.Driver, 0, len(c.Drivers))
	for _, d := range c.Drivers {
		driver, err := domain.NewDriver(d.ID, d.Name, d.Rating)
		if err != nil {
			return nil, fmt.Errorf("catalog driver %q: %w", d.ID, err)
		}
		driver.Phone = d.Phone
		driver.Vehicle = d.Vehicle
		driver.LicensePlate = d.LicensePlate
		driver.TotalDeliveries = d.TotalDeliveries
		driver.Location = d.Location
		driver.LastSeen = time.Now().UTC()
		out = append(out, driver)
	}
	return out, nil
}
