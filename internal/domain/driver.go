package domain

import (
	"errors"
	"sort"
	"time"
)

// Driver is a delivery driver. IsAvailable is the assignment flag; OnDuty is
// the driver's own online/offline choice.
type Driver struct {
	ID              string
	Name            string
	Phone           string
	Vehicle         string
	LicensePlate    string
	IsAvailable     bool
	OnDuty          bool
	Rating          float64
	TotalDeliveries int
	Location        Location
	Version         int
	LastSeen        time.Time
	CreatedAt       time.Time
}

type Location struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// NewDriver creates an on-duty, available driver
func NewDriver(id, name string, rating float64) (*Driver, error) {
	if id == "" {
		return nil, errors.New("driver id is required")
	}
	if name == "" {
		return nil, errors.New("driver name is required")
	}
	if rating < 0 || rating > 5 {
		return nil, errors.New("driver rating must be 0-5")
	}

	return &Driver{
		ID:          id,
		Name:        name,
		Rating:      rating,
		IsAvailable: true,
		OnDuty:      true,
		LastSeen:    time.Now().UTC(),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// IncrementDeliveries increments the completed deliveries count
func (d *Driver) IncrementDeliveries() {
	d.TotalDeliveries++
}

// RanksAbove orders drivers by rating, then by delivery volume.
func (d *Driver) RanksAbove(other *Driver) bool {
	if d.Rating != other.Rating {
		return d.Rating > other.Rating
	}
	if d.TotalDeliveries != other.TotalDeliveries {
		return d.TotalDeliveries > other.TotalDeliveries
	}
	return d.ID < other.ID
}

// RankDrivers sorts drivers best first.
func RankDrivers(drivers []*Driver) {
	sort.SliceStable(drivers, func(i, j int) bool {
		return drivers[i].RanksAbove(drivers[j])
	})
}
