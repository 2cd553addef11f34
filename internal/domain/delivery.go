package domain

import (
	"slices"
	"time"
)

type DeliveryStatus string

const (
	DeliveryStatusPendingAssignment DeliveryStatus = "pending_assignment"
	DeliveryStatusAssigned          DeliveryStatus = "assigned"
	DeliveryStatusPickedUp          DeliveryStatus = "picked_up"
	DeliveryStatusCompleted         DeliveryStatus = "completed"
)

type AcceptanceStatus string

const (
	AcceptancePending  AcceptanceStatus = "pending"
	AcceptanceAccepted AcceptanceStatus = "accepted"
	AcceptanceDeclined AcceptanceStatus = "declined"
)

// Delivery is the current delivery of an order. DeclinedByDrivers only grows.
// Version is bumped by every stored write; a write carrying an older version
// is rejected with ErrConflict.
type Delivery struct {
	ID                    string
	OrderID               string
	RestaurantID          string
	UserID                string
	DeliveryAddress       string
	DriverID              *string
	Status                DeliveryStatus
	AcceptanceStatus      AcceptanceStatus
	DeclinedByDrivers     []string
	AssignedAt            *time.Time
	EstimatedDeliveryTime *time.Time
	PickedUpAt            *time.Time
	ActualDeliveryTime    *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
	Version               int
}

func NewDelivery(id, orderID, restaurantID, userID, address string) *Delivery {
	now := time.Now().UTC()
	return &Delivery{
		ID:               id,
		OrderID:          orderID,
		RestaurantID:     restaurantID,
		UserID:           userID,
		DeliveryAddress:  address,
		Status:           DeliveryStatusPendingAssignment,
		AcceptanceStatus: AcceptancePending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// IsActive reports whether the delivery holds its driver.
func (d *Delivery) IsActive() bool {
	if d.DriverID == nil {
		return false
	}
	if d.Status != DeliveryStatusAssigned && d.Status != DeliveryStatusPickedUp {
		return false
	}
	return d.AcceptanceStatus == AcceptancePending || d.AcceptanceStatus == AcceptanceAccepted
}

// HeldBy reports whether driverID is the assigned driver.
func (d *Delivery) HeldBy(driverID string) bool {
	return d.DriverID != nil && *d.DriverID == driverID
}

// HasDeclined reports whether driverID already declined this order.
func (d *Delivery) HasDeclined(driverID string) bool {
	return slices.Contains(d.DeclinedByDrivers, driverID)
}

// AssignTo offers the delivery to a driver.
func (d *Delivery) AssignTo(driverID string, eta time.Time, at time.Time) error {
	if d.Status != DeliveryStatusPendingAssignment {
		return Conflictf("delivery %s is %s, not pending assignment", d.ID, d.Status)
	}
	if d.HasDeclined(driverID) {
		return Conflictf("driver %s already declined order %s", driverID, d.OrderID)
	}
	d.DriverID = &driverID
	d.Status = DeliveryStatusAssigned
	d.AcceptanceStatus = AcceptancePending
	d.AssignedAt = &at
	d.EstimatedDeliveryTime = &eta
	d.UpdatedAt = at
	return nil
}

// Accept is legal for the assigned driver while acceptance is pending.
func (d *Delivery) Accept(driverID string, at time.Time) error {
	if !d.HeldBy(driverID) {
		return Forbiddenf("driver %s is not assigned to delivery %s", driverID, d.ID)
	}
	if d.Status != DeliveryStatusAssigned || d.AcceptanceStatus != AcceptancePending {
		return Conflictf("delivery %s is not awaiting acceptance", d.ID)
	}
	d.AcceptanceStatus = AcceptanceAccepted
	d.UpdatedAt = at
	return nil
}

// Decline records the refusal and returns the delivery to pending assignment.
func (d *Delivery) Decline(driverID string, at time.Time) error {
	if !d.HeldBy(driverID) {
		return Forbiddenf("driver %s is not assigned to delivery %s", driverID, d.ID)
	}
	if d.Status != DeliveryStatusAssigned || d.AcceptanceStatus != AcceptancePending {
		return Conflictf("delivery %s is not awaiting acceptance", d.ID)
	}
	if !d.HasDeclined(driverID) {
		d.DeclinedByDrivers = append(d.DeclinedByDrivers, driverID)
	}
	d.Unassign(at)
	return nil
}

// Unassign clears the driver and waits for a new assignment.
func (d *Delivery) Unassign(at time.Time) {
	d.DriverID = nil
	d.Status = DeliveryStatusPendingAssignment
	d.AcceptanceStatus = AcceptancePending
	d.AssignedAt = nil
	d.EstimatedDeliveryTime = nil
	d.UpdatedAt = at
}

// PickUp is legal once the assigned driver accepted.
func (d *Delivery) PickUp(at time.Time) error {
	if d.Status != DeliveryStatusAssigned || d.AcceptanceStatus != AcceptanceAccepted {
		return Conflictf("delivery %s cannot be picked up from %s/%s", d.ID, d.Status, d.AcceptanceStatus)
	}
	d.Status = DeliveryStatusPickedUp
	d.PickedUpAt = &at
	d.UpdatedAt = at
	return nil
}

// Complete is legal from picked_up, or straight from assigned when no pickup
// step is reported.
func (d *Delivery) Complete(at time.Time) error {
	if d.DriverID == nil {
		return Conflictf("delivery %s has no driver", d.ID)
	}
	if d.Status != DeliveryStatusPickedUp && d.Status != DeliveryStatusAssigned {
		return Conflictf("delivery %s cannot be completed from %s", d.ID, d.Status)
	}
	d.Status = DeliveryStatusCompleted
	d.AcceptanceStatus = AcceptanceAccepted
	d.ActualDeliveryTime = &at
	d.UpdatedAt = at
	return nil
}
