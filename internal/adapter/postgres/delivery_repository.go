package postgres

import (
	"context"
	"fmt"

	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

type deliveryRepository struct {
	db DB
}

func NewDeliveryRepository(db DB) interfaces.DeliveryRepository {
	return &deliveryRepository{db: db}
}

const deliveryColumns = `id, order_id, restaurant_id, user_id, delivery_address, driver_id, status,
	acceptance_status, declined_by_drivers, assigned_at, estimated_delivery_time, picked_up_at,
	actual_delivery_time, created_at, updated_at, version`

// activeDelivery matches deliveries that hold their driver.
const activeDelivery = `status IN ('assigned', 'picked_up') AND acceptance_status IN ('pending', 'accepted') AND driver_id IS NOT NULL`

func (r *deliveryRepository) Create(ctx context.Context, d *domain.Delivery, events ...interfaces.OutboxEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO deliveries (` + deliveryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err = tx.Exec(ctx, query,
		d.ID, d.OrderID, d.RestaurantID, d.UserID, d.DeliveryAddress, d.DriverID, d.Status,
		d.AcceptanceStatus, declined(d), d.AssignedAt, d.EstimatedDeliveryTime, d.PickedUpAt,
		d.ActualDeliveryTime, d.CreatedAt, d.UpdatedAt, d.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create delivery: %w", err)
	}

	if err := insertOutbox(ctx, tx, events); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *deliveryRepository) FindByID(ctx context.Context, id string) (*domain.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE id = $1`
	d, err := scanDelivery(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "delivery %s", id)
	}
	return d, nil
}

func (r *deliveryRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE order_id = $1`
	d, err := scanDelivery(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		return nil, notFound(err, "delivery for order %s", orderID)
	}
	return d, nil
}

func (r *deliveryRepository) Update(ctx context.Context, d *domain.Delivery, events ...interfaces.OutboxEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := saveDelivery(ctx, tx, d); err != nil {
		return err
	}
	if err := insertOutbox(ctx, tx, events); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *deliveryRepository) Assign(ctx context.Context, d *domain.Delivery, events ...interfaces.OutboxEvent) error {
	if d.DriverID == nil {
		return domain.Conflictf("delivery %s has no driver to assign", d.ID)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := saveDelivery(ctx, tx, d); err != nil {
		return err
	}

	// Compare-and-set on the driver row; the loser of a race sees zero rows.
	query := `
		UPDATE drivers
		SET is_available = false, version = version + 1
		WHERE id = $1 AND is_available = true AND on_duty = true
	`
	tag, err := tx.Exec(ctx, query, *d.DriverID)
	if err != nil {
		return fmt.Errorf("failed to claim driver: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDriverUnavailable
	}

	if err := insertOutbox(ctx, tx, events); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *deliveryRepository) Release(ctx context.Context, d *domain.Delivery, driverID string, completed bool, events ...interfaces.OutboxEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := saveDelivery(ctx, tx, d); err != nil {
		return err
	}

	query := `
		UPDATE drivers
		SET is_available = on_duty,
		    total_deliveries = total_deliveries + CASE WHEN $2 THEN 1 ELSE 0 END,
		    version = version + 1
		WHERE id = $1
	`
	if _, err := tx.Exec(ctx, query, driverID, completed); err != nil {
		return fmt.Errorf("failed to release driver: %w", err)
	}

	if err := insertOutbox(ctx, tx, events); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *deliveryRepository) ListByStatus(ctx context.Context, status domain.DeliveryStatus) ([]*domain.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE status = $1 ORDER BY created_at, id`
	return r.list(ctx, query, status)
}

func (r *deliveryRepository) ListActive(ctx context.Context) ([]*domain.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE ` + activeDelivery + ` ORDER BY created_at, id`
	return r.list(ctx, query)
}

func (r *deliveryRepository) FindActiveByDriver(ctx context.Context, driverID string) (*domain.Delivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE driver_id = $1 AND ` + activeDelivery + ` ORDER BY created_at LIMIT 1`
	d, err := scanDelivery(r.db.QueryRow(ctx, query, driverID))
	if err != nil {
		return nil, notFound(err, "active delivery for driver %s", driverID)
	}
	return d, nil
}

func (r *deliveryRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Delivery, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	var out []*domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// saveDelivery writes d only if the row still has the version d was read
// at, and bumps the version on success.
func saveDelivery(ctx context.Context, tx Tx, d *domain.Delivery) error {
	query := `
		UPDATE deliveries
		SET driver_id = $1, status = $2, acceptance_status = $3, declined_by_drivers = $4,
		    assigned_at = $5, estimated_delivery_time = $6, picked_up_at = $7,
		    actual_delivery_time = $8, updated_at = $9, version = version + 1
		WHERE id = $10 AND version = $11
	`
	tag, err := tx.Exec(ctx, query,
		d.DriverID, d.Status, d.AcceptanceStatus, declined(d),
		d.AssignedAt, d.EstimatedDeliveryTime, d.PickedUpAt,
		d.ActualDeliveryTime, d.UpdatedAt, d.ID, d.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM deliveries WHERE id = $1)`, d.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check delivery: %w", err)
		}
		if !exists {
			return domain.NotFoundf("delivery %s", d.ID)
		}
		return domain.Conflictf("delivery %s changed concurrently (version %d)", d.ID, d.Version)
	}
	d.Version++
	return nil
}

func scanDelivery(row Row) (*domain.Delivery, error) {
	var d domain.Delivery
	err := row.Scan(
		&d.ID, &d.OrderID, &d.RestaurantID, &d.UserID, &d.DeliveryAddress, &d.DriverID, &d.Status,
		&d.AcceptanceStatus, &d.DeclinedByDrivers, &d.AssignedAt, &d.EstimatedDeliveryTime, &d.PickedUpAt,
		&d.ActualDeliveryTime, &d.CreatedAt, &d.UpdatedAt, &d.Version,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func declined(d *domain.Delivery) []string {
	if d.DeclinedByDrivers == nil {
		return []string{}
	}
	return d.DeclinedByDrivers
}
