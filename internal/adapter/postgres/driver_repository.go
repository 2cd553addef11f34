package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

type driverRepository struct {
	db DB
}

func NewDriverRepository(db DB) interfaces.DriverRepository {
	return &driverRepository{db: db}
}

const driverColumns = `id, name, phone, vehicle, license_plate, is_available, on_duty, rating,
	total_deliveries, lat, lon, version, last_seen, created_at`

func (r *driverRepository) Create(ctx context.Context, driver *domain.Driver) error {
	query := `INSERT INTO drivers (` + driverColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.db.Exec(ctx, query,
		driver.ID, driver.Name, driver.Phone, driver.Vehicle, driver.LicensePlate, driver.IsAvailable,
		driver.OnDuty, driver.Rating, driver.TotalDeliveries, driver.Location.Lat, driver.Location.Lon,
		driver.Version, driver.LastSeen, driver.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create driver: %w", err)
	}
	return nil
}

func (r *driverRepository) FindByID(ctx context.Context, id string) (*domain.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE id = $1`
	driver, err := scanDriver(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "driver %s", id)
	}
	return driver, nil
}

func (r *driverRepository) ListAvailable(ctx context.Context, exclude []string) ([]*domain.Driver, error) {
	if exclude == nil {
		exclude = []string{}
	}
	query := `
		SELECT ` + driverColumns + `
		FROM drivers
		WHERE is_available AND on_duty AND NOT (id = ANY($1))
		ORDER BY rating DESC, total_deliveries DESC, id
	`
	return r.list(ctx, query, exclude)
}

func (r *driverRepository) ListAll(ctx context.Context) ([]*domain.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers ORDER BY id`
	return r.list(ctx, query)
}

func (r *driverRepository) SetDuty(ctx context.Context, driver *domain.Driver) error {
	query := `
		UPDATE drivers
		SET on_duty = $1, is_available = $2, version = version + 1
		WHERE id = $3 AND version = $4
		RETURNING version
	`
	err := r.db.QueryRow(ctx, query, driver.OnDuty, driver.IsAvailable, driver.ID, driver.Version).Scan(&driver.Version)
	if err == nil {
		return nil
	}
	if _, findErr := r.FindByID(ctx, driver.ID); findErr != nil {
		return findErr
	}
	return domain.Conflictf("driver %s was modified concurrently", driver.ID)
}

// ReleaseIfIdle and LockIfBusy lock the driver row first so an assignment
// committing concurrently is visible to the following delivery check.
func (r *driverRepository) ReleaseIfIdle(ctx context.Context, driverID string) (bool, error) {
	return r.reconcile(ctx, driverID, func(available, onDuty, busy bool) (bool, bool) {
		return onDuty && !available && !busy, true
	})
}

func (r *driverRepository) LockIfBusy(ctx context.Context, driverID string) (bool, error) {
	return r.reconcile(ctx, driverID, func(available, onDuty, busy bool) (bool, bool) {
		return available && busy, false
	})
}

func (r *driverRepository) reconcile(ctx context.Context, driverID string, decide func(available, onDuty, busy bool) (change, target bool)) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var available, onDuty bool
	err = tx.QueryRow(ctx, `SELECT is_available, on_duty FROM drivers WHERE id = $1 FOR UPDATE`, driverID).Scan(&available, &onDuty)
	if err != nil {
		return false, notFound(err, "driver %s", driverID)
	}

	var busy bool
	query := `SELECT EXISTS (SELECT 1 FROM deliveries WHERE driver_id = $1 AND ` + activeDelivery + `)`
	if err := tx.QueryRow(ctx, query, driverID).Scan(&busy); err != nil {
		return false, fmt.Errorf("failed to check active deliveries: %w", err)
	}

	change, target := decide(available, onDuty, busy)
	if !change {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `UPDATE drivers SET is_available = $1, version = version + 1 WHERE id = $2`, target, driverID); err != nil {
		return false, fmt.Errorf("failed to update driver availability: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *driverRepository) UpdateHeartbeat(ctx context.Context, driverID string, loc domain.Location) error {
	query := `
		UPDATE drivers
		SET last_seen = $1, lat = $2, lon = $3
		WHERE id = $4
	`
	tag, err := r.db.Exec(ctx, query, time.Now().UTC(), loc.Lat, loc.Lon, driverID)
	if err != nil {
		return fmt.Errorf("failed to update heartbeat: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundf("driver %s", driverID)
	}
	return nil
}

func (r *driverRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Driver, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list drivers: %w", err)
	}
	defer rows.Close()

	var drivers []*domain.Driver
	for rows.Next() {
		driver, err := scanDriver(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan driver: %w", err)
		}
		drivers = append(drivers, driver)
	}
	return drivers, rows.Err()
}

func scanDriver(row Row) (*domain.Driver, error) {
	var d domain.Driver
	err := row.Scan(
		&d.ID, &d.Name, &d.Phone, &d.Vehicle, &d.LicensePlate, &d.IsAvailable, &d.OnDuty, &d.Rating,
		&d.TotalDeliveries, &d.Location.Lat, &d.Location.Lon, &d.Version, &d.LastSeen, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
