package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

type kitchenRepository struct {
	db DB
}

func NewKitchenRepository(db DB) interfaces.KitchenRepository {
	return &kitchenRepository{db: db}
}

const kitchenColumns = `order_id, restaurant_id, user_id, items, delivery_address, status,
	received_at, started_at, estimated_ready_time, ready_at, preparation_time_seconds`

func (r *kitchenRepository) Create(ctx context.Context, k *domain.KitchenOrder) error {
	items, err := json.Marshal(k.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal kitchen items: %w", err)
	}

	query := `INSERT INTO kitchen_orders (` + kitchenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = r.db.Exec(ctx, query,
		k.OrderID, k.RestaurantID, k.UserID, items, k.DeliveryAddress, k.Status,
		k.ReceivedAt, k.StartedAt, k.EstimatedReadyTime, k.ReadyAt, k.PreparationTimeSeconds,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create kitchen order: %w", err)
	}
	return nil
}

func (r *kitchenRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.KitchenOrder, error) {
	query := `SELECT ` + kitchenColumns + ` FROM kitchen_orders WHERE order_id = $1`

	k, err := scanKitchenOrder(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		return nil, notFound(err, "kitchen order %s", orderID)
	}
	return k, nil
}

func (r *kitchenRepository) Update(ctx context.Context, k *domain.KitchenOrder, events ...interfaces.OutboxEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE kitchen_orders
		SET status = $1, started_at = $2, estimated_ready_time = $3, ready_at = $4, preparation_time_seconds = $5
		WHERE order_id = $6
	`
	tag, err := tx.Exec(ctx, query, k.Status, k.StartedAt, k.EstimatedReadyTime, k.ReadyAt, k.PreparationTimeSeconds, k.OrderID)
	if err != nil {
		return fmt.Errorf("failed to update kitchen order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundf("kitchen order %s", k.OrderID)
	}

	if err := insertOutbox(ctx, tx, events); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *kitchenRepository) ListByStatus(ctx context.Context, status domain.KitchenStatus) ([]*domain.KitchenOrder, error) {
	query := `SELECT ` + kitchenColumns + ` FROM kitchen_orders WHERE status = $1 ORDER BY received_at`

	rows, err := r.db.Query(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list kitchen orders: %w", err)
	}
	defer rows.Close()

	var out []*domain.KitchenOrder
	for rows.Next() {
		k, err := scanKitchenOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan kitchen order: %w", err)
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func scanKitchenOrder(row Row) (*domain.KitchenOrder, error) {
	var k domain.KitchenOrder
	var items []byte
	err := row.Scan(
		&k.OrderID, &k.RestaurantID, &k.UserID, &items, &k.DeliveryAddress, &k.Status,
		&k.ReceivedAt, &k.StartedAt, &k.EstimatedReadyTime, &k.ReadyAt, &k.PreparationTimeSeconds,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &k.Items); err != nil {
		return nil, fmt.Errorf("failed to decode kitchen items: %w", err)
	}
	return &k, nil
}
