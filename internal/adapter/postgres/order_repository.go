package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

type orderRepository struct {
	db DB
}

func NewOrderRepository(db DB) interfaces.OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order, events ...interfaces.OutboxEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Insert order
	query := `
		INSERT INTO orders (id, restaurant_id, user_id, delivery_address, payment_method,
		                    status, payment_status, delivery_fee, total, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = tx.Exec(ctx, query,
		order.ID, order.RestaurantID, order.UserID, order.DeliveryAddress, order.PaymentMethod,
		order.Status, order.PaymentStatus, order.DeliveryFee, order.Total, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}

	// Insert order items
	itemQuery := `
		INSERT INTO order_items (order_id, item_id, name, price, quantity)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, item := range order.Items {
		if _, err := tx.Exec(ctx, itemQuery, order.ID, item.ItemID, item.Name, item.Price, item.Quantity); err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	// Log initial status
	if err := logStatus(ctx, tx, order.ID, domain.MilestoneCreated, "order-service", order.CreatedAt); err != nil {
		return err
	}

	if err := insertOutbox(ctx, tx, events); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *orderRepository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `
		SELECT id, restaurant_id, user_id, delivery_address, payment_method, status, payment_status,
		       delivery_fee, total, created_at, updated_at, confirmed_at, delivered_at
		FROM orders
		WHERE id = $1
	`

	var order domain.Order
	err := r.db.QueryRow(ctx, query, id).Scan(
		&order.ID, &order.RestaurantID, &order.UserID, &order.DeliveryAddress, &order.PaymentMethod,
		&order.Status, &order.PaymentStatus, &order.DeliveryFee, &order.Total,
		&order.CreatedAt, &order.UpdatedAt, &order.ConfirmedAt, &order.DeliveredAt,
	)
	if err != nil {
		return nil, notFound(err, "order %s", id)
	}

	// Load order items
	itemsQuery := `SELECT item_id, name, price, quantity FROM order_items WHERE order_id = $1 ORDER BY id`
	rows, err := r.db.Query(ctx, itemsQuery, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ItemID, &item.Name, &item.Price, &item.Quantity); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read order items: %w", err)
	}

	return &order, nil
}

func (r *orderRepository) UpdateStatus(ctx context.Context, order *domain.Order, milestone, changedBy string, events ...interfaces.OutboxEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE orders
		SET status = $1, payment_status = $2, updated_at = $3, confirmed_at = $4, delivered_at = $5
		WHERE id = $6
	`
	tag, err := tx.Exec(ctx, query,
		order.Status, order.PaymentStatus, order.UpdatedAt, order.ConfirmedAt, order.DeliveredAt, order.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundf("order %s", order.ID)
	}

	if err := logStatus(ctx, tx, order.ID, milestone, changedBy, order.UpdatedAt); err != nil {
		return err
	}
	if err := insertOutbox(ctx, tx, events); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *orderRepository) LogStatus(ctx context.Context, orderID, milestone, changedBy string) error {
	return logStatus(ctx, r.db, orderID, milestone, changedBy, time.Now().UTC())
}

func (r *orderRepository) GetStatusHistory(ctx context.Context, orderID string) ([]*domain.StatusLog, error) {
	query := `
		SELECT id, order_id, status, changed_by, changed_at, notes
		FROM order_status_log
		WHERE order_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query status history: %w", err)
	}
	defer rows.Close()

	var logs []*domain.StatusLog
	for rows.Next() {
		var log domain.StatusLog
		if err := rows.Scan(&log.ID, &log.OrderID, &log.Status, &log.ChangedBy, &log.ChangedAt, &log.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan status log: %w", err)
		}
		logs = append(logs, &log)
	}

	return logs, rows.Err()
}

func logStatus(ctx context.Context, q querier, orderID, status, changedBy string, at time.Time) error {
	query := `
		INSERT INTO order_status_log (order_id, status, changed_by, changed_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := q.Exec(ctx, query, orderID, status, changedBy, at); err != nil {
		return fmt.Errorf("failed to log status: %w", err)
	}
	return nil
}
