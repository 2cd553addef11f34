package postgres

import (
	"context"
	"fmt"

	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

type paymentRepository struct {
	db DB
}

func NewPaymentRepository(db DB) interfaces.PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	query := `
		INSERT INTO payments (id, order_id, user_id, amount, method, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query, p.ID, p.OrderID, p.UserID, p.Amount, p.Method, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) FindByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	query := `
		SELECT id, order_id, user_id, amount, method, status, transaction_id, failure_reason,
		       created_at, updated_at, processed_at
		FROM payments
		WHERE order_id = $1
	`

	var p domain.Payment
	err := r.db.QueryRow(ctx, query, orderID).Scan(
		&p.ID, &p.OrderID, &p.UserID, &p.Amount, &p.Method, &p.Status, &p.TransactionID, &p.FailureReason,
		&p.CreatedAt, &p.UpdatedAt, &p.ProcessedAt,
	)
	if err != nil {
		return nil, notFound(err, "payment for order %s", orderID)
	}
	return &p, nil
}

func (r *paymentRepository) Update(ctx context.Context, p *domain.Payment, events ...interfaces.OutboxEvent) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE payments
		SET method = $1, status = $2, transaction_id = $3, failure_reason = $4, updated_at = $5, processed_at = $6
		WHERE order_id = $7
	`
	tag, err := tx.Exec(ctx, query, p.Method, p.Status, p.TransactionID, p.FailureReason, p.UpdatedAt, p.ProcessedAt, p.OrderID)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundf("payment for order %s", p.OrderID)
	}

	if err := insertOutbox(ctx, tx, events); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
