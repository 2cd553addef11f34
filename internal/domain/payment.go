package domain

import "time"

type PaymentState string

const (
	PaymentStatePending    PaymentState = "pending"
	PaymentStateProcessing PaymentState = "processing"
	PaymentStateSuccess    PaymentState = "success"
	PaymentStateFailed     PaymentState = "failed"
)

// Payment is the single authoritative payment of an order. OrderID is the
// idempotency key.
type Payment struct {
	ID            string
	OrderID       string
	UserID        string
	Amount        float64
	Method        string
	Status        PaymentState
	TransactionID *string
	FailureReason *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ProcessedAt   *time.Time
}

func NewPayment(id, orderID, userID string, amount float64, method string) (*Payment, error) {
	if orderID == "" {
		return nil, Validationf("order id is required")
	}
	if amount <= 0 {
		return nil, Validationf("payment amount must be positive")
	}
	if method == "" {
		return nil, Validationf("payment method is required")
	}
	now := time.Now().UTC()
	return &Payment{
		ID:        id,
		OrderID:   orderID,
		UserID:    userID,
		Amount:    RoundMoney(amount),
		Method:    method,
		Status:    PaymentStatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsTerminal reports whether the payment reached success or failed.
func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStateSuccess || p.Status == PaymentStateFailed
}

// StartProcessing moves a pending payment to processing.
func (p *Payment) StartProcessing() error {
	if p.Status != PaymentStatePending {
		return Conflictf("payment %s is %s, not pending", p.ID, p.Status)
	}
	p.Status = PaymentStateProcessing
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// Succeed stores the gateway transaction and finishes the payment.
func (p *Payment) Succeed(transactionID string, at time.Time) error {
	if p.IsTerminal() {
		return Conflictf("payment %s already %s", p.ID, p.Status)
	}
	p.Status = PaymentStateSuccess
	p.TransactionID = &transactionID
	p.FailureReason = nil
	p.ProcessedAt = &at
	p.UpdatedAt = at
	return nil
}

// Fail stores the failure reason and finishes the payment.
func (p *Payment) Fail(reason string, at time.Time) error {
	if p.IsTerminal() {
		return Conflictf("payment %s already %s", p.ID, p.Status)
	}
	p.Status = PaymentStateFailed
	p.FailureReason = &reason
	p.ProcessedAt = &at
	p.UpdatedAt = at
	return nil
}
