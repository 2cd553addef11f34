package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/adapter/logger"
	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
	"github.com/google/uuid"
)

const serviceName = "payment-service"

// chargeRetryDelay spaces out charge attempts after a gateway error.
const chargeRetryDelay = 5 * time.Second

type Service struct {
	repo          interfaces.PaymentRepository
	gateway       interfaces.PaymentGateway
	scheduler     interfaces.Scheduler
	logger        logger.Logger
	webhookSecret []byte
	now           func() time.Time
}

func NewService(
	repo interfaces.PaymentRepository,
	gateway interfaces.PaymentGateway,
	scheduler interfaces.Scheduler,
	logger logger.Logger,
	webhookSecret string,
) *Service {
	s := &Service{
		repo:          repo,
		gateway:       gateway,
		scheduler:     scheduler,
		logger:        logger,
		webhookSecret: []byte(webhookSecret),
		now:           func() time.Time { return time.Now().UTC() },
	}
	scheduler.Register(interfaces.TaskChargePayment, s.runCharge)
	return s
}

// HandleOrderCreated defers the charge so the gateway latency never blocks
// the consumer loop.
func (s *Service) HandleOrderCreated(ctx context.Context, evt interfaces.OrderCreatedEvent) error {
	cmd := interfaces.ProcessPaymentCommand{
		OrderID: evt.OrderID,
		UserID:  evt.UserID,
		Amount:  evt.Total,
		Method:  evt.PaymentMethod,
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal charge task: %w", err)
	}

	return s.scheduler.Schedule(ctx, interfaces.Task{
		ID:      interfaces.TaskChargePayment + ":" + evt.OrderID,
		Kind:    interfaces.TaskChargePayment,
		OrderID: evt.OrderID,
		RunAt:   s.now(),
		Payload: payload,
	})
}

func (s *Service) runCharge(ctx context.Context, task interfaces.Task) error {
	var cmd interfaces.ProcessPaymentCommand
	if err := json.Unmarshal(task.Payload, &cmd); err != nil {
		s.logger.Error("charge_task_invalid", "Invalid charge task payload", task.OrderID, nil, err)
		return nil
	}
	_, err := s.ProcessPayment(ctx, cmd)
	if !errors.Is(err, domain.ErrTransient) {
		return err
	}

	task.RunAt = s.now().Add(chargeRetryDelay)
	if serr := s.scheduler.Schedule(ctx, task); serr != nil {
		return errors.Join(err, serr)
	}
	s.logger.Warn("charge_retry_scheduled", "Charge failed, retrying", task.OrderID, map[string]interface{}{
		"retry_at": task.RunAt,
	})
	return nil
}

// ProcessPayment charges an order once. A payment left processing by a failed
// gateway call is charged again under the same payment ID; any other existing
// payment is returned unchanged.
func (s *Service) ProcessPayment(ctx context.Context, cmd interfaces.ProcessPaymentCommand) (*domain.Payment, error) {
	existing, err := s.repo.FindByOrderID(ctx, cmd.OrderID)
	if err == nil {
		if existing.Status == domain.PaymentStateProcessing {
			s.logger.Info("payment_resumed", "Resuming interrupted charge", cmd.OrderID, map[string]interface{}{
				"payment_id": existing.ID,
			})
			return s.charge(ctx, existing)
		}
		s.logger.Debug("payment_duplicate", "Payment already exists, skipping charge", cmd.OrderID, map[string]interface{}{
			"payment_id": existing.ID,
			"status":     existing.Status,
		})
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	payment, err := domain.NewPayment(uuid.NewString(), cmd.OrderID, cmd.UserID, cmd.Amount, cmd.Method)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, payment); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Lost the race against a redelivered event
			return s.repo.FindByOrderID(ctx, cmd.OrderID)
		}
		return nil, err
	}

	if err := payment.StartProcessing(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, payment); err != nil {
		return nil, err
	}
	return s.charge(ctx, payment)
}

// charge calls the gateway for a processing payment and records the outcome.
func (s *Service) charge(ctx context.Context, payment *domain.Payment) (*domain.Payment, error) {
	result, err := s.gateway.Charge(ctx, payment)
	if err != nil {
		// Payment stays processing until the next attempt
		s.logger.Error("gateway_failed", "Payment gateway call failed", payment.OrderID, map[string]interface{}{
			"payment_id": payment.ID,
			"method":     payment.Method,
		}, err)
		return payment, domain.Transient(err)
	}

	now := s.now()
	switch result.Outcome {
	case interfaces.GatewaySucceeded:
		err = payment.Succeed(result.TransactionID, now)
	case interfaces.GatewayFailed:
		err = payment.Fail(result.FailureReason, now)
	case interfaces.GatewayPending:
		payment.Status = domain.PaymentStatePending
		if result.TransactionID != "" {
			payment.TransactionID = &result.TransactionID
		}
		payment.UpdatedAt = now
		if err := s.repo.Update(ctx, payment); err != nil {
			return nil, err
		}
		s.logger.Info("payment_awaiting_provider", "Payment awaiting provider confirmation", payment.OrderID, map[string]interface{}{
			"payment_id": payment.ID,
		})
		return payment, nil
	default:
		err = fmt.Errorf("unknown gateway outcome %q", result.Outcome)
	}
	if err != nil {
		return nil, err
	}

	if err := s.finish(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

// finish persists a terminal payment together with payment-processed.
func (s *Service) finish(ctx context.Context, payment *domain.Payment) error {
	evt := interfaces.PaymentProcessedEvent{
		OrderID:     payment.OrderID,
		PaymentID:   payment.ID,
		UserID:      payment.UserID,
		Status:      payment.Status,
		Method:      payment.Method,
		Amount:      payment.Amount,
		ProcessedAt: s.now(),
	}
	if payment.TransactionID != nil {
		evt.TransactionID = *payment.TransactionID
	}
	if payment.FailureReason != nil {
		evt.FailureReason = *payment.FailureReason
	}
	if payment.ProcessedAt != nil {
		evt.ProcessedAt = *payment.ProcessedAt
	}

	event, err := interfaces.NewEvent(serviceName, interfaces.TopicPaymentProcessed, payment.OrderID, evt)
	if err != nil {
		return err
	}
	if err := s.repo.Update(ctx, payment, event); err != nil {
		return fmt.Errorf("failed to store payment result: %w", err)
	}

	s.logger.Info("payment_processed", "Payment processed", payment.OrderID, map[string]interface{}{
		"payment_id": payment.ID,
		"status":     payment.Status,
		"method":     payment.Method,
	})
	return nil
}

func (s *Service) GetPayment(ctx context.Context, orderID string) (*domain.Payment, error) {
	return s.repo.FindByOrderID(ctx, orderID)
}
