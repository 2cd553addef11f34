package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
)

// Provider callback types.
const (
	ProviderPaymentSucceeded = "payment.succeeded"
	ProviderPaymentFailed    = "payment.failed"
	ProviderPaymentExpired   = "payment.expired"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// HandleProviderCallback applies a signed provider callback. Repeated
// callbacks for a terminal payment are ignored; expiry only fails a payment
// that is still pending.
func (s *Service) HandleProviderCallback(ctx context.Context, body []byte, signature string) (*domain.Payment, error) {
	if len(s.webhookSecret) == 0 {
		return nil, domain.Forbiddenf("webhooks are not configured")
	}
	expected := Sign(s.webhookSecret, body)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature)))) {
		return nil, domain.Forbiddenf("%v", ErrInvalidSignature)
	}

	var evt interfaces.ProviderEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, domain.Validationf("malformed provider event: %v", err)
	}
	if evt.OrderID == "" {
		return nil, domain.Validationf("provider event has no order id")
	}

	payment, err := s.repo.FindByOrderID(ctx, evt.OrderID)
	if err != nil {
		return nil, err
	}

	if payment.IsTerminal() {
		s.logger.Debug("webhook_duplicate", "Payment already terminal, ignoring callback", payment.OrderID, map[string]interface{}{
			"event_id": evt.ID,
			"type":     evt.Type,
			"status":   payment.Status,
		})
		return payment, nil
	}

	if evt.Method != "" {
		payment.Method = evt.Method
	}
	now := s.now()

	switch evt.Type {
	case ProviderPaymentSucceeded:
		txn := evt.SessionID
		if txn == "" && payment.TransactionID != nil {
			txn = *payment.TransactionID
		}
		err = payment.Succeed(txn, now)
	case ProviderPaymentFailed:
		reason := evt.FailureReason
		if reason == "" {
			reason = "declined by provider"
		}
		err = payment.Fail(reason, now)
	case ProviderPaymentExpired:
		if payment.Status != domain.PaymentStatePending {
			s.logger.Debug("webhook_expiry_ignored", "Expiry for payment no longer pending", payment.OrderID, map[string]interface{}{
				"status": payment.Status,
			})
			return payment, nil
		}
		err = payment.Fail("payment session expired", now)
	default:
		s.logger.Warn("webhook_unknown_type", "Ignoring provider event", payment.OrderID, map[string]interface{}{
			"type": evt.Type,
		})
		return payment, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.finish(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}
