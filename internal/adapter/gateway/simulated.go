// Package gateway simulates the payment provider.
package gateway

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/YelzhanWeb/fooddelivery/internal/config"
	"github.com/YelzhanWeb/fooddelivery/internal/domain"
	"github.com/YelzhanWeb/fooddelivery/internal/interfaces"
	"github.com/lucsky/cuid"
)

const (
	ModeSimulated = "simulated"
	ModeWebhook   = "webhook"
)

// Simulated succeeds with a per-method probability after a per-method delay.
// In webhook mode it opens a provider session and reports pending; the
// outcome arrives later as a signed callback.
type Simulated struct {
	methods map[string]config.PaymentMethodConfig
	mode    string
	roll    func() float64
	sleep   func(ctx context.Context, d time.Duration) error
}

func NewSimulated(cfg config.PaymentConfig) *Simulated {
	return &Simulated{
		methods: cfg.Methods,
		mode:    cfg.ProviderMode,
		roll:    rand.Float64,
		sleep:   sleep,
	}
}

func (g *Simulated) Charge(ctx context.Context, payment *domain.Payment) (interfaces.GatewayResult, error) {
	method, ok := g.methods[payment.Method]
	if !ok {
		return interfaces.GatewayResult{
			Outcome:       interfaces.GatewayFailed,
			FailureReason: fmt.Sprintf("unsupported payment method %q", payment.Method),
		}, nil
	}

	if g.mode == ModeWebhook {
		return interfaces.GatewayResult{
			Outcome:       interfaces.GatewayPending,
			TransactionID: "sess_" + cuid.New(),
		}, nil
	}

	if err := g.sleep(ctx, method.Delay); err != nil {
		return interfaces.GatewayResult{}, err
	}

	if g.roll() >= method.SuccessRate {
		return interfaces.GatewayResult{
			Outcome:       interfaces.GatewayFailed,
			FailureReason: "payment declined",
		}, nil
	}
	return interfaces.GatewayResult{
		Outcome:       interfaces.GatewaySucceeded,
		TransactionID: "txn_" + cuid.New(),
	}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
