// services/billing/billing.go
package billing

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"go.uber.org/zap"
)

// Processor charges a session's final cost and returns a transaction
// reference. The core records the reference and nothing else about payments.
type Processor interface {
	Charge(ctx context.Context, sessionID string, amount float64) (string, error)
}

// StripeProcessor bills sessions through Stripe PaymentIntents.
type StripeProcessor struct {
	Currency string
	Logger   *zap.Logger
}

// NewStripeProcessor returns a Processor backed by Stripe. The global stripe
// key must be set before use.
func NewStripeProcessor(currency string, logger *zap.Logger) *StripeProcessor {
	if currency == "" {
		currency = "usd"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StripeProcessor{Currency: currency, Logger: logger}
}

func (p *StripeProcessor) Charge(ctx context.Context, sessionID string, amount float64) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(int64(amount * 100)),
		Currency: stripe.String(p.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("session_id", sessionID)

	pi, err := paymentintent.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create payment intent for session %s: %w", sessionID, err)
	}
	p.Logger.Info("payment intent created",
		zap.String("session", sessionID),
		zap.String("intent", pi.ID),
		zap.Float64("amount", amount))
	return pi.ID, nil
}
