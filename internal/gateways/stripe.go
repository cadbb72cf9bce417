// internal/gateways/stripe.go
package gateways

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/refund"
	"github.com/stripe/stripe-go/v74/transfer"

	"github.com/ndakohub/ndako-backend/internal/config"
)

// StripeGateway backs PaymentGateway with Stripe PaymentIntents (authorize
// and capture) and Transfers (release to the beneficiary's connected
// account).
type StripeGateway struct {
	config *config.Config
}

func NewStripeGateway(cfg *config.Config) *StripeGateway {
	stripe.Key = cfg.Payment.StripeSecretKey
	return &StripeGateway{config: cfg}
}

func (g *StripeGateway) Authorize(ctx context.Context, idempotencyKey, entryRef string, amount decimal.Decimal, currency string) (*PaymentResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(toMinorUnits(amount)),
		Currency:      stripe.String(currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	params.SetIdempotencyKey(idempotencyKey)
	params.AddMetadata("escrow_entry", entryRef)

	pi, err := paymentintent.New(params)
	if err != nil {
		return fromStripeError(err)
	}
	return &PaymentResult{Status: ackFromIntent(pi.Status), GatewayRef: pi.ID}, nil
}

func (g *StripeGateway) Capture(ctx context.Context, idempotencyKey, gatewayRef string, amount decimal.Decimal, currency string) (*PaymentResult, error) {
	params := &stripe.PaymentIntentCaptureParams{
		AmountToCapture: stripe.Int64(toMinorUnits(amount)),
	}
	params.SetIdempotencyKey(idempotencyKey)

	pi, err := paymentintent.Capture(gatewayRef, params)
	if err != nil {
		return fromStripeError(err)
	}
	return &PaymentResult{Status: ackFromIntent(pi.Status), GatewayRef: pi.ID}, nil
}

func (g *StripeGateway) Release(ctx context.Context, idempotencyKey, gatewayRef, beneficiaryRef string, amount decimal.Decimal, currency string) (*PaymentResult, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(toMinorUnits(amount)),
		Currency:    stripe.String(currency),
		Destination: stripe.String(beneficiaryRef),
	}
	params.SetIdempotencyKey(idempotencyKey)
	params.AddMetadata("source_payment", gatewayRef)

	tr, err := transfer.New(params)
	if err != nil {
		return fromStripeError(err)
	}
	return &PaymentResult{Status: AckSuccess, GatewayRef: tr.ID}, nil
}

func (g *StripeGateway) Refund(ctx context.Context, idempotencyKey, gatewayRef string, amount decimal.Decimal, currency string) (*PaymentResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(gatewayRef),
		Amount:        stripe.Int64(toMinorUnits(amount)),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.SetIdempotencyKey(idempotencyKey)

	rf, err := refund.New(params)
	if err != nil {
		return fromStripeError(err)
	}
	return &PaymentResult{Status: AckSuccess, GatewayRef: rf.ID}, nil
}

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).IntPart()
}

func ackFromIntent(status stripe.PaymentIntentStatus) AckStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusRequiresCapture:
		return AckSuccess
	case stripe.PaymentIntentStatusCanceled:
		return AckDeclined
	default:
		return AckPending
	}
}

// fromStripeError maps card declines to a declined answer and keeps
// transport failures as errors so the caller's retry policy applies.
func fromStripeError(err error) (*PaymentResult, error) {
	if stripeErr, ok := err.(*stripe.Error); ok {
		switch stripeErr.Type {
		case stripe.ErrorTypeCard:
			return &PaymentResult{Status: AckDeclined, Detail: stripeErr.Msg}, nil
		case stripe.ErrorTypeInvalidRequest:
			return &PaymentResult{Status: AckDeclined, Detail: stripeErr.Msg}, nil
		}
	}
	return nil, fmt.Errorf("gateway call failed: %w", err)
}
