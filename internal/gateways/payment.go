// internal/gateways/payment.go
package gateways

import (
	"context"

	"github.com/shopspring/decimal"
)

// AckStatus is the synchronous answer of a payment gateway call. Pending
// answers are settled later through the reconcile webhook, which is
// authoritative over the immediate call result.
type AckStatus string

const (
	AckSuccess  AckStatus = "success"
	AckDeclined AckStatus = "declined"
	AckPending  AckStatus = "pending"
)

type PaymentResult struct {
	Status     AckStatus `json:"status"`
	GatewayRef string    `json:"gateway_ref"`
	Detail     string    `json:"detail,omitempty"`
}

// PaymentGateway abstracts the mobile-money/card processor. Every call
// carries an idempotency key so a retried network call cannot double-charge.
// A returned error means the call itself failed (timeout, transport); a
// declined answer comes back as AckDeclined with a nil error.
type PaymentGateway interface {
	Authorize(ctx context.Context, idempotencyKey, entryRef string, amount decimal.Decimal, currency string) (*PaymentResult, error)
	Capture(ctx context.Context, idempotencyKey, gatewayRef string, amount decimal.Decimal, currency string) (*PaymentResult, error)
	Release(ctx context.Context, idempotencyKey, gatewayRef, beneficiaryRef string, amount decimal.Decimal, currency string) (*PaymentResult, error)
	Refund(ctx context.Context, idempotencyKey, gatewayRef string, amount decimal.Decimal, currency string) (*PaymentResult, error)
}
