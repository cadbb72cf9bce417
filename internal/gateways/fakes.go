// internal/gateways/fakes.go
package gateways

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// FakePaymentGateway is the in-memory gateway used by the service test
// suites. Calls are recorded; answers can be scripted per operation.
type FakePaymentGateway struct {
	mu sync.Mutex

	Calls []FakeCall

	// Scripted answers consumed in order, keyed by operation. When a queue
	// is empty the call succeeds.
	scripted map[string][]fakeAnswer
}

type FakeCall struct {
	Op             string
	IdempotencyKey string
	Ref            string
	Amount         decimal.Decimal
	Currency       string
}

type fakeAnswer struct {
	result *PaymentResult
	err    error
}

// ErrFakeTimeout simulates a transport timeout.
var ErrFakeTimeout = errors.New("gateway timeout")

func NewFakePaymentGateway() *FakePaymentGateway {
	return &FakePaymentGateway{scripted: make(map[string][]fakeAnswer)}
}

func (f *FakePaymentGateway) ScriptDecline(op, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripted[op] = append(f.scripted[op], fakeAnswer{result: &PaymentResult{Status: AckDeclined, Detail: detail}})
}

func (f *FakePaymentGateway) ScriptTimeout(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripted[op] = append(f.scripted[op], fakeAnswer{err: ErrFakeTimeout})
}

func (f *FakePaymentGateway) ScriptPending(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripted[op] = append(f.scripted[op], fakeAnswer{result: &PaymentResult{Status: AckPending}})
}

func (f *FakePaymentGateway) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (f *FakePaymentGateway) call(op, key, ref string, amount decimal.Decimal, currency string) (*PaymentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, FakeCall{Op: op, IdempotencyKey: key, Ref: ref, Amount: amount, Currency: currency})

	if queue := f.scripted[op]; len(queue) > 0 {
		answer := queue[0]
		f.scripted[op] = queue[1:]
		if answer.err != nil {
			return nil, answer.err
		}
		return answer.result, nil
	}

	return &PaymentResult{Status: AckSuccess, GatewayRef: fmt.Sprintf("fake_%s_%d", op, len(f.Calls))}, nil
}

func (f *FakePaymentGateway) Authorize(ctx context.Context, key, entryRef string, amount decimal.Decimal, currency string) (*PaymentResult, error) {
	return f.call("authorize", key, entryRef, amount, currency)
}

func (f *FakePaymentGateway) Capture(ctx context.Context, key, gatewayRef string, amount decimal.Decimal, currency string) (*PaymentResult, error) {
	return f.call("capture", key, gatewayRef, amount, currency)
}

func (f *FakePaymentGateway) Release(ctx context.Context, key, gatewayRef, beneficiaryRef string, amount decimal.Decimal, currency string) (*PaymentResult, error) {
	return f.call("release", key, gatewayRef, amount, currency)
}

func (f *FakePaymentGateway) Refund(ctx context.Context, key, gatewayRef string, amount decimal.Decimal, currency string) (*PaymentResult, error) {
	return f.call("refund", key, gatewayRef, amount, currency)
}

// FakeDocumentGenerator records render requests.
type FakeDocumentGenerator struct {
	mu      sync.Mutex
	Renders []ContractSnapshot
	Err     error
}

func NewFakeDocumentGenerator() *FakeDocumentGenerator {
	return &FakeDocumentGenerator{}
}

func (f *FakeDocumentGenerator) Render(ctx context.Context, snapshot ContractSnapshot) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	f.Renders = append(f.Renders, snapshot)
	return fmt.Sprintf("contracts/%s/%s.html", snapshot.ContractID, snapshot.ContentHash), nil
}

func (f *FakeDocumentGenerator) RenderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Renders)
}
