package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"

	"gigpay-bend/models"

	"github.com/shopspring/decimal"
)

// SignatureHeader carries the Fake gateway's webhook signature
const SignatureHeader = "X-Fake-Signature"

// Fake is an in-memory Client for tests and local runs. Webhooks are signed
// with an HMAC-SHA256 of the raw payload.
type Fake struct {
	mu       sync.Mutex
	secret   []byte
	seq      int
	orders   map[string]Order
	refunds  map[string]Refund
	failures []error
}

// NewFake ...
func NewFake(secret string) *Fake {
	return &Fake{
		secret:  []byte(secret),
		orders:  make(map[string]Order),
		refunds: make(map[string]Refund),
	}
}

// FailNext makes the next call return err
func (f *Fake) FailNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, err)
}

func (f *Fake) failure() error {
	if len(f.failures) == 0 {
		return nil
	}
	err := f.failures[0]
	f.failures = f.failures[1:]
	return err
}

// CreateOrder ...
func (f *Fake) CreateOrder(_ context.Context, amount decimal.Decimal, currency string, meta Metadata) (Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(); err != nil {
		return Order{}, err
	}

	f.seq++
	id := fmt.Sprintf("FAKE-ORDER-%d", f.seq)
	o := Order{
		OrderID:    id,
		Status:     StatusCreated,
		Amount:     amount,
		Currency:   currency,
		ApproveURL: "https://gateway.invalid/approve/" + id,
	}
	f.orders[id] = o
	return o, nil
}

// GetOrder ...
func (f *Fake) GetOrder(_ context.Context, orderID string) (Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(); err != nil {
		return Order{}, err
	}

	o, ok := f.orders[orderID]
	if !ok {
		return Order{}, fmt.Errorf("%w: order %s", models.ErrNotFound, orderID)
	}
	return o, nil
}

// ApproveOrder simulates buyer approval without a capture
func (f *Fake) ApproveOrder(orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: order %s", models.ErrNotFound, orderID)
	}
	if o.Status == StatusCreated {
		o.Status = StatusApproved
		f.orders[orderID] = o
	}
	return nil
}

// CaptureOrder captures an approved order. Completed orders are returned
// unchanged.
func (f *Fake) CaptureOrder(_ context.Context, orderID string) (Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(); err != nil {
		return Order{}, err
	}

	o, ok := f.orders[orderID]
	if !ok {
		return Order{}, fmt.Errorf("%w: order %s", models.ErrNotFound, orderID)
	}
	switch o.Status {
	case StatusCompleted:
		return o, nil
	case StatusApproved:
		f.seq++
		o.PaymentID = fmt.Sprintf("FAKE-CAPTURE-%d", f.seq)
		o.Status = StatusCompleted
		f.orders[orderID] = o
		return o, nil
	}
	return Order{}, fmt.Errorf("%w: order %s is %s and cannot be captured", models.ErrGateway, orderID, o.Status)
}

// CompleteOrder simulates buyer approval and capture. It returns the
// capture id.
func (f *Fake) CompleteOrder(orderID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	o, ok := f.orders[orderID]
	if !ok {
		return "", fmt.Errorf("%w: order %s", models.ErrNotFound, orderID)
	}
	if o.PaymentID == "" {
		f.seq++
		o.PaymentID = fmt.Sprintf("FAKE-CAPTURE-%d", f.seq)
	}
	o.Status = StatusCompleted
	f.orders[orderID] = o
	return o.PaymentID, nil
}

// SetAmount overrides the amount the gateway reports for an order
func (f *Fake) SetAmount(orderID string, amount decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[orderID]; ok {
		o.Amount = amount
		f.orders[orderID] = o
	}
}

// CreateRefund ...
func (f *Fake) CreateRefund(_ context.Context, paymentID, refundRef string, _ decimal.Decimal, _ string) (Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure(); err != nil {
		return Refund{}, err
	}

	if r, ok := f.refunds[refundRef]; ok {
		return r, nil
	}
	f.seq++
	r := Refund{RefundID: fmt.Sprintf("FAKE-REFUND-%d", f.seq), Status: StatusCompleted}
	f.refunds[refundRef] = r
	return r, nil
}

// Refunds reports how many distinct refunds were issued
func (f *Fake) Refunds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.refunds)
}

// Sign returns the signature header value for payload
func (f *Fake) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, f.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature ...
func (f *Fake) VerifyWebhookSignature(_ context.Context, payload []byte, header http.Header) (bool, error) {
	got, err := hex.DecodeString(header.Get(SignatureHeader))
	if err != nil || len(got) == 0 {
		return false, nil
	}
	mac := hmac.New(sha256.New, f.secret)
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil)), nil
}
