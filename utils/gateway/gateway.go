// Package gateway is the boundary to the external payment processor. Calls
// are pass-through with the responses normalized into Order and Refund.
package gateway

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
)

// Normalized order statuses
const (
	StatusCreated   = "CREATED"
	StatusApproved  = "APPROVED"
	StatusCompleted = "COMPLETED"
	StatusVoided    = "VOIDED"
)

// Order is a processor order as seen by the engine
type Order struct {
	OrderID    string          `json:"order_id"`
	Status     string          `json:"status"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	PaymentID  string          `json:"payment_id,omitempty"`
	ApproveURL string          `json:"approve_url,omitempty"`
}

// Completed reports whether the buyer's funds were captured
func (o Order) Completed() bool {
	return o.Status == StatusCompleted
}

// Metadata travels with an order so it can be matched back to its intent
type Metadata struct {
	IntentID    string
	Purpose     string
	Description string
}

// Approved reports whether the buyer approved the order and it still
// needs a capture
func (o Order) Approved() bool {
	return o.Status == StatusApproved
}

// Refund ...
type Refund struct {
	RefundID string `json:"refund_id"`
	Status   string `json:"status"`
}

// Client is implemented by PayPal and Fake.
//
// Errors wrap models.ErrGateway. A call that ran out of time wraps
// models.ErrGatewayTimeout: its outcome is unknown and the webhook stays
// authoritative.
type Client interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency string, meta Metadata) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	// CaptureOrder captures an order the buyer approved but nobody captured.
	// Capturing the same order twice is deduplicated by the processor.
	CaptureOrder(ctx context.Context, orderID string) (Order, error)
	// CreateRefund refunds a captured payment. Retries with the same
	// refundRef are deduplicated by the processor.
	CreateRefund(ctx context.Context, paymentID, refundRef string, amount decimal.Decimal, reason string) (Refund, error)
	VerifyWebhookSignature(ctx context.Context, payload []byte, header http.Header) (bool, error)
}
