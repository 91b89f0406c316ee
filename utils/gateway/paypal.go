package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"gigpay-bend/models"

	"github.com/plutov/paypal/v4"
	"github.com/shopspring/decimal"
)

// PayPalConfig ...
type PayPalConfig struct {
	ClientID     string
	ClientSecret string
	WebhookID    string
	// APIBase defaults to the sandbox; use paypal.APIBaseLive in production.
	APIBase  string
	Currency string
	Timeout  time.Duration
}

// PayPal is a Client backed by the PayPal REST API
type PayPal struct {
	client    *paypal.Client
	webhookID string
	currency  string
	timeout   time.Duration
}

// NewPayPal returns an authenticated PayPal client
func NewPayPal(ctx context.Context, cfg PayPalConfig) (*PayPal, error) {
	base := cfg.APIBase
	if base == "" {
		base = paypal.APIBaseSandBox
	}

	c, err := paypal.NewClient(cfg.ClientID, cfg.ClientSecret, base)
	if err != nil {
		return nil, err
	}

	p := &PayPal{client: c, webhookID: cfg.WebhookID, currency: cfg.Currency, timeout: cfg.Timeout}
	if p.timeout <= 0 {
		p.timeout = 15 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if _, err := c.GetAccessToken(ctx); err != nil {
		return nil, p.wrap("access token", err)
	}
	return p, nil
}

// CreateOrder ...
func (p *PayPal) CreateOrder(ctx context.Context, amount decimal.Decimal, currency string, meta Metadata) (Order, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	units := []paypal.PurchaseUnitRequest{{
		ReferenceID: meta.IntentID,
		CustomID:    meta.IntentID,
		Description: meta.Description,
		Amount: &paypal.PurchaseUnitAmount{
			Currency: currency,
			Value:    amount.StringFixed(2),
		},
	}}
	order, err := p.client.CreateOrder(ctx, paypal.OrderIntentCapture, units, nil, nil)
	if err != nil {
		return Order{}, p.wrap("create order", err)
	}
	return normalizeOrder(order), nil
}

// GetOrder ...
func (p *PayPal) GetOrder(ctx context.Context, orderID string) (Order, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	order, err := p.client.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, p.wrap("get order", err)
	}
	return normalizeOrder(order), nil
}

// CaptureOrder captures an approved order and returns it as GetOrder sees
// it afterwards.
func (p *PayPal) CaptureOrder(ctx context.Context, orderID string) (Order, error) {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if _, err := p.client.CaptureOrderWithPaypalRequestId(cctx, orderID, paypal.CaptureOrderRequest{}, "capture-"+orderID); err != nil {
		return Order{}, p.wrap("capture order", err)
	}
	return p.GetOrder(ctx, orderID)
}

// CreateRefund refunds a capture. refundRef is sent as the PayPal-Request-Id
// so a retried refund returns the original one instead of refunding twice.
func (p *PayPal) CreateRefund(ctx context.Context, paymentID, refundRef string, amount decimal.Decimal, reason string) (Refund, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	body := paypal.RefundCaptureRequest{
		Amount:      &paypal.Money{Currency: p.currency, Value: amount.StringFixed(2)},
		InvoiceID:   refundRef,
		NoteToPayer: reason,
	}
	url := fmt.Sprintf("%s/v2/payments/captures/%s/refund", p.client.APIBase, paymentID)
	req, err := p.client.NewRequest(ctx, http.MethodPost, url, body)
	if err != nil {
		return Refund{}, p.wrap("refund", err)
	}
	req.Header.Set("PayPal-Request-Id", refundRef)

	var resp paypal.RefundResponse
	if err := p.client.SendWithAuth(req, &resp); err != nil {
		return Refund{}, p.wrap("refund", err)
	}
	return Refund{RefundID: resp.ID, Status: strings.ToUpper(resp.Status)}, nil
}

// VerifyWebhookSignature asks PayPal to verify the transmission headers of
// a webhook delivery against the configured webhook id.
func (p *PayPal) VerifyWebhookSignature(ctx context.Context, payload []byte, header http.Header) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header = header.Clone()

	resp, err := p.client.VerifyWebhookSignature(ctx, req, p.webhookID)
	if err != nil {
		return false, p.wrap("verify webhook", err)
	}
	return resp.VerificationStatus == "SUCCESS", nil
}

func (p *PayPal) wrap(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: paypal %s", models.ErrGatewayTimeout, op)
	}

	var apiErr *paypal.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Response != nil && apiErr.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: paypal %s: %v", models.ErrNotFound, op, err)
	}
	return fmt.Errorf("%w: paypal %s: %v", models.ErrGateway, op, err)
}

func normalizeOrder(o *paypal.Order) Order {
	out := Order{OrderID: o.ID, Status: strings.ToUpper(o.Status)}

	if len(o.PurchaseUnits) > 0 {
		pu := o.PurchaseUnits[0]
		if pu.Amount != nil {
			out.Currency = pu.Amount.Currency
			out.Amount, _ = decimal.NewFromString(pu.Amount.Value)
		}
		if pu.Payments != nil && len(pu.Payments.Captures) > 0 {
			out.PaymentID = pu.Payments.Captures[0].ID
		}
	}

	for _, l := range o.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			out.ApproveURL = l.Href
			break
		}
	}
	return out
}
