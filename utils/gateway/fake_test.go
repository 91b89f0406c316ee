package gateway

import (
	"context"
	"net/http"
	"testing"

	"gigpay-bend/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFakeSignatures(t *testing.T) {
	f := NewFake("s3cret")
	payload := []byte(`{"id":"WH-1"}`)

	h := http.Header{}
	h.Set(SignatureHeader, f.Sign(payload))
	ok, err := f.VerifyWebhookSignature(context.Background(), payload, h)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.VerifyWebhookSignature(context.Background(), []byte(`{"id":"WH-2"}`), h)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = f.VerifyWebhookSignature(context.Background(), payload, http.Header{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFakeRefundsAreDeduplicated(t *testing.T) {
	f := NewFake("s")
	ctx := context.Background()

	a, err := f.CreateRefund(ctx, "CAP", "ref-1", decimal.NewFromInt(9), "")
	require.NoError(t, err)
	b, err := f.CreateRefund(ctx, "CAP", "ref-1", decimal.NewFromInt(9), "")
	require.NoError(t, err)
	require.Equal(t, a.RefundID, b.RefundID)
	require.Equal(t, 1, f.Refunds())
}

func TestFakeOrderCompletion(t *testing.T) {
	f := NewFake("s")
	ctx := context.Background()

	o, err := f.CreateOrder(ctx, decimal.NewFromInt(5), "USD", Metadata{})
	require.NoError(t, err)
	require.False(t, o.Completed())

	capID, err := f.CompleteOrder(o.OrderID)
	require.NoError(t, err)

	got, err := f.GetOrder(ctx, o.OrderID)
	require.NoError(t, err)
	require.True(t, got.Completed())
	require.Equal(t, capID, got.PaymentID)

	f.FailNext(models.ErrGatewayTimeout)
	_, err = f.GetOrder(ctx, o.OrderID)
	require.ErrorIs(t, err, models.ErrGatewayTimeout)

	_, err = f.GetOrder(ctx, "nope")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestFakeCapturesApprovedOrders(t *testing.T) {
	f := NewFake("s")
	ctx := context.Background()

	o, err := f.CreateOrder(ctx, decimal.NewFromInt(5), "USD", Metadata{})
	require.NoError(t, err)

	_, err = f.CaptureOrder(ctx, o.OrderID)
	require.ErrorIs(t, err, models.ErrGateway)

	require.NoError(t, f.ApproveOrder(o.OrderID))
	got, err := f.GetOrder(ctx, o.OrderID)
	require.NoError(t, err)
	require.True(t, got.Approved())
	require.Empty(t, got.PaymentID)

	captured, err := f.CaptureOrder(ctx, o.OrderID)
	require.NoError(t, err)
	require.True(t, captured.Completed())
	require.NotEmpty(t, captured.PaymentID)

	again, err := f.CaptureOrder(ctx, o.OrderID)
	require.NoError(t, err)
	require.Equal(t, captured.PaymentID, again.PaymentID)
}
