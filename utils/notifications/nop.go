package notifications

import (
	"context"

	"gigpay-bend/models"
)

// Nop is a Notifiable that does nothing
type Nop struct{}

var _ Notifiable = Nop{}

// PushNotification ...
func (Nop) PushNotification(context.Context, string, string, string) error { return nil }

// SendPaymentConfirmedNotification ...
func (Nop) SendPaymentConfirmedNotification(context.Context, models.PaymentIntent, string) {}

// SendPaymentRefundedNotification ...
func (Nop) SendPaymentRefundedNotification(context.Context, models.PaymentIntent) {}

// SendEscrowNotification ...
func (Nop) SendEscrowNotification(context.Context, models.EscrowWallet, models.LockedFund) {}

// SendGenericNotification ...
func (Nop) SendGenericNotification(context.Context, string, string, GenericEmailData) {}
