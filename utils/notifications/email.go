package notifications

import (
	"context"

	"gigpay-bend/utils"
)

// PaymentEmailData fills payment_confirmed.html and payment_refunded.html
type PaymentEmailData struct {
	Name     string
	IntentID string
	Purpose  string
	Amount   string
	Currency string
	Summary  string
	Reason   string
}

// EscrowEmailData fills funds_released.html
type EscrowEmailData struct {
	Name      string
	ProjectID string
	Amount    string
	Outcome   string
}

// GenericEmailData ...
type GenericEmailData struct {
	Name      string
	Formatted bool
	Content   string
}

func (n *notifiable) send(ctx context.Context, to, subject, temp string, data interface{}) error {
	if to == "" {
		return nil
	}
	return n.mailer.SendEmail(ctx, utils.EmailData{
		Title:       subject,
		ContentData: data,
		Template:    temp,
		EmailTo:     to,
	})
}
