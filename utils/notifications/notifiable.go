package notifications

import (
	"context"

	"gigpay-bend/dao"
	"gigpay-bend/models"
	"gigpay-bend/utils"

	firebase "firebase.google.com/go/v4"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Notifiable defines the functionality of a notification object. Sends are
// best effort: failures are logged, never returned to the payment flow.
type Notifiable interface {
	// Dispatches a push notification to currently configured message server (FCM)
	PushNotification(ctx context.Context, recipientToken, title, message string) error
	SendPaymentConfirmedNotification(ctx context.Context, intent models.PaymentIntent, summary string)
	SendPaymentRefundedNotification(ctx context.Context, intent models.PaymentIntent)
	SendEscrowNotification(ctx context.Context, wallet models.EscrowWallet, fund models.LockedFund)
	SendGenericNotification(ctx context.Context, userID string, subject string, data GenericEmailData)
}

// Deps are the collaborators of the default Notifiable
type Deps struct {
	Users  dao.UserStore
	Events dao.EventLog
	Mailer utils.Mailer
	Logger *zap.Logger
	// ServiceAccountKeyPath enables FCM push. Empty disables push.
	ServiceAccountKeyPath string
}

type notifiable struct {
	app    *firebase.App
	users  dao.UserStore
	events dao.EventLog
	mailer utils.Mailer
	logger *zap.Logger
}

// NewNotifiable returns a new Notifiable implementation with access to all
// notifiable objects (email, fcm)
func NewNotifiable(ctx context.Context, deps Deps) (Notifiable, error) {
	n := &notifiable{
		users:  deps.Users,
		events: deps.Events,
		mailer: deps.Mailer,
		logger: deps.Logger,
	}
	if n.mailer == nil {
		n.mailer = utils.NopMailer{}
	}
	if n.logger == nil {
		n.logger = zap.NewNop()
	}

	if deps.ServiceAccountKeyPath != "" {
		opt := option.WithCredentialsFile(deps.ServiceAccountKeyPath)
		app, err := firebase.NewApp(ctx, nil, opt)
		if err != nil {
			return nil, err
		}
		n.app = app
	}
	return n, nil
}
