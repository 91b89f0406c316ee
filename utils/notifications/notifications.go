package notifications

import (
	"context"
	"fmt"
	"time"

	"gigpay-bend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func (n *notifiable) cErr(tag string, err error) {
	if err != nil {
		n.logger.Warn("notification failed", zap.String("step", tag), zap.Error(err))
	}
}

// SendPaymentConfirmedNotification ...
func (n *notifiable) SendPaymentConfirmedNotification(ctx context.Context, intent models.PaymentIntent, summary string) {
	user, err := n.users.FindByID(ctx, intent.OwnerID)
	if err != nil {
		n.cErr("rtv_user", err)
		return
	}

	label := purposeLabel(string(intent.Purpose))
	amount := intent.Amount.StringFixed(2)
	message := fmt.Sprintf(paymentConfirmedMsg, label, amount, intent.Currency)

	data := PaymentEmailData{
		Name:     user.Username,
		IntentID: intent.ID.Hex(),
		Purpose:  label,
		Amount:   amount,
		Currency: intent.Currency,
		Summary:  summary,
	}
	n.cErr("err_send_payment_confirmed_mail", n.send(ctx, user.Email, paymentConfirmedTitle, "payment_confirmed.html", data))
	n.cErr("err_payment_confirmed_PN", n.PushNotification(ctx, user.FCMToken, paymentConfirmedTitle, message))

	n.persist(ctx, paymentConfirmedTitle, message, intent.ID.Hex(), user.ID, models.APayment, models.PaymentN)
}

// SendPaymentRefundedNotification ...
func (n *notifiable) SendPaymentRefundedNotification(ctx context.Context, intent models.PaymentIntent) {
	user, err := n.users.FindByID(ctx, intent.OwnerID)
	if err != nil {
		n.cErr("rtv_user", err)
		return
	}

	label := purposeLabel(string(intent.Purpose))
	amount := intent.Amount.StringFixed(2)
	message := fmt.Sprintf(paymentRefundedMsg, label, amount, intent.Currency)

	data := PaymentEmailData{
		Name:     user.Username,
		IntentID: intent.ID.Hex(),
		Purpose:  label,
		Amount:   amount,
		Currency: intent.Currency,
	}
	if intent.Refund != nil {
		data.Reason = intent.Refund.Reason
	}
	n.cErr("err_send_payment_refunded_mail", n.send(ctx, user.Email, paymentRefundedTitle, "payment_refunded.html", data))
	n.cErr("err_payment_refunded_PN", n.PushNotification(ctx, user.FCMToken, paymentRefundedTitle, message))

	n.persist(ctx, paymentRefundedTitle, message, intent.ID.Hex(), user.ID, models.AInfo, models.PaymentN)
}

// SendEscrowNotification tells a contributor their locked funds were
// released or refunded.
func (n *notifiable) SendEscrowNotification(ctx context.Context, wallet models.EscrowWallet, fund models.LockedFund) {
	title, format, outcome := fundsReleasedTitle, fundsReleasedMsg, "released"
	if fund.LockStatus == models.FundRefunded {
		title, format, outcome = fundsRefundedTitle, fundsRefundedMsg, "refunded"
	}

	user, err := n.users.FindByID(ctx, fund.UserID)
	if err != nil {
		n.cErr("rtv_user", err)
		return
	}

	amount := fund.TotalAmount.StringFixed(2)
	message := fmt.Sprintf(format, amount)
	data := EscrowEmailData{Name: user.Username, ProjectID: wallet.ProjectID.Hex(), Amount: amount, Outcome: outcome}

	n.cErr("err_send_escrow_mail", n.send(ctx, user.Email, title, "funds_released.html", data))
	n.cErr("err_escrow_PN", n.PushNotification(ctx, user.FCMToken, title, message))

	n.persist(ctx, title, message, wallet.ProjectID.Hex(), user.ID, models.ACompleted, models.EscrowN)
}

// SendGenericNotification ...
func (n *notifiable) SendGenericNotification(ctx context.Context, userID string, subject string, data GenericEmailData) {
	id, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		n.cErr("parse_user_id", err)
		return
	}
	user, err := n.users.FindByID(ctx, id)
	if err != nil {
		n.cErr("rtv_user", err)
		return
	}

	data.Name = user.Username
	n.cErr("err_send_generic_mail", n.send(ctx, user.Email, subject, "generic.html", data))

	if data.Formatted {
		return
	}
	n.cErr("err_send_generic_PN", n.PushNotification(ctx, user.FCMToken, subject, data.Content))
	n.persist(ctx, subject, data.Content, "", user.ID, models.AInfo, models.AccountN)
}

func (n *notifiable) persist(
	ctx context.Context,
	title,
	message,
	refID string,
	userID primitive.ObjectID,
	action models.NotificationActionType,
	_type models.NotificationType,
) {
	notification := models.Notification{
		ID:        primitive.NewObjectID(),
		Title:     title,
		RefID:     refID,
		UserID:    userID,
		Action:    action,
		Type:      _type,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}

	n.cErr("err_persist_notification", n.events.InsertNotification(ctx, notification))
}
