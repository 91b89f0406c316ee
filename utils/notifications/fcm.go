package notifications

import (
	"context"

	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
)

// PushNotification dispatches a push notification to a user token
func (n *notifiable) PushNotification(ctx context.Context, recipientToken, title, message string) error {
	if recipientToken == "" || n.app == nil {
		return nil
	}

	client, err := n.app.Messaging(ctx)
	if err != nil {
		return err
	}
	msg := &messaging.Message{
		Notification: &messaging.Notification{
			Title: title,
			Body:  message,
		},
		Token: recipientToken,
	}

	response, err := client.Send(ctx, msg)
	if err != nil {
		return err
	}

	n.logger.Debug("push notification sent", zap.String("message_id", response))
	return nil
}
