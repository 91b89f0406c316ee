package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotificationType ...
type NotificationType string

// NotificationActionType ...
type NotificationActionType string

// Notification types
const (
	PaymentN NotificationType = "payment"
	EscrowN  NotificationType = "escrow"
	AccountN NotificationType = "account"
)

// Notification action types
const (
	AInfo      NotificationActionType = "info"
	APayment   NotificationActionType = "payment"
	ACompleted NotificationActionType = "completed"
)

// Notification represents an actionable/non-actionable notification model
type Notification struct {
	ID        primitive.ObjectID     `json:"id" bson:"_id"`
	Title     string                 `json:"title" bson:"title"`
	RefID     string                 `json:"ref_id" bson:"ref_id"`
	UserID    primitive.ObjectID     `json:"user_id" bson:"user_id"`
	Type      NotificationType       `json:"type" bson:"type"`
	Message   string                 `json:"message" bson:"message"`
	Action    NotificationActionType `json:"action" bson:"action"`
	CreatedAt time.Time              `json:"created_at" bson:"created_at"`
}
