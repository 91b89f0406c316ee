package dao

import (
	"context"
	"errors"
	"time"

	"gigpay-bend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrStaleVersion is returned by versioned writes when the stored document
// changed since it was read.
var ErrStaleVersion = errors.New("stale document version")

// IntentStore persists payment intents. Status changes are conditional on
// the current status so concurrent writers cannot move an intent backwards.
type IntentStore interface {
	Insert(ctx context.Context, intent models.PaymentIntent) error
	FindByID(ctx context.Context, id primitive.ObjectID) (models.PaymentIntent, error)
	FindByOrderID(ctx context.Context, orderID string) (models.PaymentIntent, error)
	Query(ctx context.Context, filter IntentFilter) ([]models.PaymentIntent, error)
	// SetOrderID sets the order id only if none is set yet and the intent is
	// still created. It reports whether the write happened.
	SetOrderID(ctx context.Context, id primitive.ObjectID, orderID string, at time.Time) (bool, error)
	// UpdateStatus applies change only if the intent is currently in from.
	UpdateStatus(ctx context.Context, id primitive.ObjectID, from models.IntentStatus, change StatusChange) (bool, error)
	AppendReconciliation(ctx context.Context, id primitive.ObjectID, entry models.ReconciliationEntry) error
	SetSettlement(ctx context.Context, id primitive.ObjectID, outcome models.SettlementOutcome) error
}

// StatusChange describes a status transition and the fields it sets.
type StatusChange struct {
	To            models.IntentStatus
	PaymentID     string
	Refund        *models.RefundMeta
	FailureReason string
	// RequireOrder restricts the transition to intents with an order id.
	RequireOrder bool
	At           time.Time
}

// IntentFilter selects intents. Zero fields are ignored.
type IntentFilter struct {
	Purpose       models.Purpose
	OwnerID       primitive.ObjectID
	ProjectID     *primitive.ObjectID
	Statuses      []models.IntentStatus
	HasOrder      *bool
	// Unsettled matches intents whose effect is neither applied nor
	// waiting for a refund.
	Unsettled     bool
	UpdatedBefore time.Time
	Limit         int
}

// BidStore persists bids. Insert fails with models.ErrConflict when a bid for
// the same (project, bidder) exists.
type BidStore interface {
	Insert(ctx context.Context, bid models.Bid) error
	FindByID(ctx context.Context, id primitive.ObjectID) (models.Bid, error)
	FindByProjectBidder(ctx context.Context, projectID, bidderID primitive.ObjectID) (models.Bid, error)
	SetPaymentStatus(ctx context.Context, id primitive.ObjectID, status models.BidPaymentStatus, intentID *primitive.ObjectID) error
	SetLockedAt(ctx context.Context, id primitive.ObjectID, at time.Time) error
}

// EscrowStore persists escrow wallets, one per project.
type EscrowStore interface {
	FindByProject(ctx context.Context, projectID primitive.ObjectID) (models.EscrowWallet, error)
	// Insert fails with models.ErrConflict if the project already has a wallet.
	Insert(ctx context.Context, wallet models.EscrowWallet) error
	// Replace stores wallet if the stored version equals expected. The
	// caller bumps wallet.Version. It returns ErrStaleVersion otherwise.
	Replace(ctx context.Context, wallet models.EscrowWallet, expected int64) error
}

// BonusPoolStore persists bonus pools staged before contributor selection.
type BonusPoolStore interface {
	// Insert fails with models.ErrConflict if a pool exists for the same
	// funding intent.
	Insert(ctx context.Context, pool models.BonusPool) error
	FindByID(ctx context.Context, id primitive.ObjectID) (models.BonusPool, error)
	FindByIntentID(ctx context.Context, intentID primitive.ObjectID) (models.BonusPool, error)
	// MarkSeeded links the pool to projectID if it is not linked yet.
	MarkSeeded(ctx context.Context, id, projectID primitive.ObjectID, at time.Time) (bool, error)
}

// UserStore exposes the account fields the engine owns.
type UserStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
	// ConsumeFreeBid decrements the free-bid quota, initialising it to
	// allowance first when absent. It fails with models.ErrConflict when no
	// free bid remains.
	ConsumeFreeBid(ctx context.Context, id primitive.ObjectID, allowance int) (models.FreeBidQuota, error)
	RestoreFreeBid(ctx context.Context, id primitive.ObjectID) error
	// SaveSubscription stores profile if the currently stored profile was
	// funded by prevIntentID (the zero id when there was none).
	SaveSubscription(ctx context.Context, id primitive.ObjectID, profile models.SubscriptionProfile, prevIntentID primitive.ObjectID) (bool, error)
}

// ProjectStore updates the payment flags of projects owned by the project
// component.
type ProjectStore interface {
	MarkListingFeePaid(ctx context.Context, projectID, intentID primitive.ObjectID, at time.Time) error
}

// EventLog records audit entries: webhook deliveries and user notifications.
type EventLog interface {
	// RecordWebhookEvent reports duplicate=true if the event id was seen before.
	RecordWebhookEvent(ctx context.Context, event models.WebhookEvent) (duplicate bool, err error)
	InsertNotification(ctx context.Context, n models.Notification) error
	ListNotifications(ctx context.Context, userID primitive.ObjectID, limit int) ([]models.Notification, error)
}
