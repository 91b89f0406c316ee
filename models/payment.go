package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WebhookEvent is the audit record of a received gateway webhook
type WebhookEvent struct {
	ID         primitive.ObjectID `json:"id" bson:"_id"`
	EventID    string             `json:"event_id" bson:"event_id"`
	EventType  string             `json:"event_type" bson:"event_type"`
	ResourceID string             `json:"resource_id" bson:"resource_id"`
	OrderID    string             `json:"order_id" bson:"order_id"`
	Verified   bool               `json:"verified" bson:"verified"`
	ReceivedAt time.Time          `json:"received_at" bson:"received_at"`
}

// Checkout is returned to the caller of an action handler. When FeeAmount is
// zero no payment is needed and OrderID is empty.
type Checkout struct {
	IntentID   string          `json:"intent_id,omitempty"`
	OrderID    string          `json:"order_id,omitempty"`
	ApproveURL string          `json:"approve_url,omitempty"`
	FeeAmount  decimal.Decimal `json:"fee_amount"`
	Currency   string          `json:"currency"`
	Reason     string          `json:"reason"`
	Bid        *Bid            `json:"bid,omitempty"`
}

// FeeQuoteReq ...
type FeeQuoteReq struct {
	Action   string          `json:"action"`
	PlanName string          `json:"plan_name"`
	Amount   decimal.Decimal `json:"amount"`
}

// ListingFeeReq ...
type ListingFeeReq struct {
	ProjectID    string `json:"project_id"`
	ProjectTitle string `json:"project_title"`
}

// BonusFundingReq funds a bonus pool. ProjectID is empty for a project that
// has not been created (or has not selected contributors) yet.
type BonusFundingReq struct {
	ProjectID         string          `json:"project_id"`
	ProjectTitle      string          `json:"project_title"`
	Amount            decimal.Decimal `json:"amount"`
	ContributorsCount int             `json:"contributors_count"`
}

// SubscribeReq ...
type SubscribeReq struct {
	PlanName string `json:"plan_name"`
}

// WithdrawalReq ...
type WithdrawalReq struct {
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
}

// ConfirmOrderReq is sent by the client after approving a gateway order
type ConfirmOrderReq struct {
	OrderID string `json:"order_id"`
}

// RefundReq ...
type RefundReq struct {
	Reason string `json:"reason"`
}
