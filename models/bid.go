package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BidStatus ...
type BidStatus string

// Bid statuses
const (
	BidPending  BidStatus = "Pending"
	BidAccepted BidStatus = "Accepted"
	BidRejected BidStatus = "Rejected"
)

// BidPaymentStatus tracks the fee paid for a bid
type BidPaymentStatus string

// Bid payment statuses
const (
	BidPaymentPaid     BidPaymentStatus = "paid"
	BidPaymentPending  BidPaymentStatus = "pending"
	BidPaymentRefunded BidPaymentStatus = "refunded"
)

// Bid represents a contributor's bid on a project. There is at most one bid
// per (project, bidder).
type Bid struct {
	ID            primitive.ObjectID `json:"id" bson:"_id"`
	ProjectID     primitive.ObjectID `json:"project_id" bson:"project_id"`
	BidderID      primitive.ObjectID `json:"bidder_id" bson:"bidder_id"`
	BidAmount     decimal.Decimal    `json:"bid_amount" bson:"bid_amount"`
	Fee           decimal.Decimal    `json:"fee" bson:"fee"`
	TotalAmount   decimal.Decimal    `json:"total_amount" bson:"total_amount"`
	Proposal      string             `json:"proposal" bson:"proposal"`
	DeliveryDays  int                `json:"delivery_days" bson:"delivery_days"`
	BidStatus     BidStatus          `json:"bid_status" bson:"bid_status"`
	PaymentStatus BidPaymentStatus   `json:"payment_status" bson:"payment_status"`
	IsFreeBid     bool               `json:"is_free_bid" bson:"is_free_bid"`
	Escrow        EscrowLink         `json:"escrow" bson:"escrow"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" bson:"updated_at"`
}

// EscrowLink ties a bid to the intent that paid its fee and to the moment
// its funds were locked in escrow.
type EscrowLink struct {
	IntentID *primitive.ObjectID `json:"intent_id,omitempty" bson:"intent_id,omitempty"`
	LockedAt *time.Time          `json:"locked_at,omitempty" bson:"locked_at,omitempty"`
}

// PlaceBidReq ...
type PlaceBidReq struct {
	ProjectID    string          `json:"project_id"`
	BidAmount    decimal.Decimal `json:"bid_amount"`
	Proposal     string          `json:"proposal"`
	DeliveryDays int             `json:"delivery_days"`
}
