package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Purpose identifies the domain effect a payment intent unlocks once paid.
type Purpose string

// Intent purposes
const (
	PurposeBidFee        Purpose = "bid_fee"
	PurposeListing       Purpose = "listing"
	PurposeBonusFunding  Purpose = "bonus_funding"
	PurposeSubscription  Purpose = "subscription"
	PurposeWithdrawalFee Purpose = "withdrawal_fee"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeBidFee, PurposeListing, PurposeBonusFunding, PurposeSubscription, PurposeWithdrawalFee:
		return true
	}
	return false
}

// IntentStatus is the state of a payment intent. It only moves
// created -> paid -> refunded, or created -> failed.
type IntentStatus string

// Intent statuses
const (
	IntentCreated  IntentStatus = "created"
	IntentPaid     IntentStatus = "paid"
	IntentFailed   IntentStatus = "failed"
	IntentRefunded IntentStatus = "refunded"
)

// PaymentIntent is a durable record of one attempted money movement.
type PaymentIntent struct {
	ID                primitive.ObjectID  `json:"id" bson:"_id"`
	ExternalOrderID   string              `json:"external_order_id,omitempty" bson:"external_order_id,omitempty"`
	ExternalPaymentID string              `json:"external_payment_id,omitempty" bson:"external_payment_id,omitempty"`
	Purpose           Purpose             `json:"purpose" bson:"purpose"`
	Amount            decimal.Decimal     `json:"amount" bson:"amount"`
	Currency          string              `json:"currency" bson:"currency"`
	OwnerID           primitive.ObjectID  `json:"owner_id" bson:"owner_id"`
	ProjectID         *primitive.ObjectID `json:"project_id,omitempty" bson:"project_id,omitempty"`
	Status            IntentStatus        `json:"status" bson:"status"`
	Notes             IntentNotes         `json:"notes" bson:"notes"`
	Settlement        *SettlementOutcome  `json:"settlement,omitempty" bson:"settlement,omitempty"`
	Refund            *RefundMeta         `json:"refund,omitempty" bson:"refund,omitempty"`
	FailureReason     string              `json:"failure_reason,omitempty" bson:"failure_reason,omitempty"`
	OrderAttachedAt   *time.Time          `json:"order_attached_at,omitempty" bson:"order_attached_at,omitempty"`
	PaidAt            *time.Time          `json:"paid_at,omitempty" bson:"paid_at,omitempty"`
	FailedAt          *time.Time          `json:"failed_at,omitempty" bson:"failed_at,omitempty"`
	CreatedAt         time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at" bson:"updated_at"`
}

// HasOrder reports whether a gateway order is attached.
func (p PaymentIntent) HasOrder() bool {
	return p.ExternalOrderID != ""
}

// Settled reports whether the intent's domain effect was recorded as applied.
func (p PaymentIntent) Settled() bool {
	return p.Settlement != nil && p.Settlement.Applied
}

// RefundDue reports whether the payment was flagged for refund instead of
// being applied.
func (p PaymentIntent) RefundDue() bool {
	return p.Settlement != nil && p.Settlement.RefundDue
}

// IntentNotes carries the purpose-specific payload needed to apply the
// effect later. Exactly one payload is set and it must match the intent's
// purpose. Reconciliation is append-only metadata.
type IntentNotes struct {
	BidFee         *BidFeeNotes          `json:"bid_fee,omitempty" bson:"bid_fee,omitempty"`
	BonusFunding   *BonusFundingNotes    `json:"bonus_funding,omitempty" bson:"bonus_funding,omitempty"`
	Subscription   *SubscriptionNotes    `json:"subscription,omitempty" bson:"subscription,omitempty"`
	Listing        *ListingNotes         `json:"listing,omitempty" bson:"listing,omitempty"`
	Withdrawal     *WithdrawalNotes      `json:"withdrawal,omitempty" bson:"withdrawal,omitempty"`
	Reconciliation []ReconciliationEntry `json:"reconciliation,omitempty" bson:"reconciliation,omitempty"`
}

// Check validates that exactly the payload matching purpose is set.
func (n IntentNotes) Check(purpose Purpose) error {
	set := map[Purpose]bool{
		PurposeBidFee:        n.BidFee != nil,
		PurposeBonusFunding:  n.BonusFunding != nil,
		PurposeSubscription:  n.Subscription != nil,
		PurposeListing:       n.Listing != nil,
		PurposeWithdrawalFee: n.Withdrawal != nil,
	}
	for p, ok := range set {
		if ok && p != purpose {
			return fmt.Errorf("%w: notes carry a %s payload for a %s intent", ErrValidation, p, purpose)
		}
	}
	if !set[purpose] {
		return fmt.Errorf("%w: notes payload missing for %s intent", ErrValidation, purpose)
	}

	switch purpose {
	case PurposeBidFee:
		if n.BidFee.BidAmount.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("%w: bid amount must be positive", ErrValidation)
		}
	case PurposeBonusFunding:
		if n.BonusFunding.ContributorsCount <= 0 {
			return fmt.Errorf("%w: contributors count must be positive", ErrValidation)
		}
	case PurposeSubscription:
		if n.Subscription.PlanName == "" {
			return fmt.Errorf("%w: plan name is required", ErrValidation)
		}
	case PurposeWithdrawalFee:
		if n.Withdrawal.Amount.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("%w: withdrawal amount must be positive", ErrValidation)
		}
	}
	return nil
}

// BidFeeNotes is the bid payload carried until the fee is confirmed.
type BidFeeNotes struct {
	BidID        *primitive.ObjectID `json:"bid_id,omitempty" bson:"bid_id,omitempty"`
	BidAmount    decimal.Decimal     `json:"bid_amount" bson:"bid_amount"`
	Proposal     string              `json:"proposal" bson:"proposal"`
	DeliveryDays int                 `json:"delivery_days" bson:"delivery_days"`
	FeeTier      string              `json:"fee_tier" bson:"fee_tier"`
}

// BonusFundingNotes describes a bonus pool funding. PoolAmount excludes the
// funding fee; when zero the whole intent amount goes to the pool.
type BonusFundingNotes struct {
	PoolAmount        decimal.Decimal `json:"pool_amount" bson:"pool_amount"`
	ContributorsCount int             `json:"contributors_count" bson:"contributors_count"`
	ProjectTitle      string          `json:"project_title,omitempty" bson:"project_title,omitempty"`
}

// SubscriptionNotes names the plan being purchased.
type SubscriptionNotes struct {
	PlanName string `json:"plan_name" bson:"plan_name"`
}

// ListingNotes ...
type ListingNotes struct {
	ProjectTitle string `json:"project_title,omitempty" bson:"project_title,omitempty"`
}

// WithdrawalNotes ...
type WithdrawalNotes struct {
	Amount      decimal.Decimal `json:"amount" bson:"amount"`
	Destination string          `json:"destination" bson:"destination"`
}

// ReconciliationEntry is metadata appended while reconciling an intent.
type ReconciliationEntry struct {
	Source    string    `json:"source" bson:"source"`
	Message   string    `json:"message" bson:"message"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// SettlementOutcome records what the settlement dispatcher did with a paid
// intent, so repeated confirmations can replay it.
type SettlementOutcome struct {
	Applied   bool   `json:"applied" bson:"applied"`
	EffectRef string `json:"effect_ref,omitempty" bson:"effect_ref,omitempty"`
	Summary   string `json:"summary" bson:"summary"`
	Attempts  int    `json:"attempts" bson:"attempts"`
	LastError string `json:"last_error,omitempty" bson:"last_error,omitempty"`
	// RefundDue marks a payment that must not be applied, such as a second
	// fee for a bid that is already paid. It waits for an operator refund.
	RefundDue bool       `json:"refund_due,omitempty" bson:"refund_due,omitempty"`
	AppliedAt *time.Time `json:"applied_at,omitempty" bson:"applied_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at" bson:"updated_at"`
}

// RefundMeta describes a completed gateway refund.
type RefundMeta struct {
	RefundID   string    `json:"refund_id" bson:"refund_id"`
	RefundRef  string    `json:"refund_ref" bson:"refund_ref"`
	Reason     string    `json:"reason" bson:"reason"`
	RefundedAt time.Time `json:"refunded_at" bson:"refunded_at"`
}
