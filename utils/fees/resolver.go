// Package fees computes what a user must pay for an action. Resolution only
// reads account state; free-bid quota is consumed when the bid is created.
package fees

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gigpay-bend/dao"
	"gigpay-bend/models"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ActionKind ...
type ActionKind string

// Chargeable actions
const (
	ActionBid          ActionKind = "bid"
	ActionListing      ActionKind = "listing"
	ActionBonusFunding ActionKind = "bonus_funding"
	ActionSubscription ActionKind = "subscription"
	ActionWithdrawal   ActionKind = "withdrawal"
)

// Action is an action with the parameters its fee depends on
type Action struct {
	Kind     ActionKind
	PlanName string
	Amount   decimal.Decimal
}

// Bid ...
func Bid() Action { return Action{Kind: ActionBid} }

// Listing ...
func Listing() Action { return Action{Kind: ActionListing} }

// BonusFunding funds a pool of amount
func BonusFunding(amount decimal.Decimal) Action {
	return Action{Kind: ActionBonusFunding, Amount: amount}
}

// Subscription buys plan
func Subscription(plan string) Action {
	return Action{Kind: ActionSubscription, PlanName: plan}
}

// Withdrawal withdraws amount
func Withdrawal(amount decimal.Decimal) Action {
	return Action{Kind: ActionWithdrawal, Amount: amount}
}

// Tier is the fee tier applied
type Tier string

// Fee tiers
const (
	TierSubscription Tier = "subscription"
	TierFree         Tier = "free"
	TierFull         Tier = "full"
	TierStandard     Tier = "standard"
)

// Quote is the resolver's answer
type Quote struct {
	Eligible  bool            `json:"eligible"`
	FeeAmount decimal.Decimal `json:"fee_amount"`
	Currency  string          `json:"currency"`
	Reason    string          `json:"reason"`
	Tier      Tier            `json:"tier,omitempty"`
	// Plan is set for subscription quotes
	Plan *Plan `json:"-"`
}

// Resolver computes fees from pricing and the user's current account state
type Resolver struct {
	users   dao.UserStore
	pricing Pricing
	nowFn   func() time.Time
}

// NewResolver ...
func NewResolver(users dao.UserStore, pricing Pricing) *Resolver {
	return &Resolver{users: users, pricing: pricing, nowFn: time.Now}
}

// Pricing returns the fee table in use
func (r *Resolver) Pricing() Pricing {
	return r.pricing
}

// Resolve returns the fee userID pays for action. A missing account yields
// Eligible=false and no error.
func (r *Resolver) Resolve(ctx context.Context, userID primitive.ObjectID, action Action) (Quote, error) {
	user, err := r.users.FindByID(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return Quote{Eligible: false, FeeAmount: decimal.Zero, Currency: r.pricing.Currency, Reason: "user account not found"}, nil
	}
	if err != nil {
		return Quote{}, err
	}

	q := Quote{Eligible: true, Currency: r.pricing.Currency, Tier: TierStandard}
	switch action.Kind {
	case ActionBid:
		return r.bidQuote(user), nil

	case ActionListing:
		q.FeeAmount = r.pricing.ListingFee
		q.Reason = "listing fee"

	case ActionBonusFunding:
		if !action.Amount.IsPositive() {
			return Quote{}, fmt.Errorf("%w: bonus pool amount must be positive", models.ErrValidation)
		}
		q.FeeAmount = r.pricing.BonusFundingCharge(action.Amount)
		q.Reason = "bonus pool funding"

	case ActionSubscription:
		plan, ok := r.pricing.Plan(action.PlanName)
		if !ok {
			return Quote{}, fmt.Errorf("%w: unknown plan %q", models.ErrValidation, action.PlanName)
		}
		q.FeeAmount = plan.Price
		q.Reason = fmt.Sprintf("%s plan", plan.Name)
		q.Plan = &plan

	case ActionWithdrawal:
		if !action.Amount.IsPositive() {
			return Quote{}, fmt.Errorf("%w: withdrawal amount must be positive", models.ErrValidation)
		}
		q.FeeAmount = r.pricing.WithdrawalFee(action.Amount)
		q.Reason = "withdrawal fee"

	default:
		return Quote{}, fmt.Errorf("%w: unknown action %q", models.ErrValidation, action.Kind)
	}
	return q, nil
}

// bidQuote: an active subscription wins over free quota.
func (r *Resolver) bidQuote(user models.User) Quote {
	q := Quote{Eligible: true, Currency: r.pricing.Currency}

	if user.Subscription.ActiveAt(r.nowFn()) {
		q.FeeAmount = r.pricing.SubscriberBidFee
		q.Tier = TierSubscription
		q.Reason = "subscriber bid fee"
		return q
	}

	if remaining := r.FreeBidsRemaining(user); remaining > 0 {
		q.FeeAmount = decimal.Zero
		q.Tier = TierFree
		q.Reason = fmt.Sprintf("free bid available (%d remaining)", remaining)
		return q
	}

	q.FeeAmount = r.pricing.BidFee
	q.Tier = TierFull
	q.Reason = "no free bids remaining"
	return q
}

// FreeBidsRemaining reads an absent quota as the default allowance
func (r *Resolver) FreeBidsRemaining(user models.User) int {
	if user.FreeBids == nil {
		return r.pricing.FreeBidAllowance
	}
	return user.FreeBids.Remaining
}
