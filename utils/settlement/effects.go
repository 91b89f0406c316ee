package settlement

import (
	"context"
	"errors"
	"fmt"

	"gigpay-bend/models"
	"gigpay-bend/utils/escrow"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// errDuplicateCharge marks a payment whose effect was already bought by
// another intent. Such intents are flagged for refund, never applied.
var errDuplicateCharge = errors.New("duplicate charge")

// effect is what applying an intent produced
type effect struct {
	ref     string
	summary string
}

// applyEffect dispatches on purpose. Every effect is idempotent on its own
// so a crash between the effect and the recorded outcome is safe to retry.
func (d *Dispatcher) applyEffect(ctx context.Context, intent models.PaymentIntent) (effect, error) {
	if err := intent.Notes.Check(intent.Purpose); err != nil {
		return effect{}, err
	}
	switch intent.Purpose {
	case models.PurposeBidFee:
		return d.applyBidFee(ctx, intent)
	case models.PurposeBonusFunding:
		return d.applyBonusFunding(ctx, intent)
	case models.PurposeSubscription:
		return d.applySubscription(ctx, intent)
	case models.PurposeListing:
		return d.applyListing(ctx, intent)
	case models.PurposeWithdrawalFee:
		n := intent.Notes.Withdrawal
		return effect{summary: fmt.Sprintf("withdrawal fee of %s %s collected for a %s withdrawal", intent.Amount, intent.Currency, n.Amount)}, nil
	}
	return effect{}, fmt.Errorf("%w: unknown purpose %q", models.ErrValidation, intent.Purpose)
}

// applyBidFee activates the bid the fee was paid for. A bid created before
// payment is referenced by the notes; otherwise the bid is created now,
// once per (project, bidder).
func (d *Dispatcher) applyBidFee(ctx context.Context, intent models.PaymentIntent) (effect, error) {
	n := intent.Notes.BidFee
	if intent.ProjectID == nil {
		return effect{}, fmt.Errorf("%w: bid fee intent has no project", models.ErrValidation)
	}

	var (
		bid models.Bid
		err error
	)
	if n.BidID != nil {
		bid, err = d.bids.FindByID(ctx, *n.BidID)
	} else {
		bid, err = d.bids.FindByProjectBidder(ctx, *intent.ProjectID, intent.OwnerID)
	}
	switch {
	case errors.Is(err, models.ErrNotFound):
		bid, err = d.insertBid(ctx, intent)
		if err != nil {
			return effect{}, err
		}
	case err != nil:
		return effect{}, err
	}

	if bid.PaymentStatus == models.BidPaymentPaid && (bid.Escrow.IntentID == nil || *bid.Escrow.IntentID != intent.ID) {
		return effect{}, fmt.Errorf("%w: bid %s on project %s is already paid", errDuplicateCharge, bid.ID.Hex(), intent.ProjectID.Hex())
	}
	if bid.PaymentStatus != models.BidPaymentPaid {
		if err := d.bids.SetPaymentStatus(ctx, bid.ID, models.BidPaymentPaid, &intent.ID); err != nil {
			return effect{}, err
		}
	}
	return effect{
		ref:     bid.ID.Hex(),
		summary: fmt.Sprintf("bid of %s placed on project %s", n.BidAmount, intent.ProjectID.Hex()),
	}, nil
}

func (d *Dispatcher) insertBid(ctx context.Context, intent models.PaymentIntent) (models.Bid, error) {
	n := intent.Notes.BidFee
	now := d.nowFn()
	bid := models.Bid{
		ID:            primitive.NewObjectID(),
		ProjectID:     *intent.ProjectID,
		BidderID:      intent.OwnerID,
		BidAmount:     n.BidAmount,
		Fee:           intent.Amount,
		TotalAmount:   n.BidAmount.Add(intent.Amount),
		Proposal:      n.Proposal,
		DeliveryDays:  n.DeliveryDays,
		BidStatus:     models.BidPending,
		PaymentStatus: models.BidPaymentPaid,
		Escrow:        models.EscrowLink{IntentID: &intent.ID},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := d.bids.Insert(ctx, bid)
	if errors.Is(err, models.ErrConflict) {
		// a concurrent confirmation inserted it first
		return d.bids.FindByProjectBidder(ctx, bid.ProjectID, bid.BidderID)
	}
	return bid, err
}

// applyBonusFunding stages a pool for a project without contributors, or
// credits the project's escrow wallet.
func (d *Dispatcher) applyBonusFunding(ctx context.Context, intent models.PaymentIntent) (effect, error) {
	n := intent.Notes.BonusFunding
	amount := n.PoolAmount
	if !amount.IsPositive() {
		amount = intent.Amount
	}

	if intent.ProjectID == nil {
		pool, err := d.escrow.StageBonusPool(ctx, escrow.StageRequest{
			OwnerID:      intent.OwnerID,
			ProjectTitle: n.ProjectTitle,
			Amount:       amount,
			Contributors: n.ContributorsCount,
			IntentID:     intent.ID,
		})
		if err != nil {
			return effect{}, err
		}
		return effect{
			ref:     pool.ID.Hex(),
			summary: fmt.Sprintf("bonus pool of %s staged, %s per contributor", pool.TotalAmount, pool.AmountPerContributor),
		}, nil
	}

	w, err := d.escrow.FundBonusPool(ctx, escrow.FundRequest{
		ProjectID:    *intent.ProjectID,
		OwnerID:      intent.OwnerID,
		Amount:       amount,
		Contributors: n.ContributorsCount,
		IntentID:     intent.ID,
	})
	if err != nil {
		return effect{}, err
	}
	return effect{
		ref:     w.ID.Hex(),
		summary: fmt.Sprintf("escrow bonus pool is now %s, %s per contributor", w.TotalBonusPool, w.AmountPerContributor),
	}, nil
}

// applySubscription extends an active subscription or starts a new one.
// The profile records the intent that funded it, which makes the write
// conditional and the effect idempotent.
func (d *Dispatcher) applySubscription(ctx context.Context, intent models.PaymentIntent) (effect, error) {
	plan, ok := d.pricing.Plan(intent.Notes.Subscription.PlanName)
	if !ok {
		return effect{}, fmt.Errorf("%w: unknown plan %q", models.ErrValidation, intent.Notes.Subscription.PlanName)
	}

	for attempt := 0; attempt < 3; attempt++ {
		user, err := d.users.FindByID(ctx, intent.OwnerID)
		if err != nil {
			return effect{}, err
		}
		prev := user.Subscription
		if prev != nil && prev.LastIntentID == intent.ID {
			return subscriptionEffect(*prev), nil
		}

		now := d.nowFn()
		profile := models.SubscriptionProfile{
			PlanName:     plan.Name,
			PlanType:     plan.Type,
			IsActive:     true,
			StartedAt:    now,
			ExpiresAt:    now.Add(plan.Duration),
			LastIntentID: intent.ID,
			Features:     plan.Features,
			BidLimit:     plan.BidLimit,
		}
		prevID := primitive.NilObjectID
		if prev != nil {
			prevID = prev.LastIntentID
			profile.AutoRenew = prev.AutoRenew
			if prev.ActiveAt(now) {
				profile.StartedAt = prev.StartedAt
				profile.ExpiresAt = prev.ExpiresAt.Add(plan.Duration)
			}
		}

		saved, err := d.users.SaveSubscription(ctx, intent.OwnerID, profile, prevID)
		if err != nil {
			return effect{}, err
		}
		if saved {
			return subscriptionEffect(profile), nil
		}
	}
	return effect{}, fmt.Errorf("%w: subscription changed concurrently", models.ErrConflict)
}

func subscriptionEffect(p models.SubscriptionProfile) effect {
	return effect{
		ref:     p.LastIntentID.Hex(),
		summary: fmt.Sprintf("%s subscription active until %s", p.PlanName, p.ExpiresAt.Format("2006-01-02")),
	}
}

func (d *Dispatcher) applyListing(ctx context.Context, intent models.PaymentIntent) (effect, error) {
	if intent.ProjectID == nil {
		return effect{}, fmt.Errorf("%w: listing intent has no project", models.ErrValidation)
	}
	if err := d.projects.MarkListingFeePaid(ctx, *intent.ProjectID, intent.ID, d.nowFn()); err != nil {
		return effect{}, err
	}
	return effect{
		ref:     intent.ProjectID.Hex(),
		summary: fmt.Sprintf("listing fee paid for project %s", intent.ProjectID.Hex()),
	}, nil
}
