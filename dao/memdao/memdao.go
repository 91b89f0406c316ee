// Package memdao implements the dao store interfaces in memory. It backs
// the unit tests and the STORAGE=memory mode and mirrors the conditional
// write semantics of the mongo DAOs.
package memdao

import (
	"gigpay-bend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Stores bundles one of each in-memory store.
type Stores struct {
	Intents  *IntentStore
	Bids     *BidStore
	Wallets  *EscrowStore
	Pools    *BonusPoolStore
	Users    *UserStore
	Projects *ProjectStore
	Events   *EventLog
}

// New returns empty stores
func New() *Stores {
	return &Stores{
		Intents:  NewIntentStore(),
		Bids:     NewBidStore(),
		Wallets:  NewEscrowStore(),
		Pools:    NewBonusPoolStore(),
		Users:    NewUserStore(),
		Projects: NewProjectStore(),
		Events:   NewEventLog(),
	}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneIntent(in models.PaymentIntent) models.PaymentIntent {
	out := in
	out.ProjectID = clonePtr(in.ProjectID)
	out.Settlement = clonePtr(in.Settlement)
	if out.Settlement != nil {
		out.Settlement.AppliedAt = clonePtr(in.Settlement.AppliedAt)
	}
	out.Refund = clonePtr(in.Refund)
	out.OrderAttachedAt = clonePtr(in.OrderAttachedAt)
	out.PaidAt = clonePtr(in.PaidAt)
	out.FailedAt = clonePtr(in.FailedAt)

	n := in.Notes
	out.Notes = models.IntentNotes{
		BidFee:         clonePtr(n.BidFee),
		BonusFunding:   clonePtr(n.BonusFunding),
		Subscription:   clonePtr(n.Subscription),
		Listing:        clonePtr(n.Listing),
		Withdrawal:     clonePtr(n.Withdrawal),
		Reconciliation: append([]models.ReconciliationEntry(nil), n.Reconciliation...),
	}
	if out.Notes.BidFee != nil {
		out.Notes.BidFee.BidID = clonePtr(n.BidFee.BidID)
	}
	return out
}

func cloneBid(in models.Bid) models.Bid {
	out := in
	out.Escrow.IntentID = clonePtr(in.Escrow.IntentID)
	out.Escrow.LockedAt = clonePtr(in.Escrow.LockedAt)
	return out
}

func cloneWallet(in models.EscrowWallet) models.EscrowWallet {
	out := in
	out.FundingIntentIDs = append([]primitive.ObjectID(nil), in.FundingIntentIDs...)
	out.LockedFunds = make([]models.LockedFund, len(in.LockedFunds))
	for i, f := range in.LockedFunds {
		f.ReleasedAt = clonePtr(f.ReleasedAt)
		f.RefundedAt = clonePtr(f.RefundedAt)
		out.LockedFunds[i] = f
	}
	out.ProjectCompletion.CompletedAt = clonePtr(in.ProjectCompletion.CompletedAt)
	return out
}

func clonePool(in models.BonusPool) models.BonusPool {
	out := in
	out.ProjectID = clonePtr(in.ProjectID)
	out.SeededAt = clonePtr(in.SeededAt)
	return out
}

func cloneUser(in models.User) models.User {
	out := in
	out.FreeBids = clonePtr(in.FreeBids)
	out.Subscription = clonePtr(in.Subscription)
	if out.Subscription != nil {
		out.Subscription.Features = append([]string(nil), in.Subscription.Features...)
	}
	return out
}
