package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WalletStatus ...
type WalletStatus string

// Escrow wallet statuses
const (
	WalletActive    WalletStatus = "active"
	WalletLocked    WalletStatus = "locked"
	WalletReleased  WalletStatus = "released"
	WalletRefunded  WalletStatus = "refunded"
	WalletCancelled WalletStatus = "cancelled"
)

// Closed reports whether the wallet no longer accepts lock, release or
// refund calls.
func (s WalletStatus) Closed() bool {
	return s == WalletReleased || s == WalletRefunded || s == WalletCancelled
}

// LockStatus ...
type LockStatus string

// Locked-fund statuses
const (
	FundLocked   LockStatus = "locked"
	FundReleased LockStatus = "released"
	FundRefunded LockStatus = "refunded"
)

// EscrowWallet holds, per project, every contributor's locked funds plus
// the owner-funded bonus pool.
type EscrowWallet struct {
	ID                   primitive.ObjectID   `json:"id" bson:"_id"`
	ProjectID            primitive.ObjectID   `json:"project_id" bson:"project_id"`
	OwnerID              primitive.ObjectID   `json:"owner_id" bson:"owner_id"`
	TotalBonusPool       decimal.Decimal      `json:"total_bonus_pool" bson:"total_bonus_pool"`
	ContributorsCount    int                  `json:"contributors_count" bson:"contributors_count"`
	AmountPerContributor decimal.Decimal      `json:"amount_per_contributor" bson:"amount_per_contributor"`
	Funded               bool                 `json:"funded" bson:"funded"`
	FundingIntentIDs     []primitive.ObjectID `json:"funding_intent_ids" bson:"funding_intent_ids"`
	TotalEscrowAmount    decimal.Decimal      `json:"total_escrow_amount" bson:"total_escrow_amount"`
	Status               WalletStatus         `json:"status" bson:"status"`
	LockedFunds          []LockedFund         `json:"locked_funds" bson:"locked_funds"`
	ProjectCompletion    ProjectCompletion    `json:"project_completion" bson:"project_completion"`
	Version              int64                `json:"version" bson:"version"`
	CreatedAt            time.Time            `json:"created_at" bson:"created_at"`
	UpdatedAt            time.Time            `json:"updated_at" bson:"updated_at"`
}

// FundedBy reports whether intentID already funded this wallet.
func (w EscrowWallet) FundedBy(intentID primitive.ObjectID) bool {
	for _, id := range w.FundingIntentIDs {
		if id == intentID {
			return true
		}
	}
	return false
}

// Fund returns the locked-fund record for (userID, bidID).
func (w *EscrowWallet) Fund(userID, bidID primitive.ObjectID) (*LockedFund, bool) {
	for i := range w.LockedFunds {
		if w.LockedFunds[i].UserID == userID && w.LockedFunds[i].BidID == bidID {
			return &w.LockedFunds[i], true
		}
	}
	return nil, false
}

// LockedTotal sums the total amount of every record still locked.
func (w EscrowWallet) LockedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, f := range w.LockedFunds {
		if f.LockStatus == FundLocked {
			total = total.Add(f.TotalAmount)
		}
	}
	return total
}

// LockedFund is one contributor's share within an escrow wallet.
type LockedFund struct {
	UserID      primitive.ObjectID `json:"user_id" bson:"user_id"`
	BidID       primitive.ObjectID `json:"bid_id" bson:"bid_id"`
	BidAmount   decimal.Decimal    `json:"bid_amount" bson:"bid_amount"`
	BonusShare  decimal.Decimal    `json:"bonus_share" bson:"bonus_share"`
	TotalAmount decimal.Decimal    `json:"total_amount" bson:"total_amount"`
	LockStatus  LockStatus         `json:"lock_status" bson:"lock_status"`
	LockedAt    time.Time          `json:"locked_at" bson:"locked_at"`
	ReleasedAt  *time.Time         `json:"released_at,omitempty" bson:"released_at,omitempty"`
	RefundedAt  *time.Time         `json:"refunded_at,omitempty" bson:"refunded_at,omitempty"`
}

// ProjectCompletion ...
type ProjectCompletion struct {
	IsCompleted  bool       `json:"is_completed" bson:"is_completed"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	QualityScore int        `json:"quality_score" bson:"quality_score"`
	Notes        string     `json:"notes" bson:"notes"`
}

// BonusPoolStatus ...
type BonusPoolStatus string

// Bonus pool statuses
const (
	BonusPoolPending BonusPoolStatus = "pending"
	BonusPoolFunded  BonusPoolStatus = "funded"
)

// BonusPool stages owner-funded bonus money for a project that has not
// selected its contributors yet. Once selection completes it seeds the
// project's escrow wallet.
type BonusPool struct {
	ID                   primitive.ObjectID  `json:"id" bson:"_id"`
	OwnerID              primitive.ObjectID  `json:"owner_id" bson:"owner_id"`
	ProjectID            *primitive.ObjectID `json:"project_id,omitempty" bson:"project_id,omitempty"`
	ProjectTitle         string              `json:"project_title,omitempty" bson:"project_title,omitempty"`
	TotalAmount          decimal.Decimal     `json:"total_amount" bson:"total_amount"`
	ContributorsCount    int                 `json:"contributors_count" bson:"contributors_count"`
	AmountPerContributor decimal.Decimal     `json:"amount_per_contributor" bson:"amount_per_contributor"`
	Status               BonusPoolStatus     `json:"status" bson:"status"`
	IsNewProject         bool                `json:"is_new_project" bson:"is_new_project"`
	FundingIntentID      primitive.ObjectID  `json:"funding_intent_id" bson:"funding_intent_id"`
	SeededAt             *time.Time          `json:"seeded_at,omitempty" bson:"seeded_at,omitempty"`
	CreatedAt            time.Time           `json:"created_at" bson:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at" bson:"updated_at"`
}

// LockFundsReq ...
type LockFundsReq struct {
	UserID     string          `json:"user_id"`
	BidID      string          `json:"bid_id"`
	BidAmount  decimal.Decimal `json:"bid_amount"`
	BonusShare decimal.Decimal `json:"bonus_share"`
}

// CompleteProjectReq ...
type CompleteProjectReq struct {
	QualityScore int    `json:"quality_score"`
	Notes        string `json:"notes"`
}

// SeedWalletReq ...
type SeedWalletReq struct {
	BonusPoolID string `json:"bonus_pool_id"`
}
