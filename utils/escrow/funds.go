package escrow

import (
	"context"
	"errors"
	"fmt"

	"gigpay-bend/models"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// LockRequest adds one contributor's funds to a project's wallet
type LockRequest struct {
	ProjectID  primitive.ObjectID
	UserID     primitive.ObjectID
	BidID      primitive.ObjectID
	BidAmount  decimal.Decimal
	BonusShare decimal.Decimal
}

// LockFunds appends a locked-fund record for (user, bid)
func (e *Escrow) LockFunds(ctx context.Context, req LockRequest) (models.EscrowWallet, error) {
	switch {
	case req.ProjectID.IsZero() || req.UserID.IsZero() || req.BidID.IsZero():
		return models.EscrowWallet{}, fmt.Errorf("%w: project, user and bid are required", models.ErrValidation)
	case req.BidAmount.IsNegative() || req.BonusShare.IsNegative():
		return models.EscrowWallet{}, fmt.Errorf("%w: amounts cannot be negative", models.ErrValidation)
	case !req.BidAmount.Add(req.BonusShare).IsPositive():
		return models.EscrowWallet{}, fmt.Errorf("%w: locked amount must be positive", models.ErrValidation)
	}

	unlock, err := e.locks.Lock(ctx, recordKey(req.ProjectID, req.UserID, req.BidID))
	if err != nil {
		return models.EscrowWallet{}, err
	}
	defer unlock()

	now := e.nowFn()
	w, err := e.update(ctx, req.ProjectID, func(w *models.EscrowWallet) error {
		if w.Status.Closed() {
			return closedErr(w)
		}
		if _, ok := w.Fund(req.UserID, req.BidID); ok {
			return fmt.Errorf("%w: funds already locked for this bid", models.ErrConflict)
		}
		w.LockedFunds = append(w.LockedFunds, models.LockedFund{
			UserID:      req.UserID,
			BidID:       req.BidID,
			BidAmount:   req.BidAmount,
			BonusShare:  req.BonusShare,
			TotalAmount: req.BidAmount.Add(req.BonusShare),
			LockStatus:  models.FundLocked,
			LockedAt:    now,
		})
		w.Status = models.WalletLocked
		return nil
	})
	if err != nil {
		return w, err
	}

	if err := e.bids.SetLockedAt(ctx, req.BidID, now); err != nil && !errors.Is(err, models.ErrNotFound) {
		e.logger.Warn("escrow: link bid", zap.String("bid_id", req.BidID.Hex()), zap.Error(err))
	}
	e.logger.Info("escrow: funds locked",
		zap.String("project_id", req.ProjectID.Hex()),
		zap.String("user_id", req.UserID.Hex()),
		zap.String("bid_id", req.BidID.Hex()),
		zap.String("total_escrow", w.TotalEscrowAmount.String()),
	)
	return w, nil
}

// ReleaseOne pays one contributor's locked funds out
func (e *Escrow) ReleaseOne(ctx context.Context, projectID, userID, bidID primitive.ObjectID) (models.EscrowWallet, error) {
	return e.closeOut(ctx, projectID, userID, bidID, models.FundReleased, false)
}

// RefundOne returns one contributor's locked funds to the payer
func (e *Escrow) RefundOne(ctx context.Context, projectID, userID, bidID primitive.ObjectID) (models.EscrowWallet, error) {
	return e.closeOut(ctx, projectID, userID, bidID, models.FundRefunded, false)
}

// closeOut moves one record out of locked. With skipDone a record that
// already left locked is left alone instead of rejected.
func (e *Escrow) closeOut(ctx context.Context, projectID, userID, bidID primitive.ObjectID, to models.LockStatus, skipDone bool) (models.EscrowWallet, error) {
	unlock, err := e.locks.Lock(ctx, recordKey(projectID, userID, bidID))
	if err != nil {
		return models.EscrowWallet{}, err
	}
	defer unlock()

	var fund models.LockedFund
	changed := false
	now := e.nowFn()
	w, err := e.update(ctx, projectID, func(w *models.EscrowWallet) error {
		f, ok := w.Fund(userID, bidID)
		if !ok {
			return fmt.Errorf("%w: no locked funds for user %s and bid %s", models.ErrNotFound, userID.Hex(), bidID.Hex())
		}
		if f.LockStatus != models.FundLocked {
			if skipDone {
				return errUnchanged
			}
			return fmt.Errorf("%w: funds already %s", models.ErrInvalidState, f.LockStatus)
		}
		if w.Status.Closed() {
			return closedErr(w)
		}

		f.LockStatus = to
		if to == models.FundReleased {
			f.ReleasedAt = &now
		} else {
			f.RefundedAt = &now
		}
		fund = *f
		changed = true
		settleStatus(w)
		return nil
	})
	if err != nil || !changed {
		return w, err
	}

	e.logger.Info("escrow: funds "+string(to),
		zap.String("project_id", projectID.Hex()),
		zap.String("user_id", userID.Hex()),
		zap.String("bid_id", bidID.Hex()),
		zap.String("amount", fund.TotalAmount.String()),
		zap.String("wallet_status", string(w.Status)),
	)
	e.notifier.SendEscrowNotification(ctx, w, fund)
	return w, nil
}

// CompleteProject releases every record still locked, one commit per
// record, then writes the completion. Re-invoking after a crash resumes
// where it stopped; a completed project is returned unchanged.
func (e *Escrow) CompleteProject(ctx context.Context, projectID primitive.ObjectID, qualityScore int, notes string) (models.EscrowWallet, error) {
	if qualityScore < 0 || qualityScore > 5 {
		return models.EscrowWallet{}, fmt.Errorf("%w: quality score must be between 0 and 5", models.ErrValidation)
	}

	w, err := e.Get(ctx, projectID)
	if err != nil {
		return w, err
	}
	if w.ProjectCompletion.IsCompleted {
		return w, nil
	}
	if w.Status == models.WalletCancelled || w.Status == models.WalletRefunded {
		return w, closedErr(&w)
	}

	for _, f := range w.LockedFunds {
		if f.LockStatus != models.FundLocked {
			continue
		}
		if _, err := e.closeOut(ctx, projectID, f.UserID, f.BidID, models.FundReleased, true); err != nil {
			return models.EscrowWallet{}, fmt.Errorf("release %s: %w", f.BidID.Hex(), err)
		}
	}

	now := e.nowFn()
	w, err = e.update(ctx, projectID, func(w *models.EscrowWallet) error {
		if w.ProjectCompletion.IsCompleted {
			return errUnchanged
		}
		// a lock that raced in after the loop is still locked
		for _, f := range w.LockedFunds {
			if f.LockStatus == models.FundLocked {
				return fmt.Errorf("%w: funds were locked during completion, retry", models.ErrConflict)
			}
		}
		w.ProjectCompletion = models.ProjectCompletion{
			IsCompleted:  true,
			CompletedAt:  &now,
			QualityScore: qualityScore,
			Notes:        notes,
		}
		w.Status = models.WalletReleased
		return nil
	})
	if err != nil {
		return w, err
	}

	e.logger.Info("escrow: project completed", zap.String("project_id", projectID.Hex()), zap.Int("quality_score", qualityScore))
	return w, nil
}

// Cancel closes a wallet that never had funds locked
func (e *Escrow) Cancel(ctx context.Context, projectID primitive.ObjectID) (models.EscrowWallet, error) {
	return e.update(ctx, projectID, func(w *models.EscrowWallet) error {
		switch {
		case w.Status == models.WalletCancelled:
			return errUnchanged
		case w.Status.Closed():
			return closedErr(w)
		case len(w.LockedFunds) > 0:
			return fmt.Errorf("%w: funds were already locked in this wallet", models.ErrInvalidState)
		}
		w.Status = models.WalletCancelled
		return nil
	})
}
