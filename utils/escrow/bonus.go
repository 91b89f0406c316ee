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

// FundRequest credits a bonus funding to a project's wallet
type FundRequest struct {
	ProjectID    primitive.ObjectID
	OwnerID      primitive.ObjectID
	Amount       decimal.Decimal
	Contributors int
	IntentID     primitive.ObjectID
}

func (r FundRequest) validate() error {
	switch {
	case r.ProjectID.IsZero():
		return fmt.Errorf("%w: project is required", models.ErrValidation)
	case !r.Amount.IsPositive():
		return fmt.Errorf("%w: bonus amount must be positive", models.ErrValidation)
	case r.Contributors <= 0:
		return fmt.Errorf("%w: contributors count must be positive", models.ErrValidation)
	}
	return nil
}

// FundBonusPool creates the project's wallet or adds to its bonus pool.
// A funding intent is credited at most once.
func (e *Escrow) FundBonusPool(ctx context.Context, req FundRequest) (models.EscrowWallet, error) {
	if err := req.validate(); err != nil {
		return models.EscrowWallet{}, err
	}

	unlock, err := e.locks.Lock(ctx, "bonus:"+req.ProjectID.Hex())
	if err != nil {
		return models.EscrowWallet{}, err
	}
	defer unlock()

	credit := func(w *models.EscrowWallet) error {
		if w.FundedBy(req.IntentID) {
			return errUnchanged
		}
		if w.Status.Closed() {
			return closedErr(w)
		}
		if len(w.LockedFunds) > req.Contributors {
			return fmt.Errorf("%w: %d contributors already locked funds, cannot fund for %d", models.ErrConflict, len(w.LockedFunds), req.Contributors)
		}
		w.TotalBonusPool = w.TotalBonusPool.Add(req.Amount)
		w.ContributorsCount = req.Contributors
		w.AmountPerContributor = floorShare(w.TotalBonusPool, req.Contributors)
		w.Funded = true
		w.FundingIntentIDs = append(w.FundingIntentIDs, req.IntentID)
		return nil
	}

	w, err := e.update(ctx, req.ProjectID, credit)
	if errors.Is(err, models.ErrNotFound) {
		now := e.nowFn()
		w = models.EscrowWallet{
			ID:                primitive.NewObjectID(),
			ProjectID:         req.ProjectID,
			OwnerID:           req.OwnerID,
			TotalBonusPool:    decimal.Zero,
			TotalEscrowAmount: decimal.Zero,
			Status:            models.WalletActive,
			LockedFunds:       []models.LockedFund{},
			Version:           1,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err = credit(&w); err != nil && !errors.Is(err, errUnchanged) {
			return models.EscrowWallet{}, err
		}
		err = e.wallets.Insert(ctx, w)
		if errors.Is(err, models.ErrConflict) {
			// another process created it first
			w, err = e.update(ctx, req.ProjectID, credit)
		}
	}
	if err != nil {
		return models.EscrowWallet{}, err
	}

	e.logger.Info("escrow: bonus pool funded",
		zap.String("project_id", req.ProjectID.Hex()),
		zap.String("intent_id", req.IntentID.Hex()),
		zap.String("total_bonus_pool", w.TotalBonusPool.String()),
		zap.String("amount_per_contributor", w.AmountPerContributor.String()),
	)
	return w, nil
}

// StageRequest funds a bonus pool for a project that has no contributors yet
type StageRequest struct {
	OwnerID      primitive.ObjectID
	ProjectTitle string
	Amount       decimal.Decimal
	Contributors int
	IntentID     primitive.ObjectID
}

// StageBonusPool stores a funded bonus pool for a new project. The pool is
// keyed by its funding intent, so staging twice returns the first pool.
func (e *Escrow) StageBonusPool(ctx context.Context, req StageRequest) (models.BonusPool, error) {
	switch {
	case !req.Amount.IsPositive():
		return models.BonusPool{}, fmt.Errorf("%w: bonus amount must be positive", models.ErrValidation)
	case req.Contributors <= 0:
		return models.BonusPool{}, fmt.Errorf("%w: contributors count must be positive", models.ErrValidation)
	}

	if pool, err := e.pools.FindByIntentID(ctx, req.IntentID); err == nil {
		return pool, nil
	} else if !errors.Is(err, models.ErrNotFound) {
		return pool, err
	}

	now := e.nowFn()
	pool := models.BonusPool{
		ID:                   primitive.NewObjectID(),
		OwnerID:              req.OwnerID,
		ProjectTitle:         req.ProjectTitle,
		TotalAmount:          req.Amount,
		ContributorsCount:    req.Contributors,
		AmountPerContributor: floorShare(req.Amount, req.Contributors),
		Status:               models.BonusPoolFunded,
		IsNewProject:         true,
		FundingIntentID:      req.IntentID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	switch err := e.pools.Insert(ctx, pool); {
	case errors.Is(err, models.ErrConflict):
		return e.pools.FindByIntentID(ctx, req.IntentID)
	case err != nil:
		return models.BonusPool{}, err
	}

	e.logger.Info("escrow: bonus pool staged",
		zap.String("pool_id", pool.ID.Hex()),
		zap.String("intent_id", req.IntentID.Hex()),
		zap.String("amount_per_contributor", pool.AmountPerContributor.String()),
	)
	return pool, nil
}

// SeedFromBonusPool links a staged pool to the project that now owns it and
// credits it to the project's wallet. Seeding the same pool into the same
// project again is a no-op.
func (e *Escrow) SeedFromBonusPool(ctx context.Context, poolID, projectID primitive.ObjectID) (models.EscrowWallet, error) {
	if projectID.IsZero() {
		return models.EscrowWallet{}, fmt.Errorf("%w: project is required", models.ErrValidation)
	}
	pool, err := e.pools.FindByID(ctx, poolID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.EscrowWallet{}, fmt.Errorf("%w: bonus pool %s", models.ErrNotFound, poolID.Hex())
		}
		return models.EscrowWallet{}, err
	}

	if pool.ProjectID == nil {
		ok, err := e.pools.MarkSeeded(ctx, poolID, projectID, e.nowFn())
		if err != nil {
			return models.EscrowWallet{}, err
		}
		if !ok {
			if pool, err = e.pools.FindByID(ctx, poolID); err != nil {
				return models.EscrowWallet{}, err
			}
		} else {
			pool.ProjectID = &projectID
		}
	}
	if pool.ProjectID == nil || *pool.ProjectID != projectID {
		return models.EscrowWallet{}, fmt.Errorf("%w: bonus pool already seeded another project", models.ErrConflict)
	}

	return e.FundBonusPool(ctx, FundRequest{
		ProjectID:    projectID,
		OwnerID:      pool.OwnerID,
		Amount:       pool.TotalAmount,
		Contributors: pool.ContributorsCount,
		IntentID:     pool.FundingIntentID,
	})
}
