// Package escrow manages per-project escrow wallets: each contributor's
// locked funds plus the owner-funded bonus pool.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gigpay-bend/dao"
	"gigpay-bend/models"
	"gigpay-bend/utils/keylock"
	"gigpay-bend/utils/notifications"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// errUnchanged short-circuits an update that has nothing to write
var errUnchanged = errors.New("wallet unchanged")

// Dependencies of the escrow service
type Dependencies struct {
	Wallets  dao.EscrowStore
	Pools    dao.BonusPoolStore
	Bids     dao.BidStore
	Locks    *keylock.Locker
	Notifier notifications.Notifiable
	Logger   *zap.Logger
	Now      func() time.Time
}

// Escrow represents the escrow service
type Escrow struct {
	wallets  dao.EscrowStore
	pools    dao.BonusPoolStore
	bids     dao.BidStore
	locks    *keylock.Locker
	notifier notifications.Notifiable
	logger   *zap.Logger
	nowFn    func() time.Time
}

// InitEscrow ...
func InitEscrow(deps Dependencies) *Escrow {
	e := &Escrow{
		wallets:  deps.Wallets,
		pools:    deps.Pools,
		bids:     deps.Bids,
		locks:    deps.Locks,
		notifier: deps.Notifier,
		logger:   deps.Logger,
		nowFn:    deps.Now,
	}
	if e.locks == nil {
		e.locks = keylock.New()
	}
	if e.notifier == nil {
		e.notifier = notifications.Nop{}
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.nowFn == nil {
		e.nowFn = func() time.Time { return time.Now().UTC() }
	}
	return e
}

// Get returns a project's wallet
func (e *Escrow) Get(ctx context.Context, projectID primitive.ObjectID) (models.EscrowWallet, error) {
	w, err := e.wallets.FindByProject(ctx, projectID)
	if errors.Is(err, models.ErrNotFound) {
		return w, fmt.Errorf("%w: no escrow wallet for project %s", models.ErrNotFound, projectID.Hex())
	}
	return w, err
}

// update loads the project's wallet, applies fn and stores the result with
// a version check, retrying from a fresh read when another writer won.
func (e *Escrow) update(ctx context.Context, projectID primitive.ObjectID, fn func(w *models.EscrowWallet) error) (models.EscrowWallet, error) {
	var out models.EscrowWallet

	op := func() error {
		w, err := e.Get(ctx, projectID)
		if err != nil {
			return backoff.Permanent(err)
		}

		expected := w.Version
		err = fn(&w)
		if errors.Is(err, errUnchanged) {
			out = w
			return nil
		}
		if err != nil {
			return backoff.Permanent(err)
		}

		w.TotalEscrowAmount = w.LockedTotal()
		w.Version = expected + 1
		w.UpdatedAt = e.nowFn()
		switch err := e.wallets.Replace(ctx, w, expected); {
		case errors.Is(err, dao.ErrStaleVersion):
			return err
		case err != nil:
			return backoff.Permanent(err)
		}
		out = w
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	b.MaxElapsedTime = 5 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return models.EscrowWallet{}, err
	}
	return out, nil
}

// settleStatus closes the wallet once every expected contributor has a
// record and none of them is still locked. Wallets that do not know how many
// contributors to expect stay open until CompleteProject.
func settleStatus(w *models.EscrowWallet) {
	if w.ContributorsCount <= 0 || len(w.LockedFunds) < w.ContributorsCount {
		return
	}
	refunded := 0
	for _, f := range w.LockedFunds {
		switch f.LockStatus {
		case models.FundLocked:
			return
		case models.FundRefunded:
			refunded++
		}
	}
	if refunded == len(w.LockedFunds) {
		w.Status = models.WalletRefunded
		return
	}
	w.Status = models.WalletReleased
}

func recordKey(projectID, userID, bidID primitive.ObjectID) string {
	return projectID.Hex() + ":" + userID.Hex() + ":" + bidID.Hex()
}

func closedErr(w *models.EscrowWallet) error {
	return fmt.Errorf("%w: escrow wallet for project %s is %s", models.ErrInvalidState, w.ProjectID.Hex(), w.Status)
}

func floorShare(total decimal.Decimal, contributors int) decimal.Decimal {
	if contributors <= 0 {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(contributors))).Floor()
}
