package escrow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gigpay-bend/dao"
	"gigpay-bend/dao/memdao"
	"gigpay-bend/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newEscrow(t *testing.T, wallets dao.EscrowStore) (*Escrow, *memdao.Stores) {
	t.Helper()
	stores := memdao.New()
	if wallets == nil {
		wallets = stores.Wallets
	}
	e := InitEscrow(Dependencies{
		Wallets: wallets,
		Pools:   stores.Pools,
		Bids:    stores.Bids,
		Now:     func() time.Time { return fixedNow },
	})
	return e, stores
}

func fundedWallet(t *testing.T, e *Escrow) primitive.ObjectID {
	t.Helper()
	projectID := primitive.NewObjectID()
	_, err := e.FundBonusPool(context.Background(), FundRequest{
		ProjectID:    projectID,
		OwnerID:      primitive.NewObjectID(),
		Amount:       dec("300"),
		Contributors: 3,
		IntentID:     primitive.NewObjectID(),
	})
	require.NoError(t, err)
	return projectID
}

type record struct {
	user, bid primitive.ObjectID
}

func lock(t *testing.T, e *Escrow, projectID primitive.ObjectID, amount string) record {
	t.Helper()
	r := record{user: primitive.NewObjectID(), bid: primitive.NewObjectID()}
	_, err := e.LockFunds(context.Background(), LockRequest{
		ProjectID:  projectID,
		UserID:     r.user,
		BidID:      r.bid,
		BidAmount:  dec(amount),
		BonusShare: dec("100"),
	})
	require.NoError(t, err)
	return r
}

func requireTotalMatches(t *testing.T, w models.EscrowWallet) {
	t.Helper()
	sum := decimal.Zero
	for _, f := range w.LockedFunds {
		if f.LockStatus == models.FundLocked {
			sum = sum.Add(f.TotalAmount)
		}
	}
	require.True(t, sum.Equal(w.TotalEscrowAmount), "total %s, locked sum %s", w.TotalEscrowAmount, sum)
}

func TestLockFunds(t *testing.T) {
	ctx := context.Background()
	e, stores := newEscrow(t, nil)
	projectID := fundedWallet(t, e)

	bid := models.Bid{ID: primitive.NewObjectID(), ProjectID: projectID, BidderID: primitive.NewObjectID()}
	require.NoError(t, stores.Bids.Insert(ctx, bid))

	w, err := e.LockFunds(ctx, LockRequest{
		ProjectID:  projectID,
		UserID:     bid.BidderID,
		BidID:      bid.ID,
		BidAmount:  dec("250.50"),
		BonusShare: dec("100"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.WalletLocked, w.Status)
	assert.True(t, dec("350.50").Equal(w.TotalEscrowAmount))
	require.Len(t, w.LockedFunds, 1)
	assert.Equal(t, models.FundLocked, w.LockedFunds[0].LockStatus)

	stored, err := stores.Bids.FindByID(ctx, bid.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Escrow.LockedAt)

	t.Run("duplicate record", func(t *testing.T) {
		_, err := e.LockFunds(ctx, LockRequest{ProjectID: projectID, UserID: bid.BidderID, BidID: bid.ID, BidAmount: dec("1")})
		require.ErrorIs(t, err, models.ErrConflict)

		w, err := e.Get(ctx, projectID)
		require.NoError(t, err)
		assert.Len(t, w.LockedFunds, 1)
	})

	t.Run("bad amounts", func(t *testing.T) {
		for _, req := range []LockRequest{
			{ProjectID: projectID, UserID: primitive.NewObjectID(), BidID: primitive.NewObjectID(), BidAmount: dec("-1"), BonusShare: dec("5")},
			{ProjectID: projectID, UserID: primitive.NewObjectID(), BidID: primitive.NewObjectID()},
			{ProjectID: projectID, BidID: primitive.NewObjectID(), BidAmount: dec("1")},
		} {
			_, err := e.LockFunds(ctx, req)
			require.ErrorIs(t, err, models.ErrValidation)
		}
	})

	t.Run("missing wallet", func(t *testing.T) {
		_, err := e.LockFunds(ctx, LockRequest{ProjectID: primitive.NewObjectID(), UserID: primitive.NewObjectID(), BidID: primitive.NewObjectID(), BidAmount: dec("1")})
		require.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestTotalTracksLockedRecords(t *testing.T) {
	ctx := context.Background()
	e, _ := newEscrow(t, nil)
	projectID := fundedWallet(t, e)

	a := lock(t, e, projectID, "100")
	b := lock(t, e, projectID, "200")
	c := lock(t, e, projectID, "300")

	w, err := e.ReleaseOne(ctx, projectID, a.user, a.bid)
	require.NoError(t, err)
	requireTotalMatches(t, w)
	assert.True(t, dec("700").Equal(w.TotalEscrowAmount))
	assert.Equal(t, models.WalletLocked, w.Status)

	w, err = e.RefundOne(ctx, projectID, b.user, b.bid)
	require.NoError(t, err)
	requireTotalMatches(t, w)
	assert.True(t, dec("400").Equal(w.TotalEscrowAmount))

	w, err = e.ReleaseOne(ctx, projectID, c.user, c.bid)
	require.NoError(t, err)
	requireTotalMatches(t, w)
	assert.True(t, w.TotalEscrowAmount.IsZero())
	assert.Equal(t, models.WalletReleased, w.Status)
}

func TestRecordLeavesLockedOnce(t *testing.T) {
	ctx := context.Background()
	e, _ := newEscrow(t, nil)
	projectID := fundedWallet(t, e)
	r := lock(t, e, projectID, "100")
	lock(t, e, projectID, "100")

	_, err := e.ReleaseOne(ctx, projectID, r.user, r.bid)
	require.NoError(t, err)

	_, err = e.ReleaseOne(ctx, projectID, r.user, r.bid)
	require.ErrorIs(t, err, models.ErrInvalidState)
	_, err = e.RefundOne(ctx, projectID, r.user, r.bid)
	require.ErrorIs(t, err, models.ErrInvalidState)

	_, err = e.ReleaseOne(ctx, projectID, primitive.NewObjectID(), r.bid)
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestAllRefundedClosesRefunded(t *testing.T) {
	ctx := context.Background()
	e, _ := newEscrow(t, nil)
	projectID := fundedWallet(t, e)
	a := lock(t, e, projectID, "10")
	b := lock(t, e, projectID, "20")
	c := lock(t, e, projectID, "30")

	_, err := e.RefundOne(ctx, projectID, a.user, a.bid)
	require.NoError(t, err)
	w, err := e.RefundOne(ctx, projectID, b.user, b.bid)
	require.NoError(t, err)
	assert.Equal(t, models.WalletLocked, w.Status)
	w, err = e.RefundOne(ctx, projectID, c.user, c.bid)
	require.NoError(t, err)
	assert.Equal(t, models.WalletRefunded, w.Status)

	_, err = e.LockFunds(ctx, LockRequest{ProjectID: projectID, UserID: primitive.NewObjectID(), BidID: primitive.NewObjectID(), BidAmount: dec("1")})
	require.ErrorIs(t, err, models.ErrInvalidState)
	_, err = e.CompleteProject(ctx, projectID, 4, "")
	require.ErrorIs(t, err, models.ErrInvalidState)
}

func TestEarlyReleaseKeepsWalletOpen(t *testing.T) {
	ctx := context.Background()
	e, _ := newEscrow(t, nil)
	projectID := fundedWallet(t, e)

	a := lock(t, e, projectID, "100")
	w, err := e.ReleaseOne(ctx, projectID, a.user, a.bid)
	require.NoError(t, err)
	assert.Equal(t, models.WalletLocked, w.Status)
	assert.True(t, w.TotalEscrowAmount.IsZero())

	// the remaining contributors can still lock after an early payout
	b := lock(t, e, projectID, "200")
	c := lock(t, e, projectID, "300")

	w, err = e.ReleaseOne(ctx, projectID, b.user, b.bid)
	require.NoError(t, err)
	assert.Equal(t, models.WalletLocked, w.Status)

	w, err = e.RefundOne(ctx, projectID, c.user, c.bid)
	require.NoError(t, err)
	requireTotalMatches(t, w)
	assert.Equal(t, models.WalletReleased, w.Status)
}

func TestWalletWithoutContributorCountClosesOnCompletion(t *testing.T) {
	ctx := context.Background()
	stores := memdao.New()
	e := InitEscrow(Dependencies{Wallets: stores.Wallets, Pools: stores.Pools, Bids: stores.Bids})
	projectID := primitive.NewObjectID()
	require.NoError(t, stores.Wallets.Insert(ctx, models.EscrowWallet{
		ID:        primitive.NewObjectID(),
		ProjectID: projectID,
		Status:    models.WalletActive,
		Version:   1,
	}))

	r := lock(t, e, projectID, "50")
	w, err := e.ReleaseOne(ctx, projectID, r.user, r.bid)
	require.NoError(t, err)
	assert.Equal(t, models.WalletLocked, w.Status)

	w, err = e.CompleteProject(ctx, projectID, 4, "")
	require.NoError(t, err)
	assert.Equal(t, models.WalletReleased, w.Status)
}

func TestConcurrentReleaseOfOneRecord(t *testing.T) {
	ctx := context.Background()
	e, _ := newEscrow(t, nil)
	projectID := fundedWallet(t, e)
	r := lock(t, e, projectID, "100")
	lock(t, e, projectID, "100")

	var wg sync.WaitGroup
	var ok, invalid int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ReleaseOne(ctx, projectID, r.user, r.bid)
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case errors.Is(err, models.ErrInvalidState):
				atomic.AddInt32(&invalid, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok)
	assert.Equal(t, int32(1), invalid)
	w, err := e.Get(ctx, projectID)
	require.NoError(t, err)
	requireTotalMatches(t, w)
	assert.True(t, dec("200").Equal(w.TotalEscrowAmount))
}

func TestConcurrentLocksConverge(t *testing.T) {
	ctx := context.Background()
	e, _ := newEscrow(t, nil)
	projectID := fundedWallet(t, e)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.LockFunds(ctx, LockRequest{
				ProjectID: projectID,
				UserID:    primitive.NewObjectID(),
				BidID:     primitive.NewObjectID(),
				BidAmount: dec("25"),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	w, err := e.Get(ctx, projectID)
	require.NoError(t, err)
	assert.Len(t, w.LockedFunds, 8)
	assert.True(t, dec("200").Equal(w.TotalEscrowAmount))
}

// flakyWallets fails Replace once the budget of successful writes is spent.
type flakyWallets struct {
	*memdao.EscrowStore
	budget int32
}

var errCrash = errors.New("process crashed")

func (f *flakyWallets) Replace(ctx context.Context, w models.EscrowWallet, expected int64) error {
	if atomic.AddInt32(&f.budget, -1) < 0 {
		return errCrash
	}
	return f.EscrowStore.Replace(ctx, w, expected)
}

func TestCompleteProjectIsResumable(t *testing.T) {
	ctx := context.Background()
	wallets := &flakyWallets{EscrowStore: memdao.NewEscrowStore(), budget: 1 << 20}
	e, _ := newEscrow(t, wallets)
	projectID := fundedWallet(t, e)

	a := lock(t, e, projectID, "100")
	lock(t, e, projectID, "200")
	lock(t, e, projectID, "300")
	_, err := e.RefundOne(ctx, projectID, a.user, a.bid)
	require.NoError(t, err)

	// one record is released, then the process dies
	atomic.StoreInt32(&wallets.budget, 1)
	_, err = e.CompleteProject(ctx, projectID, 5, "great work")
	require.ErrorIs(t, err, errCrash)

	w, err := e.Get(ctx, projectID)
	require.NoError(t, err)
	requireTotalMatches(t, w)
	assert.False(t, w.ProjectCompletion.IsCompleted)
	assert.True(t, dec("300").Equal(w.TotalEscrowAmount))

	atomic.StoreInt32(&wallets.budget, 1<<20)
	w, err = e.CompleteProject(ctx, projectID, 5, "great work")
	require.NoError(t, err)
	assert.Equal(t, models.WalletReleased, w.Status)
	assert.True(t, w.TotalEscrowAmount.IsZero())
	require.True(t, w.ProjectCompletion.IsCompleted)
	assert.Equal(t, 5, w.ProjectCompletion.QualityScore)
	assert.Equal(t, "great work", w.ProjectCompletion.Notes)

	statuses := map[models.LockStatus]int{}
	for _, f := range w.LockedFunds {
		statuses[f.LockStatus]++
	}
	assert.Equal(t, map[models.LockStatus]int{models.FundRefunded: 1, models.FundReleased: 2}, statuses)

	again, err := e.CompleteProject(ctx, projectID, 1, "ignored")
	require.NoError(t, err)
	assert.Equal(t, w.Version, again.Version)
	assert.Equal(t, 5, again.ProjectCompletion.QualityScore)
}

func TestCompleteProjectAfterManualReleases(t *testing.T) {
	ctx := context.Background()
	e, _ := newEscrow(t, nil)
	projectID := fundedWallet(t, e)
	r := lock(t, e, projectID, "100")

	w, err := e.ReleaseOne(ctx, projectID, r.user, r.bid)
	require.NoError(t, err)
	require.Equal(t, models.WalletLocked, w.Status)

	w, err = e.CompleteProject(ctx, projectID, 3, "")
	require.NoError(t, err)
	assert.True(t, w.ProjectCompletion.IsCompleted)
	assert.Equal(t, models.WalletReleased, w.Status)

	_, err = e.CompleteProject(ctx, projectID, 9, "")
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestFundBonusPool(t *testing.T) {
	ctx := context.Background()
	e, _ := newEscrow(t, nil)
	projectID := primitive.NewObjectID()
	req := FundRequest{
		ProjectID:    projectID,
		OwnerID:      primitive.NewObjectID(),
		Amount:       dec("100"),
		Contributors: 3,
		IntentID:     primitive.NewObjectID(),
	}

	w, err := e.FundBonusPool(ctx, req)
	require.NoError(t, err)
	assert.True(t, w.Funded)
	assert.Equal(t, models.WalletActive, w.Status)
	assert.True(t, dec("100").Equal(w.TotalBonusPool))
	assert.True(t, dec("33").Equal(w.AmountPerContributor))

	t.Run("same intent credits once", func(t *testing.T) {
		w, err := e.FundBonusPool(ctx, req)
		require.NoError(t, err)
		assert.True(t, dec("100").Equal(w.TotalBonusPool))
		assert.Len(t, w.FundingIntentIDs, 1)
	})

	t.Run("another intent adds up", func(t *testing.T) {
		next := req
		next.IntentID = primitive.NewObjectID()
		next.Amount = dec("50")
		w, err := e.FundBonusPool(ctx, next)
		require.NoError(t, err)
		assert.True(t, dec("150").Equal(w.TotalBonusPool))
		assert.True(t, dec("50").Equal(w.AmountPerContributor))
	})

	t.Run("fewer contributors than locked records", func(t *testing.T) {
		lock(t, e, projectID, "10")
		lock(t, e, projectID, "20")

		next := req
		next.IntentID = primitive.NewObjectID()
		next.Contributors = 1
		_, err := e.FundBonusPool(ctx, next)
		require.ErrorIs(t, err, models.ErrConflict)

		w, err := e.Get(ctx, projectID)
		require.NoError(t, err)
		assert.False(t, w.FundedBy(next.IntentID))
		assert.Equal(t, 3, w.ContributorsCount)
	})

	t.Run("invalid", func(t *testing.T) {
		bad := req
		bad.Contributors = 0
		_, err := e.FundBonusPool(ctx, bad)
		require.ErrorIs(t, err, models.ErrValidation)
	})
}

func TestStageAndSeedBonusPool(t *testing.T) {
	ctx := context.Background()
	e, _ := newEscrow(t, nil)
	intentID := primitive.NewObjectID()
	req := StageRequest{
		OwnerID:      primitive.NewObjectID(),
		ProjectTitle: "Logo redesign",
		Amount:       dec("600"),
		Contributors: 3,
		IntentID:     intentID,
	}

	pool, err := e.StageBonusPool(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.BonusPoolFunded, pool.Status)
	assert.True(t, pool.IsNewProject)
	assert.True(t, dec("200").Equal(pool.AmountPerContributor))
	assert.Nil(t, pool.ProjectID)

	again, err := e.StageBonusPool(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, pool.ID, again.ID)

	projectID := primitive.NewObjectID()
	_, err = e.Get(ctx, projectID)
	require.ErrorIs(t, err, models.ErrNotFound)

	w, err := e.SeedFromBonusPool(ctx, pool.ID, projectID)
	require.NoError(t, err)
	assert.True(t, dec("600").Equal(w.TotalBonusPool))
	assert.True(t, dec("200").Equal(w.AmountPerContributor))
	assert.True(t, w.FundedBy(intentID))

	w, err = e.SeedFromBonusPool(ctx, pool.ID, projectID)
	require.NoError(t, err)
	assert.True(t, dec("600").Equal(w.TotalBonusPool))

	_, err = e.SeedFromBonusPool(ctx, pool.ID, primitive.NewObjectID())
	require.ErrorIs(t, err, models.ErrConflict)
	_, err = e.SeedFromBonusPool(ctx, primitive.NewObjectID(), projectID)
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	e, _ := newEscrow(t, nil)

	empty := fundedWallet(t, e)
	w, err := e.Cancel(ctx, empty)
	require.NoError(t, err)
	assert.Equal(t, models.WalletCancelled, w.Status)

	_, err = e.Cancel(ctx, empty)
	require.NoError(t, err)
	_, err = e.LockFunds(ctx, LockRequest{ProjectID: empty, UserID: primitive.NewObjectID(), BidID: primitive.NewObjectID(), BidAmount: dec("1")})
	require.ErrorIs(t, err, models.ErrInvalidState)

	used := fundedWallet(t, e)
	r := lock(t, e, used, "10")
	_, err = e.Cancel(ctx, used)
	require.ErrorIs(t, err, models.ErrInvalidState)

	// still not cancellable once every record is refunded
	_, err = e.RefundOne(ctx, used, r.user, r.bid)
	require.NoError(t, err)
	_, err = e.Cancel(ctx, used)
	require.ErrorIs(t, err, models.ErrInvalidState)
}
