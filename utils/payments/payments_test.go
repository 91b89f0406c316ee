package payments

import (
	"context"
	"testing"
	"time"

	"gigpay-bend/dao/memdao"
	"gigpay-bend/models"
	"gigpay-bend/utils/fees"
	"gigpay-bend/utils/gateway"
	"gigpay-bend/utils/ledger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func setup(t *testing.T) (*Payments, *memdao.Stores, *gateway.Fake, *ledger.Ledger) {
	t.Helper()
	stores := memdao.New()
	fake := gateway.NewFake("whsec")
	l := ledger.New(stores.Intents)
	p := New(Dependencies{
		Ledger:   l,
		Gateway:  fake,
		Resolver: fees.NewResolver(stores.Users, fees.DefaultPricing()),
		Bids:     stores.Bids,
		Users:    stores.Users,
	})
	return p, stores, fake, l
}

func newUser(stores *memdao.Stores, remaining int) models.User {
	u := models.User{ID: primitive.NewObjectID(), Email: "dev@example.com", FreeBids: &models.FreeBidQuota{Remaining: remaining}}
	stores.Users.Put(u)
	return u
}

func bidReq(project primitive.ObjectID) models.PlaceBidReq {
	return models.PlaceBidReq{
		ProjectID:    project.Hex(),
		BidAmount:    decimal.NewFromInt(300),
		Proposal:     "Landing page in React",
		DeliveryDays: 5,
	}
}

func TestPlaceFreeBid(t *testing.T) {
	ctx := context.Background()
	p, stores, _, _ := setup(t)
	user := models.User{ID: primitive.NewObjectID()}
	stores.Users.Put(user)
	project := primitive.NewObjectID()

	out, err := p.PlaceBid(ctx, user.ID, bidReq(project))
	require.NoError(t, err)
	assert.True(t, out.FeeAmount.IsZero())
	assert.Empty(t, out.OrderID)
	require.NotNil(t, out.Bid)
	assert.True(t, out.Bid.IsFreeBid)
	assert.Equal(t, models.BidPaymentPaid, out.Bid.PaymentStatus)

	stored, err := stores.Users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.FreeBids)
	assert.Equal(t, 2, stored.FreeBids.Remaining)

	_, err = p.PlaceBid(ctx, user.ID, bidReq(project))
	require.ErrorIs(t, err, models.ErrConflict)
	stored, err = stores.Users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.FreeBids.Remaining)
}

func TestPlacePaidBid(t *testing.T) {
	ctx := context.Background()
	p, stores, _, l := setup(t)
	user := newUser(stores, 0)
	project := primitive.NewObjectID()

	out, err := p.PlaceBid(ctx, user.ID, bidReq(project))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(9).Equal(out.FeeAmount))
	assert.NotEmpty(t, out.OrderID)
	assert.NotEmpty(t, out.ApproveURL)
	assert.Nil(t, out.Bid)

	_, err = stores.Bids.FindByProjectBidder(ctx, project, user.ID)
	require.ErrorIs(t, err, models.ErrNotFound)

	id, err := primitive.ObjectIDFromHex(out.IntentID)
	require.NoError(t, err)
	intent, err := l.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.IntentCreated, intent.Status)
	assert.Equal(t, out.OrderID, intent.ExternalOrderID)
	require.NotNil(t, intent.Notes.BidFee)
	assert.Equal(t, string(fees.TierFull), intent.Notes.BidFee.FeeTier)

	t.Run("retry reuses the open intent", func(t *testing.T) {
		again, err := p.PlaceBid(ctx, user.ID, bidReq(project))
		require.NoError(t, err)
		assert.Equal(t, out.IntentID, again.IntentID)
		assert.Equal(t, out.OrderID, again.OrderID)
	})

	t.Run("a changed bid opens a new intent", func(t *testing.T) {
		req := bidReq(project)
		req.BidAmount = decimal.NewFromInt(280)
		again, err := p.PlaceBid(ctx, user.ID, req)
		require.NoError(t, err)
		assert.NotEqual(t, out.IntentID, again.IntentID)
		assert.NotEqual(t, out.OrderID, again.OrderID)

		old, err := l.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.IntentFailed, old.Status)
		assert.Equal(t, supersededReason, old.FailureReason)

		open, ok, err := l.FindOpen(ctx, models.PurposeBidFee, user.ID, &project)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, again.IntentID, open.ID.Hex())
	})
}

func TestPlaceBidRejectsPaidFee(t *testing.T) {
	ctx := context.Background()
	p, stores, fake, l := setup(t)
	user := newUser(stores, 0)
	project := primitive.NewObjectID()

	out, err := p.PlaceBid(ctx, user.ID, bidReq(project))
	require.NoError(t, err)
	id, _ := primitive.ObjectIDFromHex(out.IntentID)
	capture, err := fake.CompleteOrder(out.OrderID)
	require.NoError(t, err)
	_, _, err = l.MarkPaid(ctx, id, capture)
	require.NoError(t, err)

	_, err = p.PlaceBid(ctx, user.ID, bidReq(project))
	require.ErrorIs(t, err, models.ErrConflict)
}

func TestSubscriberBidFee(t *testing.T) {
	ctx := context.Background()
	p, stores, _, _ := setup(t)
	user := newUser(stores, 3)
	user.Subscription = &models.SubscriptionProfile{PlanName: "pro-monthly", IsActive: true, ExpiresAt: time.Now().Add(72 * time.Hour)}
	stores.Users.Put(user)

	out, err := p.PlaceBid(ctx, user.ID, bidReq(primitive.NewObjectID()))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3).Equal(out.FeeAmount))
}

func TestGatewayTimeoutLeavesIntentCreated(t *testing.T) {
	ctx := context.Background()
	p, stores, fake, l := setup(t)
	user := newUser(stores, 0)
	project := primitive.NewObjectID()

	fake.FailNext(models.ErrGatewayTimeout)
	_, err := p.PayListingFee(ctx, user.ID, models.ListingFeeReq{ProjectID: project.Hex()})
	require.ErrorIs(t, err, models.ErrGatewayTimeout)

	open, ok, err := l.FindOpen(ctx, models.PurposeListing, user.ID, &project)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, open.HasOrder())

	out, err := p.PayListingFee(ctx, user.ID, models.ListingFeeReq{ProjectID: project.Hex()})
	require.NoError(t, err)
	assert.Equal(t, open.ID.Hex(), out.IntentID)
	assert.True(t, decimal.NewFromInt(5).Equal(out.FeeAmount))
}

func TestActionValidation(t *testing.T) {
	ctx := context.Background()
	p, stores, _, _ := setup(t)
	user := newUser(stores, 0)

	_, err := p.PlaceBid(ctx, user.ID, models.PlaceBidReq{ProjectID: "nope"})
	require.ErrorIs(t, err, models.ErrValidation)
	req := bidReq(primitive.NewObjectID())
	req.DeliveryDays = 0
	_, err = p.PlaceBid(ctx, user.ID, req)
	require.ErrorIs(t, err, models.ErrValidation)

	_, err = p.Subscribe(ctx, user.ID, models.SubscribeReq{PlanName: "gold"})
	require.ErrorIs(t, err, models.ErrValidation)
	_, err = p.FundBonusPool(ctx, user.ID, models.BonusFundingReq{Amount: decimal.NewFromInt(50)})
	require.ErrorIs(t, err, models.ErrValidation)
	_, err = p.RequestWithdrawal(ctx, user.ID, models.WithdrawalReq{Amount: decimal.NewFromInt(50)})
	require.ErrorIs(t, err, models.ErrValidation)

	_, err = p.Subscribe(ctx, primitive.NewObjectID(), models.SubscribeReq{PlanName: "pro-monthly"})
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestOtherCheckouts(t *testing.T) {
	ctx := context.Background()
	p, stores, _, l := setup(t)
	user := newUser(stores, 0)

	out, err := p.FundBonusPool(ctx, user.ID, models.BonusFundingReq{Amount: decimal.NewFromInt(600), ContributorsCount: 3, ProjectTitle: "Brand kit"})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(600).Equal(out.FeeAmount))
	id, _ := primitive.ObjectIDFromHex(out.IntentID)
	intent, err := l.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, intent.ProjectID)
	assert.True(t, decimal.NewFromInt(600).Equal(intent.Notes.BonusFunding.PoolAmount))

	out, err = p.Subscribe(ctx, user.ID, models.SubscribeReq{PlanName: "pro-yearly"})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(190).Equal(out.FeeAmount))

	out, err = p.RequestWithdrawal(ctx, user.ID, models.WithdrawalReq{Amount: decimal.NewFromInt(500), Destination: "paypal:dev@example.com"})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(5).Equal(out.FeeAmount))

	q, err := p.Quote(ctx, user.ID, models.FeeQuoteReq{Action: "withdrawal", Amount: decimal.NewFromInt(20)})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1).Equal(q.FeeAmount))
	_, err = p.Quote(ctx, user.ID, models.FeeQuoteReq{Action: "tip"})
	require.ErrorIs(t, err, models.ErrValidation)
}
