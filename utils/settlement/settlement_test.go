package settlement

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"gigpay-bend/dao/memdao"
	"gigpay-bend/models"
	"gigpay-bend/utils/escrow"
	"gigpay-bend/utils/fees"
	"gigpay-bend/utils/gateway"
	"gigpay-bend/utils/ledger"
	"gigpay-bend/utils/notifications"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type harness struct {
	t      *testing.T
	stores *memdao.Stores
	ledger *ledger.Ledger
	fake   *gateway.Fake
	escrow *escrow.Escrow
	notes  *recorder
	d      *Dispatcher
	now    time.Time
}

// recorder keeps the generic notices sent to users
type recorder struct {
	notifications.Nop
	mu   sync.Mutex
	sent map[string][]string
}

func (r *recorder) SendGenericNotification(_ context.Context, userID, subject string, _ notifications.GenericEmailData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[userID] = append(r.sent[userID], subject)
}

func (r *recorder) subjects(userID primitive.ObjectID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[userID.Hex()]
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		stores: memdao.New(),
		fake:   gateway.NewFake("whsec"),
		notes:  &recorder{sent: make(map[string][]string)},
		now:    time.Now().UTC(),
	}
	h.ledger = ledger.New(h.stores.Intents)
	h.escrow = escrow.InitEscrow(escrow.Dependencies{
		Wallets: h.stores.Wallets,
		Pools:   h.stores.Pools,
		Bids:    h.stores.Bids,
	})
	h.d = NewDispatcher(Dependencies{
		Ledger:   h.ledger,
		Gateway:  h.fake,
		Escrow:   h.escrow,
		Bids:     h.stores.Bids,
		Users:    h.stores.Users,
		Projects: h.stores.Projects,
		Events:   h.stores.Events,
		Pricing:  fees.DefaultPricing(),
		Notifier: h.notes,
		Now:      func() time.Time { return h.now },
	})
	return h
}

// checkout creates an intent with an attached gateway order.
func (h *harness) checkout(in ledger.NewIntent) (models.PaymentIntent, string) {
	h.t.Helper()
	ctx := context.Background()
	if in.Currency == "" {
		in.Currency = "USD"
	}
	if in.OwnerID.IsZero() {
		in.OwnerID = primitive.NewObjectID()
	}
	intent, err := h.ledger.CreateIntent(ctx, in)
	require.NoError(h.t, err)
	order, err := h.fake.CreateOrder(ctx, intent.Amount, intent.Currency, gateway.Metadata{IntentID: intent.ID.Hex()})
	require.NoError(h.t, err)
	require.NoError(h.t, h.ledger.AttachOrder(ctx, intent.ID, order.OrderID))
	return intent, order.OrderID
}

func (h *harness) pay(orderID string) string {
	h.t.Helper()
	captureID, err := h.fake.CompleteOrder(orderID)
	require.NoError(h.t, err)
	return captureID
}

func (h *harness) intent(id primitive.ObjectID) models.PaymentIntent {
	h.t.Helper()
	intent, err := h.ledger.Get(context.Background(), id)
	require.NoError(h.t, err)
	return intent
}

func (h *harness) webhook(eventType, orderID, captureID string) ([]byte, http.Header) {
	h.t.Helper()
	ev := map[string]interface{}{
		"id":         "WH-" + primitive.NewObjectID().Hex(),
		"event_type": eventType,
		"resource": map[string]interface{}{
			"id":     captureID,
			"status": "COMPLETED",
			"supplementary_data": map[string]interface{}{
				"related_ids": map[string]string{"order_id": orderID},
			},
		},
	}
	payload, err := json.Marshal(ev)
	require.NoError(h.t, err)
	header := http.Header{}
	header.Set(gateway.SignatureHeader, h.fake.Sign(payload))
	return payload, header
}

func bidIntent(project primitive.ObjectID, bidder primitive.ObjectID) ledger.NewIntent {
	return ledger.NewIntent{
		Purpose:   models.PurposeBidFee,
		Amount:    decimal.NewFromInt(9),
		OwnerID:   bidder,
		ProjectID: &project,
		Notes: models.IntentNotes{BidFee: &models.BidFeeNotes{
			BidAmount:    decimal.NewFromInt(450),
			Proposal:     "I can ship this in a week",
			DeliveryDays: 7,
			FeeTier:      string(fees.TierFull),
		}},
	}
}

func TestConfirmPaymentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	project, bidder := primitive.NewObjectID(), primitive.NewObjectID()
	intent, orderID := h.checkout(bidIntent(project, bidder))
	captureID := h.pay(orderID)

	first, err := h.d.ConfirmPayment(ctx, orderID, captureID)
	require.NoError(t, err)
	assert.True(t, first.Applied)
	assert.False(t, first.Replay)
	require.NotEmpty(t, first.EffectRef)

	paid := h.intent(intent.ID)
	second, err := h.d.ConfirmPayment(ctx, orderID, captureID)
	require.NoError(t, err)
	assert.True(t, second.Replay)
	assert.Equal(t, first.EffectRef, second.EffectRef)

	again := h.intent(intent.ID)
	assert.Equal(t, models.IntentPaid, again.Status)
	assert.Equal(t, paid.Notes, again.Notes)
	assert.Equal(t, 1, again.Settlement.Attempts)

	bid, err := h.stores.Bids.FindByProjectBidder(ctx, project, bidder)
	require.NoError(t, err)
	assert.Equal(t, first.EffectRef, bid.ID.Hex())
	assert.Equal(t, models.BidPaymentPaid, bid.PaymentStatus)
	assert.Equal(t, models.BidPending, bid.BidStatus)
	assert.True(t, decimal.NewFromInt(459).Equal(bid.TotalAmount))

	_, err = h.d.ConfirmPayment(ctx, "FAKE-ORDER-404", "")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestBidFeeYieldsOneBidAcrossPaths(t *testing.T) {
	orders := map[string][]string{
		"webhook then poll": {"webhook", "poll"},
		"poll then webhook": {"poll", "webhook"},
		"webhook twice":     {"webhook", "webhook"},
	}
	for name, steps := range orders {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t)
			project, bidder := primitive.NewObjectID(), primitive.NewObjectID()
			_, orderID := h.checkout(bidIntent(project, bidder))
			captureID := h.pay(orderID)

			var refs []string
			for _, step := range steps {
				var (
					res Result
					err error
				)
				if step == "poll" {
					res, err = h.d.VerifyOrder(ctx, orderID)
				} else {
					payload, header := h.webhook(EventCaptureCompleted, orderID, captureID)
					var wr WebhookResult
					wr, err = h.d.HandleWebhook(ctx, payload, header)
					require.NotNil(t, wr.Result)
					res = *wr.Result
				}
				require.NoError(t, err)
				assert.True(t, res.Applied)
				refs = append(refs, res.EffectRef)
			}
			assert.Equal(t, refs[0], refs[1])

			bid, err := h.stores.Bids.FindByProjectBidder(ctx, project, bidder)
			require.NoError(t, err)
			assert.Equal(t, refs[0], bid.ID.Hex())
		})
	}
}

func TestConcurrentConfirmationsApplyOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	project, bidder := primitive.NewObjectID(), primitive.NewObjectID()
	intent, orderID := h.checkout(bidIntent(project, bidder))
	captureID := h.pay(orderID)

	var wg sync.WaitGroup
	refs := make([]string, 6)
	for i := range refs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := h.d.ConfirmPayment(ctx, orderID, captureID)
			assert.NoError(t, err)
			refs[i] = res.EffectRef
		}(i)
	}
	wg.Wait()

	for _, ref := range refs {
		assert.Equal(t, refs[0], ref)
	}
	assert.Equal(t, 1, h.intent(intent.ID).Settlement.Attempts)
}

func TestVerifyOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("not yet paid", func(t *testing.T) {
		h := newHarness(t)
		intent, orderID := h.checkout(bidIntent(primitive.NewObjectID(), primitive.NewObjectID()))
		_, err := h.d.VerifyOrder(ctx, orderID)
		require.ErrorIs(t, err, models.ErrNotVerified)
		require.ErrorIs(t, err, models.ErrGateway)
		assert.Equal(t, models.IntentCreated, h.intent(intent.ID).Status)
	})

	t.Run("gateway timeout leaves intent created", func(t *testing.T) {
		h := newHarness(t)
		intent, orderID := h.checkout(bidIntent(primitive.NewObjectID(), primitive.NewObjectID()))
		h.pay(orderID)
		h.fake.FailNext(models.ErrGatewayTimeout)

		_, err := h.d.VerifyOrder(ctx, orderID)
		require.ErrorIs(t, err, models.ErrGatewayTimeout)
		assert.Equal(t, models.IntentCreated, h.intent(intent.ID).Status)

		res, err := h.d.VerifyOrder(ctx, orderID)
		require.NoError(t, err)
		assert.True(t, res.Applied)
	})

	t.Run("approved order is captured", func(t *testing.T) {
		h := newHarness(t)
		intent, orderID := h.checkout(bidIntent(primitive.NewObjectID(), primitive.NewObjectID()))
		require.NoError(t, h.fake.ApproveOrder(orderID))

		res, err := h.d.VerifyOrder(ctx, orderID)
		require.NoError(t, err)
		assert.True(t, res.Applied)
		got := h.intent(intent.ID)
		assert.Equal(t, models.IntentPaid, got.Status)
		assert.NotEmpty(t, got.ExternalPaymentID)
	})

	t.Run("failed capture leaves intent created", func(t *testing.T) {
		h := newHarness(t)
		intent, orderID := h.checkout(bidIntent(primitive.NewObjectID(), primitive.NewObjectID()))
		require.NoError(t, h.fake.ApproveOrder(orderID))
		h.fake.FailNext(nil)
		h.fake.FailNext(models.ErrGatewayTimeout)

		_, err := h.d.VerifyOrder(ctx, orderID)
		require.ErrorIs(t, err, models.ErrGatewayTimeout)
		assert.Equal(t, models.IntentCreated, h.intent(intent.ID).Status)
	})

	t.Run("amount mismatch", func(t *testing.T) {
		h := newHarness(t)
		intent, orderID := h.checkout(bidIntent(primitive.NewObjectID(), primitive.NewObjectID()))
		h.pay(orderID)
		h.fake.SetAmount(orderID, decimal.NewFromInt(1))

		_, err := h.d.VerifyOrder(ctx, orderID)
		require.ErrorIs(t, err, models.ErrSecurity)
		got := h.intent(intent.ID)
		assert.Equal(t, models.IntentCreated, got.Status)
		assert.Len(t, got.Notes.Reconciliation, 1)
	})
}

func TestWebhookSecurity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	intent, orderID := h.checkout(bidIntent(primitive.NewObjectID(), primitive.NewObjectID()))
	captureID := h.pay(orderID)

	payload, _ := h.webhook(EventCaptureCompleted, orderID, captureID)
	bad := http.Header{}
	bad.Set(gateway.SignatureHeader, "00ff")

	_, err := h.d.HandleWebhook(ctx, payload, bad)
	require.ErrorIs(t, err, models.ErrSecurity)
	assert.Equal(t, models.IntentCreated, h.intent(intent.ID).Status)
	assert.Equal(t, 0, h.stores.Events.Events())
}

func TestWebhookEvents(t *testing.T) {
	ctx := context.Background()

	t.Run("order completed", func(t *testing.T) {
		h := newHarness(t)
		intent, orderID := h.checkout(bidIntent(primitive.NewObjectID(), primitive.NewObjectID()))
		captureID := h.pay(orderID)

		payload, err := json.Marshal(map[string]interface{}{
			"id":         "WH-ORDER-1",
			"event_type": EventOrderCompleted,
			"resource": map[string]interface{}{
				"id":     orderID,
				"status": "COMPLETED",
				"purchase_units": []interface{}{map[string]interface{}{
					"payments": map[string]interface{}{
						"captures": []interface{}{map[string]string{"id": captureID}},
					},
				}},
			},
		})
		require.NoError(t, err)
		header := http.Header{}
		header.Set(gateway.SignatureHeader, h.fake.Sign(payload))

		res, err := h.d.HandleWebhook(ctx, payload, header)
		require.NoError(t, err)
		assert.True(t, res.Handled)
		assert.Equal(t, captureID, h.intent(intent.ID).ExternalPaymentID)

		res, err = h.d.HandleWebhook(ctx, payload, header)
		require.NoError(t, err)
		assert.True(t, res.Duplicate)
		assert.True(t, res.Result.Replay)
	})

	t.Run("capture denied", func(t *testing.T) {
		h := newHarness(t)
		intent, orderID := h.checkout(bidIntent(primitive.NewObjectID(), primitive.NewObjectID()))
		payload, header := h.webhook(EventCaptureDenied, orderID, "CAPTURE-X")

		res, err := h.d.HandleWebhook(ctx, payload, header)
		require.NoError(t, err)
		assert.True(t, res.Handled)
		assert.Equal(t, models.IntentFailed, h.intent(intent.ID).Status)

		h.pay(orderID)
		_, err = h.d.VerifyOrder(ctx, orderID)
		require.ErrorIs(t, err, models.ErrInvalidState)
	})

	t.Run("unknown order and other events", func(t *testing.T) {
		h := newHarness(t)
		payload, header := h.webhook(EventCaptureCompleted, "ORDER-NOT-OURS", "CAPTURE-X")
		res, err := h.d.HandleWebhook(ctx, payload, header)
		require.NoError(t, err)
		assert.False(t, res.Handled)

		payload, header = h.webhook("CUSTOMER.DISPUTE.CREATED", "", "")
		res, err = h.d.HandleWebhook(ctx, payload, header)
		require.NoError(t, err)
		assert.False(t, res.Handled)
	})
}

func TestEffectFailureKeepsIntentPaid(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	project := primitive.NewObjectID()
	intent, orderID := h.checkout(ledger.NewIntent{
		Purpose:   models.PurposeListing,
		Amount:    decimal.NewFromInt(5),
		ProjectID: &project,
		Notes:     models.IntentNotes{Listing: &models.ListingNotes{ProjectTitle: "Mobile app"}},
	})
	captureID := h.pay(orderID)

	// the project is not known yet, so the listing flag cannot be set
	res, err := h.d.ConfirmPayment(ctx, orderID, captureID)
	require.NoError(t, err)
	assert.False(t, res.Applied)

	got := h.intent(intent.ID)
	assert.Equal(t, models.IntentPaid, got.Status)
	require.NotNil(t, got.Settlement)
	assert.False(t, got.Settlement.Applied)
	assert.NotEmpty(t, got.Settlement.LastError)
	require.Len(t, got.Notes.Reconciliation, 1)
	assert.Equal(t, "settlement", got.Notes.Reconciliation[0].Source)

	h.stores.Projects.Add(project)
	res, err = h.d.RetryEffect(ctx, intent.ID.Hex())
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, 2, h.intent(intent.ID).Settlement.Attempts)

	flag, ok := h.stores.Projects.Listing(project)
	require.True(t, ok)
	assert.True(t, flag.Paid)
	assert.Equal(t, intent.ID, flag.IntentID)

	res, err = h.d.ConfirmPayment(ctx, orderID, captureID)
	require.NoError(t, err)
	assert.True(t, res.Replay)
	assert.True(t, res.Applied)
}

func TestSubscriptionExtendsActivePlan(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.now = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	user := models.User{
		ID: primitive.NewObjectID(),
		Subscription: &models.SubscriptionProfile{
			PlanName:     "pro-monthly",
			IsActive:     true,
			StartedAt:    h.now.Add(-20 * day),
			ExpiresAt:    h.now.Add(10 * day),
			LastIntentID: primitive.NewObjectID(),
		},
	}
	h.stores.Users.Put(user)

	intent, orderID := h.checkout(ledger.NewIntent{
		Purpose: models.PurposeSubscription,
		Amount:  decimal.NewFromInt(19),
		OwnerID: user.ID,
		Notes:   models.IntentNotes{Subscription: &models.SubscriptionNotes{PlanName: "pro-monthly"}},
	})
	captureID := h.pay(orderID)

	res, err := h.d.ConfirmPayment(ctx, orderID, captureID)
	require.NoError(t, err)
	require.True(t, res.Applied)

	stored, err := h.stores.Users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, h.now.Add(40*day), stored.Subscription.ExpiresAt)
	assert.Equal(t, intent.ID, stored.Subscription.LastIntentID)

	// re-applying the same intent does not extend again
	_, err = h.d.RetryEffect(ctx, intent.ID.Hex())
	require.NoError(t, err)
	h.d.apply(ctx, h.intent(intent.ID))
	stored, err = h.stores.Users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, h.now.Add(40*day), stored.Subscription.ExpiresAt)
}

func TestSubscriptionStartsWhenExpired(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	user := models.User{ID: primitive.NewObjectID(), Subscription: &models.SubscriptionProfile{
		PlanName: "pro-monthly", IsActive: true, ExpiresAt: h.now.Add(-time.Hour),
	}}
	h.stores.Users.Put(user)

	_, orderID := h.checkout(ledger.NewIntent{
		Purpose: models.PurposeSubscription,
		Amount:  decimal.NewFromInt(190),
		OwnerID: user.ID,
		Notes:   models.IntentNotes{Subscription: &models.SubscriptionNotes{PlanName: "pro-yearly"}},
	})
	_, err := h.d.ConfirmPayment(ctx, orderID, h.pay(orderID))
	require.NoError(t, err)

	stored, err := h.stores.Users.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, h.now.Add(365*24*time.Hour), stored.Subscription.ExpiresAt)
	assert.Equal(t, "pro-yearly", stored.Subscription.PlanName)
	assert.Equal(t, 1500, stored.Subscription.BidLimit)
}

func TestBonusFundingForNewProject(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	intent, orderID := h.checkout(ledger.NewIntent{
		Purpose: models.PurposeBonusFunding,
		Amount:  decimal.NewFromInt(600),
		Notes: models.IntentNotes{BonusFunding: &models.BonusFundingNotes{
			ContributorsCount: 3,
			ProjectTitle:      "Brand kit",
		}},
	})

	res, err := h.d.ConfirmPayment(ctx, orderID, h.pay(orderID))
	require.NoError(t, err)
	require.True(t, res.Applied)

	pool, err := h.stores.Pools.FindByIntentID(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, res.EffectRef, pool.ID.Hex())
	assert.True(t, decimal.NewFromInt(200).Equal(pool.AmountPerContributor))
	assert.Equal(t, models.BonusPoolFunded, pool.Status)
	assert.True(t, pool.IsNewProject)
	assert.Nil(t, pool.ProjectID)
}

func TestBonusFundingForExistingProject(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	project := primitive.NewObjectID()
	_, orderID := h.checkout(ledger.NewIntent{
		Purpose:   models.PurposeBonusFunding,
		Amount:    decimal.NewFromInt(306),
		ProjectID: &project,
		Notes: models.IntentNotes{BonusFunding: &models.BonusFundingNotes{
			PoolAmount:        decimal.NewFromInt(300),
			ContributorsCount: 4,
		}},
	})

	_, err := h.d.ConfirmPayment(ctx, orderID, h.pay(orderID))
	require.NoError(t, err)

	w, err := h.escrow.Get(ctx, project)
	require.NoError(t, err)
	assert.True(t, w.Funded)
	assert.True(t, decimal.NewFromInt(300).Equal(w.TotalBonusPool))
	assert.True(t, decimal.NewFromInt(75).Equal(w.AmountPerContributor))
}

func TestRefundBidFee(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	project, bidder := primitive.NewObjectID(), primitive.NewObjectID()
	intent, orderID := h.checkout(bidIntent(project, bidder))

	_, err := h.d.RefundIntent(ctx, intent.ID.Hex(), "too early")
	require.ErrorIs(t, err, models.ErrInvalidState)

	res, err := h.d.ConfirmPayment(ctx, orderID, h.pay(orderID))
	require.NoError(t, err)

	meta, err := h.d.RefundIntent(ctx, intent.ID.Hex(), "project cancelled")
	require.NoError(t, err)
	assert.Equal(t, RefundRef(intent.ID), meta.RefundRef)
	assert.NotEmpty(t, meta.RefundID)

	got := h.intent(intent.ID)
	assert.Equal(t, models.IntentRefunded, got.Status)
	bid, err := h.stores.Bids.FindByProjectBidder(ctx, project, bidder)
	require.NoError(t, err)
	assert.Equal(t, res.EffectRef, bid.ID.Hex())
	assert.Equal(t, models.BidPaymentRefunded, bid.PaymentStatus)

	_, err = h.d.RefundIntent(ctx, intent.ID.Hex(), "again")
	require.ErrorIs(t, err, models.ErrInvalidState)
	assert.Equal(t, 1, h.fake.Refunds())

	replayed, err := h.d.ConfirmPayment(ctx, orderID, "")
	require.NoError(t, err)
	assert.True(t, replayed.Replay)
	assert.Equal(t, models.IntentRefunded, h.intent(intent.ID).Status)

	_, err = h.d.RefundIntent(ctx, "not-an-id", "")
	require.ErrorIs(t, err, models.ErrValidation)
}

func TestSecondBidFeeIsFlaggedForRefund(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	project, bidder := primitive.NewObjectID(), primitive.NewObjectID()

	first, firstOrder := h.checkout(bidIntent(project, bidder))
	changed := bidIntent(project, bidder)
	changed.Notes.BidFee.BidAmount = decimal.NewFromInt(280)
	second, secondOrder := h.checkout(changed)

	h.pay(firstOrder)
	h.pay(secondOrder)

	res, err := h.d.VerifyOrder(ctx, firstOrder)
	require.NoError(t, err)
	require.True(t, res.Applied)

	dup, err := h.d.VerifyOrder(ctx, secondOrder)
	require.NoError(t, err)
	assert.False(t, dup.Applied)
	assert.True(t, dup.RefundDue)
	assert.Empty(t, dup.EffectRef)

	got := h.intent(second.ID)
	assert.Equal(t, models.IntentPaid, got.Status)
	require.NotNil(t, got.Settlement)
	assert.True(t, got.Settlement.RefundDue)
	assert.Len(t, got.Notes.Reconciliation, 1)
	assert.Equal(t, []string{duplicateChargeTitle}, h.notes.subjects(bidder))

	bid, err := h.stores.Bids.FindByProjectBidder(ctx, project, bidder)
	require.NoError(t, err)
	assert.Equal(t, res.EffectRef, bid.ID.Hex())
	assert.True(t, decimal.NewFromInt(450).Equal(bid.BidAmount))
	require.NotNil(t, bid.Escrow.IntentID)
	assert.Equal(t, first.ID, *bid.Escrow.IntentID)

	// redelivery replays the flag instead of re-applying
	again, err := h.d.ConfirmPayment(ctx, secondOrder, "")
	require.NoError(t, err)
	assert.True(t, again.Replay)
	assert.True(t, again.RefundDue)

	// flagged intents are left to the operator
	h.now = h.now.Add(48 * time.Hour)
	assert.Equal(t, ReconcileReport{}, h.d.reconcileOnce(ctx))
	_, err = h.d.RetryEffect(ctx, second.ID.Hex())
	require.ErrorIs(t, err, models.ErrInvalidState)

	_, err = h.d.RefundIntent(ctx, second.ID.Hex(), "duplicate bid fee")
	require.NoError(t, err)
	assert.Equal(t, models.IntentRefunded, h.intent(second.ID).Status)
	bid, err = h.stores.Bids.FindByProjectBidder(ctx, project, bidder)
	require.NoError(t, err)
	assert.Equal(t, models.BidPaymentPaid, bid.PaymentStatus)
}

func TestPaymentForFailedIntentIsAcknowledged(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	intent, orderID := h.checkout(bidIntent(primitive.NewObjectID(), primitive.NewObjectID()))
	_, err := h.ledger.MarkFailed(ctx, intent.ID, "superseded by a changed checkout")
	require.NoError(t, err)
	captureID := h.pay(orderID)

	payload, header := h.webhook(EventCaptureCompleted, orderID, captureID)
	res, err := h.d.HandleWebhook(ctx, payload, header)
	require.NoError(t, err)
	assert.False(t, res.Handled)

	got := h.intent(intent.ID)
	assert.Equal(t, models.IntentFailed, got.Status)
	require.Len(t, got.Notes.Reconciliation, 1)
	assert.Equal(t, "confirm", got.Notes.Reconciliation[0].Source)
}

func TestRefundRefIsDeterministic(t *testing.T) {
	id := primitive.NewObjectID()
	assert.Equal(t, RefundRef(id), RefundRef(id))
	assert.NotEqual(t, RefundRef(id), RefundRef(primitive.NewObjectID()))
}

func TestReconcileOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	// paid but unsettled
	project := primitive.NewObjectID()
	listing, listingOrder := h.checkout(ledger.NewIntent{
		Purpose:   models.PurposeListing,
		Amount:    decimal.NewFromInt(5),
		ProjectID: &project,
		Notes:     models.IntentNotes{Listing: &models.ListingNotes{}},
	})
	res, err := h.d.ConfirmPayment(ctx, listingOrder, h.pay(listingOrder))
	require.NoError(t, err)
	require.False(t, res.Applied)
	h.stores.Projects.Add(project)

	// paid at the gateway, webhook never arrived
	bid, bidOrder := h.checkout(bidIntent(primitive.NewObjectID(), primitive.NewObjectID()))
	h.pay(bidOrder)

	// abandoned before an order was created
	abandoned, err := h.ledger.CreateIntent(ctx, ledger.NewIntent{
		Purpose:  models.PurposeWithdrawalFee,
		Amount:   decimal.NewFromInt(1),
		Currency: "USD",
		OwnerID:  primitive.NewObjectID(),
		Notes:    models.IntentNotes{Withdrawal: &models.WithdrawalNotes{Amount: decimal.NewFromInt(50), Destination: "acct"}},
	})
	require.NoError(t, err)

	rep := h.d.reconcileOnce(ctx)
	assert.Equal(t, ReconcileReport{Deferred: 1}, rep)

	h.now = h.now.Add(48 * time.Hour)
	rep = h.d.reconcileOnce(ctx)
	assert.Equal(t, ReconcileReport{Retried: 1, Confirmed: 1, Expired: 1}, rep)

	assert.True(t, h.intent(listing.ID).Settled())
	assert.True(t, h.intent(bid.ID).Settled())
	assert.Equal(t, models.IntentFailed, h.intent(abandoned.ID).Status)

	assert.Equal(t, ReconcileReport{}, h.d.reconcileOnce(ctx))
}

func TestReconcileJobStopsWithContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.d.ReconcileJob(ctx, 10*time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconcile job did not stop")
	}
}

func TestRetryDue(t *testing.T) {
	now := time.Now()
	assert.True(t, retryDue(nil, now))
	s := &models.SettlementOutcome{Attempts: 1, UpdatedAt: now}
	assert.False(t, retryDue(s, now.Add(29*time.Second)))
	assert.True(t, retryDue(s, now.Add(30*time.Second)))
	s.Attempts = 3
	assert.False(t, retryDue(s, now.Add(60*time.Second)))
	assert.True(t, retryDue(s, now.Add(68*time.Second)))
}
