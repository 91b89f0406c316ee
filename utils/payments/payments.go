// Package payments starts the paid actions of the marketplace. Each action
// resolves its fee and, when one is due, opens a payment intent with a
// gateway order the client approves.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gigpay-bend/dao"
	"gigpay-bend/models"
	"gigpay-bend/utils/fees"
	"gigpay-bend/utils/gateway"
	"gigpay-bend/utils/keylock"
	"gigpay-bend/utils/ledger"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Dependencies of the payments service
type Dependencies struct {
	Ledger         *ledger.Ledger
	Gateway        gateway.Client
	Resolver       *fees.Resolver
	Bids           dao.BidStore
	Users          dao.UserStore
	Locks          *keylock.Locker
	Logger         *zap.Logger
	GatewayTimeout time.Duration
	Now            func() time.Time
}

// Payments ...
type Payments struct {
	ledger   *ledger.Ledger
	gateway  gateway.Client
	resolver *fees.Resolver
	bids     dao.BidStore
	users    dao.UserStore
	locks    *keylock.Locker
	logger   *zap.Logger
	timeout  time.Duration
	nowFn    func() time.Time
}

// New ...
func New(deps Dependencies) *Payments {
	p := &Payments{
		ledger:   deps.Ledger,
		gateway:  deps.Gateway,
		resolver: deps.Resolver,
		bids:     deps.Bids,
		users:    deps.Users,
		locks:    deps.Locks,
		logger:   deps.Logger,
		timeout:  deps.GatewayTimeout,
		nowFn:    deps.Now,
	}
	if p.locks == nil {
		p.locks = keylock.New()
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.timeout <= 0 {
		p.timeout = 15 * time.Second
	}
	if p.nowFn == nil {
		p.nowFn = func() time.Time { return time.Now().UTC() }
	}
	return p
}

// Quote resolves the fee for a named action
func (p *Payments) Quote(ctx context.Context, userID primitive.ObjectID, req models.FeeQuoteReq) (fees.Quote, error) {
	var action fees.Action
	switch fees.ActionKind(req.Action) {
	case fees.ActionBid:
		action = fees.Bid()
	case fees.ActionListing:
		action = fees.Listing()
	case fees.ActionBonusFunding:
		action = fees.BonusFunding(req.Amount)
	case fees.ActionSubscription:
		action = fees.Subscription(req.PlanName)
	case fees.ActionWithdrawal:
		action = fees.Withdrawal(req.Amount)
	default:
		return fees.Quote{}, fmt.Errorf("%w: unknown action %q", models.ErrValidation, req.Action)
	}
	return p.resolver.Resolve(ctx, userID, action)
}

func (p *Payments) resolve(ctx context.Context, userID primitive.ObjectID, action fees.Action) (fees.Quote, error) {
	q, err := p.resolver.Resolve(ctx, userID, action)
	if err != nil {
		return q, err
	}
	if !q.Eligible {
		return q, fmt.Errorf("%w: %s", models.ErrNotFound, q.Reason)
	}
	return q, nil
}

func parseID(name, hex string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return id, fmt.Errorf("%w: invalid %s %q", models.ErrValidation, name, hex)
	}
	return id, nil
}

const supersededReason = "superseded by a changed checkout"

// openIntent returns the checkout for in. An open created intent for the
// same (purpose, owner, project) and payload is reused, and a missing
// gateway order is created and attached. An open intent with a different
// payload is failed first. When the gateway fails the intent
// stays created and the next call picks it up again.
func (p *Payments) openIntent(ctx context.Context, in ledger.NewIntent, q fees.Quote, description string) (models.Checkout, error) {
	key := string(in.Purpose) + ":" + in.OwnerID.Hex()
	if in.ProjectID != nil {
		key += ":" + in.ProjectID.Hex()
	}
	unlock, err := p.locks.Lock(ctx, key)
	if err != nil {
		return models.Checkout{}, err
	}
	defer unlock()

	intent, ok, err := p.ledger.FindOpen(ctx, in.Purpose, in.OwnerID, in.ProjectID)
	if err != nil {
		return models.Checkout{}, err
	}
	if ok && !reusable(intent, in) {
		// the old order must not stay payable next to its replacement
		if _, err := p.ledger.MarkFailed(ctx, intent.ID, supersededReason); err != nil {
			return models.Checkout{}, err
		}
		p.logger.Info("payments: open intent superseded", zap.String("intent_id", intent.ID.Hex()), zap.String("order_id", intent.ExternalOrderID))
		ok = false
	}
	if !ok {
		if intent, err = p.ledger.CreateIntent(ctx, in); err != nil {
			return models.Checkout{}, err
		}
	}

	checkout := models.Checkout{
		IntentID:  intent.ID.Hex(),
		FeeAmount: intent.Amount,
		Currency:  intent.Currency,
		Reason:    q.Reason,
	}
	log := p.logger.With(zap.String("intent_id", intent.ID.Hex()), zap.String("purpose", string(intent.Purpose)))

	gctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if intent.HasOrder() {
		order, err := p.gateway.GetOrder(gctx, intent.ExternalOrderID)
		if err != nil {
			log.Warn("payments: fetch open order", zap.Error(err))
			return models.Checkout{}, err
		}
		checkout.OrderID = order.OrderID
		checkout.ApproveURL = order.ApproveURL
		return checkout, nil
	}

	order, err := p.gateway.CreateOrder(gctx, intent.Amount, intent.Currency, gateway.Metadata{
		IntentID:    intent.ID.Hex(),
		Purpose:     string(intent.Purpose),
		Description: description,
	})
	if err != nil {
		log.Warn("payments: create gateway order", zap.Error(err))
		return models.Checkout{}, err
	}
	if err := p.ledger.AttachOrder(ctx, intent.ID, order.OrderID); err != nil {
		return models.Checkout{}, err
	}

	log.Info("payments: checkout opened", zap.String("order_id", order.OrderID), zap.String("amount", intent.Amount.String()))
	checkout.OrderID = order.OrderID
	checkout.ApproveURL = order.ApproveURL
	return checkout, nil
}

// reusable reports whether open charges the same amount for the same payload.
func reusable(open models.PaymentIntent, in ledger.NewIntent) bool {
	if !open.Amount.Equal(in.Amount) || open.Currency != in.Currency {
		return false
	}
	if (open.ProjectID == nil) != (in.ProjectID == nil) {
		return false
	}
	a, b := open.Notes, in.Notes
	a.Reconciliation, b.Reconciliation = nil, nil
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}

// PlaceBid places userID's bid on a project. Free bids are created at once;
// paid bids are created when their fee is confirmed.
func (p *Payments) PlaceBid(ctx context.Context, userID primitive.ObjectID, req models.PlaceBidReq) (models.Checkout, error) {
	projectID, err := parseID("project id", req.ProjectID)
	if err != nil {
		return models.Checkout{}, err
	}
	switch {
	case !req.BidAmount.IsPositive():
		return models.Checkout{}, fmt.Errorf("%w: bid amount must be positive", models.ErrValidation)
	case req.DeliveryDays <= 0:
		return models.Checkout{}, fmt.Errorf("%w: delivery days must be positive", models.ErrValidation)
	case strings.TrimSpace(req.Proposal) == "":
		return models.Checkout{}, fmt.Errorf("%w: a proposal is required", models.ErrValidation)
	}

	switch _, err := p.bids.FindByProjectBidder(ctx, projectID, userID); {
	case err == nil:
		return models.Checkout{}, fmt.Errorf("%w: you already placed a bid on this project", models.ErrConflict)
	case !errors.Is(err, models.ErrNotFound):
		return models.Checkout{}, err
	}
	paid, err := p.ledger.HasPaid(ctx, models.PurposeBidFee, userID, &projectID)
	if err != nil {
		return models.Checkout{}, err
	}
	if paid {
		return models.Checkout{}, fmt.Errorf("%w: the bid fee for this project is already paid", models.ErrConflict)
	}

	q, err := p.resolve(ctx, userID, fees.Bid())
	if err != nil {
		return models.Checkout{}, err
	}
	if q.FeeAmount.IsZero() {
		return p.placeFreeBid(ctx, userID, projectID, req, q)
	}

	return p.openIntent(ctx, ledger.NewIntent{
		Purpose:   models.PurposeBidFee,
		Amount:    q.FeeAmount,
		Currency:  q.Currency,
		OwnerID:   userID,
		ProjectID: &projectID,
		Notes: models.IntentNotes{BidFee: &models.BidFeeNotes{
			BidAmount:    req.BidAmount,
			Proposal:     req.Proposal,
			DeliveryDays: req.DeliveryDays,
			FeeTier:      string(q.Tier),
		}},
	}, q, "Bid fee")
}

func (p *Payments) placeFreeBid(ctx context.Context, userID, projectID primitive.ObjectID, req models.PlaceBidReq, q fees.Quote) (models.Checkout, error) {
	quota, err := p.users.ConsumeFreeBid(ctx, userID, p.resolver.Pricing().FreeBidAllowance)
	if err != nil {
		return models.Checkout{}, err
	}

	now := p.nowFn()
	bid := models.Bid{
		ID:            primitive.NewObjectID(),
		ProjectID:     projectID,
		BidderID:      userID,
		BidAmount:     req.BidAmount,
		TotalAmount:   req.BidAmount,
		Proposal:      req.Proposal,
		DeliveryDays:  req.DeliveryDays,
		BidStatus:     models.BidPending,
		PaymentStatus: models.BidPaymentPaid,
		IsFreeBid:     true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := p.bids.Insert(ctx, bid); err != nil {
		if rerr := p.users.RestoreFreeBid(ctx, userID); rerr != nil {
			p.logger.Error("payments: restore free bid", zap.String("user_id", userID.Hex()), zap.Error(rerr))
		}
		return models.Checkout{}, err
	}

	p.logger.Info("payments: free bid placed",
		zap.String("bid_id", bid.ID.Hex()),
		zap.String("user_id", userID.Hex()),
		zap.Int("free_bids_remaining", quota.Remaining),
	)
	return models.Checkout{
		FeeAmount: q.FeeAmount,
		Currency:  q.Currency,
		Reason:    q.Reason,
		Bid:       &bid,
	}, nil
}

// PayListingFee opens the checkout for a project's listing fee
func (p *Payments) PayListingFee(ctx context.Context, userID primitive.ObjectID, req models.ListingFeeReq) (models.Checkout, error) {
	projectID, err := parseID("project id", req.ProjectID)
	if err != nil {
		return models.Checkout{}, err
	}
	paid, err := p.ledger.HasPaid(ctx, models.PurposeListing, primitive.NilObjectID, &projectID)
	if err != nil {
		return models.Checkout{}, err
	}
	if paid {
		return models.Checkout{}, fmt.Errorf("%w: the listing fee for this project is already paid", models.ErrConflict)
	}

	q, err := p.resolve(ctx, userID, fees.Listing())
	if err != nil {
		return models.Checkout{}, err
	}
	return p.openIntent(ctx, ledger.NewIntent{
		Purpose:   models.PurposeListing,
		Amount:    q.FeeAmount,
		Currency:  q.Currency,
		OwnerID:   userID,
		ProjectID: &projectID,
		Notes:     models.IntentNotes{Listing: &models.ListingNotes{ProjectTitle: req.ProjectTitle}},
	}, q, "Project listing fee")
}

// FundBonusPool opens the checkout for a bonus pool. Without a project id
// the pool is staged for a project that has no contributors yet.
func (p *Payments) FundBonusPool(ctx context.Context, userID primitive.ObjectID, req models.BonusFundingReq) (models.Checkout, error) {
	var projectID *primitive.ObjectID
	if req.ProjectID != "" {
		id, err := parseID("project id", req.ProjectID)
		if err != nil {
			return models.Checkout{}, err
		}
		projectID = &id
	}
	if req.ContributorsCount <= 0 {
		return models.Checkout{}, fmt.Errorf("%w: contributors count must be positive", models.ErrValidation)
	}

	q, err := p.resolve(ctx, userID, fees.BonusFunding(req.Amount))
	if err != nil {
		return models.Checkout{}, err
	}
	return p.openIntent(ctx, ledger.NewIntent{
		Purpose:   models.PurposeBonusFunding,
		Amount:    q.FeeAmount,
		Currency:  q.Currency,
		OwnerID:   userID,
		ProjectID: projectID,
		Notes: models.IntentNotes{BonusFunding: &models.BonusFundingNotes{
			PoolAmount:        req.Amount,
			ContributorsCount: req.ContributorsCount,
			ProjectTitle:      req.ProjectTitle,
		}},
	}, q, "Bonus pool funding")
}

// Subscribe opens the checkout for a subscription plan
func (p *Payments) Subscribe(ctx context.Context, userID primitive.ObjectID, req models.SubscribeReq) (models.Checkout, error) {
	q, err := p.resolve(ctx, userID, fees.Subscription(req.PlanName))
	if err != nil {
		return models.Checkout{}, err
	}
	return p.openIntent(ctx, ledger.NewIntent{
		Purpose:  models.PurposeSubscription,
		Amount:   q.FeeAmount,
		Currency: q.Currency,
		OwnerID:  userID,
		Notes:    models.IntentNotes{Subscription: &models.SubscriptionNotes{PlanName: req.PlanName}},
	}, q, q.Reason)
}

// RequestWithdrawal opens the checkout for a withdrawal's fee
func (p *Payments) RequestWithdrawal(ctx context.Context, userID primitive.ObjectID, req models.WithdrawalReq) (models.Checkout, error) {
	if strings.TrimSpace(req.Destination) == "" {
		return models.Checkout{}, fmt.Errorf("%w: a withdrawal destination is required", models.ErrValidation)
	}
	q, err := p.resolve(ctx, userID, fees.Withdrawal(req.Amount))
	if err != nil {
		return models.Checkout{}, err
	}
	return p.openIntent(ctx, ledger.NewIntent{
		Purpose:  models.PurposeWithdrawalFee,
		Amount:   q.FeeAmount,
		Currency: q.Currency,
		OwnerID:  userID,
		Notes: models.IntentNotes{Withdrawal: &models.WithdrawalNotes{
			Amount:      req.Amount,
			Destination: req.Destination,
		}},
	}, q, "Withdrawal fee")
}
