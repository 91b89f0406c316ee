// Package settlement turns confirmed gateway payments into domain effects.
// Client polls and gateway webhooks both end in ConfirmPayment, which applies
// each intent's effect at most once.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gigpay-bend/dao"
	"gigpay-bend/models"
	"gigpay-bend/utils/escrow"
	"gigpay-bend/utils/fees"
	"gigpay-bend/utils/gateway"
	"gigpay-bend/utils/ledger"
	"gigpay-bend/utils/notifications"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	duplicateChargeTitle = "Duplicate Payment Received"
	duplicateChargeMsg   = "We received a second payment of %s %s for something you had already paid for. It will be refunded to you."
)

// Dependencies of the Dispatcher
type Dependencies struct {
	Ledger   *ledger.Ledger
	Gateway  gateway.Client
	Escrow   *escrow.Escrow
	Bids     dao.BidStore
	Users    dao.UserStore
	Projects dao.ProjectStore
	Events   dao.EventLog
	Pricing  fees.Pricing
	Notifier notifications.Notifiable
	Logger   *zap.Logger
	// GatewayTimeout bounds every gateway call. Defaults to 15s.
	GatewayTimeout time.Duration
	// StaleAfter is how long a created intent with an order waits for its
	// webhook before the reconciliation job polls the gateway.
	StaleAfter time.Duration
	// ExpireAfter is how long a created intent without an order lives.
	ExpireAfter time.Duration
	Now         func() time.Time
}

// Dispatcher ...
type Dispatcher struct {
	ledger   *ledger.Ledger
	gateway  gateway.Client
	escrow   *escrow.Escrow
	bids     dao.BidStore
	users    dao.UserStore
	projects dao.ProjectStore
	events   dao.EventLog
	pricing  fees.Pricing
	notifier notifications.Notifiable
	logger   *zap.Logger

	timeout     time.Duration
	staleAfter  time.Duration
	expireAfter time.Duration
	nowFn       func() time.Time

	group singleflight.Group
}

// Result describes the outcome of a confirmation
type Result struct {
	IntentID      string         `json:"intent_id"`
	Purpose       models.Purpose `json:"purpose"`
	Applied       bool           `json:"applied"`
	Replay        bool           `json:"replay"`
	EffectSummary string         `json:"effect_summary,omitempty"`
	EffectRef     string         `json:"effect_ref,omitempty"`
	RefundDue     bool           `json:"refund_due,omitempty"`
}

// NewDispatcher ...
func NewDispatcher(deps Dependencies) *Dispatcher {
	d := &Dispatcher{
		ledger:      deps.Ledger,
		gateway:     deps.Gateway,
		escrow:      deps.Escrow,
		bids:        deps.Bids,
		users:       deps.Users,
		projects:    deps.Projects,
		events:      deps.Events,
		pricing:     deps.Pricing,
		notifier:    deps.Notifier,
		logger:      deps.Logger,
		timeout:     deps.GatewayTimeout,
		staleAfter:  deps.StaleAfter,
		expireAfter: deps.ExpireAfter,
		nowFn:       deps.Now,
	}
	if d.notifier == nil {
		d.notifier = notifications.Nop{}
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.timeout <= 0 {
		d.timeout = 15 * time.Second
	}
	if d.staleAfter <= 0 {
		d.staleAfter = 10 * time.Minute
	}
	if d.expireAfter <= 0 {
		d.expireAfter = 24 * time.Hour
	}
	if d.nowFn == nil {
		d.nowFn = func() time.Time { return time.Now().UTC() }
	}
	return d
}

// ConfirmPayment marks the intent behind orderID paid and applies its
// effect. Repeated confirmations replay the recorded outcome. A failing
// effect leaves the intent paid and is reported with Applied=false.
func (d *Dispatcher) ConfirmPayment(ctx context.Context, orderID, paymentID string) (Result, error) {
	if orderID == "" {
		return Result{}, fmt.Errorf("%w: order id is required", models.ErrValidation)
	}
	v, err, _ := d.group.Do(orderID, func() (interface{}, error) {
		return d.confirm(ctx, orderID, paymentID)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (d *Dispatcher) confirm(ctx context.Context, orderID, paymentID string) (Result, error) {
	intent, err := d.ledger.GetByOrderID(ctx, orderID)
	if err != nil {
		return Result{}, err
	}

	switch {
	case intent.Settled(), intent.RefundDue(), intent.Status == models.IntentRefunded:
		return replay(intent), nil
	case intent.Status == models.IntentFailed:
		d.gap(ctx, intent, "confirm", "gateway reports a payment for a failed intent")
		return Result{}, fmt.Errorf("%w: intent %s already failed", models.ErrInvalidState, intent.ID.Hex())
	}

	changed, intent, err := d.ledger.MarkPaid(ctx, intent.ID, paymentID)
	if err != nil {
		return Result{}, err
	}
	if !changed && (intent.Settled() || intent.RefundDue()) {
		return replay(intent), nil
	}

	res := d.apply(ctx, intent)
	res.Replay = !changed
	return res, nil
}

// apply runs the intent's effect and records the outcome. Effect errors
// never leave this function: the intent stays paid and the gap is logged.
func (d *Dispatcher) apply(ctx context.Context, intent models.PaymentIntent) Result {
	res := Result{IntentID: intent.ID.Hex(), Purpose: intent.Purpose}
	outcome := models.SettlementOutcome{Attempts: 1}
	if intent.Settlement != nil {
		outcome.Attempts = intent.Settlement.Attempts + 1
	}

	eff, err := d.applyEffect(ctx, intent)
	if err != nil {
		outcome.LastError = err.Error()
		if errors.Is(err, errDuplicateCharge) {
			outcome.RefundDue = true
			d.gap(ctx, intent, "settlement", fmt.Sprintf("refund due: %v", err))
		} else {
			d.gap(ctx, intent, "settlement", fmt.Sprintf("effect failed (attempt %d): %v", outcome.Attempts, err))
		}
		if err := d.ledger.RecordSettlement(ctx, intent.ID, outcome); err != nil {
			d.logger.Error("settlement: record outcome", zap.String("intent_id", intent.ID.Hex()), zap.Error(err))
		}
		if outcome.RefundDue {
			d.notifier.SendGenericNotification(ctx, intent.OwnerID.Hex(), duplicateChargeTitle, notifications.GenericEmailData{
				Content: fmt.Sprintf(duplicateChargeMsg, intent.Amount.StringFixed(2), intent.Currency),
			})
		}
		res.RefundDue = outcome.RefundDue
		return res
	}

	now := d.nowFn()
	outcome.Applied = true
	outcome.EffectRef = eff.ref
	outcome.Summary = eff.summary
	outcome.AppliedAt = &now
	if err := d.ledger.RecordSettlement(ctx, intent.ID, outcome); err != nil {
		// the effect is idempotent; the reconciliation job re-applies it
		d.logger.Error("settlement: record outcome", zap.String("intent_id", intent.ID.Hex()), zap.Error(err))
	}

	d.logger.Info("settlement: effect applied",
		zap.String("intent_id", intent.ID.Hex()),
		zap.String("purpose", string(intent.Purpose)),
		zap.String("effect_ref", eff.ref),
		zap.Int("attempts", outcome.Attempts),
	)
	d.notifier.SendPaymentConfirmedNotification(ctx, intent, eff.summary)

	res.Applied = true
	res.EffectRef = eff.ref
	res.EffectSummary = eff.summary
	return res
}

// gap records a reconciliation entry and logs it for operators.
func (d *Dispatcher) gap(ctx context.Context, intent models.PaymentIntent, source, message string) {
	d.logger.Error("settlement: reconciliation gap",
		zap.String("event", "reconciliation_gap"),
		zap.String("intent_id", intent.ID.Hex()),
		zap.String("purpose", string(intent.Purpose)),
		zap.String("status", string(intent.Status)),
		zap.String("detail", message),
	)
	if err := d.ledger.AppendReconciliation(ctx, intent.ID, source, message); err != nil {
		d.logger.Error("settlement: append reconciliation", zap.String("intent_id", intent.ID.Hex()), zap.Error(err))
	}
}

func replay(intent models.PaymentIntent) Result {
	res := Result{IntentID: intent.ID.Hex(), Purpose: intent.Purpose, Replay: true}
	if s := intent.Settlement; s != nil {
		res.Applied = s.Applied
		res.EffectRef = s.EffectRef
		res.EffectSummary = s.Summary
		res.RefundDue = s.RefundDue
	}
	return res
}

// VerifyOrder asks the gateway whether orderID was paid and confirms it if
// so. Approved orders are captured first. Not-yet-paid orders return
// models.ErrNotVerified.
func (d *Dispatcher) VerifyOrder(ctx context.Context, orderID string) (Result, error) {
	intent, err := d.ledger.GetByOrderID(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	if intent.Status != models.IntentCreated {
		return d.ConfirmPayment(ctx, orderID, intent.ExternalPaymentID)
	}

	gctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	order, err := d.gateway.GetOrder(gctx, orderID)
	if err != nil {
		d.logger.Warn("settlement: verify order", zap.String("order_id", orderID), zap.Error(err))
		if !errors.Is(err, models.ErrGateway) {
			err = fmt.Errorf("%w: %v", models.ErrGateway, err)
		}
		return Result{}, err
	}
	if order.Approved() {
		// the buyer approved but the client never captured
		order, err = d.gateway.CaptureOrder(gctx, orderID)
		if err != nil {
			d.logger.Warn("settlement: capture order", zap.String("order_id", orderID), zap.Error(err))
			if !errors.Is(err, models.ErrGateway) {
				err = fmt.Errorf("%w: %v", models.ErrGateway, err)
			}
			return Result{}, err
		}
		d.logger.Info("settlement: captured approved order", zap.String("order_id", orderID))
	}
	if !order.Completed() {
		return Result{}, fmt.Errorf("%w: order %s is %s", models.ErrNotVerified, orderID, order.Status)
	}
	if !order.Amount.Equal(intent.Amount) || (order.Currency != "" && order.Currency != intent.Currency) {
		d.logger.Warn("settlement: order amount mismatch",
			zap.String("event", "security"),
			zap.String("order_id", orderID),
			zap.String("intent_id", intent.ID.Hex()),
			zap.String("expected", intent.Amount.String()+" "+intent.Currency),
			zap.String("got", order.Amount.String()+" "+order.Currency),
		)
		d.gap(ctx, intent, "verify", "gateway amount "+order.Amount.String()+" does not match intent")
		return Result{}, fmt.Errorf("%w: order amount does not match the payment intent", models.ErrSecurity)
	}

	return d.ConfirmPayment(ctx, orderID, order.PaymentID)
}

// RetryEffect re-applies the effect of a paid intent whose settlement did
// not go through. Settled intents replay.
func (d *Dispatcher) RetryEffect(ctx context.Context, intentID string) (Result, error) {
	intent, err := d.intent(ctx, intentID)
	if err != nil {
		return Result{}, err
	}
	if intent.Settled() {
		return replay(intent), nil
	}
	if intent.Status != models.IntentPaid {
		return Result{}, fmt.Errorf("%w: cannot settle a %s intent", models.ErrInvalidState, intent.Status)
	}
	if intent.RefundDue() {
		return Result{}, fmt.Errorf("%w: intent %s is waiting for a refund", models.ErrInvalidState, intent.ID.Hex())
	}
	return d.apply(ctx, intent), nil
}
