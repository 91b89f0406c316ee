package settlement

import (
	"context"
	"fmt"

	"gigpay-bend/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// refundNamespace scopes the deterministic refund references
var refundNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("gigpay-bend/refunds"))

// RefundRef is the idempotency reference sent with an intent's refund.
// Retrying a refund sends the same reference, so the gateway refunds once.
func RefundRef(intentID primitive.ObjectID) string {
	return uuid.NewSHA1(refundNamespace, []byte(intentID.Hex())).String()
}

func (d *Dispatcher) intent(ctx context.Context, intentID string) (models.PaymentIntent, error) {
	id, err := primitive.ObjectIDFromHex(intentID)
	if err != nil {
		return models.PaymentIntent{}, fmt.Errorf("%w: invalid intent id %q", models.ErrValidation, intentID)
	}
	return d.ledger.Get(ctx, id)
}

// RefundIntent refunds a paid intent through the gateway. A bid paid by the
// intent is marked refunded.
func (d *Dispatcher) RefundIntent(ctx context.Context, intentID, reason string) (models.RefundMeta, error) {
	intent, err := d.intent(ctx, intentID)
	if err != nil {
		return models.RefundMeta{}, err
	}
	if intent.Status != models.IntentPaid {
		return models.RefundMeta{}, fmt.Errorf("%w: cannot refund a %s intent", models.ErrInvalidState, intent.Status)
	}
	if intent.ExternalPaymentID == "" {
		return models.RefundMeta{}, fmt.Errorf("%w: intent %s has no captured payment", models.ErrInvalidState, intent.ID.Hex())
	}

	ref := RefundRef(intent.ID)
	gctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	refund, err := d.gateway.CreateRefund(gctx, intent.ExternalPaymentID, ref, intent.Amount, reason)
	if err != nil {
		d.logger.Warn("settlement: gateway refund", zap.String("intent_id", intent.ID.Hex()), zap.Error(err))
		return models.RefundMeta{}, err
	}

	meta := models.RefundMeta{RefundID: refund.RefundID, RefundRef: ref, Reason: reason}
	intent, err = d.ledger.MarkRefunded(ctx, intent.ID, meta)
	if err != nil {
		return models.RefundMeta{}, err
	}

	if intent.Purpose == models.PurposeBidFee {
		if bidID, ok := refundedBid(intent); ok {
			if err := d.bids.SetPaymentStatus(ctx, bidID, models.BidPaymentRefunded, nil); err != nil {
				d.gap(ctx, intent, "refund", "bid "+bidID.Hex()+" not marked refunded: "+err.Error())
			}
		}
	}

	d.logger.Info("settlement: intent refunded",
		zap.String("intent_id", intent.ID.Hex()),
		zap.String("refund_id", refund.RefundID),
		zap.String("amount", intent.Amount.String()),
	)
	d.notifier.SendPaymentRefundedNotification(ctx, intent)
	if intent.Refund != nil {
		meta = *intent.Refund
	}
	return meta, nil
}

func refundedBid(intent models.PaymentIntent) (primitive.ObjectID, bool) {
	// a duplicate charge never paid for the bid
	if intent.RefundDue() {
		return primitive.NilObjectID, false
	}
	if intent.Settlement != nil && intent.Settlement.Applied {
		if id, err := primitive.ObjectIDFromHex(intent.Settlement.EffectRef); err == nil {
			return id, true
		}
	}
	if n := intent.Notes.BidFee; n != nil && n.BidID != nil {
		return *n.BidID, true
	}
	return primitive.NilObjectID, false
}
