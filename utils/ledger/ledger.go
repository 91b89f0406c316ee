// Package ledger owns the payment intent state machine. Intents move
// created -> paid -> refunded, or created -> failed, and never backwards;
// every transition is a conditional write on the current status.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gigpay-bend/dao"
	"gigpay-bend/models"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Ledger ...
type Ledger struct {
	intents dao.IntentStore
	nowFn   func() time.Time
}

// New returns a Ledger over intents
func New(intents dao.IntentStore) *Ledger {
	return &Ledger{intents: intents, nowFn: func() time.Time { return time.Now().UTC() }}
}

// NewIntent describes an intent to create
type NewIntent struct {
	Purpose   models.Purpose
	Amount    decimal.Decimal
	Currency  string
	OwnerID   primitive.ObjectID
	ProjectID *primitive.ObjectID
	Notes     models.IntentNotes
}

// CreateIntent validates and persists a created intent
func (l *Ledger) CreateIntent(ctx context.Context, in NewIntent) (models.PaymentIntent, error) {
	switch {
	case !in.Purpose.Valid():
		return models.PaymentIntent{}, fmt.Errorf("%w: unknown purpose %q", models.ErrValidation, in.Purpose)
	case !in.Amount.IsPositive():
		return models.PaymentIntent{}, fmt.Errorf("%w: amount must be positive", models.ErrValidation)
	case in.Currency == "":
		return models.PaymentIntent{}, fmt.Errorf("%w: currency is required", models.ErrValidation)
	case in.OwnerID.IsZero():
		return models.PaymentIntent{}, fmt.Errorf("%w: owner is required", models.ErrValidation)
	case in.Purpose == models.PurposeListing && in.ProjectID == nil:
		return models.PaymentIntent{}, fmt.Errorf("%w: a listing fee needs a project", models.ErrValidation)
	case in.Purpose == models.PurposeBidFee && in.ProjectID == nil:
		return models.PaymentIntent{}, fmt.Errorf("%w: a bid fee needs a project", models.ErrValidation)
	}
	if err := in.Notes.Check(in.Purpose); err != nil {
		return models.PaymentIntent{}, err
	}

	now := l.nowFn()
	intent := models.PaymentIntent{
		ID:        primitive.NewObjectID(),
		Purpose:   in.Purpose,
		Amount:    in.Amount,
		Currency:  in.Currency,
		OwnerID:   in.OwnerID,
		ProjectID: in.ProjectID,
		Status:    models.IntentCreated,
		Notes:     in.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	intent.Notes.Reconciliation = nil

	if err := l.intents.Insert(ctx, intent); err != nil {
		return models.PaymentIntent{}, err
	}
	return intent, nil
}

// AttachOrder sets the gateway order id once. Attaching the same order
// again is a no-op; a different one is a conflict.
func (l *Ledger) AttachOrder(ctx context.Context, id primitive.ObjectID, orderID string) error {
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", models.ErrValidation)
	}

	ok, err := l.intents.SetOrderID(ctx, id, orderID, l.nowFn())
	if err != nil || ok {
		return err
	}

	intent, err := l.Get(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case intent.ExternalOrderID == orderID:
		return nil
	case intent.HasOrder():
		return fmt.Errorf("%w: intent %s already has order %s", models.ErrConflict, id.Hex(), intent.ExternalOrderID)
	default:
		return fmt.Errorf("%w: cannot attach an order to a %s intent", models.ErrInvalidState, intent.Status)
	}
}

// MarkPaid moves a created intent with an order to paid. It reports
// changed=false when the intent was already paid.
func (l *Ledger) MarkPaid(ctx context.Context, id primitive.ObjectID, paymentID string) (bool, models.PaymentIntent, error) {
	ok, err := l.intents.UpdateStatus(ctx, id, models.IntentCreated, dao.StatusChange{
		To:           models.IntentPaid,
		PaymentID:    paymentID,
		RequireOrder: true,
		At:           l.nowFn(),
	})
	if err != nil {
		return false, models.PaymentIntent{}, err
	}

	intent, err := l.Get(ctx, id)
	if err != nil {
		return false, models.PaymentIntent{}, err
	}
	if ok {
		return true, intent, nil
	}

	switch intent.Status {
	case models.IntentPaid:
		return false, intent, nil
	case models.IntentCreated:
		return false, intent, fmt.Errorf("%w: intent %s has no gateway order", models.ErrInvalidState, id.Hex())
	default:
		return false, intent, fmt.Errorf("%w: cannot mark a %s intent paid", models.ErrInvalidState, intent.Status)
	}
}

// MarkRefunded moves a paid intent to refunded
func (l *Ledger) MarkRefunded(ctx context.Context, id primitive.ObjectID, meta models.RefundMeta) (models.PaymentIntent, error) {
	if meta.RefundedAt.IsZero() {
		meta.RefundedAt = l.nowFn()
	}
	ok, err := l.intents.UpdateStatus(ctx, id, models.IntentPaid, dao.StatusChange{
		To:     models.IntentRefunded,
		Refund: &meta,
		At:     meta.RefundedAt,
	})
	if err != nil {
		return models.PaymentIntent{}, err
	}

	intent, err := l.Get(ctx, id)
	if err != nil {
		return models.PaymentIntent{}, err
	}
	if !ok {
		return intent, fmt.Errorf("%w: cannot refund a %s intent", models.ErrInvalidState, intent.Status)
	}
	return intent, nil
}

// MarkFailed moves a created intent to failed. Failing a failed intent is a
// no-op.
func (l *Ledger) MarkFailed(ctx context.Context, id primitive.ObjectID, reason string) (bool, error) {
	ok, err := l.intents.UpdateStatus(ctx, id, models.IntentCreated, dao.StatusChange{
		To:            models.IntentFailed,
		FailureReason: reason,
		At:            l.nowFn(),
	})
	if err != nil || ok {
		return ok, err
	}

	intent, err := l.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if intent.Status == models.IntentFailed {
		return false, nil
	}
	return false, fmt.Errorf("%w: cannot fail a %s intent", models.ErrInvalidState, intent.Status)
}

// AppendReconciliation records reconciliation metadata. It is legal in any
// status and is the only write to notes after paid.
func (l *Ledger) AppendReconciliation(ctx context.Context, id primitive.ObjectID, source, message string) error {
	return l.intents.AppendReconciliation(ctx, id, models.ReconciliationEntry{
		Source:    source,
		Message:   message,
		CreatedAt: l.nowFn(),
	})
}

// RecordSettlement stores the outcome of applying the intent's effect
func (l *Ledger) RecordSettlement(ctx context.Context, id primitive.ObjectID, outcome models.SettlementOutcome) error {
	outcome.UpdatedAt = l.nowFn()
	return l.intents.SetSettlement(ctx, id, outcome)
}

// Get ...
func (l *Ledger) Get(ctx context.Context, id primitive.ObjectID) (models.PaymentIntent, error) {
	intent, err := l.intents.FindByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return intent, fmt.Errorf("%w: intent %s", models.ErrNotFound, id.Hex())
	}
	return intent, err
}

// GetByOrderID ...
func (l *Ledger) GetByOrderID(ctx context.Context, orderID string) (models.PaymentIntent, error) {
	intent, err := l.intents.FindByOrderID(ctx, orderID)
	if errors.Is(err, models.ErrNotFound) {
		return intent, fmt.Errorf("%w: no intent for order %s", models.ErrNotFound, orderID)
	}
	return intent, err
}

// Find ...
func (l *Ledger) Find(ctx context.Context, filter dao.IntentFilter) ([]models.PaymentIntent, error) {
	return l.intents.Query(ctx, filter)
}

// FindOpen returns the most recent created intent for (purpose, owner,
// project), if any.
func (l *Ledger) FindOpen(ctx context.Context, purpose models.Purpose, owner primitive.ObjectID, project *primitive.ObjectID) (models.PaymentIntent, bool, error) {
	found, err := l.intents.Query(ctx, dao.IntentFilter{
		Purpose:   purpose,
		OwnerID:   owner,
		ProjectID: project,
		Statuses:  []models.IntentStatus{models.IntentCreated},
	})
	if err != nil || len(found) == 0 {
		return models.PaymentIntent{}, false, err
	}
	return found[len(found)-1], true, nil
}

// HasPaid reports whether a paid intent exists for (purpose, owner,
// project). A zero owner matches any owner.
func (l *Ledger) HasPaid(ctx context.Context, purpose models.Purpose, owner primitive.ObjectID, project *primitive.ObjectID) (bool, error) {
	found, err := l.intents.Query(ctx, dao.IntentFilter{
		Purpose:   purpose,
		OwnerID:   owner,
		ProjectID: project,
		Statuses:  []models.IntentStatus{models.IntentPaid},
		Limit:     1,
	})
	return len(found) > 0, err
}
