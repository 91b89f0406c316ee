package memdao

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gigpay-bend/dao"
	"gigpay-bend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// IntentStore is an in-memory dao.IntentStore
type IntentStore struct {
	mu      sync.RWMutex
	intents map[primitive.ObjectID]models.PaymentIntent
	orders  map[string]primitive.ObjectID
}

var _ dao.IntentStore = (*IntentStore)(nil)

// NewIntentStore ...
func NewIntentStore() *IntentStore {
	return &IntentStore{
		intents: make(map[primitive.ObjectID]models.PaymentIntent),
		orders:  make(map[string]primitive.ObjectID),
	}
}

// Insert ...
func (s *IntentStore) Insert(_ context.Context, intent models.PaymentIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.intents[intent.ID]; ok {
		return fmt.Errorf("%w: intent %s exists", models.ErrConflict, intent.ID.Hex())
	}
	if intent.ExternalOrderID != "" {
		if _, ok := s.orders[intent.ExternalOrderID]; ok {
			return fmt.Errorf("%w: order %s already attached", models.ErrConflict, intent.ExternalOrderID)
		}
		s.orders[intent.ExternalOrderID] = intent.ID
	}
	s.intents[intent.ID] = cloneIntent(intent)
	return nil
}

// FindByID ...
func (s *IntentStore) FindByID(_ context.Context, id primitive.ObjectID) (models.PaymentIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	intent, ok := s.intents[id]
	if !ok {
		return models.PaymentIntent{}, models.ErrNotFound
	}
	return cloneIntent(intent), nil
}

// FindByOrderID ...
func (s *IntentStore) FindByOrderID(ctx context.Context, orderID string) (models.PaymentIntent, error) {
	s.mu.RLock()
	id, ok := s.orders[orderID]
	s.mu.RUnlock()
	if !ok {
		return models.PaymentIntent{}, models.ErrNotFound
	}
	return s.FindByID(ctx, id)
}

// Query ...
func (s *IntentStore) Query(_ context.Context, filter dao.IntentFilter) ([]models.PaymentIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.PaymentIntent
	for _, intent := range s.intents {
		if matches(intent, filter) {
			out = append(out, cloneIntent(intent))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.Hex() < out[j].ID.Hex()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matches(intent models.PaymentIntent, f dao.IntentFilter) bool {
	if f.Purpose != "" && intent.Purpose != f.Purpose {
		return false
	}
	if !f.OwnerID.IsZero() && intent.OwnerID != f.OwnerID {
		return false
	}
	if f.ProjectID != nil && (intent.ProjectID == nil || *intent.ProjectID != *f.ProjectID) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if intent.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.HasOrder != nil && intent.HasOrder() != *f.HasOrder {
		return false
	}
	if f.Unsettled && (intent.Settled() || intent.RefundDue()) {
		return false
	}
	if !f.UpdatedBefore.IsZero() && !intent.UpdatedAt.Before(f.UpdatedBefore) {
		return false
	}
	return true
}

// SetOrderID ...
func (s *IntentStore) SetOrderID(_ context.Context, id primitive.ObjectID, orderID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[id]
	if !ok || intent.Status != models.IntentCreated || intent.HasOrder() {
		return false, nil
	}
	if _, taken := s.orders[orderID]; taken {
		return false, fmt.Errorf("%w: order %s already attached", models.ErrConflict, orderID)
	}

	intent.ExternalOrderID = orderID
	intent.OrderAttachedAt = &at
	intent.UpdatedAt = at
	s.intents[id] = intent
	s.orders[orderID] = id
	return true, nil
}

// UpdateStatus ...
func (s *IntentStore) UpdateStatus(_ context.Context, id primitive.ObjectID, from models.IntentStatus, change dao.StatusChange) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[id]
	if !ok || intent.Status != from {
		return false, nil
	}
	if change.RequireOrder && !intent.HasOrder() {
		return false, nil
	}

	at := change.At
	intent.Status = change.To
	intent.UpdatedAt = at
	switch change.To {
	case models.IntentPaid:
		intent.PaidAt = &at
		if change.PaymentID != "" {
			intent.ExternalPaymentID = change.PaymentID
		}
	case models.IntentFailed:
		intent.FailedAt = &at
		intent.FailureReason = change.FailureReason
	case models.IntentRefunded:
		if change.Refund != nil {
			intent.Refund = clonePtr(change.Refund)
		}
	}
	s.intents[id] = intent
	return true, nil
}

// AppendReconciliation ...
func (s *IntentStore) AppendReconciliation(_ context.Context, id primitive.ObjectID, entry models.ReconciliationEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[id]
	if !ok {
		return fmt.Errorf("%w: intent %s", models.ErrNotFound, id.Hex())
	}
	intent.Notes.Reconciliation = append(intent.Notes.Reconciliation, entry)
	intent.UpdatedAt = entry.CreatedAt
	s.intents[id] = intent
	return nil
}

// SetSettlement ...
func (s *IntentStore) SetSettlement(_ context.Context, id primitive.ObjectID, outcome models.SettlementOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[id]
	if !ok {
		return fmt.Errorf("%w: intent %s", models.ErrNotFound, id.Hex())
	}
	intent.Settlement = clonePtr(&outcome)
	intent.Settlement.AppliedAt = clonePtr(outcome.AppliedAt)
	intent.UpdatedAt = outcome.UpdatedAt
	s.intents[id] = intent
	return nil
}
