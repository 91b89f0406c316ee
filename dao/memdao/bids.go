package memdao

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gigpay-bend/dao"
	"gigpay-bend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type bidKey struct{ project, bidder primitive.ObjectID }

// BidStore is an in-memory dao.BidStore
type BidStore struct {
	mu    sync.RWMutex
	bids  map[primitive.ObjectID]models.Bid
	byKey map[bidKey]primitive.ObjectID
}

var _ dao.BidStore = (*BidStore)(nil)

// NewBidStore ...
func NewBidStore() *BidStore {
	return &BidStore{
		bids:  make(map[primitive.ObjectID]models.Bid),
		byKey: make(map[bidKey]primitive.ObjectID),
	}
}

// Insert ...
func (s *BidStore) Insert(_ context.Context, bid models.Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := bidKey{bid.ProjectID, bid.BidderID}
	if _, ok := s.byKey[key]; ok {
		return fmt.Errorf("%w: bidder already bid on project", models.ErrConflict)
	}
	if _, ok := s.bids[bid.ID]; ok {
		return fmt.Errorf("%w: bid %s exists", models.ErrConflict, bid.ID.Hex())
	}
	s.bids[bid.ID] = cloneBid(bid)
	s.byKey[key] = bid.ID
	return nil
}

// FindByID ...
func (s *BidStore) FindByID(_ context.Context, id primitive.ObjectID) (models.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bid, ok := s.bids[id]
	if !ok {
		return models.Bid{}, models.ErrNotFound
	}
	return cloneBid(bid), nil
}

// FindByProjectBidder ...
func (s *BidStore) FindByProjectBidder(ctx context.Context, projectID, bidderID primitive.ObjectID) (models.Bid, error) {
	s.mu.RLock()
	id, ok := s.byKey[bidKey{projectID, bidderID}]
	s.mu.RUnlock()
	if !ok {
		return models.Bid{}, models.ErrNotFound
	}
	return s.FindByID(ctx, id)
}

// SetPaymentStatus ...
func (s *BidStore) SetPaymentStatus(_ context.Context, id primitive.ObjectID, status models.BidPaymentStatus, intentID *primitive.ObjectID) error {
	return s.update(id, func(bid *models.Bid) {
		bid.PaymentStatus = status
		if intentID != nil {
			bid.Escrow.IntentID = clonePtr(intentID)
		}
		bid.UpdatedAt = time.Now().UTC()
	})
}

// SetLockedAt ...
func (s *BidStore) SetLockedAt(_ context.Context, id primitive.ObjectID, at time.Time) error {
	return s.update(id, func(bid *models.Bid) {
		bid.Escrow.LockedAt = &at
		bid.UpdatedAt = at
	})
}

func (s *BidStore) update(id primitive.ObjectID, fn func(*models.Bid)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bid, ok := s.bids[id]
	if !ok {
		return fmt.Errorf("%w: bid %s", models.ErrNotFound, id.Hex())
	}
	fn(&bid)
	s.bids[id] = bid
	return nil
}
