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

// BonusPoolStore is an in-memory dao.BonusPoolStore
type BonusPoolStore struct {
	mu       sync.RWMutex
	pools    map[primitive.ObjectID]models.BonusPool
	byIntent map[primitive.ObjectID]primitive.ObjectID
}

var _ dao.BonusPoolStore = (*BonusPoolStore)(nil)

// NewBonusPoolStore ...
func NewBonusPoolStore() *BonusPoolStore {
	return &BonusPoolStore{
		pools:    make(map[primitive.ObjectID]models.BonusPool),
		byIntent: make(map[primitive.ObjectID]primitive.ObjectID),
	}
}

// Insert ...
func (s *BonusPoolStore) Insert(_ context.Context, pool models.BonusPool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byIntent[pool.FundingIntentID]; ok {
		return fmt.Errorf("%w: intent %s already funded a pool", models.ErrConflict, pool.FundingIntentID.Hex())
	}
	s.pools[pool.ID] = clonePool(pool)
	s.byIntent[pool.FundingIntentID] = pool.ID
	return nil
}

// FindByID ...
func (s *BonusPoolStore) FindByID(_ context.Context, id primitive.ObjectID) (models.BonusPool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pool, ok := s.pools[id]
	if !ok {
		return models.BonusPool{}, models.ErrNotFound
	}
	return clonePool(pool), nil
}

// FindByIntentID ...
func (s *BonusPoolStore) FindByIntentID(ctx context.Context, intentID primitive.ObjectID) (models.BonusPool, error) {
	s.mu.RLock()
	id, ok := s.byIntent[intentID]
	s.mu.RUnlock()
	if !ok {
		return models.BonusPool{}, models.ErrNotFound
	}
	return s.FindByID(ctx, id)
}

// MarkSeeded ...
func (s *BonusPoolStore) MarkSeeded(_ context.Context, id, projectID primitive.ObjectID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, ok := s.pools[id]
	if !ok || pool.ProjectID != nil {
		return false, nil
	}
	pool.ProjectID = &projectID
	pool.SeededAt = &at
	pool.UpdatedAt = at
	s.pools[id] = pool
	return true, nil
}
