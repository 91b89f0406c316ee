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

// UserStore is an in-memory dao.UserStore
type UserStore struct {
	mu    sync.RWMutex
	users map[primitive.ObjectID]models.User
}

var _ dao.UserStore = (*UserStore)(nil)

// NewUserStore ...
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[primitive.ObjectID]models.User)}
}

// Put stores user as-is. Accounts are owned by the profile component, so
// this exists for seeding.
func (s *UserStore) Put(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = cloneUser(user)
}

// FindByID ...
func (s *UserStore) FindByID(_ context.Context, id primitive.ObjectID) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, models.ErrNotFound
	}
	return cloneUser(user), nil
}

// ConsumeFreeBid ...
func (s *UserStore) ConsumeFreeBid(_ context.Context, id primitive.ObjectID, allowance int) (models.FreeBidQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return models.FreeBidQuota{}, models.ErrNotFound
	}
	quota := models.FreeBidQuota{Remaining: allowance}
	if user.FreeBids != nil {
		quota = *user.FreeBids
	}
	if quota.Remaining <= 0 {
		return models.FreeBidQuota{}, fmt.Errorf("%w: no free bids remaining", models.ErrConflict)
	}

	quota.Remaining--
	quota.Used++
	user.FreeBids = &quota
	user.UpdatedAt = time.Now().UTC()
	s.users[id] = user
	return quota, nil
}

// RestoreFreeBid ...
func (s *UserStore) RestoreFreeBid(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok || user.FreeBids == nil || user.FreeBids.Used == 0 {
		return nil
	}
	quota := *user.FreeBids
	quota.Remaining++
	quota.Used--
	user.FreeBids = &quota
	s.users[id] = user
	return nil
}

// SaveSubscription ...
func (s *UserStore) SaveSubscription(_ context.Context, id primitive.ObjectID, profile models.SubscriptionProfile, prevIntentID primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return false, nil
	}
	var stored primitive.ObjectID
	if user.Subscription != nil {
		stored = user.Subscription.LastIntentID
	}
	if stored != prevIntentID {
		return false, nil
	}

	p := profile
	p.Features = append([]string(nil), profile.Features...)
	user.Subscription = &p
	user.UpdatedAt = time.Now().UTC()
	s.users[id] = user
	return true, nil
}
