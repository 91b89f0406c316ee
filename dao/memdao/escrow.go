package memdao

import (
	"context"
	"fmt"
	"sync"

	"gigpay-bend/dao"
	"gigpay-bend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EscrowStore is an in-memory dao.EscrowStore keyed by project
type EscrowStore struct {
	mu      sync.RWMutex
	wallets map[primitive.ObjectID]models.EscrowWallet
}

var _ dao.EscrowStore = (*EscrowStore)(nil)

// NewEscrowStore ...
func NewEscrowStore() *EscrowStore {
	return &EscrowStore{wallets: make(map[primitive.ObjectID]models.EscrowWallet)}
}

// FindByProject ...
func (s *EscrowStore) FindByProject(_ context.Context, projectID primitive.ObjectID) (models.EscrowWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[projectID]
	if !ok {
		return models.EscrowWallet{}, models.ErrNotFound
	}
	return cloneWallet(w), nil
}

// Insert ...
func (s *EscrowStore) Insert(_ context.Context, wallet models.EscrowWallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.wallets[wallet.ProjectID]; ok {
		return fmt.Errorf("%w: project %s already has a wallet", models.ErrConflict, wallet.ProjectID.Hex())
	}
	s.wallets[wallet.ProjectID] = cloneWallet(wallet)
	return nil
}

// Replace ...
func (s *EscrowStore) Replace(_ context.Context, wallet models.EscrowWallet, expected int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.wallets[wallet.ProjectID]
	if !ok || cur.ID != wallet.ID || cur.Version != expected {
		return dao.ErrStaleVersion
	}
	s.wallets[wallet.ProjectID] = cloneWallet(wallet)
	return nil
}
