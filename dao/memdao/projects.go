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

// ListingFlag is the payment state of a project listing
type ListingFlag struct {
	Paid     bool
	IntentID primitive.ObjectID
	PaidAt   time.Time
}

// ProjectStore is an in-memory dao.ProjectStore
type ProjectStore struct {
	mu       sync.RWMutex
	projects map[primitive.ObjectID]ListingFlag
}

var _ dao.ProjectStore = (*ProjectStore)(nil)

// NewProjectStore ...
func NewProjectStore() *ProjectStore {
	return &ProjectStore{projects: make(map[primitive.ObjectID]ListingFlag)}
}

// Add registers a project with an unpaid listing
func (s *ProjectStore) Add(projectID primitive.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[projectID]; !ok {
		s.projects[projectID] = ListingFlag{}
	}
}

// Listing returns the listing flag of a project
func (s *ProjectStore) Listing(projectID primitive.ObjectID) (ListingFlag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.projects[projectID]
	return f, ok
}

// MarkListingFeePaid ...
func (s *ProjectStore) MarkListingFeePaid(_ context.Context, projectID, intentID primitive.ObjectID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[projectID]; !ok {
		return fmt.Errorf("%w: project %s", models.ErrNotFound, projectID.Hex())
	}
	s.projects[projectID] = ListingFlag{Paid: true, IntentID: intentID, PaidAt: at}
	return nil
}
