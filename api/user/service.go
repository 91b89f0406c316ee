package user

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"gigpay-bend/dao"
	"gigpay-bend/models"
	"gigpay-bend/utils"
	"gigpay-bend/utils/fees"

	"go.uber.org/zap"
)

// Service represents the User Service
type Service struct {
	users    dao.UserStore
	events   dao.EventLog
	resolver *fees.Resolver
	logger   *zap.Logger
}

// NewUserService returns a user service object
func NewUserService(users dao.UserStore, events dao.EventLog, resolver *fees.Resolver, logger *zap.Logger) *Service {
	return &Service{users: users, events: events, resolver: resolver, logger: logger}
}

// Billing is the user's current fee-relevant account state
type Billing struct {
	FreeBidsRemaining  int                         `json:"free_bids_remaining"`
	SubscriptionActive bool                        `json:"subscription_active"`
	Subscription       *models.SubscriptionProfile `json:"subscription,omitempty"`
}

// Billing returns the free-bid quota and subscription of the user
func (s *Service) Billing(w http.ResponseWriter, r *http.Request) {
	uid, err := utils.RequestUserID(r)
	if err != nil {
		utils.RespondWithAppError(w, err)
		return
	}

	user, err := s.users.FindByID(r.Context(), uid)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			utils.RespondWithError(w, http.StatusNotFound, "User not found")
			return
		}
		s.logger.Error("billing: retrieve user", zap.String("user_id", uid.Hex()), zap.Error(err))
		utils.RespondWithError(w, http.StatusInternalServerError, "Error processing request")
		return
	}

	utils.RespondWithData(w, http.StatusOK, "", Billing{
		FreeBidsRemaining:  s.resolver.FreeBidsRemaining(user),
		SubscriptionActive: user.Subscription.ActiveAt(time.Now()),
		Subscription:       user.Subscription,
	})
}

// Notifications returns the user's latest notifications. ?limit caps the
// count, 50 by default.
func (s *Service) Notifications(w http.ResponseWriter, r *http.Request) {
	uid, err := utils.RequestUserID(r)
	if err != nil {
		utils.RespondWithAppError(w, err)
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 200 {
			utils.RespondWithError(w, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	notifications, err := s.events.ListNotifications(r.Context(), uid, limit)
	if err != nil {
		s.logger.Error("failed to retrieve user notifications", zap.Error(err))
		utils.RespondWithError(w, http.StatusBadRequest, "Error retrieving notifications")
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	utils.RespondWithData(w, http.StatusOK, "", notifications)
}
