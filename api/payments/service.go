package payments

import (
	"net/http"

	"gigpay-bend/models"
	"gigpay-bend/utils"
	"gigpay-bend/utils/ledger"
	"gigpay-bend/utils/payments"
	"gigpay-bend/utils/settlement"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Service represents the Payments Service
type Service struct {
	payments   *payments.Payments
	ledger     *ledger.Ledger
	dispatcher *settlement.Dispatcher
	logger     *zap.Logger
}

// NewPaymentsService returns a new payments service
func NewPaymentsService(p *payments.Payments, l *ledger.Ledger, d *settlement.Dispatcher, logger *zap.Logger) *Service {
	return &Service{payments: p, ledger: l, dispatcher: d, logger: logger}
}

// checkout runs a paid action for the authenticated user. A gateway
// failure is reported as pending: the intent stays open and is reused.
func checkout[T any](s *Service, w http.ResponseWriter, r *http.Request, name string, run func(primitive.ObjectID, T) (models.Checkout, error)) {
	var req T
	if err := utils.DecodeReq(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request data sent")
		return
	}
	uid, err := utils.RequestUserID(r)
	if err != nil {
		utils.RespondWithAppError(w, err)
		return
	}

	out, err := run(uid, req)
	if err != nil {
		s.logger.Info(name+": rejected", zap.String("user_id", uid.Hex()), zap.Error(err))
		utils.RespondWithAppError(w, err)
		return
	}

	code := http.StatusCreated
	if out.OrderID == "" {
		code = http.StatusOK
	}
	utils.RespondWithData(w, code, out.Reason, out)
}

// ResolveFee quotes the fee of an action without side effects
func (s *Service) ResolveFee(w http.ResponseWriter, r *http.Request) {
	var req models.FeeQuoteReq
	if err := utils.DecodeReq(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request data sent")
		return
	}
	uid, err := utils.RequestUserID(r)
	if err != nil {
		utils.RespondWithAppError(w, err)
		return
	}

	q, err := s.payments.Quote(r.Context(), uid, req)
	if err != nil {
		utils.RespondWithAppError(w, err)
		return
	}
	utils.RespondWithData(w, http.StatusOK, q.Reason, q)
}

// PlaceBid ...
func (s *Service) PlaceBid(w http.ResponseWriter, r *http.Request) {
	checkout(s, w, r, "place_bid", func(uid primitive.ObjectID, req models.PlaceBidReq) (models.Checkout, error) {
		return s.payments.PlaceBid(r.Context(), uid, req)
	})
}

// PayListingFee ...
func (s *Service) PayListingFee(w http.ResponseWriter, r *http.Request) {
	checkout(s, w, r, "listing_fee", func(uid primitive.ObjectID, req models.ListingFeeReq) (models.Checkout, error) {
		return s.payments.PayListingFee(r.Context(), uid, req)
	})
}

// FundBonusPool ...
func (s *Service) FundBonusPool(w http.ResponseWriter, r *http.Request) {
	checkout(s, w, r, "bonus_pool", func(uid primitive.ObjectID, req models.BonusFundingReq) (models.Checkout, error) {
		return s.payments.FundBonusPool(r.Context(), uid, req)
	})
}

// Subscribe ...
func (s *Service) Subscribe(w http.ResponseWriter, r *http.Request) {
	checkout(s, w, r, "subscribe", func(uid primitive.ObjectID, req models.SubscribeReq) (models.Checkout, error) {
		return s.payments.Subscribe(r.Context(), uid, req)
	})
}

// RequestWithdrawal ...
func (s *Service) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	checkout(s, w, r, "withdrawal", func(uid primitive.ObjectID, req models.WithdrawalReq) (models.Checkout, error) {
		return s.payments.RequestWithdrawal(r.Context(), uid, req)
	})
}

// ViewIntent returns one of the user's payment intents
func (s *Service) ViewIntent(w http.ResponseWriter, r *http.Request) {
	uid, err := utils.RequestUserID(r)
	if err != nil {
		utils.RespondWithAppError(w, err)
		return
	}
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid payment ID")
		return
	}

	intent, err := s.ledger.Get(r.Context(), id)
	if err != nil || intent.OwnerID != uid {
		utils.RespondWithError(w, http.StatusNotFound, "Payment not found")
		return
	}
	utils.RespondWithData(w, http.StatusOK, "", intent)
}

// RefundIntent refunds a paid intent (admin)
func (s *Service) RefundIntent(w http.ResponseWriter, r *http.Request) {
	var req models.RefundReq
	if err := utils.DecodeReq(r, &req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request data sent")
		return
	}
	id := mux.Vars(r)["id"]

	meta, err := s.dispatcher.RefundIntent(r.Context(), id, req.Reason)
	if err != nil {
		s.logger.Warn("refund_intent: failed", zap.String("intent_id", id), zap.Error(err))
		utils.RespondWithAppError(w, err)
		return
	}
	utils.RespondWithData(w, http.StatusOK, "Payment refunded", meta)
}

// RetryEffect re-applies the effect of a paid, unsettled intent (admin)
func (s *Service) RetryEffect(w http.ResponseWriter, r *http.Request) {
	res, err := s.dispatcher.RetryEffect(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		utils.RespondWithAppError(w, err)
		return
	}
	utils.RespondWithData(w, http.StatusOK, res.EffectSummary, res)
}
