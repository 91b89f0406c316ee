package callbacks

import (
	"errors"
	"net/http"

	"gigpay-bend/models"
	"gigpay-bend/utils"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// PaypalWebhook receives gateway webhook deliveries. Anything but a 2xx
// makes the gateway redeliver, so only retryable failures answer 5xx.
func (s *Service) PaypalWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := utils.ReadBody(r)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request data detected")
		return
	}

	res, err := s.dispatcher.HandleWebhook(r.Context(), payload, r.Header)
	switch {
	case err == nil:
		utils.RespondWithData(w, http.StatusOK, "Webhook processed", res)
	case errors.Is(err, models.ErrSecurity):
		utils.RespondWithError(w, http.StatusUnauthorized, "Invalid webhook signature")
	case errors.Is(err, models.ErrValidation):
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("paypal_webhook: processing failed", zap.String("event_id", res.EventID), zap.Error(err))
		utils.RespondWithError(w, http.StatusServiceUnavailable, "Webhook could not be processed, retry later")
	}
}

// ConfirmPaypalPayment is polled by the client after approving an order.
// It confirms the order with the gateway before applying anything.
func (s *Service) ConfirmPaypalPayment(w http.ResponseWriter, r *http.Request) {
	var req models.ConfirmOrderReq
	if err := utils.DecodeReq(r, &req); err != nil || req.OrderID == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request data detected")
		return
	}

	res, err := s.dispatcher.VerifyOrder(r.Context(), req.OrderID)
	if err != nil {
		if !errors.Is(err, models.ErrGateway) {
			s.logger.Info("paypal_confirm: rejected", zap.String("order_id", req.OrderID), zap.Error(err))
		}
		utils.RespondWithAppError(w, err)
		return
	}

	msg := "Order confirmed"
	if !res.Applied {
		msg = utils.PendingMessage
	}
	utils.RespondWithData(w, http.StatusOK, msg, res)
}

// FakeApprove simulates buyer approval and capture of an order on the fake
// gateway, for local runs.
func (s *Service) FakeApprove(w http.ResponseWriter, r *http.Request) {
	if s.fake == nil {
		utils.RespondWithError(w, http.StatusNotFound, "Not found")
		return
	}
	orderID := mux.Vars(r)["orderId"]
	captureID, err := s.fake.CompleteOrder(orderID)
	if err != nil {
		utils.RespondWithAppError(w, err)
		return
	}
	utils.RespondWithData(w, http.StatusOK, "Order approved", map[string]string{
		"order_id":   orderID,
		"payment_id": captureID,
	})
}
