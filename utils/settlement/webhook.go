package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"gigpay-bend/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Webhook event types handled by the dispatcher
const (
	EventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	EventOrderCompleted   = "CHECKOUT.ORDER.COMPLETED"
	EventCaptureDenied    = "PAYMENT.CAPTURE.DENIED"
)

var webhookNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("gigpay-bend/webhooks"))

type webhookEvent struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	ResourceType string          `json:"resource_type"`
	Resource     webhookResource `json:"resource"`
}

type webhookResource struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID string `json:"id"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// orderAndPayment extracts the order and capture ids for the event type.
func (e webhookEvent) orderAndPayment() (string, string) {
	r := e.Resource
	if e.EventType == EventOrderCompleted {
		var paymentID string
		if len(r.PurchaseUnits) > 0 && len(r.PurchaseUnits[0].Payments.Captures) > 0 {
			paymentID = r.PurchaseUnits[0].Payments.Captures[0].ID
		}
		return r.ID, paymentID
	}
	return r.SupplementaryData.RelatedIDs.OrderID, r.ID
}

// WebhookResult is the acknowledgement of a webhook delivery
type WebhookResult struct {
	EventID   string  `json:"event_id"`
	EventType string  `json:"event_type"`
	Handled   bool    `json:"handled"`
	Duplicate bool    `json:"duplicate"`
	Result    *Result `json:"result,omitempty"`
}

// HandleWebhook verifies and processes a gateway webhook delivery. Nothing
// in an unverified payload is trusted. Redelivered events are processed
// again; every step is idempotent.
func (d *Dispatcher) HandleWebhook(ctx context.Context, payload []byte, header http.Header) (WebhookResult, error) {
	gctx, cancel := context.WithTimeout(ctx, d.timeout)
	ok, err := d.gateway.VerifyWebhookSignature(gctx, payload, header)
	cancel()
	if err != nil {
		d.logger.Warn("settlement: verify webhook signature", zap.Error(err))
		return WebhookResult{}, err
	}
	if !ok {
		d.logger.Warn("settlement: webhook signature rejected",
			zap.String("event", "security"),
			zap.Int("payload_bytes", len(payload)),
		)
		return WebhookResult{}, fmt.Errorf("%w: webhook signature verification failed", models.ErrSecurity)
	}

	var ev webhookEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return WebhookResult{}, fmt.Errorf("%w: malformed webhook payload: %v", models.ErrValidation, err)
	}
	if ev.ID == "" {
		ev.ID = uuid.NewSHA1(webhookNamespace, payload).String()
	}

	orderID, paymentID := ev.orderAndPayment()
	res := WebhookResult{EventID: ev.ID, EventType: ev.EventType}
	res.Duplicate, err = d.events.RecordWebhookEvent(ctx, models.WebhookEvent{
		ID:         primitive.NewObjectID(),
		EventID:    ev.ID,
		EventType:  ev.EventType,
		ResourceID: ev.Resource.ID,
		OrderID:    orderID,
		Verified:   true,
		ReceivedAt: d.nowFn(),
	})
	if err != nil {
		d.logger.Error("settlement: record webhook event", zap.String("event_id", ev.ID), zap.Error(err))
	}

	log := d.logger.With(
		zap.String("event_id", ev.ID),
		zap.String("event_type", ev.EventType),
		zap.String("order_id", orderID),
		zap.Bool("duplicate", res.Duplicate),
	)

	switch ev.EventType {
	case EventCaptureCompleted, EventOrderCompleted:
		if orderID == "" {
			return res, fmt.Errorf("%w: %s event without an order id", models.ErrValidation, ev.EventType)
		}
		out, err := d.ConfirmPayment(ctx, orderID, paymentID)
		if errors.Is(err, models.ErrNotFound) {
			log.Warn("settlement: webhook for unknown order")
			return res, nil
		}
		if errors.Is(err, models.ErrInvalidState) {
			// the gap is recorded on the intent, redelivery cannot help
			log.Warn("settlement: webhook for a closed intent", zap.Error(err))
			return res, nil
		}
		if err != nil {
			return res, err
		}
		res.Handled = true
		res.Result = &out
		log.Info("settlement: webhook confirmed payment", zap.Bool("applied", out.Applied), zap.Bool("replay", out.Replay))

	case EventCaptureDenied:
		intent, err := d.ledger.GetByOrderID(ctx, orderID)
		if errors.Is(err, models.ErrNotFound) {
			log.Warn("settlement: webhook for unknown order")
			return res, nil
		}
		if err != nil {
			return res, err
		}
		failed, err := d.ledger.MarkFailed(ctx, intent.ID, "capture denied by gateway")
		if errors.Is(err, models.ErrInvalidState) {
			d.gap(ctx, intent, "webhook", "capture denied for a "+string(intent.Status)+" intent")
			return res, nil
		}
		if err != nil {
			return res, err
		}
		res.Handled = failed
		log.Info("settlement: payment failed", zap.String("intent_id", intent.ID.Hex()))

	default:
		log.Debug("settlement: webhook ignored")
	}
	return res, nil
}
