package settlement

import (
	"context"
	"errors"
	"time"

	"gigpay-bend/dao"
	"gigpay-bend/models"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const reconcileBatch = 100

// ReconcileReport counts what one reconciliation pass did
type ReconcileReport struct {
	Retried   int
	Deferred  int
	Confirmed int
	Expired   int
}

// ReconcileJob polls the intents collection and heals what the request
// path left behind: unsettled effects, missed webhooks and abandoned
// checkouts. It runs until ctx is done.
func (d *Dispatcher) ReconcileJob(ctx context.Context, interval time.Duration) {
	d.logger.Info("starting payment reconciliation job", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		rep := d.reconcileOnce(ctx)
		if rep != (ReconcileReport{}) {
			d.logger.Info("settlement: reconciliation pass",
				zap.Int("retried", rep.Retried),
				zap.Int("deferred", rep.Deferred),
				zap.Int("confirmed", rep.Confirmed),
				zap.Int("expired", rep.Expired),
			)
		}

		select {
		case <-ctx.Done():
			d.logger.Info("stopping payment reconciliation job")
			return
		case <-ticker.C:
		}
	}
}

func (d *Dispatcher) reconcileOnce(ctx context.Context) ReconcileReport {
	var rep ReconcileReport
	now := d.nowFn()

	unsettled, err := d.ledger.Find(ctx, dao.IntentFilter{
		Statuses:  []models.IntentStatus{models.IntentPaid},
		Unsettled: true,
		Limit:     reconcileBatch,
	})
	if err != nil {
		d.logger.Error("settlement: query unsettled intents", zap.Error(err))
	}
	for _, intent := range unsettled {
		if ctx.Err() != nil {
			return rep
		}
		if !retryDue(intent.Settlement, now) {
			rep.Deferred++
			continue
		}
		rep.Retried++
		d.apply(ctx, intent)
	}

	hasOrder := true
	stale, err := d.ledger.Find(ctx, dao.IntentFilter{
		Statuses:      []models.IntentStatus{models.IntentCreated},
		HasOrder:      &hasOrder,
		UpdatedBefore: now.Add(-d.staleAfter),
		Limit:         reconcileBatch,
	})
	if err != nil {
		d.logger.Error("settlement: query stale intents", zap.Error(err))
	}
	for _, intent := range stale {
		if ctx.Err() != nil {
			return rep
		}
		_, err := d.VerifyOrder(ctx, intent.ExternalOrderID)
		switch {
		case err == nil:
			rep.Confirmed++
		case errors.Is(err, models.ErrNotVerified):
		default:
			d.logger.Warn("settlement: poll stale order", zap.String("order_id", intent.ExternalOrderID), zap.Error(err))
		}
	}

	noOrder := false
	abandoned, err := d.ledger.Find(ctx, dao.IntentFilter{
		Statuses:      []models.IntentStatus{models.IntentCreated},
		HasOrder:      &noOrder,
		UpdatedBefore: now.Add(-d.expireAfter),
		Limit:         reconcileBatch,
	})
	if err != nil {
		d.logger.Error("settlement: query abandoned intents", zap.Error(err))
	}
	for _, intent := range abandoned {
		failed, err := d.ledger.MarkFailed(ctx, intent.ID, "expired before a gateway order was created")
		if err != nil {
			d.logger.Warn("settlement: expire intent", zap.String("intent_id", intent.ID.Hex()), zap.Error(err))
			continue
		}
		if failed {
			rep.Expired++
		}
	}
	return rep
}

// retryDue spaces effect retries out exponentially by attempt count.
func retryDue(s *models.SettlementOutcome, now time.Time) bool {
	if s == nil || s.Attempts == 0 {
		return true
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 30 * time.Second
	b.MaxInterval = time.Hour
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	wait := b.NextBackOff()
	for i := 1; i < s.Attempts; i++ {
		wait = b.NextBackOff()
	}
	return !now.Before(s.UpdatedAt.Add(wait))
}
