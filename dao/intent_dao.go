package dao

import (
	"context"
	"fmt"
	"time"

	"gigpay-bend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// IntentDAO stores payment intents in mongo
type IntentDAO struct {
	Collection *mongo.Collection
}

// NewIntentDAO returns a configured IntentDAO
func NewIntentDAO(db *mongo.Database) *IntentDAO {
	return &IntentDAO{Collection: db.Collection(intentsCollection)}
}

// Insert an intent into database
func (dao *IntentDAO) Insert(ctx context.Context, intent models.PaymentIntent) error {
	_, err := dao.Collection.InsertOne(ctx, intent)
	return mapErr(err)
}

// FindByID ...
func (dao *IntentDAO) FindByID(ctx context.Context, id primitive.ObjectID) (models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := dao.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&intent)
	return intent, mapErr(err)
}

// FindByOrderID gets the intent an order was attached to
func (dao *IntentDAO) FindByOrderID(ctx context.Context, orderID string) (models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := dao.Collection.FindOne(ctx, bson.M{"external_order_id": orderID}).Decode(&intent)
	return intent, mapErr(err)
}

// Query returns intents matching filter, oldest first
func (dao *IntentDAO) Query(ctx context.Context, filter IntentFilter) ([]models.PaymentIntent, error) {
	q := bson.M{}
	if filter.Purpose != "" {
		q["purpose"] = filter.Purpose
	}
	if !filter.OwnerID.IsZero() {
		q["owner_id"] = filter.OwnerID
	}
	if filter.ProjectID != nil {
		q["project_id"] = *filter.ProjectID
	}
	if len(filter.Statuses) > 0 {
		q["status"] = bson.M{"$in": filter.Statuses}
	}
	if filter.HasOrder != nil {
		q["external_order_id"] = bson.M{"$exists": *filter.HasOrder}
	}
	if filter.Unsettled {
		q["settlement.applied"] = bson.M{"$ne": true}
		q["settlement.refund_due"] = bson.M{"$ne": true}
	}
	if !filter.UpdatedBefore.IsZero() {
		q["updated_at"] = bson.M{"$lt": filter.UpdatedBefore}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := dao.Collection.Find(ctx, q, opts)
	if err != nil {
		return nil, err
	}
	var intents []models.PaymentIntent
	err = cursor.All(ctx, &intents)
	return intents, err
}

// SetOrderID ...
func (dao *IntentDAO) SetOrderID(ctx context.Context, id primitive.ObjectID, orderID string, at time.Time) (bool, error) {
	res, err := dao.Collection.UpdateOne(ctx,
		bson.M{
			"_id":               id,
			"status":            models.IntentCreated,
			"external_order_id": bson.M{"$exists": false},
		},
		bson.M{"$set": bson.M{
			"external_order_id": orderID,
			"order_attached_at": at,
			"updated_at":        at,
		}},
	)
	if err != nil {
		return false, mapErr(err)
	}
	return res.MatchedCount == 1, nil
}

// UpdateStatus ...
func (dao *IntentDAO) UpdateStatus(ctx context.Context, id primitive.ObjectID, from models.IntentStatus, change StatusChange) (bool, error) {
	filter := bson.M{"_id": id, "status": from}
	if change.RequireOrder {
		filter["external_order_id"] = bson.M{"$exists": true}
	}

	set := bson.M{"status": change.To, "updated_at": change.At}
	switch change.To {
	case models.IntentPaid:
		set["paid_at"] = change.At
		if change.PaymentID != "" {
			set["external_payment_id"] = change.PaymentID
		}
	case models.IntentFailed:
		set["failed_at"] = change.At
		set["failure_reason"] = change.FailureReason
	case models.IntentRefunded:
		if change.Refund != nil {
			set["refund"] = change.Refund
		}
	}

	res, err := dao.Collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// AppendReconciliation pushes entry onto the intent's reconciliation notes
func (dao *IntentDAO) AppendReconciliation(ctx context.Context, id primitive.ObjectID, entry models.ReconciliationEntry) error {
	res, err := dao.Collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$push": bson.M{"notes.reconciliation": entry},
			"$set":  bson.M{"updated_at": entry.CreatedAt},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: intent %s", models.ErrNotFound, id.Hex())
	}
	return nil
}

// SetSettlement ...
func (dao *IntentDAO) SetSettlement(ctx context.Context, id primitive.ObjectID, outcome models.SettlementOutcome) error {
	res, err := dao.Collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"settlement": outcome, "updated_at": outcome.UpdatedAt}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: intent %s", models.ErrNotFound, id.Hex())
	}
	return nil
}
