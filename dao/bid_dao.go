package dao

import (
	"context"
	"fmt"
	"time"

	"gigpay-bend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// BidDAO stores bids in mongo
type BidDAO struct {
	Collection *mongo.Collection
}

// NewBidDAO returns a configured BidDAO
func NewBidDAO(db *mongo.Database) *BidDAO {
	return &BidDAO{Collection: db.Collection(bidsCollection)}
}

// Insert a bid into database
func (dao *BidDAO) Insert(ctx context.Context, bid models.Bid) error {
	_, err := dao.Collection.InsertOne(ctx, bid)
	return mapErr(err)
}

// FindByID ...
func (dao *BidDAO) FindByID(ctx context.Context, id primitive.ObjectID) (models.Bid, error) {
	var bid models.Bid
	err := dao.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&bid)
	return bid, mapErr(err)
}

// FindByProjectBidder ...
func (dao *BidDAO) FindByProjectBidder(ctx context.Context, projectID, bidderID primitive.ObjectID) (models.Bid, error) {
	var bid models.Bid
	err := dao.Collection.FindOne(ctx, bson.M{"project_id": projectID, "bidder_id": bidderID}).Decode(&bid)
	return bid, mapErr(err)
}

// SetPaymentStatus ...
func (dao *BidDAO) SetPaymentStatus(ctx context.Context, id primitive.ObjectID, status models.BidPaymentStatus, intentID *primitive.ObjectID) error {
	set := bson.M{"payment_status": status, "updated_at": time.Now().UTC()}
	if intentID != nil {
		set["escrow.intent_id"] = *intentID
	}
	return dao.update(ctx, id, set)
}

// SetLockedAt records when the bid's funds were locked in escrow
func (dao *BidDAO) SetLockedAt(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	return dao.update(ctx, id, bson.M{"escrow.locked_at": at, "updated_at": at})
}

func (dao *BidDAO) update(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	res, err := dao.Collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: bid %s", models.ErrNotFound, id.Hex())
	}
	return nil
}
