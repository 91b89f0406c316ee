package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gigpay-bend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserDAO represents a user DAO
type UserDAO struct {
	Collection *mongo.Collection
}

// NewUserDAO returns a configured UserDAO
func NewUserDAO(db *mongo.Database) *UserDAO {
	return &UserDAO{Collection: db.Collection(usersCollection)}
}

// FindByID ... get a user by its id
func (dao *UserDAO) FindByID(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	var user models.User
	err := dao.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	return user, mapErr(err)
}

// ConsumeFreeBid ...
func (dao *UserDAO) ConsumeFreeBid(ctx context.Context, id primitive.ObjectID, allowance int) (models.FreeBidQuota, error) {
	now := time.Now().UTC()

	// first free bid: the quota is created already decremented
	if allowance > 0 {
		quota := models.FreeBidQuota{Remaining: allowance - 1, Used: 1}
		res, err := dao.Collection.UpdateOne(ctx,
			bson.M{"_id": id, "free_bids": nil},
			bson.M{"$set": bson.M{"free_bids": quota, "updated_at": now}},
		)
		if err != nil {
			return models.FreeBidQuota{}, err
		}
		if res.MatchedCount == 1 {
			return quota, nil
		}
	}

	var user models.User
	err := dao.Collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "free_bids.remaining": bson.M{"$gt": 0}},
		bson.M{
			"$inc": bson.M{"free_bids.remaining": -1, "free_bids.used": 1},
			"$set": bson.M{"updated_at": now},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, err := dao.FindByID(ctx, id); err != nil {
			return models.FreeBidQuota{}, err
		}
		return models.FreeBidQuota{}, fmt.Errorf("%w: no free bids remaining", models.ErrConflict)
	}
	if err != nil {
		return models.FreeBidQuota{}, err
	}
	return *user.FreeBids, nil
}

// RestoreFreeBid gives back a free bid consumed by a bid that was never stored
func (dao *UserDAO) RestoreFreeBid(ctx context.Context, id primitive.ObjectID) error {
	_, err := dao.Collection.UpdateOne(ctx,
		bson.M{"_id": id, "free_bids.used": bson.M{"$gt": 0}},
		bson.M{
			"$inc": bson.M{"free_bids.remaining": 1, "free_bids.used": -1},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
	)
	return err
}

// SaveSubscription ...
func (dao *UserDAO) SaveSubscription(ctx context.Context, id primitive.ObjectID, profile models.SubscriptionProfile, prevIntentID primitive.ObjectID) (bool, error) {
	filter := bson.M{"_id": id}
	if prevIntentID.IsZero() {
		filter["$or"] = bson.A{
			bson.M{"subscription": nil},
			bson.M{"subscription.last_intent_id": primitive.NilObjectID},
		}
	} else {
		filter["subscription.last_intent_id"] = prevIntentID
	}

	res, err := dao.Collection.UpdateOne(ctx, filter,
		bson.M{"$set": bson.M{"subscription": profile, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}
