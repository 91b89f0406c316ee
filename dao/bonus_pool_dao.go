package dao

import (
	"context"
	"time"

	"gigpay-bend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// BonusPoolDAO stores bonus pools in mongo
type BonusPoolDAO struct {
	Collection *mongo.Collection
}

// NewBonusPoolDAO returns a configured BonusPoolDAO
func NewBonusPoolDAO(db *mongo.Database) *BonusPoolDAO {
	return &BonusPoolDAO{Collection: db.Collection(bonusPoolsCollection)}
}

// Insert a pool into database
func (dao *BonusPoolDAO) Insert(ctx context.Context, pool models.BonusPool) error {
	_, err := dao.Collection.InsertOne(ctx, pool)
	return mapErr(err)
}

// FindByID ...
func (dao *BonusPoolDAO) FindByID(ctx context.Context, id primitive.ObjectID) (models.BonusPool, error) {
	var pool models.BonusPool
	err := dao.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&pool)
	return pool, mapErr(err)
}

// FindByIntentID ...
func (dao *BonusPoolDAO) FindByIntentID(ctx context.Context, intentID primitive.ObjectID) (models.BonusPool, error) {
	var pool models.BonusPool
	err := dao.Collection.FindOne(ctx, bson.M{"funding_intent_id": intentID}).Decode(&pool)
	return pool, mapErr(err)
}

// MarkSeeded ...
func (dao *BonusPoolDAO) MarkSeeded(ctx context.Context, id, projectID primitive.ObjectID, at time.Time) (bool, error) {
	res, err := dao.Collection.UpdateOne(ctx,
		bson.M{"_id": id, "project_id": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"project_id": projectID, "seeded_at": at, "updated_at": at}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}
