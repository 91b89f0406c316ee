package dao

import (
	"context"

	"gigpay-bend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// EscrowDAO stores escrow wallets in mongo
type EscrowDAO struct {
	Collection *mongo.Collection
}

// NewEscrowDAO returns a configured EscrowDAO
func NewEscrowDAO(db *mongo.Database) *EscrowDAO {
	return &EscrowDAO{Collection: db.Collection(walletsCollection)}
}

// FindByProject ...
func (dao *EscrowDAO) FindByProject(ctx context.Context, projectID primitive.ObjectID) (models.EscrowWallet, error) {
	var wallet models.EscrowWallet
	err := dao.Collection.FindOne(ctx, bson.M{"project_id": projectID}).Decode(&wallet)
	return wallet, mapErr(err)
}

// Insert a wallet into database
func (dao *EscrowDAO) Insert(ctx context.Context, wallet models.EscrowWallet) error {
	_, err := dao.Collection.InsertOne(ctx, wallet)
	return mapErr(err)
}

// Replace ...
func (dao *EscrowDAO) Replace(ctx context.Context, wallet models.EscrowWallet, expected int64) error {
	res, err := dao.Collection.ReplaceOne(ctx, bson.M{"_id": wallet.ID, "version": expected}, wallet)
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return ErrStaleVersion
	}
	return nil
}
