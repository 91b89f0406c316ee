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

// ProjectDAO writes the payment flags on project documents. The rest of the
// project document belongs to the project component.
type ProjectDAO struct {
	Collection *mongo.Collection
}

// NewProjectDAO returns a configured ProjectDAO
func NewProjectDAO(db *mongo.Database) *ProjectDAO {
	return &ProjectDAO{Collection: db.Collection(projectsCollection)}
}

// MarkListingFeePaid ...
func (dao *ProjectDAO) MarkListingFeePaid(ctx context.Context, projectID, intentID primitive.ObjectID, at time.Time) error {
	res, err := dao.Collection.UpdateOne(ctx,
		bson.M{"_id": projectID},
		bson.M{"$set": bson.M{
			"listing_fee_paid":  true,
			"listing_intent_id": intentID,
			"listing_paid_at":   at,
			"updated_at":        at,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: project %s", models.ErrNotFound, projectID.Hex())
	}
	return nil
}
