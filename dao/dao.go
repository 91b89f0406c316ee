package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gigpay-bend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names
const (
	intentsCollection       = "payment_intents"
	bidsCollection          = "bids"
	walletsCollection       = "escrow_wallets"
	bonusPoolsCollection    = "bonus_pools"
	usersCollection         = "user"
	projectsCollection      = "projects"
	webhookEventsCollection = "webhook_events"
	notificationsCollection = "notifications"
)

// Initialize a connection
func Initialize(dbURI, user, serverPass string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOpts := options.Client().ApplyURI(dbURI).SetRegistry(Registry())
	if user != "" {
		clientOpts.SetAuth(options.Credential{
			AuthMechanism: "SCRAM-SHA-1",
			Username:      user,
			Password:      serverPass,
		})
	}
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, err
	}

	// ping primary
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, err
	}

	return client, nil
}

// EnsureIndexes creates the unique indexes the engine relies on for
// idempotency: one order per intent, one bid per (project, bidder), one
// wallet per project, one bonus pool per funding intent, one row per
// webhook event.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	unique := func() *options.IndexOptions { return options.Index().SetUnique(true) }
	specs := map[string][]mongo.IndexModel{
		intentsCollection: {
			{Keys: bson.D{{Key: "external_order_id", Value: 1}}, Options: unique().SetSparse(true)},
			{Keys: bson.D{
				{Key: "purpose", Value: 1},
				{Key: "owner_id", Value: 1},
				{Key: "project_id", Value: 1},
				{Key: "status", Value: 1},
			}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}}},
		},
		bidsCollection: {
			{Keys: bson.D{{Key: "project_id", Value: 1}, {Key: "bidder_id", Value: 1}}, Options: unique()},
		},
		walletsCollection: {
			{Keys: bson.D{{Key: "project_id", Value: 1}}, Options: unique()},
		},
		bonusPoolsCollection: {
			{Keys: bson.D{{Key: "funding_intent_id", Value: 1}}, Options: unique()},
		},
		webhookEventsCollection: {
			{Keys: bson.D{{Key: "event_id", Value: 1}}, Options: unique()},
		},
	}

	for name, models := range specs {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

// mapErr translates driver errors into the engine's error kinds
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return models.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", models.ErrConflict, err)
	}
	return err
}
