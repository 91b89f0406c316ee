package dao

import (
	"context"
	"errors"

	"gigpay-bend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EventDAO scaffolds the audit collections: webhook deliveries and
// persisted notifications.
type EventDAO struct {
	db          *mongo.Database
	Collections map[string]*mongo.Collection
}

// NewEventDAO returns a new EventDAO
func NewEventDAO(db *mongo.Database) *EventDAO {
	dao := &EventDAO{
		db:          db,
		Collections: make(map[string]*mongo.Collection),
	}
	for _, name := range []string{webhookEventsCollection, notificationsCollection} {
		dao.Add(name)
	}
	return dao
}

// Add collection to list
func (dao *EventDAO) Add(key string) {
	dao.Collections[key] = dao.db.Collection(key)
}

// Insert a document into the named collection
func (dao *EventDAO) Insert(ctx context.Context, key string, obj interface{}) error {
	collection, ok := dao.Collections[key]
	if !ok {
		return errors.New("invalid collection")
	}
	_, err := collection.InsertOne(ctx, obj)
	return err
}

// RecordWebhookEvent ...
func (dao *EventDAO) RecordWebhookEvent(ctx context.Context, event models.WebhookEvent) (bool, error) {
	err := dao.Insert(ctx, webhookEventsCollection, event)
	if mongo.IsDuplicateKeyError(err) {
		return true, nil
	}
	return false, err
}

// InsertNotification ...
func (dao *EventDAO) InsertNotification(ctx context.Context, n models.Notification) error {
	return dao.Insert(ctx, notificationsCollection, n)
}

// ListNotifications lists a user's notifications, newest first
func (dao *EventDAO) ListNotifications(ctx context.Context, userID primitive.ObjectID, limit int) ([]models.Notification, error) {
	var notifications []models.Notification
	opts := options.Find().SetSort(bson.M{"created_at": -1})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := dao.Collections[notificationsCollection].Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	err = cursor.All(ctx, &notifications)
	return notifications, err
}
