package memdao

import (
	"context"
	"sort"
	"sync"

	"gigpay-bend/dao"
	"gigpay-bend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EventLog is an in-memory dao.EventLog
type EventLog struct {
	mu            sync.RWMutex
	events        map[string]models.WebhookEvent
	notifications []models.Notification
}

var _ dao.EventLog = (*EventLog)(nil)

// NewEventLog ...
func NewEventLog() *EventLog {
	return &EventLog{events: make(map[string]models.WebhookEvent)}
}

// RecordWebhookEvent ...
func (l *EventLog) RecordWebhookEvent(_ context.Context, event models.WebhookEvent) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.events[event.EventID]; ok {
		return true, nil
	}
	l.events[event.EventID] = event
	return false, nil
}

// InsertNotification ...
func (l *EventLog) InsertNotification(_ context.Context, n models.Notification) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notifications = append(l.notifications, n)
	return nil
}

// ListNotifications ...
func (l *EventLog) ListNotifications(_ context.Context, userID primitive.ObjectID, limit int) ([]models.Notification, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []models.Notification
	for _, n := range l.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Events returns the number of distinct webhook events recorded
func (l *EventLog) Events() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}
