package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents a marketplace account. Only the fields the payment engine
// reads or writes are mapped; the profile component owns the rest.
type User struct {
	ID           primitive.ObjectID   `json:"id" bson:"_id"`
	Username     string               `json:"username" bson:"username"`
	Email        string               `json:"email" bson:"email"`
	FCMToken     string               `json:"-" bson:"fcm_token"`
	FreeBids     *FreeBidQuota        `json:"free_bids,omitempty" bson:"free_bids,omitempty"`
	Subscription *SubscriptionProfile `json:"subscription,omitempty" bson:"subscription,omitempty"`
	CreatedAt    time.Time            `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at" bson:"updated_at"`
}

// FreeBidQuota is lazily initialised to the default allowance the first time
// a free bid is consumed.
type FreeBidQuota struct {
	Remaining int `json:"remaining" bson:"remaining"`
	Used      int `json:"used" bson:"used"`
}

// SubscriptionProfile is embedded in the user account.
type SubscriptionProfile struct {
	PlanName     string             `json:"plan_name" bson:"plan_name"`
	PlanType     string             `json:"plan_type" bson:"plan_type"`
	IsActive     bool               `json:"is_active" bson:"is_active"`
	StartedAt    time.Time          `json:"started_at" bson:"started_at"`
	ExpiresAt    time.Time          `json:"expires_at" bson:"expires_at"`
	AutoRenew    bool               `json:"auto_renew" bson:"auto_renew"`
	LastIntentID primitive.ObjectID `json:"last_intent_id" bson:"last_intent_id"`
	Features     []string           `json:"features" bson:"features"`
	BidLimit     int                `json:"bid_limit" bson:"bid_limit"`
}

// ActiveAt reports whether the subscription is active and unexpired at t.
func (s *SubscriptionProfile) ActiveAt(t time.Time) bool {
	return s != nil && s.IsActive && s.ExpiresAt.After(t)
}
