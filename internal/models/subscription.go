package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Subscription struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID               string             `bson:"user_id" json:"user_id"`
	SlotID               string             `bson:"slot_id" json:"slot_id"`
	PhoneNumber          string             `bson:"phone_number" json:"phone_number"`
	PlanName             string             `bson:"plan_name" json:"plan_name"`
	MonthlyLimit         int                `bson:"monthly_limit" json:"monthly_limit"`
	CreditsUsed          int                `bson:"credits_used" json:"credits_used"`
	Status               SubscriptionStatus `bson:"status" json:"status"`
	Amount               int64              `bson:"amount" json:"amount"`
	Currency             string             `bson:"currency" json:"currency"`
	CheckoutSessionID    string             `bson:"checkout_session_id,omitempty" json:"checkout_session_id,omitempty"`
	StripeSubscriptionID string             `bson:"stripe_subscription_id,omitempty" json:"-"`
	CreatedAt            time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt            time.Time          `bson:"updated_at" json:"updated_at"`
}

type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "active"
	SubscriptionStatusCanceled SubscriptionStatus = "canceled"
	// SubscriptionStatusUpgraded marks the superseded row after a plan
	// change; the replacement row is inserted as active in the same
	// transaction.
	SubscriptionStatusUpgraded SubscriptionStatus = "actualizado"
	SubscriptionStatusExpired  SubscriptionStatus = "expired"
	SubscriptionStatusPastDue  SubscriptionStatus = "past_due"
)

// CreditsRemaining never goes below zero even if a concurrent debit
// raced past the limit.
func (s *Subscription) CreditsRemaining() int {
	remaining := s.MonthlyLimit - s.CreditsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
