package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type User struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email            string             `bson:"email" json:"email"`
	Password         string             `bson:"password" json:"-"`
	DisplayName      string             `bson:"display_name" json:"display_name"`
	AvatarURL        string             `bson:"avatar_url" json:"avatar_url"`
	StripeCustomerID string             `bson:"stripe_customer_id" json:"-"`
	TelegramChatID   int64              `bson:"telegram_chat_id" json:"telegram_chat_id"`
	WebhookURL       string             `bson:"webhook_url" json:"webhook_url"`
	WebhookEnabled   bool               `bson:"webhook_enabled" json:"webhook_enabled"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `bson:"updated_at" json:"updated_at"`
}

// HasStoredCustomer reports whether the user has a billing customer we
// can charge without redirecting to a hosted checkout page.
func (u *User) HasStoredCustomer() bool {
	return u != nil && u.StripeCustomerID != ""
}

type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	User        *User  `json:"user"`
}

type ForwardingConfigRequest struct {
	TelegramChatID *int64  `json:"telegram_chat_id"`
	WebhookURL     *string `json:"webhook_url"`
	WebhookEnabled *bool   `json:"webhook_enabled"`
}
