package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ServiceNameSent tags outbound messages logged by the send flow so
// the client renders them distinctly from inbound traffic.
const ServiceNameSent = "telavo_sent"

type SMSLog struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID           string             `bson:"user_id" json:"user_id"`
	SlotID           string             `bson:"slot_id" json:"slot_id"`
	Sender           string             `bson:"sender" json:"sender"`
	Content          string             `bson:"content" json:"content"`
	VerificationCode string             `bson:"verification_code,omitempty" json:"verification_code,omitempty"`
	ServiceName      string             `bson:"service_name" json:"service_name"`
	IsSpam           bool               `bson:"is_spam" json:"is_spam"`
	Read             bool               `bson:"read" json:"read"`
	ReceivedAt       time.Time          `bson:"received_at" json:"received_at"`
}

type MessageCategory string

const (
	CategoryVerification MessageCategory = "verification"
	CategoryOther        MessageCategory = "other"
)

// Category is "verification" when the ingestion pipeline extracted a
// code, "other" for everything else.
func (l *SMSLog) Category() MessageCategory {
	if l.VerificationCode != "" {
		return CategoryVerification
	}
	return CategoryOther
}

type SendSMSRequest struct {
	From string `json:"from" binding:"required"`
	To   string `json:"to" binding:"required"`
	Body string `json:"body" binding:"required"`
}

// WebhookPayload is the documented shape delivered to integrator
// webhook URLs for each forwarded inbound message.
type WebhookPayload struct {
	Event            string    `json:"event"`
	From             string    `json:"from"`
	Content          string    `json:"content"`
	VerificationCode string    `json:"verification_code,omitempty"`
	PhoneNumber      string    `json:"phone_number"`
	ReceivedAt       time.Time `json:"received_at"`
}
