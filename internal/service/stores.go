package service

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/telavo/telavo/internal/models"
)

// Store interfaces are defined on the consumer side so every service
// can be tested against mocks. The repository package implements them
// on MongoDB.

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	SetStripeCustomer(ctx context.Context, userID, customerID string) error
	UpdateForwardingConfig(ctx context.Context, userID string, req *models.ForwardingConfigRequest) error
}

type SlotStore interface {
	FindBySlotID(ctx context.Context, slotID string) (*models.Slot, error)
	FindByUser(ctx context.Context, userID string) ([]*models.Slot, error)
	ClaimFree(ctx context.Context, userID string) (*models.Slot, error)
	Reserve(ctx context.Context, slotID, userID string) (*models.Slot, error)
	Occupy(ctx context.Context, slotID, userID, planType string) error
	Release(ctx context.Context, slotID string) error
	UpdatePlanType(ctx context.Context, slotID, planType string) error
}

type SubscriptionStore interface {
	Create(ctx context.Context, sub *models.Subscription) error
	FindActiveBySlot(ctx context.Context, slotID string) (*models.Subscription, error)
	FindBySessionID(ctx context.Context, sessionID string) (*models.Subscription, error)
	FindLatestActiveByUser(ctx context.Context, userID string) (*models.Subscription, error)
	FindByUser(ctx context.Context, userID string) ([]*models.Subscription, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.SubscriptionStatus) error
	DebitCredit(ctx context.Context, userID, phoneNumber string, amount int) error
}

type SMSStore interface {
	Insert(ctx context.Context, log *models.SMSLog) error
	FindByUser(ctx context.Context, userID string) ([]*models.SMSLog, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	DailyCounts(ctx context.Context, userID string, since time.Time) (map[string]int, error)
}

type DeviceStore interface {
	Touch(ctx context.Context, session *models.DeviceSession) error
	FindByUser(ctx context.Context, userID string) ([]*models.DeviceSession, error)
	Delete(ctx context.Context, userID, sessionID string) error
	DeleteOthers(ctx context.Context, userID, keepSessionID string) (int64, error)
}

// TxRunner executes fn inside one storage transaction. Multi-row
// business transitions (release, upgrade, webhook finalization) go
// through it so partial writes cannot be observed.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type EventPublisher interface {
	PublishEvent(exchange, routingKey string, message interface{}) error
}

type KV interface {
	Get(ctx context.Context, key string) (string, error)
	GetJSON(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	Increment(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) error
}
