package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/telavo/telavo/internal/models"
	"github.com/telavo/telavo/pkg/database"
)

type SubscriptionRepository struct {
	db         *database.MongoDB
	collection *mongo.Collection
}

func NewSubscriptionRepository(db *database.MongoDB) *SubscriptionRepository {
	return &SubscriptionRepository{
		db:         db,
		collection: db.Collection("subscriptions"),
	}
}

func (r *SubscriptionRepository) EnsureIndexes(ctx context.Context) error {
	// Webhook finalization idempotency: a second insert for the same
	// checkout session is a duplicate-key no-op. Partial so one-click
	// subscriptions without a session id do not collide.
	err := r.db.CreateIndexes(ctx, "subscriptions", []mongo.IndexModel{{
		Keys: bson.D{{Key: "checkout_session_id", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"checkout_session_id": bson.M{"$gt": ""}}),
	}})
	if err != nil {
		return err
	}
	if err := r.db.CreateCompoundIndex(ctx, "subscriptions",
		bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}}); err != nil {
		return err
	}
	return r.db.CreateCompoundIndex(ctx, "subscriptions",
		bson.D{{Key: "slot_id", Value: 1}, {Key: "status", Value: 1}})
}

func (r *SubscriptionRepository) Create(ctx context.Context, sub *models.Subscription) error {
	sub.CreatedAt = time.Now()
	sub.UpdatedAt = time.Now()

	result, err := r.collection.InsertOne(ctx, sub)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return database.ErrDuplicate
		}
		return fmt.Errorf("failed to insert subscription: %w", err)
	}

	sub.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *SubscriptionRepository) FindActiveBySlot(ctx context.Context, slotID string) (*models.Subscription, error) {
	filter := bson.M{
		"slot_id": slotID,
		"status":  models.SubscriptionStatusActive,
	}

	var sub models.Subscription
	err := r.collection.FindOne(ctx, filter).Decode(&sub)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find active subscription: %w", err)
	}
	return &sub, nil
}

func (r *SubscriptionRepository) FindBySessionID(ctx context.Context, sessionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.collection.FindOne(ctx, bson.M{"checkout_session_id": sessionID}).Decode(&sub)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find subscription by session: %w", err)
	}
	return &sub, nil
}

func (r *SubscriptionRepository) FindLatestActiveByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	filter := bson.M{
		"user_id": userID,
		"status":  models.SubscriptionStatusActive,
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})

	var sub models.Subscription
	err := r.collection.FindOne(ctx, filter, opts).Decode(&sub)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find latest subscription: %w", err)
	}
	return &sub, nil
}

func (r *SubscriptionRepository) FindByUser(ctx context.Context, userID string) ([]*models.Subscription, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find subscriptions: %w", err)
	}
	defer cursor.Close(ctx)

	var subs []*models.Subscription
	for cursor.Next(ctx) {
		var sub models.Subscription
		if err := cursor.Decode(&sub); err != nil {
			return nil, fmt.Errorf("failed to decode subscription: %w", err)
		}
		subs = append(subs, &sub)
	}

	return subs, nil
}

func (r *SubscriptionRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.SubscriptionStatus) error {
	update := bson.M{
		"$set": bson.M{
			"status":     status,
			"updated_at": time.Now(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}
	if result.MatchedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}

// DebitCredit consumes credits from the one active subscription
// governing the given sending number. The filter pins user, number,
// active status and remaining allowance in a single conditional
// update, so no other subscription of the same user can ever be
// debited and an exhausted plan is never driven past its limit.
func (r *SubscriptionRepository) DebitCredit(ctx context.Context, userID, phoneNumber string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive")
	}

	filter := bson.M{
		"user_id":      userID,
		"phone_number": phoneNumber,
		"status":       models.SubscriptionStatusActive,
		"$expr": bson.M{
			"$lte": bson.A{bson.M{"$add": bson.A{"$credits_used", amount}}, "$monthly_limit"},
		},
	}
	update := bson.M{
		"$inc": bson.M{"credits_used": amount},
		"$set": bson.M{"updated_at": time.Now()},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to debit credit: %w", err)
	}
	if result.ModifiedCount != 1 {
		return database.ErrNotFound
	}
	return nil
}
