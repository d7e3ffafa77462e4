package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/telavo/telavo/internal/models"
	"github.com/telavo/telavo/pkg/database"
)

type UserRepository struct {
	db         *database.MongoDB
	collection *mongo.Collection
}

func NewUserRepository(db *database.MongoDB) *UserRepository {
	return &UserRepository{
		db:         db,
		collection: db.Collection("users"),
	}
}

func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	if err := r.db.CreateUniqueIndex(ctx, "users", "email"); err != nil {
		return err
	}
	return r.db.CreateCompoundIndex(ctx, "users",
		bson.D{{Key: "stripe_customer_id", Value: 1}})
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()

	result, err := r.collection.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return database.ErrDuplicate
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	user.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, database.ErrInvalidID
	}

	var user models.User
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return &user, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.collection.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	return &user, nil
}

func (r *UserRepository) SetStripeCustomer(ctx context.Context, userID, customerID string) error {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return database.ErrInvalidID
	}

	update := bson.M{
		"$set": bson.M{
			"stripe_customer_id": customerID,
			"updated_at":         time.Now(),
		},
	}

	_, err = r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, update)
	if err != nil {
		return fmt.Errorf("failed to set stripe customer: %w", err)
	}
	return nil
}

func (r *UserRepository) UpdateForwardingConfig(ctx context.Context, userID string, req *models.ForwardingConfigRequest) error {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return database.ErrInvalidID
	}

	set := bson.M{"updated_at": time.Now()}
	if req.TelegramChatID != nil {
		set["telegram_chat_id"] = *req.TelegramChatID
	}
	if req.WebhookURL != nil {
		set["webhook_url"] = *req.WebhookURL
	}
	if req.WebhookEnabled != nil {
		set["webhook_enabled"] = *req.WebhookEnabled
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update forwarding config: %w", err)
	}
	if result.MatchedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}
