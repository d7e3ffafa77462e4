package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/telavo/telavo/internal/models"
	"github.com/telavo/telavo/pkg/database"
)

type DeviceSessionRepository struct {
	db         *database.MongoDB
	collection *mongo.Collection
}

func NewDeviceSessionRepository(db *database.MongoDB) *DeviceSessionRepository {
	return &DeviceSessionRepository{
		db:         db,
		collection: db.Collection("device_sessions"),
	}
}

func (r *DeviceSessionRepository) EnsureIndexes(ctx context.Context) error {
	return r.db.CreateCompoundIndex(ctx, "device_sessions",
		bson.D{{Key: "user_id", Value: 1}, {Key: "last_active", Value: -1}})
}

// Touch upserts the session keyed by the client-persisted session id,
// so repeated app loads update last_active instead of creating rows.
func (r *DeviceSessionRepository) Touch(ctx context.Context, session *models.DeviceSession) error {
	now := time.Now()
	filter := bson.M{"_id": session.SessionID}
	update := bson.M{
		"$set": bson.M{
			"user_id":     session.UserID,
			"device_name": session.DeviceName,
			"location":    session.Location,
			"last_active": now,
		},
		"$setOnInsert": bson.M{
			"created_at": now,
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := r.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to touch device session: %w", err)
	}
	return nil
}

func (r *DeviceSessionRepository) FindByUser(ctx context.Context, userID string) ([]*models.DeviceSession, error) {
	opts := options.Find().SetSort(bson.D{{Key: "last_active", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find device sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []*models.DeviceSession
	for cursor.Next(ctx) {
		var session models.DeviceSession
		if err := cursor.Decode(&session); err != nil {
			return nil, fmt.Errorf("failed to decode device session: %w", err)
		}
		sessions = append(sessions, &session)
	}

	return sessions, nil
}

func (r *DeviceSessionRepository) Delete(ctx context.Context, userID, sessionID string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": sessionID, "user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to delete device session: %w", err)
	}
	if result.DeletedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}

// DeleteOthers removes every session of the user except the current
// one ("close all other devices").
func (r *DeviceSessionRepository) DeleteOthers(ctx context.Context, userID, keepSessionID string) (int64, error) {
	filter := bson.M{
		"user_id": userID,
		"_id":     bson.M{"$ne": keepSessionID},
	}

	result, err := r.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to delete other sessions: %w", err)
	}
	return result.DeletedCount, nil
}
