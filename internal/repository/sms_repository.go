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

type SMSRepository struct {
	db         *database.MongoDB
	collection *mongo.Collection
}

func NewSMSRepository(db *database.MongoDB) *SMSRepository {
	return &SMSRepository{
		db:         db,
		collection: db.Collection("sms_logs"),
	}
}

func (r *SMSRepository) EnsureIndexes(ctx context.Context) error {
	if err := r.db.CreateCompoundIndex(ctx, "sms_logs",
		bson.D{{Key: "user_id", Value: 1}, {Key: "received_at", Value: -1}}); err != nil {
		return err
	}
	if err := r.db.CreateCompoundIndex(ctx, "sms_logs",
		bson.D{{Key: "user_id", Value: 1}, {Key: "read", Value: 1}}); err != nil {
		return err
	}
	return r.db.CreateCompoundIndex(ctx, "sms_logs",
		bson.D{{Key: "slot_id", Value: 1}})
}

func (r *SMSRepository) Insert(ctx context.Context, log *models.SMSLog) error {
	if log.ReceivedAt.IsZero() {
		log.ReceivedAt = time.Now()
	}

	result, err := r.collection.InsertOne(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to insert sms log: %w", err)
	}

	log.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *SMSRepository) FindByUser(ctx context.Context, userID string) ([]*models.SMSLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "received_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find sms logs: %w", err)
	}
	defer cursor.Close(ctx)

	var logs []*models.SMSLog
	for cursor.Next(ctx) {
		var log models.SMSLog
		if err := cursor.Decode(&log); err != nil {
			return nil, fmt.Errorf("failed to decode sms log: %w", err)
		}
		logs = append(logs, &log)
	}

	return logs, nil
}

// MarkAllRead flips every unread log of the user in one bulk update.
// Viewing the inbox triggers this, not per-row toggles.
func (r *SMSRepository) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	filter := bson.M{"user_id": userID, "read": false}
	update := bson.M{"$set": bson.M{"read": true}}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to mark logs read: %w", err)
	}
	return result.ModifiedCount, nil
}

func (r *SMSRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"user_id": userID, "read": false})
	if err != nil {
		return 0, fmt.Errorf("failed to count unread logs: %w", err)
	}
	return count, nil
}

// DailyCounts aggregates message volume per day since the given time,
// feeding the usage forecaster.
func (r *SMSRepository) DailyCounts(ctx context.Context, userID string, since time.Time) (map[string]int, error) {
	pipeline := []bson.M{
		{"$match": bson.M{
			"user_id":     userID,
			"received_at": bson.M{"$gte": since},
		}},
		{"$group": bson.M{
			"_id":   bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$received_at"}},
			"count": bson.M{"$sum": 1},
		}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate daily counts: %w", err)
	}
	defer cursor.Close(ctx)

	counts := make(map[string]int)
	for cursor.Next(ctx) {
		var row struct {
			Day   string `bson:"_id"`
			Count int    `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode daily count: %w", err)
		}
		counts[row.Day] = row.Count
	}

	return counts, nil
}
