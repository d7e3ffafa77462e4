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

type SlotRepository struct {
	db         *database.MongoDB
	collection *mongo.Collection
}

func NewSlotRepository(db *database.MongoDB) *SlotRepository {
	return &SlotRepository{
		db:         db,
		collection: db.Collection("slots"),
	}
}

func (r *SlotRepository) EnsureIndexes(ctx context.Context) error {
	if err := r.db.CreateUniqueIndex(ctx, "slots", "slot_id"); err != nil {
		return err
	}
	if err := r.db.CreateCompoundIndex(ctx, "slots", bson.D{{Key: "status", Value: 1}}); err != nil {
		return err
	}
	return r.db.CreateCompoundIndex(ctx, "slots",
		bson.D{{Key: "assigned_to", Value: 1}, {Key: "status", Value: 1}})
}

func (r *SlotRepository) FindBySlotID(ctx context.Context, slotID string) (*models.Slot, error) {
	var slot models.Slot
	err := r.collection.FindOne(ctx, bson.M{"slot_id": slotID}).Decode(&slot)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find slot: %w", err)
	}
	return &slot, nil
}

func (r *SlotRepository) FindByUser(ctx context.Context, userID string) ([]*models.Slot, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"assigned_to": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to find slots: %w", err)
	}
	defer cursor.Close(ctx)

	var slots []*models.Slot
	for cursor.Next(ctx) {
		var slot models.Slot
		if err := cursor.Decode(&slot); err != nil {
			return nil, fmt.Errorf("failed to decode slot: %w", err)
		}
		slots = append(slots, &slot)
	}

	return slots, nil
}

// ClaimFree reserves one free slot for a user in a single conditional
// update. The status filter is part of the same operation, so two
// concurrent checkouts can never claim the same port: the loser simply
// matches no document and gets ErrNotFound.
func (r *SlotRepository) ClaimFree(ctx context.Context, userID string) (*models.Slot, error) {
	filter := bson.M{"status": models.SlotStatusFree}
	update := bson.M{
		"$set": bson.M{
			"status":      models.SlotStatusReserved,
			"assigned_to": userID,
			"updated_at":  time.Now(),
		},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var slot models.Slot
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&slot)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("failed to claim slot: %w", err)
	}

	return &slot, nil
}

// Reserve claims one specific slot for a user. The filter accepts a
// slot that is still free or one this user already reserved, so a
// webhook retrying after a partial finalization converges instead of
// failing.
func (r *SlotRepository) Reserve(ctx context.Context, slotID, userID string) (*models.Slot, error) {
	filter := bson.M{
		"slot_id": slotID,
		"$or": []bson.M{
			{"status": models.SlotStatusFree},
			{"status": models.SlotStatusReserved, "assigned_to": userID},
		},
	}
	update := bson.M{
		"$set": bson.M{
			"status":      models.SlotStatusReserved,
			"assigned_to": userID,
			"updated_at":  time.Now(),
		},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var slot models.Slot
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&slot)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("failed to reserve slot: %w", err)
	}

	return &slot, nil
}

// Occupy flips a reserved slot to occupied once payment is confirmed.
// The reserved-by-owner precondition guards against finalizing a slot
// that was released in between.
func (r *SlotRepository) Occupy(ctx context.Context, slotID, userID, planType string) error {
	filter := bson.M{
		"slot_id":     slotID,
		"assigned_to": userID,
		"status":      models.SlotStatusReserved,
	}
	update := bson.M{
		"$set": bson.M{
			"status":     models.SlotStatusOccupied,
			"plan_type":  planType,
			"updated_at": time.Now(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to occupy slot: %w", err)
	}
	if result.MatchedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}

// Release returns a slot to the free pool and clears every
// user-specific field.
func (r *SlotRepository) Release(ctx context.Context, slotID string) error {
	update := bson.M{
		"$set": bson.M{
			"status":            models.SlotStatusFree,
			"plan_type":         "",
			"label":             "",
			"forwarding_active": false,
			"updated_at":        time.Now(),
		},
		"$unset": bson.M{
			"assigned_to": "",
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"slot_id": slotID}, update)
	if err != nil {
		return fmt.Errorf("failed to release slot: %w", err)
	}
	if result.MatchedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}

func (r *SlotRepository) UpdatePlanType(ctx context.Context, slotID, planType string) error {
	update := bson.M{
		"$set": bson.M{
			"plan_type":  planType,
			"updated_at": time.Now(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"slot_id": slotID}, update)
	if err != nil {
		return fmt.Errorf("failed to update slot plan: %w", err)
	}
	if result.MatchedCount == 0 {
		return database.ErrNotFound
	}
	return nil
}
