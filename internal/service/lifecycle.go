package service

import (
	"context"
	"time"

	"github.com/telavo/telavo/internal/models"
	"github.com/telavo/telavo/pkg/database"
	"github.com/telavo/telavo/pkg/logger"
	"github.com/telavo/telavo/pkg/messaging"
)

type ReleaseRequest struct {
	SlotID    string `json:"slot_id" binding:"required"`
	Confirmed bool   `json:"confirmed"`
}

type UpgradeRequest struct {
	SlotID       string `json:"slot_id" binding:"required"`
	PlanName     string `json:"plan_name" binding:"required"`
	MonthlyLimit int    `json:"monthly_limit" binding:"required"`
	Amount       int64  `json:"amount"`
}

// LifecycleService owns the slot state transitions that retire or
// replace a subscription. Both transitions run inside a single storage
// transaction so a crash can never leave a canceled subscription on an
// occupied slot or vice versa.
type LifecycleService struct {
	slots   SlotStore
	subs    SubscriptionStore
	tx      TxRunner
	events  EventPublisher
	metrics MetricsCollector
	logger  logger.Logger
}

func NewLifecycleService(
	slots SlotStore,
	subs SubscriptionStore,
	tx TxRunner,
	events EventPublisher,
	metrics MetricsCollector,
	log logger.Logger,
) *LifecycleService {
	return &LifecycleService{
		slots:   slots,
		subs:    subs,
		tx:      tx,
		events:  events,
		metrics: metrics,
		logger:  log,
	}
}

// Release returns the user's number to the free pool. The confirmation
// flag is required so a stray API call cannot destroy a number binding.
func (s *LifecycleService) Release(ctx context.Context, userID string, req *ReleaseRequest) error {
	if req.SlotID == "" {
		return ErrInvalidInput
	}
	if !req.Confirmed {
		return ErrConfirmationRequired
	}

	slot, err := s.slots.FindBySlotID(ctx, req.SlotID)
	if err != nil {
		if err == database.ErrNotFound {
			return ErrSlotNotFound
		}
		return err
	}
	if slot.AssignedTo != userID {
		return ErrNotSlotOwner
	}

	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		sub, err := s.subs.FindActiveBySlot(txCtx, req.SlotID)
		if err != nil && err != database.ErrNotFound {
			return err
		}
		if sub != nil {
			if err := s.subs.UpdateStatus(txCtx, sub.ID, models.SubscriptionStatusCanceled); err != nil {
				return err
			}
		}
		return s.slots.Release(txCtx, req.SlotID)
	})
	if err != nil {
		return err
	}

	s.metrics.IncrementSlotsReleased()
	s.publishEvent(messaging.RoutingKeySubscriptionReleased, map[string]interface{}{
		"user_id":      userID,
		"slot_id":      req.SlotID,
		"phone_number": slot.PhoneNumber,
	})
	return nil
}

// Upgrade supersedes the slot's active subscription with a new plan.
// The old row is kept as history under the superseded status and the
// replacement is inserted in the same transaction.
func (s *LifecycleService) Upgrade(ctx context.Context, userID string, req *UpgradeRequest) (*models.Subscription, error) {
	if req.SlotID == "" || req.PlanName == "" || req.MonthlyLimit <= 0 {
		return nil, ErrInvalidInput
	}

	var replacement *models.Subscription
	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		old, err := s.subs.FindActiveBySlot(txCtx, req.SlotID)
		if err != nil {
			if err == database.ErrNotFound {
				return ErrNoActiveSubscription
			}
			return err
		}
		if old.UserID != userID {
			return ErrNotSlotOwner
		}

		if err := s.subs.UpdateStatus(txCtx, old.ID, models.SubscriptionStatusUpgraded); err != nil {
			return err
		}

		now := time.Now()
		replacement = &models.Subscription{
			UserID:               userID,
			SlotID:               old.SlotID,
			PhoneNumber:          old.PhoneNumber,
			PlanName:             req.PlanName,
			MonthlyLimit:         req.MonthlyLimit,
			Status:               models.SubscriptionStatusActive,
			Amount:               req.Amount,
			Currency:             old.Currency,
			StripeSubscriptionID: old.StripeSubscriptionID,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := s.subs.Create(txCtx, replacement); err != nil {
			return err
		}

		return s.slots.UpdatePlanType(txCtx, req.SlotID, req.PlanName)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementUpgrades()
	s.publishEvent(messaging.RoutingKeySubscriptionUpgraded, map[string]interface{}{
		"user_id":         userID,
		"slot_id":         req.SlotID,
		"subscription_id": replacement.ID.Hex(),
		"plan_name":       req.PlanName,
	})
	return replacement, nil
}

func (s *LifecycleService) publishEvent(routingKey string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(messaging.ExchangeEvents, routingKey, payload); err != nil {
		s.logger.Warn("failed to publish lifecycle event",
			logger.Field{Key: "routing_key", Value: routingKey},
			logger.Field{Key: "error", Value: err})
	}
}
