package service

import (
	"context"
	"time"

	"github.com/telavo/telavo/internal/models"
	"github.com/telavo/telavo/pkg/database"
	"github.com/telavo/telavo/pkg/logger"
	"github.com/telavo/telavo/pkg/messaging"
)

const (
	ActivationStateSyncing = "syncing"
	ActivationStateSuccess = "success"
	ActivationStateError   = "error"
)

type ActivationResult struct {
	State          string `json:"state"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
	PhoneNumber    string `json:"phoneNumber,omitempty"`
	PlanName       string `json:"planName,omitempty"`
	Attempts       int    `json:"attempts"`
}

// ActivationService watches for the subscription row that the webhook
// finalizer (or the one-click path) is expected to land, so the
// frontend can hold the buyer on a "syncing" screen instead of
// guessing with a fixed sleep.
type ActivationService struct {
	subs         SubscriptionStore
	cache        *CacheService
	events       EventPublisher
	metrics      MetricsCollector
	logger       logger.Logger
	maxAttempts  int
	pollInterval time.Duration
}

func NewActivationService(
	subs SubscriptionStore,
	cache *CacheService,
	events EventPublisher,
	metrics MetricsCollector,
	log logger.Logger,
	maxAttempts int,
	pollInterval time.Duration,
) *ActivationService {
	if maxAttempts <= 0 {
		maxAttempts = 15
	}
	if pollInterval <= 0 {
		pollInterval = 2500 * time.Millisecond
	}
	return &ActivationService{
		subs:         subs,
		cache:        cache,
		events:       events,
		metrics:      metrics,
		logger:       log,
		maxAttempts:  maxAttempts,
		pollInterval: pollInterval,
	}
}

// WaitForActivation polls until the subscription shows up with a real
// phone number or the attempt budget runs out. The row is checked at
// the top of every attempt, so a row landing right before the final
// check still succeeds.
func (s *ActivationService) WaitForActivation(ctx context.Context, sessionID, userID string) (*ActivationResult, error) {
	start := time.Now()

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		sub, err := s.lookup(ctx, sessionID, userID)
		if err != nil && err != database.ErrNotFound {
			return nil, err
		}
		if sub != nil && sub.PhoneNumber != "" && sub.PhoneNumber != pendingPhoneNumber {
			s.metrics.RecordActivationWait(time.Since(start).Seconds())
			s.metrics.IncrementActivationOutcome(ActivationStateSuccess)
			s.notifyOnce(ctx, sub)
			return &ActivationResult{
				State:          ActivationStateSuccess,
				SubscriptionID: sub.ID.Hex(),
				PhoneNumber:    sub.PhoneNumber,
				PlanName:       sub.PlanName,
				Attempts:       attempt,
			}, nil
		}

		if attempt == s.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}

	s.metrics.RecordActivationWait(time.Since(start).Seconds())
	s.metrics.IncrementActivationOutcome(ActivationStateError)
	s.logger.Warn("activation did not complete within attempt budget",
		logger.Field{Key: "session_id", Value: sessionID},
		logger.Field{Key: "user_id", Value: userID},
		logger.Field{Key: "attempts", Value: s.maxAttempts})
	return &ActivationResult{State: ActivationStateError, Attempts: s.maxAttempts}, nil
}

// CheckOnce is the non-blocking variant used by the status endpoint.
func (s *ActivationService) CheckOnce(ctx context.Context, sessionID, userID string) (*ActivationResult, error) {
	sub, err := s.lookup(ctx, sessionID, userID)
	if err != nil {
		if err == database.ErrNotFound {
			return &ActivationResult{State: ActivationStateSyncing, Attempts: 1}, nil
		}
		return nil, err
	}
	if sub.PhoneNumber == "" || sub.PhoneNumber == pendingPhoneNumber {
		return &ActivationResult{State: ActivationStateSyncing, Attempts: 1}, nil
	}
	return &ActivationResult{
		State:          ActivationStateSuccess,
		SubscriptionID: sub.ID.Hex(),
		PhoneNumber:    sub.PhoneNumber,
		PlanName:       sub.PlanName,
		Attempts:       1,
	}, nil
}

func (s *ActivationService) lookup(ctx context.Context, sessionID, userID string) (*models.Subscription, error) {
	if sessionID != "" {
		return s.subs.FindBySessionID(ctx, sessionID)
	}
	return s.subs.FindLatestActiveByUser(ctx, userID)
}

// notifyOnce publishes the activation event at most once per
// subscription, no matter how many watchers observe the row.
func (s *ActivationService) notifyOnce(ctx context.Context, sub *models.Subscription) {
	if s.events == nil {
		return
	}
	if !s.cache.ClaimActivationNotify(ctx, sub.ID.Hex()) {
		return
	}
	err := s.events.PublishEvent(messaging.ExchangeEvents, messaging.RoutingKeySubscriptionActivated, map[string]interface{}{
		"subscription_id": sub.ID.Hex(),
		"user_id":         sub.UserID,
		"slot_id":         sub.SlotID,
		"phone_number":    sub.PhoneNumber,
		"plan_name":       sub.PlanName,
	})
	if err != nil {
		s.logger.Warn("failed to publish activation event",
			logger.Field{Key: "subscription_id", Value: sub.ID.Hex()},
			logger.Field{Key: "error", Value: err})
	}
}
