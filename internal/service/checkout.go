package service

import (
	"context"
	"fmt"
	"time"

	"github.com/telavo/telavo/internal/billing"
	"github.com/telavo/telavo/internal/models"
	"github.com/telavo/telavo/pkg/database"
	"github.com/telavo/telavo/pkg/logger"
	"github.com/telavo/telavo/pkg/messaging"
)

const pendingPhoneNumber = "PENDING"

type CheckoutRequest struct {
	PriceID      string `json:"priceId" binding:"required"`
	UserID       string `json:"userId"`
	PlanName     string `json:"planName" binding:"required"`
	MonthlyLimit int    `json:"monthlyLimit" binding:"required"`
	PhoneNumber  string `json:"phoneNumber"`
	SlotID       string `json:"slotId"`
	IsUpgrade    bool   `json:"isUpgrade"`
	ForceManual  bool   `json:"forceManual"`
}

type CheckoutResult struct {
	Instant        bool   `json:"instant,omitempty"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
	PhoneNumber    string `json:"phoneNumber,omitempty"`
	Message        string `json:"message,omitempty"`
	URL            string `json:"url,omitempty"`
}

type VerifyResult struct {
	Status         string `json:"status"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
	PhoneNumber    string `json:"phoneNumber,omitempty"`
	PlanName       string `json:"planName,omitempty"`
}

const (
	VerifyStatusUnpaid    = "unpaid"
	VerifyStatusCompleted = "completed"
	VerifyStatusPendingDB = "pending_db"
)

// CheckoutService resolves a purchase request to the cheapest viable
// path: in-place upgrade, one-click charge against a stored payment
// method, or a hosted checkout redirect.
type CheckoutService struct {
	users     UserStore
	slots     SlotStore
	subs      SubscriptionStore
	gateway   billing.PaymentGateway
	tx        TxRunner
	events    EventPublisher
	cache     *CacheService
	metrics   MetricsCollector
	logger    logger.Logger
	trialDays int
	currency  string
}

func NewCheckoutService(
	users UserStore,
	slots SlotStore,
	subs SubscriptionStore,
	gateway billing.PaymentGateway,
	tx TxRunner,
	events EventPublisher,
	cache *CacheService,
	metrics MetricsCollector,
	log logger.Logger,
	trialDays int,
	currency string,
) *CheckoutService {
	return &CheckoutService{
		users:     users,
		slots:     slots,
		subs:      subs,
		gateway:   gateway,
		tx:        tx,
		events:    events,
		cache:     cache,
		metrics:   metrics,
		logger:    log,
		trialDays: trialDays,
		currency:  currency,
	}
}

// CreateSession runs the path decision for a purchase request. Fast
// paths (upgrade, one-click) swallow their own failures and fall
// through to the hosted redirect; only validation and redirect-path
// upstream failures surface to the caller.
func (s *CheckoutService) CreateSession(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error) {
	if req.PriceID == "" || req.UserID == "" || req.PlanName == "" || req.MonthlyLimit <= 0 {
		return nil, ErrInvalidInput
	}

	user, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		if err == database.ErrNotFound || err == database.ErrInvalidID {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if user.HasStoredCustomer() && !req.ForceManual {
		if req.IsUpgrade && req.SlotID != "" {
			if result := s.tryUpgrade(ctx, req); result != nil {
				s.metrics.IncrementCheckoutRequests("upgrade")
				return result, nil
			}
			s.metrics.IncrementCheckoutFailures("upgrade")
		} else if !req.IsUpgrade {
			if result := s.tryOneClick(ctx, user, req); result != nil {
				s.metrics.IncrementCheckoutRequests("one_click")
				return result, nil
			}
			s.metrics.IncrementCheckoutFailures("one_click")
		}
	}

	return s.standardCheckout(ctx, user, req)
}

// tryUpgrade swaps the price on the slot's existing recurring
// subscription. Returns nil on any failure so the caller falls back to
// the redirect flow.
func (s *CheckoutService) tryUpgrade(ctx context.Context, req *CheckoutRequest) *CheckoutResult {
	sub, err := s.subs.FindActiveBySlot(ctx, req.SlotID)
	if err != nil {
		s.logger.Warn("upgrade path: no active subscription, falling through",
			logger.Field{Key: "slot_id", Value: req.SlotID},
			logger.Field{Key: "error", Value: err})
		return nil
	}

	stripeSubID := sub.StripeSubscriptionID
	if stripeSubID == "" && sub.CheckoutSessionID != "" {
		sess, err := s.gateway.GetCheckoutSession(ctx, sub.CheckoutSessionID)
		if err != nil {
			s.logger.Warn("upgrade path: session lookup failed, falling through",
				logger.Field{Key: "session_id", Value: sub.CheckoutSessionID},
				logger.Field{Key: "error", Value: err})
			return nil
		}
		stripeSubID = sess.SubscriptionID
	}
	if stripeSubID == "" {
		s.logger.Warn("upgrade path: subscription has no provider id, falling through",
			logger.Field{Key: "subscription_id", Value: sub.ID.Hex()})
		return nil
	}

	if err := s.gateway.UpdateSubscriptionPrice(ctx, stripeSubID, req.PriceID); err != nil {
		s.logger.Error("upgrade path: price update failed, falling through",
			logger.Field{Key: "stripe_subscription_id", Value: stripeSubID},
			logger.Field{Key: "error", Value: err})
		return nil
	}

	// The provider-side change already happened; a label failure here
	// must not trigger a second price update via fall-through.
	if err := s.slots.UpdatePlanType(ctx, req.SlotID, req.PlanName); err != nil {
		s.logger.Error("upgrade path: slot label update failed after price change",
			logger.Field{Key: "slot_id", Value: req.SlotID},
			logger.Field{Key: "error", Value: err})
	}

	s.metrics.IncrementUpgrades()
	s.publishEvent(messaging.RoutingKeySubscriptionUpgraded, map[string]interface{}{
		"subscription_id": sub.ID.Hex(),
		"slot_id":         req.SlotID,
		"plan_name":       req.PlanName,
	})

	return &CheckoutResult{
		Instant:        true,
		SubscriptionID: sub.ID.Hex(),
		PhoneNumber:    sub.PhoneNumber,
		Message:        "plan actualizado",
	}
}

// tryOneClick charges the stored payment method directly and binds a
// free slot in the same flow. The slot claim is conditional on its
// free status, so two concurrent buyers can never receive the same
// number; every downstream failure releases the claim before falling
// through.
func (s *CheckoutService) tryOneClick(ctx context.Context, user *models.User, req *CheckoutRequest) *CheckoutResult {
	paymentMethod, err := s.gateway.DefaultPaymentMethod(ctx, user.StripeCustomerID)
	if err != nil {
		s.logger.Info("one-click path: no stored payment method, falling through",
			logger.Field{Key: "user_id", Value: req.UserID},
			logger.Field{Key: "error", Value: err})
		return nil
	}

	slot, err := s.slots.ClaimFree(ctx, req.UserID)
	if err != nil {
		s.logger.Info("one-click path: no free slot, falling through",
			logger.Field{Key: "error", Value: err})
		return nil
	}

	release := func(stage string, cause error) {
		s.logger.Error("one-click path failed, releasing claimed slot",
			logger.Field{Key: "stage", Value: stage},
			logger.Field{Key: "slot_id", Value: slot.SlotID},
			logger.Field{Key: "error", Value: cause})
		if err := s.slots.Release(ctx, slot.SlotID); err != nil {
			s.logger.Error("failed to release slot after one-click failure",
				logger.Field{Key: "slot_id", Value: slot.SlotID},
				logger.Field{Key: "error", Value: err})
		}
	}

	stripeSubID, err := s.gateway.CreateSubscription(ctx, billing.SubscriptionParams{
		CustomerID:      user.StripeCustomerID,
		PriceID:         req.PriceID,
		PaymentMethodID: paymentMethod,
		TrialDays:       s.trialDays,
		IdempotencyKey:  fmt.Sprintf("oneclick-%s-%s-%s", req.UserID, slot.SlotID, req.PriceID),
		Metadata: map[string]string{
			"user_id":      req.UserID,
			"phone_number": slot.PhoneNumber,
			"plan_name":    req.PlanName,
			"slot_id":      slot.SlotID,
		},
	})
	if err != nil {
		release("create_subscription", err)
		return nil
	}

	now := time.Now()
	sub := &models.Subscription{
		UserID:               req.UserID,
		SlotID:               slot.SlotID,
		PhoneNumber:          slot.PhoneNumber,
		PlanName:             req.PlanName,
		MonthlyLimit:         req.MonthlyLimit,
		Status:               models.SubscriptionStatusActive,
		Currency:             s.currency,
		StripeSubscriptionID: stripeSubID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		// The provider subscription exists; the idempotency key keeps
		// a retry from charging twice, but this needs eyes.
		release("persist_subscription", err)
		return nil
	}

	if err := s.slots.Occupy(ctx, slot.SlotID, req.UserID, req.PlanName); err != nil {
		s.logger.Error("one-click path: slot occupy failed after subscription insert",
			logger.Field{Key: "slot_id", Value: slot.SlotID},
			logger.Field{Key: "error", Value: err})
	}

	s.publishEvent(messaging.RoutingKeySubscriptionActivated, map[string]interface{}{
		"subscription_id": sub.ID.Hex(),
		"user_id":         req.UserID,
		"slot_id":         slot.SlotID,
		"phone_number":    slot.PhoneNumber,
		"plan_name":       req.PlanName,
	})

	return &CheckoutResult{
		Instant:        true,
		SubscriptionID: sub.ID.Hex(),
		PhoneNumber:    slot.PhoneNumber,
		Message:        "suscripción activada",
	}
}

func (s *CheckoutService) standardCheckout(ctx context.Context, user *models.User, req *CheckoutRequest) (*CheckoutResult, error) {
	phone := req.PhoneNumber
	if phone == "" {
		phone = pendingPhoneNumber
	}
	transactionType := "new"
	if req.IsUpgrade {
		transactionType = "upgrade"
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, billing.CheckoutParams{
		PriceID:         req.PriceID,
		CustomerID:      user.StripeCustomerID,
		UserID:          req.UserID,
		PhoneNumber:     phone,
		PlanName:        req.PlanName,
		SlotID:          req.SlotID,
		MonthlyLimit:    req.MonthlyLimit,
		TransactionType: transactionType,
		TrialDays:       s.trialDays,
	})
	if err != nil {
		s.metrics.IncrementCheckoutFailures("redirect")
		s.logger.Error("failed to create checkout session",
			logger.Field{Key: "user_id", Value: req.UserID},
			logger.Field{Key: "error", Value: err})
		return nil, fmt.Errorf("%w: %v", ErrUpstreamPayment, err)
	}

	s.metrics.IncrementCheckoutRequests("redirect")
	return &CheckoutResult{URL: sess.URL}, nil
}

// Verify reports the state of a checkout session after the buyer
// returns from the hosted page. A paid session whose local row has not
// landed yet reports pending_db so the frontend keeps polling instead
// of showing an error.
func (s *CheckoutService) Verify(ctx context.Context, sessionID string) (*VerifyResult, error) {
	if sessionID == "" {
		return nil, ErrInvalidInput
	}

	var cached VerifyResult
	if s.cache.GetVerifyResult(ctx, sessionID, &cached) && cached.Status == VerifyStatusCompleted {
		return &cached, nil
	}

	sess, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamPayment, err)
	}
	if sess.PaymentStatus != billing.PaymentStatusPaid && sess.PaymentStatus != billing.PaymentStatusNoPaymentRequired {
		return &VerifyResult{Status: VerifyStatusUnpaid}, nil
	}

	sub, err := s.subs.FindBySessionID(ctx, sessionID)
	if err != nil {
		if err == database.ErrNotFound {
			return &VerifyResult{Status: VerifyStatusPendingDB}, nil
		}
		return nil, err
	}

	result := &VerifyResult{
		Status:         VerifyStatusCompleted,
		SubscriptionID: sub.ID.Hex(),
		PhoneNumber:    sub.PhoneNumber,
		PlanName:       sub.PlanName,
	}
	s.cache.CacheVerifyResult(ctx, sessionID, result)
	return result, nil
}

// HandleWebhook finalizes a paid hosted checkout. The subscription
// insert is keyed by session id behind a unique index, so provider
// retries of the same event settle as no-ops.
func (s *CheckoutService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		s.metrics.IncrementWebhookEvents("invalid_signature")
		return err
	}
	if event.Type != billing.EventCheckoutCompleted {
		s.metrics.IncrementWebhookEvents("ignored")
		return nil
	}

	meta := event.Metadata
	userID := meta["user_id"]
	if userID == "" {
		s.metrics.IncrementWebhookEvents("malformed")
		return fmt.Errorf("checkout webhook without user_id metadata: session %s", event.SessionID)
	}
	planName := meta["plan_name"]
	monthlyLimit := parseLimit(meta["limit"])

	var created *models.Subscription
	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		// A retry of an already-finalized session must settle before
		// touching any slot: the first delivery may have moved the slot
		// past reservado, and a fresh ClaimFree here would strand a slot.
		if _, err := s.subs.FindBySessionID(txCtx, event.SessionID); err == nil {
			s.logger.Info("duplicate checkout webhook, already finalized",
				logger.Field{Key: "session_id", Value: event.SessionID})
			return nil
		} else if err != database.ErrNotFound {
			return err
		}

		slotID := meta["slot_id"]
		phone := meta["phone_number"]

		var slot *models.Slot
		var err error
		claimedFresh := false
		if slotID != "" {
			slot, err = s.slots.Reserve(txCtx, slotID, userID)
		} else {
			slot, err = s.slots.ClaimFree(txCtx, userID)
			claimedFresh = err == nil
		}
		if err != nil {
			return fmt.Errorf("webhook slot resolution: %w", err)
		}
		if phone == "" || phone == pendingPhoneNumber {
			phone = slot.PhoneNumber
		}

		now := time.Now()
		sub := &models.Subscription{
			UserID:               userID,
			SlotID:               slot.SlotID,
			PhoneNumber:          phone,
			PlanName:             planName,
			MonthlyLimit:         monthlyLimit,
			Status:               models.SubscriptionStatusActive,
			Amount:               event.AmountTotal,
			Currency:             event.Currency,
			CheckoutSessionID:    event.SessionID,
			StripeSubscriptionID: event.SubscriptionID,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := s.subs.Create(txCtx, sub); err != nil {
			if err == database.ErrDuplicate {
				// A concurrent delivery won the insert. A slot claimed
				// from the free pool for this attempt is stray and goes
				// back before commit.
				if claimedFresh {
					if relErr := s.slots.Release(txCtx, slot.SlotID); relErr != nil {
						return relErr
					}
				}
				s.logger.Info("duplicate checkout webhook, already finalized",
					logger.Field{Key: "session_id", Value: event.SessionID})
				return nil
			}
			return err
		}
		created = sub

		return s.slots.Occupy(txCtx, slot.SlotID, userID, planName)
	})
	if err != nil {
		s.metrics.IncrementWebhookEvents("failed")
		return err
	}
	if created == nil {
		s.metrics.IncrementWebhookEvents("duplicate")
		return nil
	}

	s.metrics.IncrementWebhookEvents("completed")
	s.publishEvent(messaging.RoutingKeySubscriptionActivated, map[string]interface{}{
		"subscription_id": created.ID.Hex(),
		"user_id":         created.UserID,
		"slot_id":         created.SlotID,
		"phone_number":    created.PhoneNumber,
		"plan_name":       created.PlanName,
	})
	return nil
}

func (s *CheckoutService) publishEvent(routingKey string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(messaging.ExchangeEvents, routingKey, payload); err != nil {
		s.logger.Warn("failed to publish checkout event",
			logger.Field{Key: "routing_key", Value: routingKey},
			logger.Field{Key: "error", Value: err})
	}
}

func parseLimit(raw string) int {
	var limit int
	if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil || limit < 0 {
		return 0
	}
	return limit
}
