package service

import (
	"context"
	"fmt"
	"time"

	"github.com/telavo/telavo/internal/models"
	"github.com/telavo/telavo/pkg/database"
	"github.com/telavo/telavo/pkg/logger"
	"github.com/telavo/telavo/pkg/messaging"
)

type MessageView struct {
	ID               string                 `json:"id"`
	SlotID           string                 `json:"slot_id"`
	PhoneNumber      string                 `json:"phone_number"`
	Sender           string                 `json:"sender"`
	Content          string                 `json:"content"`
	VerificationCode string                 `json:"verification_code,omitempty"`
	Category         models.MessageCategory `json:"category"`
	Brand            Brand                  `json:"brand"`
	Outbound         bool                   `json:"outbound"`
	ReceivedAt       time.Time              `json:"received_at"`
}

type InboxView struct {
	Messages []MessageView     `json:"messages"`
	Numbers  map[string]string `json:"numbers"` // slot id -> phone number
	Marked   int64             `json:"marked_read"`
}

type InboxFilter struct {
	Number   string // formatted or raw; matched after digit normalization
	Category string // "verification", "other" or "" / "all"
}

type IngestRequest struct {
	SlotID           string `json:"slot_id" binding:"required"`
	Sender           string `json:"sender" binding:"required"`
	Content          string `json:"content" binding:"required"`
	VerificationCode string `json:"verification_code"`
	IsSpam           bool   `json:"is_spam"`
}

// InboxService assembles the message view for a user and owns the
// send-with-credit flow.
type InboxService struct {
	slots   SlotStore
	subs    SubscriptionStore
	sms     SMSStore
	events  EventPublisher
	cache   *CacheService
	metrics MetricsCollector
	logger  logger.Logger
}

func NewInboxService(
	slots SlotStore,
	subs SubscriptionStore,
	sms SMSStore,
	events EventPublisher,
	cache *CacheService,
	metrics MetricsCollector,
	log logger.Logger,
) *InboxService {
	return &InboxService{
		slots:   slots,
		subs:    subs,
		sms:     sms,
		events:  events,
		cache:   cache,
		metrics: metrics,
		logger:  log,
	}
}

// ListMessages returns the user's messages newest-first with brand
// classification applied, and marks everything read as a side effect.
// Filtering happens in memory over the already-fetched page.
func (s *InboxService) ListMessages(ctx context.Context, userID string, filter InboxFilter) (*InboxView, error) {
	slots, err := s.slots.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	numbers := make(map[string]string, len(slots))
	for _, slot := range slots {
		numbers[slot.SlotID] = slot.PhoneNumber
	}

	logs, err := s.sms.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	marked, err := s.sms.MarkAllRead(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to mark messages read",
			logger.Field{Key: "user_id", Value: userID},
			logger.Field{Key: "error", Value: err})
	} else if marked > 0 {
		s.cache.InvalidateUnread(ctx, userID)
	}

	wantNumber := normalizeNumber(filter.Number)
	wantCategory := filter.Category
	if wantCategory == "all" {
		wantCategory = ""
	}

	views := make([]MessageView, 0, len(logs))
	for _, log := range logs {
		number := numbers[log.SlotID]
		if wantNumber != "" && normalizeNumber(number) != wantNumber {
			continue
		}
		category := log.Category()
		if wantCategory != "" && string(category) != wantCategory {
			continue
		}
		views = append(views, MessageView{
			ID:               log.ID.Hex(),
			SlotID:           log.SlotID,
			PhoneNumber:      number,
			Sender:           log.Sender,
			Content:          log.Content,
			VerificationCode: log.VerificationCode,
			Category:         category,
			Brand:            ClassifyBrand(log.ServiceName, log.Sender),
			Outbound:         log.ServiceName == models.ServiceNameSent,
			ReceivedAt:       log.ReceivedAt,
		})
	}

	return &InboxView{Messages: views, Numbers: numbers, Marked: marked}, nil
}

// UnreadCount serves the inbox badge. The cached counter is kept hot
// by ingest bumps; a miss falls back to a store count and re-primes
// the cache.
func (s *InboxService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	if count, ok := s.cache.UnreadCount(ctx, userID); ok {
		return count, nil
	}
	count, err := s.sms.CountUnread(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.cache.CacheUnreadCount(ctx, userID, count)
	return count, nil
}

// SendMessage debits exactly one credit from the subscription that
// governs the sending number, then records the outbound message. The
// debit is conditional on remaining credit, so a user at the limit
// gets refused instead of overdrawn, and the filter pins the single
// governing subscription so no other row can lose a credit.
func (s *InboxService) SendMessage(ctx context.Context, userID string, req *models.SendSMSRequest) (*models.SMSLog, error) {
	if req.From == "" || req.To == "" || req.Body == "" {
		return nil, ErrInvalidInput
	}

	slot, err := s.findOwnedSlotByNumber(ctx, userID, req.From)
	if err != nil {
		return nil, err
	}

	if err := s.subs.DebitCredit(ctx, userID, slot.PhoneNumber, 1); err != nil {
		if err == database.ErrNotFound {
			return nil, ErrInsufficientCredits
		}
		return nil, err
	}

	entry := &models.SMSLog{
		UserID:      userID,
		SlotID:      slot.SlotID,
		Sender:      slot.PhoneNumber,
		Content:     req.Body,
		ServiceName: models.ServiceNameSent,
		Read:        true,
		ReceivedAt:  time.Now(),
	}
	if err := s.sms.Insert(ctx, entry); err != nil {
		// The credit is already spent; surface the inconsistency
		// instead of silently retrying and risking a second debit.
		s.logger.Error("outbound message insert failed after credit debit",
			logger.Field{Key: "user_id", Value: userID},
			logger.Field{Key: "slot_id", Value: slot.SlotID},
			logger.Field{Key: "error", Value: err})
		return nil, fmt.Errorf("message log failed after debit: %w", err)
	}

	s.metrics.IncrementMessagesSent()
	return entry, nil
}

// Ingest records an inbound message for a slot and publishes it for
// the forwarder. It stands in for the carrier delivery pipeline.
func (s *InboxService) Ingest(ctx context.Context, req *IngestRequest) (*models.SMSLog, error) {
	if req.SlotID == "" || req.Sender == "" || req.Content == "" {
		return nil, ErrInvalidInput
	}

	slot, err := s.slots.FindBySlotID(ctx, req.SlotID)
	if err != nil {
		if err == database.ErrNotFound {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	if slot.AssignedTo == "" {
		return nil, ErrSlotNotFound
	}

	entry := &models.SMSLog{
		UserID:           slot.AssignedTo,
		SlotID:           slot.SlotID,
		Sender:           req.Sender,
		Content:          req.Content,
		VerificationCode: req.VerificationCode,
		ServiceName:      req.Sender,
		IsSpam:           req.IsSpam,
		ReceivedAt:       time.Now(),
	}
	if err := s.sms.Insert(ctx, entry); err != nil {
		return nil, err
	}

	s.metrics.IncrementMessagesReceived()
	s.cache.BumpUnread(ctx, slot.AssignedTo)

	if s.events != nil {
		err := s.events.PublishEvent(messaging.ExchangeEvents, messaging.RoutingKeySMSReceived, SMSReceivedEvent{
			UserID:           slot.AssignedTo,
			SlotID:           slot.SlotID,
			PhoneNumber:      slot.PhoneNumber,
			Sender:           req.Sender,
			Content:          req.Content,
			VerificationCode: req.VerificationCode,
			ReceivedAt:       entry.ReceivedAt,
		})
		if err != nil {
			s.logger.Warn("failed to publish inbound message event",
				logger.Field{Key: "slot_id", Value: slot.SlotID},
				logger.Field{Key: "error", Value: err})
		}
	}

	return entry, nil
}

func (s *InboxService) findOwnedSlotByNumber(ctx context.Context, userID, number string) (*models.Slot, error) {
	slots, err := s.slots.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	want := normalizeNumber(number)
	if want == "" {
		return nil, ErrInvalidInput
	}
	for _, slot := range slots {
		if normalizeNumber(slot.PhoneNumber) == want {
			return slot, nil
		}
	}
	return nil, ErrSlotNotFound
}
