package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/telavo/telavo/internal/models"
	"github.com/telavo/telavo/pkg/logger"
	"github.com/telavo/telavo/pkg/messaging"
)

// SMSReceivedEvent is the queue payload emitted by the ingest flow and
// consumed by the forwarder.
type SMSReceivedEvent struct {
	UserID           string    `json:"user_id"`
	SlotID           string    `json:"slot_id"`
	PhoneNumber      string    `json:"phone_number"`
	Sender           string    `json:"sender"`
	Content          string    `json:"content"`
	VerificationCode string    `json:"verification_code,omitempty"`
	ReceivedAt       time.Time `json:"received_at"`
}

type QueueConsumer interface {
	ConsumeQueue(ctx context.Context, queueName string, handler func([]byte) error) error
}

// Forwarder pushes inbound messages to the channels a user configured:
// an HTTP webhook and/or a Telegram chat. Each channel fails
// independently; one broken webhook never blocks the Telegram copy.
type Forwarder struct {
	users      UserStore
	slots      SlotStore
	telegram   TelegramSender
	httpClient *http.Client
	metrics    MetricsCollector
	logger     logger.Logger
}

func NewForwarder(
	users UserStore,
	slots SlotStore,
	telegram TelegramSender,
	httpClient *http.Client,
	metrics MetricsCollector,
	log logger.Logger,
) *Forwarder {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Forwarder{
		users:      users,
		slots:      slots,
		telegram:   telegram,
		httpClient: httpClient,
		metrics:    metrics,
		logger:     log,
	}
}

// Start blocks consuming the inbound-message queue until ctx is
// canceled.
func (f *Forwarder) Start(ctx context.Context, consumer QueueConsumer) error {
	return consumer.ConsumeQueue(ctx, messaging.QueueSMSReceived, func(body []byte) error {
		var event SMSReceivedEvent
		if _, err := messaging.DecodeEnvelope(body, &event); err != nil {
			f.logger.Error("dropping malformed inbound message event",
				logger.Field{Key: "error", Value: err})
			return nil // not retryable
		}
		return f.Forward(ctx, &event)
	})
}

// SubscriptionEvent is the payload of subscription lifecycle events.
// The envelope type distinguishes activation, upgrade and release.
type SubscriptionEvent struct {
	SubscriptionID string `json:"subscription_id"`
	UserID         string `json:"user_id"`
	SlotID         string `json:"slot_id"`
	PhoneNumber    string `json:"phone_number"`
	PlanName       string `json:"plan_name"`
}

// StartLifecycle blocks consuming the subscription lifecycle queue,
// turning activation, upgrade and release events into Telegram
// notifications.
func (f *Forwarder) StartLifecycle(ctx context.Context, consumer QueueConsumer) error {
	return consumer.ConsumeQueue(ctx, messaging.QueueSubscriptionActivated, func(body []byte) error {
		var event SubscriptionEvent
		eventType, err := messaging.DecodeEnvelope(body, &event)
		if err != nil {
			f.logger.Error("dropping malformed lifecycle event",
				logger.Field{Key: "error", Value: err})
			return nil
		}
		return f.NotifyLifecycle(ctx, eventType, &event)
	})
}

// NotifyLifecycle sends the Telegram notice for one lifecycle event.
// Users without a linked chat and unknown event types are skipped.
func (f *Forwarder) NotifyLifecycle(ctx context.Context, eventType string, event *SubscriptionEvent) error {
	if f.telegram == nil {
		return nil
	}
	user, err := f.users.FindByID(ctx, event.UserID)
	if err != nil {
		f.logger.Warn("lifecycle notify: unknown user, dropping",
			logger.Field{Key: "user_id", Value: event.UserID},
			logger.Field{Key: "error", Value: err})
		return nil
	}
	if user.TelegramChatID == 0 {
		return nil
	}

	var text string
	switch eventType {
	case messaging.RoutingKeySubscriptionActivated:
		text = fmt.Sprintf("✅ Tu número %s está activo", event.PhoneNumber)
	case messaging.RoutingKeySubscriptionUpgraded:
		text = fmt.Sprintf("⬆️ Plan actualizado a %s", event.PlanName)
	case messaging.RoutingKeySubscriptionReleased:
		text = fmt.Sprintf("👋 Número %s liberado", event.PhoneNumber)
	default:
		return nil
	}

	if err := f.telegram.SendMessage(ctx, user.TelegramChatID, text); err != nil {
		f.logger.Warn("lifecycle telegram delivery failed",
			logger.Field{Key: "user_id", Value: event.UserID},
			logger.Field{Key: "error", Value: err})
	} else {
		f.metrics.IncrementMessagesForwarded("telegram")
	}
	return nil
}

// Forward delivers one inbound message to the owner's configured
// channels. Delivery errors are logged and swallowed so the queue
// message is acked; a retry storm against a dead webhook helps nobody.
func (f *Forwarder) Forward(ctx context.Context, event *SMSReceivedEvent) error {
	user, err := f.users.FindByID(ctx, event.UserID)
	if err != nil {
		f.logger.Warn("forwarder: unknown user, dropping",
			logger.Field{Key: "user_id", Value: event.UserID},
			logger.Field{Key: "error", Value: err})
		return nil
	}

	if user.WebhookEnabled && user.WebhookURL != "" {
		if err := f.postWebhook(ctx, user.WebhookURL, event); err != nil {
			f.logger.Warn("webhook delivery failed",
				logger.Field{Key: "user_id", Value: event.UserID},
				logger.Field{Key: "error", Value: err})
		} else {
			f.metrics.IncrementMessagesForwarded("webhook")
		}
	}

	if user.TelegramChatID != 0 && f.telegram != nil && f.slotForwardingActive(ctx, event.SlotID) {
		text := fmt.Sprintf("📩 %s\nDe: %s\n%s", event.PhoneNumber, event.Sender, event.Content)
		if event.VerificationCode != "" {
			text += fmt.Sprintf("\nCódigo: %s", event.VerificationCode)
		}
		if err := f.telegram.SendMessage(ctx, user.TelegramChatID, text); err != nil {
			f.logger.Warn("telegram delivery failed",
				logger.Field{Key: "user_id", Value: event.UserID},
				logger.Field{Key: "error", Value: err})
		} else {
			f.metrics.IncrementMessagesForwarded("telegram")
		}
	}

	return nil
}

func (f *Forwarder) postWebhook(ctx context.Context, url string, event *SMSReceivedEvent) error {
	payload := models.WebhookPayload{
		Event:            "sms.received",
		From:             event.Sender,
		Content:          event.Content,
		VerificationCode: event.VerificationCode,
		PhoneNumber:      event.PhoneNumber,
		ReceivedAt:       event.ReceivedAt,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (f *Forwarder) slotForwardingActive(ctx context.Context, slotID string) bool {
	slot, err := f.slots.FindBySlotID(ctx, slotID)
	if err != nil {
		return false
	}
	return slot.ForwardingActive
}
