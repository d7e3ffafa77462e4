package billing

import (
	"context"
	"errors"
)

var (
	ErrInvalidAPIKey     = errors.New("billing: invalid api key")
	ErrNoPaymentMethod   = errors.New("billing: no default payment method")
	ErrInvalidSignature  = errors.New("billing: invalid webhook signature")
	ErrSessionNotFound   = errors.New("billing: checkout session not found")
	ErrGatewayConfigured = errors.New("billing: gateway not configured")
)

// PaymentGateway abstracts the payment provider so the checkout
// orchestrator and the verification endpoint can be tested against a
// mock.
type PaymentGateway interface {
	// CreateCheckoutSession opens a hosted checkout page for a
	// recurring plan and returns its URL and session id.
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*Session, error)

	// GetCheckoutSession fetches the session with its payment status
	// and, when available, the underlying recurring-billing object id.
	GetCheckoutSession(ctx context.Context, sessionID string) (*Session, error)

	// DefaultPaymentMethod returns the stored default payment method
	// id for a customer, or ErrNoPaymentMethod when none exists.
	DefaultPaymentMethod(ctx context.Context, customerID string) (string, error)

	// CreateSubscription bills a stored payment method directly (the
	// one-click path). The idempotency key guards against a retried
	// fast path charging twice.
	CreateSubscription(ctx context.Context, params SubscriptionParams) (string, error)

	// UpdateSubscriptionPrice swaps the single line item of an
	// existing subscription to a new price with prorated invoicing
	// (the upgrade path).
	UpdateSubscriptionPrice(ctx context.Context, subscriptionID, priceID string) error

	// ParseWebhook verifies the provider signature and decodes the
	// event payload.
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

type CheckoutParams struct {
	PriceID         string
	CustomerID      string
	UserID          string
	PhoneNumber     string
	PlanName        string
	SlotID          string
	MonthlyLimit    int
	TransactionType string
	TrialDays       int
}

type SubscriptionParams struct {
	CustomerID      string
	PriceID         string
	PaymentMethodID string
	TrialDays       int
	IdempotencyKey  string
	Metadata        map[string]string
}

type Session struct {
	ID             string
	URL            string
	PaymentStatus  PaymentStatus
	SubscriptionID string
	AmountTotal    int64
	Currency       string
	Metadata       map[string]string
}

type PaymentStatus string

const (
	PaymentStatusPaid              PaymentStatus = "paid"
	PaymentStatusUnpaid            PaymentStatus = "unpaid"
	PaymentStatusNoPaymentRequired PaymentStatus = "no_payment_required"
)

type WebhookEvent struct {
	Type           string
	SessionID      string
	SubscriptionID string
	AmountTotal    int64
	Currency       string
	Metadata       map[string]string
}

const EventCheckoutCompleted = "checkout.session.completed"
