package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/telavo/telavo/pkg/logger"
)

// StripeGateway implements PaymentGateway against the Stripe API.
type StripeGateway struct {
	sc            *client.API
	secretKey     string
	webhookSecret string
	successURL    string
	cancelURL     string
	invalidKey    bool // once detected, short-circuit further remote calls
}

func NewStripeGateway(secretKey, webhookSecret, successURL, cancelURL string) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, ErrGatewayConfigured
	}

	sc := &client.API{}
	sc.Init(secretKey, nil)

	return &StripeGateway{
		sc:            sc,
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		successURL:    successURL,
		cancelURL:     cancelURL,
	}, nil
}

func maskKey(k string) string {
	if len(k) < 12 {
		return "****"
	}
	return k[:7] + "..." + k[len(k)-4:]
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*Session, error) {
	if g.invalidKey {
		return nil, ErrInvalidAPIKey
	}

	phoneNumber := p.PhoneNumber
	if phoneNumber == "" {
		phoneNumber = "PENDING"
	}

	params := &stripe.CheckoutSessionParams{
		SuccessURL: stripe.String(g.successURL + "?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(g.cancelURL),
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(p.PriceID),
			Quantity: stripe.Int64(1),
		}},
		Metadata: map[string]string{
			"user_id":          p.UserID,
			"phone_number":     phoneNumber,
			"plan_name":        p.PlanName,
			"limit":            strconv.Itoa(p.MonthlyLimit),
			"slot_id":          p.SlotID,
			"transaction_type": p.TransactionType,
		},
	}
	params.Context = ctx

	if p.CustomerID != "" {
		params.Customer = stripe.String(p.CustomerID)
	}
	if p.TrialDays > 0 {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			TrialPeriodDays: stripe.Int64(int64(p.TrialDays)),
		}
	}

	sess, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, g.wrapError("checkout session create", err)
	}

	return &Session{
		ID:            sess.ID,
		URL:           sess.URL,
		PaymentStatus: PaymentStatus(sess.PaymentStatus),
		Metadata:      sess.Metadata,
	}, nil
}

func (g *StripeGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*Session, error) {
	if g.invalidKey {
		return nil, ErrInvalidAPIKey
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("subscription")

	sess, err := g.sc.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.HTTPStatusCode == 404 {
			return nil, ErrSessionNotFound
		}
		return nil, g.wrapError("checkout session get", err)
	}

	result := &Session{
		ID:            sess.ID,
		URL:           sess.URL,
		PaymentStatus: PaymentStatus(sess.PaymentStatus),
		AmountTotal:   sess.AmountTotal,
		Metadata:      sess.Metadata,
	}
	if sess.Currency != "" {
		result.Currency = string(sess.Currency)
	}
	if sess.Subscription != nil {
		result.SubscriptionID = sess.Subscription.ID
	}

	return result, nil
}

func (g *StripeGateway) DefaultPaymentMethod(ctx context.Context, customerID string) (string, error) {
	if g.invalidKey {
		return "", ErrInvalidAPIKey
	}

	params := &stripe.CustomerParams{}
	params.Context = ctx

	cust, err := g.sc.Customers.Get(customerID, params)
	if err != nil {
		return "", g.wrapError("customer get", err)
	}

	if cust.InvoiceSettings != nil && cust.InvoiceSettings.DefaultPaymentMethod != nil {
		return cust.InvoiceSettings.DefaultPaymentMethod.ID, nil
	}

	// No explicit default; fall back to the first attached card.
	listParams := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String(string(stripe.PaymentMethodTypeCard)),
	}
	listParams.Context = ctx

	iter := g.sc.PaymentMethods.List(listParams)
	for iter.Next() {
		return iter.PaymentMethod().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", g.wrapError("payment method list", err)
	}

	return "", ErrNoPaymentMethod
}

func (g *StripeGateway) CreateSubscription(ctx context.Context, p SubscriptionParams) (string, error) {
	if g.invalidKey {
		return "", ErrInvalidAPIKey
	}

	params := &stripe.SubscriptionParams{
		Customer: stripe.String(p.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{{
			Price:    stripe.String(p.PriceID),
			Quantity: stripe.Int64(1),
		}},
		DefaultPaymentMethod: stripe.String(p.PaymentMethodID),
	}
	params.Context = ctx
	params.Metadata = p.Metadata

	if p.TrialDays > 0 {
		params.TrialPeriodDays = stripe.Int64(int64(p.TrialDays))
	}
	if p.IdempotencyKey != "" {
		params.SetIdempotencyKey(p.IdempotencyKey)
	}

	sub, err := g.sc.Subscriptions.New(params)
	if err != nil {
		return "", g.wrapError("subscription create", err)
	}

	return sub.ID, nil
}

func (g *StripeGateway) UpdateSubscriptionPrice(ctx context.Context, subscriptionID, priceID string) error {
	if g.invalidKey {
		return ErrInvalidAPIKey
	}

	getParams := &stripe.SubscriptionParams{}
	getParams.Context = ctx

	sub, err := g.sc.Subscriptions.Get(subscriptionID, getParams)
	if err != nil {
		return g.wrapError("subscription get", err)
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return fmt.Errorf("subscription %s has no line items", subscriptionID)
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{{
			ID:    stripe.String(sub.Items.Data[0].ID),
			Price: stripe.String(priceID),
		}},
		ProrationBehavior: stripe.String("always_invoice"),
	}
	params.Context = ctx

	if _, err := g.sc.Subscriptions.Update(subscriptionID, params); err != nil {
		return g.wrapError("subscription update", err)
	}

	return nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	if g.webhookSecret != "" {
		if _, err := webhook.ConstructEvent(payload, signature, g.webhookSecret); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
	}

	var event struct {
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID           string            `json:"id"`
				Subscription string            `json:"subscription"`
				AmountTotal  int64             `json:"amount_total"`
				Currency     string            `json:"currency"`
				Metadata     map[string]string `json:"metadata"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}

	return &WebhookEvent{
		Type:           event.Type,
		SessionID:      event.Data.Object.ID,
		SubscriptionID: event.Data.Object.Subscription,
		AmountTotal:    event.Data.Object.AmountTotal,
		Currency:       event.Data.Object.Currency,
		Metadata:       event.Data.Object.Metadata,
	}, nil
}

func (g *StripeGateway) wrapError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && (se.HTTPStatusCode == 401 || strings.Contains(strings.ToLower(se.Msg), "invalid api key")) {
		logger.Error("Stripe rejected api key",
			logger.Field{Key: "op", Value: op},
			logger.Field{Key: "key", Value: maskKey(g.secretKey)},
		)
		g.invalidKey = true
		return ErrInvalidAPIKey
	}
	return fmt.Errorf("stripe %s: %w", op, err)
}
