package service

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/telavo/telavo/internal/billing"
	"github.com/telavo/telavo/internal/models"
	"github.com/telavo/telavo/pkg/cache"
)

type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) Create(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserStore) SetStripeCustomer(ctx context.Context, userID, customerID string) error {
	return m.Called(ctx, userID, customerID).Error(0)
}

func (m *MockUserStore) UpdateForwardingConfig(ctx context.Context, userID string, req *models.ForwardingConfigRequest) error {
	return m.Called(ctx, userID, req).Error(0)
}

type MockSlotStore struct {
	mock.Mock
}

func (m *MockSlotStore) FindBySlotID(ctx context.Context, slotID string) (*models.Slot, error) {
	args := m.Called(ctx, slotID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Slot), args.Error(1)
}

func (m *MockSlotStore) FindByUser(ctx context.Context, userID string) ([]*models.Slot, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Slot), args.Error(1)
}

func (m *MockSlotStore) ClaimFree(ctx context.Context, userID string) (*models.Slot, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Slot), args.Error(1)
}

func (m *MockSlotStore) Reserve(ctx context.Context, slotID, userID string) (*models.Slot, error) {
	args := m.Called(ctx, slotID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Slot), args.Error(1)
}

func (m *MockSlotStore) Occupy(ctx context.Context, slotID, userID, planType string) error {
	return m.Called(ctx, slotID, userID, planType).Error(0)
}

func (m *MockSlotStore) Release(ctx context.Context, slotID string) error {
	return m.Called(ctx, slotID).Error(0)
}

func (m *MockSlotStore) UpdatePlanType(ctx context.Context, slotID, planType string) error {
	return m.Called(ctx, slotID, planType).Error(0)
}

type MockSubscriptionStore struct {
	mock.Mock
}

func (m *MockSubscriptionStore) Create(ctx context.Context, sub *models.Subscription) error {
	return m.Called(ctx, sub).Error(0)
}

func (m *MockSubscriptionStore) FindActiveBySlot(ctx context.Context, slotID string) (*models.Subscription, error) {
	args := m.Called(ctx, slotID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionStore) FindBySessionID(ctx context.Context, sessionID string) (*models.Subscription, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionStore) FindLatestActiveByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionStore) FindByUser(ctx context.Context, userID string) ([]*models.Subscription, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Subscription), args.Error(1)
}

func (m *MockSubscriptionStore) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.SubscriptionStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockSubscriptionStore) DebitCredit(ctx context.Context, userID, phoneNumber string, amount int) error {
	return m.Called(ctx, userID, phoneNumber, amount).Error(0)
}

type MockSMSStore struct {
	mock.Mock
}

func (m *MockSMSStore) Insert(ctx context.Context, log *models.SMSLog) error {
	return m.Called(ctx, log).Error(0)
}

func (m *MockSMSStore) FindByUser(ctx context.Context, userID string) ([]*models.SMSLog, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SMSLog), args.Error(1)
}

func (m *MockSMSStore) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSMSStore) CountUnread(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSMSStore) DailyCounts(ctx context.Context, userID string, since time.Time) (map[string]int, error) {
	args := m.Called(ctx, userID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int), args.Error(1)
}

type MockDeviceStore struct {
	mock.Mock
}

func (m *MockDeviceStore) Touch(ctx context.Context, session *models.DeviceSession) error {
	return m.Called(ctx, session).Error(0)
}

func (m *MockDeviceStore) FindByUser(ctx context.Context, userID string) ([]*models.DeviceSession, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.DeviceSession), args.Error(1)
}

func (m *MockDeviceStore) Delete(ctx context.Context, userID, sessionID string) error {
	return m.Called(ctx, userID, sessionID).Error(0)
}

func (m *MockDeviceStore) DeleteOthers(ctx context.Context, userID, keepSessionID string) (int64, error) {
	args := m.Called(ctx, userID, keepSessionID)
	return args.Get(0).(int64), args.Error(1)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateCheckoutSession(ctx context.Context, params billing.CheckoutParams) (*billing.Session, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Session), args.Error(1)
}

func (m *MockGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*billing.Session, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Session), args.Error(1)
}

func (m *MockGateway) DefaultPaymentMethod(ctx context.Context, customerID string) (string, error) {
	args := m.Called(ctx, customerID)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) CreateSubscription(ctx context.Context, params billing.SubscriptionParams) (string, error) {
	args := m.Called(ctx, params)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) UpdateSubscriptionPrice(ctx context.Context, subscriptionID, priceID string) error {
	return m.Called(ctx, subscriptionID, priceID).Error(0)
}

func (m *MockGateway) ParseWebhook(payload []byte, signature string) (*billing.WebhookEvent, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.WebhookEvent), args.Error(1)
}

type MockTelegramSender struct {
	mock.Mock
}

func (m *MockTelegramSender) SendMessage(ctx context.Context, chatID int64, text string) error {
	return m.Called(ctx, chatID, text).Error(0)
}

// fakeTx runs the callback on the plain context. Tests assert the
// grouping of writes, not Mongo session mechanics.
type fakeTx struct {
	calls int
}

func (t *fakeTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

// recordingPublisher captures published events in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

type publishedEvent struct {
	Exchange   string
	RoutingKey string
	Payload    interface{}
}

func (p *recordingPublisher) PublishEvent(exchange, routingKey string, message interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{Exchange: exchange, RoutingKey: routingKey, Payload: message})
	return nil
}

func (p *recordingPublisher) routingKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.events))
	for _, e := range p.events {
		keys = append(keys, e.RoutingKey)
	}
	return keys
}

// memoryKV is an in-memory stand-in for the Redis client.
type memoryKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryKV() *memoryKV {
	return &memoryKV{data: make(map[string]string)}
}

func (k *memoryKV) Get(ctx context.Context, key string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.data[key]
	if !ok {
		return "", cache.ErrCacheMiss
	}
	return v, nil
}

func (k *memoryKV) GetJSON(ctx context.Context, key string, dest interface{}) error {
	raw, err := k.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), dest)
}

func (k *memoryKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.data[key] = stringify(value)
	return nil
}

func (k *memoryKV) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, exists := k.data[key]; exists {
		return false, nil
	}
	k.data[key] = stringify(value)
	return true, nil
}

func (k *memoryKV) Delete(ctx context.Context, keys ...string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, key := range keys {
		delete(k.data, key)
	}
	return nil
}

func (k *memoryKV) Increment(ctx context.Context, key string) (int64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	var current int64
	if raw, ok := k.data[key]; ok {
		current, _ = strconv.ParseInt(raw, 10, 64)
	}
	current++
	k.data[key] = strconv.FormatInt(current, 10)
	return current, nil
}

func (k *memoryKV) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}
