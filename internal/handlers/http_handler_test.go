package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/telavo/telavo/internal/billing"
	"github.com/telavo/telavo/internal/models"
	"github.com/telavo/telavo/internal/service"
	"github.com/telavo/telavo/pkg/cache"
	"github.com/telavo/telavo/pkg/database"
	"github.com/telavo/telavo/pkg/logger"
	"github.com/telavo/telavo/pkg/middleware"
)

// In-memory stores: enough behavior for surface-level handler tests;
// business rules are covered in the service package.

type memUserStore struct {
	byEmail map[string]*models.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{byEmail: make(map[string]*models.User)}
}

func (s *memUserStore) Create(ctx context.Context, user *models.User) error {
	if _, exists := s.byEmail[user.Email]; exists {
		return database.ErrDuplicate
	}
	user.ID = primitive.NewObjectID()
	s.byEmail[user.Email] = user
	return nil
}

func (s *memUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	for _, u := range s.byEmail {
		if u.ID.Hex() == id {
			return u, nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *memUserStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	u, ok := s.byEmail[email]
	if !ok {
		return nil, database.ErrNotFound
	}
	return u, nil
}

func (s *memUserStore) SetStripeCustomer(ctx context.Context, userID, customerID string) error {
	return nil
}

func (s *memUserStore) UpdateForwardingConfig(ctx context.Context, userID string, req *models.ForwardingConfigRequest) error {
	u, err := s.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if req.TelegramChatID != nil {
		u.TelegramChatID = *req.TelegramChatID
	}
	if req.WebhookURL != nil {
		u.WebhookURL = *req.WebhookURL
	}
	if req.WebhookEnabled != nil {
		u.WebhookEnabled = *req.WebhookEnabled
	}
	return nil
}

type stubSlotStore struct{}

func (stubSlotStore) FindBySlotID(ctx context.Context, slotID string) (*models.Slot, error) {
	return nil, database.ErrNotFound
}
func (stubSlotStore) FindByUser(ctx context.Context, userID string) ([]*models.Slot, error) {
	return []*models.Slot{}, nil
}
func (stubSlotStore) ClaimFree(ctx context.Context, userID string) (*models.Slot, error) {
	return nil, database.ErrNotFound
}
func (stubSlotStore) Reserve(ctx context.Context, slotID, userID string) (*models.Slot, error) {
	return nil, database.ErrNotFound
}
func (stubSlotStore) Occupy(ctx context.Context, slotID, userID, planType string) error { return nil }
func (stubSlotStore) Release(ctx context.Context, slotID string) error                  { return nil }
func (stubSlotStore) UpdatePlanType(ctx context.Context, slotID, planType string) error { return nil }

type stubSubStore struct{}

func (stubSubStore) Create(ctx context.Context, sub *models.Subscription) error { return nil }
func (stubSubStore) FindActiveBySlot(ctx context.Context, slotID string) (*models.Subscription, error) {
	return nil, database.ErrNotFound
}
func (stubSubStore) FindBySessionID(ctx context.Context, sessionID string) (*models.Subscription, error) {
	return nil, database.ErrNotFound
}
func (stubSubStore) FindLatestActiveByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	return nil, database.ErrNotFound
}
func (stubSubStore) FindByUser(ctx context.Context, userID string) ([]*models.Subscription, error) {
	return nil, nil
}
func (stubSubStore) UpdateStatus(ctx context.Context, id primitive.ObjectID, status models.SubscriptionStatus) error {
	return nil
}
func (stubSubStore) DebitCredit(ctx context.Context, userID, phoneNumber string, amount int) error {
	return database.ErrNotFound
}

type stubSMSStore struct{}

func (stubSMSStore) Insert(ctx context.Context, log *models.SMSLog) error { return nil }
func (stubSMSStore) FindByUser(ctx context.Context, userID string) ([]*models.SMSLog, error) {
	return []*models.SMSLog{}, nil
}
func (stubSMSStore) MarkAllRead(ctx context.Context, userID string) (int64, error) { return 0, nil }
func (stubSMSStore) CountUnread(ctx context.Context, userID string) (int64, error) { return 0, nil }
func (stubSMSStore) DailyCounts(ctx context.Context, userID string, since time.Time) (map[string]int, error) {
	return map[string]int{}, nil
}

type stubDeviceStore struct{}

func (stubDeviceStore) Touch(ctx context.Context, session *models.DeviceSession) error { return nil }
func (stubDeviceStore) FindByUser(ctx context.Context, userID string) ([]*models.DeviceSession, error) {
	return []*models.DeviceSession{}, nil
}
func (stubDeviceStore) Delete(ctx context.Context, userID, sessionID string) error { return nil }
func (stubDeviceStore) DeleteOthers(ctx context.Context, userID, keepSessionID string) (int64, error) {
	return 0, nil
}

type stubGateway struct {
	session  *billing.Session
	parseErr error
}

func (g *stubGateway) CreateCheckoutSession(ctx context.Context, params billing.CheckoutParams) (*billing.Session, error) {
	return &billing.Session{ID: "cs_test", URL: "https://pay.example.com/cs_test"}, nil
}

func (g *stubGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*billing.Session, error) {
	if g.session != nil {
		return g.session, nil
	}
	return &billing.Session{ID: sessionID, PaymentStatus: billing.PaymentStatusUnpaid}, nil
}

func (g *stubGateway) DefaultPaymentMethod(ctx context.Context, customerID string) (string, error) {
	return "", billing.ErrNoPaymentMethod
}

func (g *stubGateway) CreateSubscription(ctx context.Context, params billing.SubscriptionParams) (string, error) {
	return "sub_test", nil
}

func (g *stubGateway) UpdateSubscriptionPrice(ctx context.Context, subscriptionID, priceID string) error {
	return nil
}

func (g *stubGateway) ParseWebhook(payload []byte, signature string) (*billing.WebhookEvent, error) {
	if g.parseErr != nil {
		return nil, g.parseErr
	}
	return &billing.WebhookEvent{Type: "noop"}, nil
}

type noopTx struct{}

func (noopTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type noopKV struct{}

func (noopKV) Get(ctx context.Context, key string) (string, error) { return "", cache.ErrCacheMiss }
func (noopKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return nil
}
func (noopKV) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return true, nil
}
func (noopKV) Delete(ctx context.Context, keys ...string) error { return nil }
func (noopKV) GetJSON(ctx context.Context, key string, dest interface{}) error {
	return cache.ErrCacheMiss
}
func (noopKV) Increment(ctx context.Context, key string) (int64, error) { return 1, nil }
func (noopKV) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}

type testHarness struct {
	router *gin.Engine
	users  *memUserStore
}

func newTestHarness(t *testing.T, gateway billing.PaymentGateway) *testHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.New("error", "json")
	users := newMemUserStore()
	authMW := middleware.NewAuthMiddleware("test-secret", time.Hour)
	cacheSvc := service.NewCacheService(noopKV{}, log)
	metrics := service.NewNoopMetrics()

	authSvc := service.NewAuthService(users, authMW, time.Hour, log)
	checkoutSvc := service.NewCheckoutService(
		users, stubSlotStore{}, stubSubStore{}, gateway, noopTx{}, nil,
		cacheSvc, metrics, log, 7, "eur",
	)
	activationSvc := service.NewActivationService(stubSubStore{}, cacheSvc, nil, metrics, log, 1, time.Millisecond)
	inboxSvc := service.NewInboxService(stubSlotStore{}, stubSubStore{}, stubSMSStore{}, nil, cacheSvc, metrics, log)
	lifecycleSvc := service.NewLifecycleService(stubSlotStore{}, stubSubStore{}, noopTx{}, nil, metrics, log)
	deviceSvc := service.NewDeviceService(stubDeviceStore{}, log)
	usageSvc := service.NewUsageService(stubSubStore{}, stubSMSStore{}, log)

	handler := NewHTTPHandler(
		authSvc, checkoutSvc, activationSvc, inboxSvc, lifecycleSvc,
		deviceSvc, usageSvc, authMW, nil, log,
	)

	router := gin.New()
	handler.RegisterRoutes(router)
	return &testHarness{router: router, users: users}
}

func (h *testHarness) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *testHarness) registerAndLogin(t *testing.T) string {
	t.Helper()
	rec := h.do(t, http.MethodPost, "/api/v1/auth/register", "", models.RegisterRequest{
		Email:    "ana@example.com",
		Password: "secretpass",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp models.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.AccessToken
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestHarness(t, &stubGateway{})
	rec := h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newTestHarness(t, &stubGateway{})

	for _, path := range []string{
		"/api/v1/messages",
		"/api/v1/devices",
		"/api/v1/usage/forecast",
	} {
		rec := h.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestRegisterLoginFlow(t *testing.T) {
	h := newTestHarness(t, &stubGateway{})
	token := h.registerAndLogin(t)
	require.NotEmpty(t, token)

	// Duplicate registration conflicts.
	rec := h.do(t, http.MethodPost, "/api/v1/auth/register", "", models.RegisterRequest{
		Email:    "ana@example.com",
		Password: "secretpass",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/auth/login", "", models.LoginRequest{
		Email:    "ana@example.com",
		Password: "secretpass",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/auth/login", "", models.LoginRequest{
		Email:    "ana@example.com",
		Password: "wrong-pass",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/profile", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCheckoutSessionReturnsRedirectURL(t *testing.T) {
	h := newTestHarness(t, &stubGateway{})
	token := h.registerAndLogin(t)

	rec := h.do(t, http.MethodPost, "/api/v1/checkout/session", token, map[string]interface{}{
		"priceId":      "price_basic",
		"planName":     "Básico",
		"monthlyLimit": 100,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var result service.CheckoutResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Instant)
	assert.Equal(t, "https://pay.example.com/cs_test", result.URL)
}

func TestVerifyCheckoutUnpaid(t *testing.T) {
	h := newTestHarness(t, &stubGateway{})
	token := h.registerAndLogin(t)

	rec := h.do(t, http.MethodPost, "/api/v1/checkout/verify", token, map[string]string{
		"sessionId": "cs_test",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var result service.VerifyResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, service.VerifyStatusUnpaid, result.Status)
}

func TestWebhookInvalidSignature(t *testing.T) {
	h := newTestHarness(t, &stubGateway{parseErr: billing.ErrInvalidSignature})

	rec := h.do(t, http.MethodPost, "/api/v1/checkout/webhook", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReleaseSlotRequiresConfirmation(t *testing.T) {
	h := newTestHarness(t, &stubGateway{})
	token := h.registerAndLogin(t)

	rec := h.do(t, http.MethodPost, "/api/v1/slots/slot-1/release", token, map[string]bool{
		"confirmed": false,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageWithoutOwnedNumber(t *testing.T) {
	h := newTestHarness(t, &stubGateway{})
	token := h.registerAndLogin(t)

	rec := h.do(t, http.MethodPost, "/api/v1/messages/send", token, models.SendSMSRequest{
		From: "+34600000000",
		To:   "+34611111111",
		Body: "hola",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnreadCountEmptyInbox(t *testing.T) {
	h := newTestHarness(t, &stubGateway{})
	token := h.registerAndLogin(t)

	rec := h.do(t, http.MethodGet, "/api/v1/messages/unread", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"unread":0}`, rec.Body.String())
}

func TestUsageForecastWithoutSubscription(t *testing.T) {
	h := newTestHarness(t, &stubGateway{})
	token := h.registerAndLogin(t)

	rec := h.do(t, http.MethodGet, "/api/v1/usage/forecast", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
