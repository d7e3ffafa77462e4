package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/telavo/telavo/internal/models"
	"github.com/telavo/telavo/pkg/database"
	"github.com/telavo/telavo/pkg/logger"
	"github.com/telavo/telavo/pkg/messaging"
)

type LifecycleServiceTestSuite struct {
	suite.Suite
	ctx       context.Context
	slots     *MockSlotStore
	subs      *MockSubscriptionStore
	tx        *fakeTx
	publisher *recordingPublisher
	svc       *LifecycleService
}

func (s *LifecycleServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.slots = new(MockSlotStore)
	s.subs = new(MockSubscriptionStore)
	s.tx = &fakeTx{}
	s.publisher = &recordingPublisher{}
	s.svc = NewLifecycleService(s.slots, s.subs, s.tx, s.publisher, NewNoopMetrics(), logger.New("error", "json"))
}

func TestLifecycleServiceTestSuite(t *testing.T) {
	suite.Run(t, new(LifecycleServiceTestSuite))
}

func (s *LifecycleServiceTestSuite) ownedSlot() *models.Slot {
	return &models.Slot{
		SlotID:      "slot-1",
		PhoneNumber: "+34612345678",
		Status:      models.SlotStatusOccupied,
		AssignedTo:  "user-1",
		PlanType:    "Básico",
	}
}

func (s *LifecycleServiceTestSuite) TestRelease_RequiresConfirmation() {
	err := s.svc.Release(s.ctx, "user-1", &ReleaseRequest{SlotID: "slot-1"})

	s.ErrorIs(err, ErrConfirmationRequired)
	s.Equal(0, s.tx.calls)
}

func (s *LifecycleServiceTestSuite) TestRelease_RejectsNonOwner() {
	s.slots.On("FindBySlotID", mock.Anything, "slot-1").Return(s.ownedSlot(), nil)

	err := s.svc.Release(s.ctx, "intruder", &ReleaseRequest{SlotID: "slot-1", Confirmed: true})

	s.ErrorIs(err, ErrNotSlotOwner)
	s.slots.AssertNotCalled(s.T(), "Release", mock.Anything, mock.Anything)
}

// Cancel + free happen inside one transaction, and both run even when
// no active subscription exists for the slot.
func (s *LifecycleServiceTestSuite) TestRelease_CancelsSubscriptionAndFreesSlot() {
	sub := &models.Subscription{ID: primitive.NewObjectID(), UserID: "user-1", SlotID: "slot-1", Status: models.SubscriptionStatusActive}
	s.slots.On("FindBySlotID", mock.Anything, "slot-1").Return(s.ownedSlot(), nil)
	s.subs.On("FindActiveBySlot", mock.Anything, "slot-1").Return(sub, nil)
	s.subs.On("UpdateStatus", mock.Anything, sub.ID, models.SubscriptionStatusCanceled).Return(nil)
	s.slots.On("Release", mock.Anything, "slot-1").Return(nil)

	err := s.svc.Release(s.ctx, "user-1", &ReleaseRequest{SlotID: "slot-1", Confirmed: true})

	s.NoError(err)
	s.Equal(1, s.tx.calls)
	s.Equal([]string{messaging.RoutingKeySubscriptionReleased}, s.publisher.routingKeys())
}

func (s *LifecycleServiceTestSuite) TestRelease_NoActiveSubscriptionStillFrees() {
	s.slots.On("FindBySlotID", mock.Anything, "slot-1").Return(s.ownedSlot(), nil)
	s.subs.On("FindActiveBySlot", mock.Anything, "slot-1").Return(nil, database.ErrNotFound)
	s.slots.On("Release", mock.Anything, "slot-1").Return(nil)

	err := s.svc.Release(s.ctx, "user-1", &ReleaseRequest{SlotID: "slot-1", Confirmed: true})

	s.NoError(err)
	s.subs.AssertNotCalled(s.T(), "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func (s *LifecycleServiceTestSuite) TestRelease_TransactionErrorPropagates() {
	s.slots.On("FindBySlotID", mock.Anything, "slot-1").Return(s.ownedSlot(), nil)
	s.subs.On("FindActiveBySlot", mock.Anything, "slot-1").Return(nil, errors.New("connection reset"))

	err := s.svc.Release(s.ctx, "user-1", &ReleaseRequest{SlotID: "slot-1", Confirmed: true})

	s.Error(err)
	s.Empty(s.publisher.routingKeys())
}

func (s *LifecycleServiceTestSuite) TestUpgrade_SupersedesOldRow() {
	old := &models.Subscription{
		ID:           primitive.NewObjectID(),
		UserID:       "user-1",
		SlotID:       "slot-1",
		PhoneNumber:  "+34612345678",
		PlanName:     "Básico",
		MonthlyLimit: 100,
		Status:       models.SubscriptionStatusActive,
		Currency:     "eur",
	}
	s.subs.On("FindActiveBySlot", mock.Anything, "slot-1").Return(old, nil)
	s.subs.On("UpdateStatus", mock.Anything, old.ID, models.SubscriptionStatusUpgraded).Return(nil)
	s.subs.On("Create", mock.Anything, mock.MatchedBy(func(sub *models.Subscription) bool {
		return sub.PlanName == "Pro" &&
			sub.MonthlyLimit == 500 &&
			sub.PhoneNumber == old.PhoneNumber &&
			sub.Status == models.SubscriptionStatusActive
	})).Return(nil)
	s.slots.On("UpdatePlanType", mock.Anything, "slot-1", "Pro").Return(nil)

	replacement, err := s.svc.Upgrade(s.ctx, "user-1", &UpgradeRequest{
		SlotID: "slot-1", PlanName: "Pro", MonthlyLimit: 500, Amount: 1999,
	})

	s.NoError(err)
	s.Equal("Pro", replacement.PlanName)
	s.Equal(1, s.tx.calls)
	s.Equal([]string{messaging.RoutingKeySubscriptionUpgraded}, s.publisher.routingKeys())
}

func (s *LifecycleServiceTestSuite) TestUpgrade_NoActiveSubscription() {
	s.subs.On("FindActiveBySlot", mock.Anything, "slot-1").Return(nil, database.ErrNotFound)

	_, err := s.svc.Upgrade(s.ctx, "user-1", &UpgradeRequest{
		SlotID: "slot-1", PlanName: "Pro", MonthlyLimit: 500,
	})

	s.ErrorIs(err, ErrNoActiveSubscription)
}

func (s *LifecycleServiceTestSuite) TestUpgrade_RejectsNonOwner() {
	old := &models.Subscription{ID: primitive.NewObjectID(), UserID: "someone-else", SlotID: "slot-1", Status: models.SubscriptionStatusActive}
	s.subs.On("FindActiveBySlot", mock.Anything, "slot-1").Return(old, nil)

	_, err := s.svc.Upgrade(s.ctx, "user-1", &UpgradeRequest{
		SlotID: "slot-1", PlanName: "Pro", MonthlyLimit: 500,
	})

	s.ErrorIs(err, ErrNotSlotOwner)
	s.subs.AssertNotCalled(s.T(), "Create", mock.Anything, mock.Anything)
}
