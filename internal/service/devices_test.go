package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/telavo/telavo/internal/models"
	"github.com/telavo/telavo/pkg/database"
	"github.com/telavo/telavo/pkg/logger"
)

func TestDeviceService_TouchIdempotentKey(t *testing.T) {
	devices := new(MockDeviceStore)
	devices.On("Touch", mock.Anything, mock.MatchedBy(func(s *models.DeviceSession) bool {
		return s.SessionID == "sess-abc" && s.UserID == "user-1" && !s.LastActive.IsZero()
	})).Return(nil)

	svc := NewDeviceService(devices, logger.New("error", "json"))
	session, err := svc.Touch(context.Background(), "user-1", &models.TouchDeviceRequest{
		SessionID:  "sess-abc",
		DeviceName: "Pixel 9",
		Location:   "Madrid",
	})

	require.NoError(t, err)
	assert.Equal(t, "sess-abc", session.SessionID)
}

func TestDeviceService_TouchRequiresSessionID(t *testing.T) {
	svc := NewDeviceService(new(MockDeviceStore), logger.New("error", "json"))
	_, err := svc.Touch(context.Background(), "user-1", &models.TouchDeviceRequest{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDeviceService_CloseUnknownSession(t *testing.T) {
	devices := new(MockDeviceStore)
	devices.On("Delete", mock.Anything, "user-1", "sess-gone").Return(database.ErrNotFound)

	svc := NewDeviceService(devices, logger.New("error", "json"))
	err := svc.Close(context.Background(), "user-1", "sess-gone")

	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDeviceService_CloseOthersKeepsCaller(t *testing.T) {
	devices := new(MockDeviceStore)
	devices.On("DeleteOthers", mock.Anything, "user-1", "sess-keep").Return(int64(3), nil)

	svc := NewDeviceService(devices, logger.New("error", "json"))
	closed, err := svc.CloseOthers(context.Background(), "user-1", "sess-keep")

	require.NoError(t, err)
	assert.Equal(t, int64(3), closed)
}
