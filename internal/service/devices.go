package service

import (
	"context"
	"time"

	"github.com/telavo/telavo/internal/models"
	"github.com/telavo/telavo/pkg/database"
	"github.com/telavo/telavo/pkg/logger"
)

// DeviceService tracks signed-in devices. Touch is idempotent on the
// client-generated session id, so a flaky network retry never creates
// a phantom device row.
type DeviceService struct {
	devices DeviceStore
	logger  logger.Logger
}

func NewDeviceService(devices DeviceStore, log logger.Logger) *DeviceService {
	return &DeviceService{devices: devices, logger: log}
}

func (s *DeviceService) Touch(ctx context.Context, userID string, req *models.TouchDeviceRequest) (*models.DeviceSession, error) {
	if req.SessionID == "" {
		return nil, ErrInvalidInput
	}
	session := &models.DeviceSession{
		SessionID:  req.SessionID,
		UserID:     userID,
		DeviceName: req.DeviceName,
		Location:   req.Location,
		LastActive: time.Now(),
	}
	if err := s.devices.Touch(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *DeviceService) List(ctx context.Context, userID string) ([]*models.DeviceSession, error) {
	return s.devices.FindByUser(ctx, userID)
}

func (s *DeviceService) Close(ctx context.Context, userID, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidInput
	}
	if err := s.devices.Delete(ctx, userID, sessionID); err != nil {
		if err == database.ErrNotFound {
			return ErrInvalidInput
		}
		return err
	}
	return nil
}

// CloseOthers signs out every device except the calling one.
func (s *DeviceService) CloseOthers(ctx context.Context, userID, keepSessionID string) (int64, error) {
	if keepSessionID == "" {
		return 0, ErrInvalidInput
	}
	closed, err := s.devices.DeleteOthers(ctx, userID, keepSessionID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("closed other device sessions",
		logger.Field{Key: "user_id", Value: userID},
		logger.Field{Key: "closed", Value: closed})
	return closed, nil
}
