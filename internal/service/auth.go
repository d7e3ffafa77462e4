package service

import (
	"context"
	"time"

	"github.com/telavo/telavo/internal/models"
	"github.com/telavo/telavo/pkg/crypto"
	"github.com/telavo/telavo/pkg/database"
	"github.com/telavo/telavo/pkg/logger"
	"github.com/telavo/telavo/pkg/middleware"
)

// AuthService handles account registration, login and the forwarding
// configuration a user edits from their profile.
type AuthService struct {
	users     UserStore
	auth      *middleware.AuthMiddleware
	expiresIn time.Duration
	logger    logger.Logger
}

func NewAuthService(users UserStore, auth *middleware.AuthMiddleware, expiresIn time.Duration, log logger.Logger) *AuthService {
	return &AuthService{users: users, auth: auth, expiresIn: expiresIn, logger: log}
}

func (s *AuthService) Register(ctx context.Context, req *models.RegisterRequest) (*models.TokenResponse, error) {
	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		return nil, ErrInvalidInput
	}

	now := time.Now()
	user := &models.User{
		Email:       req.Email,
		Password:    hash,
		DisplayName: req.DisplayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if err == database.ErrDuplicate {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	return s.issueToken(user)
}

func (s *AuthService) Login(ctx context.Context, req *models.LoginRequest) (*models.TokenResponse, error) {
	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if err == database.ErrNotFound {
			// Same error as a bad password, so login cannot be used to
			// probe which emails exist.
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := crypto.CheckPassword(user.Password, req.Password); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issueToken(user)
}

func (s *AuthService) Profile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if err == database.ErrNotFound || err == database.ErrInvalidID {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *AuthService) UpdateForwarding(ctx context.Context, userID string, req *models.ForwardingConfigRequest) (*models.User, error) {
	if req.TelegramChatID == nil && req.WebhookURL == nil && req.WebhookEnabled == nil {
		return nil, ErrInvalidInput
	}
	if err := s.users.UpdateForwardingConfig(ctx, userID, req); err != nil {
		if err == database.ErrNotFound || err == database.ErrInvalidID {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return s.Profile(ctx, userID)
}

func (s *AuthService) issueToken(user *models.User) (*models.TokenResponse, error) {
	token, err := s.auth.GenerateToken(user.ID.Hex(), user.Email)
	if err != nil {
		return nil, err
	}
	return &models.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.expiresIn.Seconds()),
		User:        user,
	}, nil
}
