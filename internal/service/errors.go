package service

import "errors"

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrUserNotFound         = errors.New("user not found")
	ErrSlotNotFound         = errors.New("slot not found")
	ErrNotSlotOwner         = errors.New("slot does not belong to user")
	ErrNoActiveSubscription = errors.New("no active subscription for slot")
	ErrInsufficientCredits  = errors.New("monthly credit limit reached")
	ErrConfirmationRequired = errors.New("explicit confirmation required")
	ErrEmailTaken           = errors.New("email already registered")
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrUpstreamPayment      = errors.New("payment provider error")
)
