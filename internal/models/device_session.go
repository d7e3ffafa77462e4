package models

import (
	"time"
)

// DeviceSession is one signed-in device. SessionID is generated and
// persisted by the client, which makes the touch operation idempotent.
type DeviceSession struct {
	SessionID  string    `bson:"_id" json:"session_id"`
	UserID     string    `bson:"user_id" json:"user_id"`
	DeviceName string    `bson:"device_name" json:"device_name"`
	Location   string    `bson:"location" json:"location"`
	LastActive time.Time `bson:"last_active" json:"last_active"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
}

type TouchDeviceRequest struct {
	SessionID  string `json:"session_id" binding:"required"`
	DeviceName string `json:"device_name"`
	Location   string `json:"location"`
}
