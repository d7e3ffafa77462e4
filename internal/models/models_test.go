package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlotConsistent(t *testing.T) {
	tests := []struct {
		name string
		slot Slot
		want bool
	}{
		{"free without owner", Slot{Status: SlotStatusFree}, true},
		{"free with owner", Slot{Status: SlotStatusFree, AssignedTo: "user-1"}, false},
		{"reserved with owner", Slot{Status: SlotStatusReserved, AssignedTo: "user-1"}, true},
		{"reserved without owner", Slot{Status: SlotStatusReserved}, false},
		{"occupied with owner", Slot{Status: SlotStatusOccupied, AssignedTo: "user-1"}, true},
		{"occupied without owner", Slot{Status: SlotStatusOccupied}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.slot.Consistent())
		})
	}
}

func TestSubscriptionCreditsRemaining(t *testing.T) {
	assert.Equal(t, 40, (&Subscription{MonthlyLimit: 100, CreditsUsed: 60}).CreditsRemaining())
	assert.Equal(t, 0, (&Subscription{MonthlyLimit: 100, CreditsUsed: 100}).CreditsRemaining())
	// Clamped when a concurrent debit raced past the limit.
	assert.Equal(t, 0, (&Subscription{MonthlyLimit: 100, CreditsUsed: 103}).CreditsRemaining())
}

func TestSMSLogCategory(t *testing.T) {
	withCode := &SMSLog{VerificationCode: "123456"}
	assert.Equal(t, CategoryVerification, withCode.Category())

	plain := &SMSLog{Content: "hola"}
	assert.Equal(t, CategoryOther, plain.Category())
}

func TestUserHasStoredCustomer(t *testing.T) {
	assert.False(t, (&User{}).HasStoredCustomer())
	assert.False(t, (*User)(nil).HasStoredCustomer())
	assert.True(t, (&User{StripeCustomerID: "cus_1"}).HasStoredCustomer())
}
