package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Slot is one rentable phone number backed by a physical SIM port.
// Status values carry over from the provisioning backend unchanged.
type Slot struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SlotID           string             `bson:"slot_id" json:"slot_id"`
	PhoneNumber      string             `bson:"phone_number" json:"phone_number"`
	Region           string             `bson:"region" json:"region"`
	Status           SlotStatus         `bson:"status" json:"status"`
	AssignedTo       string             `bson:"assigned_to,omitempty" json:"assigned_to,omitempty"`
	PlanType         string             `bson:"plan_type" json:"plan_type"`
	Label            string             `bson:"label" json:"label"`
	ForwardingActive bool               `bson:"forwarding_active" json:"forwarding_active"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `bson:"updated_at" json:"updated_at"`
}

type SlotStatus string

const (
	SlotStatusFree     SlotStatus = "libre"
	SlotStatusReserved SlotStatus = "reservado"
	SlotStatusOccupied SlotStatus = "ocupado"
)

// Consistent reports the owner/status invariant: a slot is never
// occupied or reserved without an owner, and never free with one.
func (s *Slot) Consistent() bool {
	if s.Status == SlotStatusFree {
		return s.AssignedTo == ""
	}
	return s.AssignedTo != ""
}
