package model

import (
	"time"

	"github.com/google/uuid"
)

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationAccepted VerificationStatus = "accepted"
	VerificationDenied   VerificationStatus = "denied"
)

func (v VerificationStatus) Valid() bool {
	switch v {
	case VerificationPending, VerificationAccepted, VerificationDenied:
		return true
	}
	return false
}

// HospitalRecord gates a hospital account. Its ID equals the owning user's ID.
type HospitalRecord struct {
	ID        uuid.UUID          `json:"id" db:"id"`
	Name      string             `json:"name" db:"name"`
	Address   string             `json:"address" db:"address"`
	Phone     string             `json:"phone" db:"phone"`
	Email     string             `json:"email" db:"email"`
	Verified  VerificationStatus `json:"verified" db:"verified"`
	CreatedAt time.Time          `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time          `json:"updatedAt" db:"updated_at"`
}

type HospitalFilters struct {
	Verified     VerificationStatus
	CreatedAfter *time.Time
}

// GateDecision is the outcome of resolving a hospital's verification state.
type GateDecision string

const (
	GateAllow   GateDecision = "allow"
	GateWaiting GateDecision = "waiting"
	GateDenied  GateDecision = "denied"
	GateMissing GateDecision = "missing"
)

type GateResult struct {
	Decision GateDecision       `json:"decision"`
	Verified VerificationStatus `json:"verified,omitempty"`
	Allowed  bool               `json:"allowed"`
}
