package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type OfferStatus string

const (
	OfferStatusRequested OfferStatus = "requested"
	// OfferStatusPending is the legacy alias of requested still found in older documents.
	OfferStatusPending   OfferStatus = "pending"
	OfferStatusAccepted  OfferStatus = "accepted"
	OfferStatusDenied    OfferStatus = "denied"
	OfferStatusFulfilled OfferStatus = "fulfilled"
)

// NormalizeOfferStatus lower-cases and trims a stored status value.
func NormalizeOfferStatus(s string) OfferStatus {
	return OfferStatus(strings.ToLower(strings.TrimSpace(s)))
}

// IsOpen reports whether the offer still awaits a counterparty decision.
func (s OfferStatus) IsOpen() bool {
	return s == OfferStatusRequested || s == OfferStatusPending
}

// HasBooking reports whether a booking must be linked in this status.
func (s OfferStatus) HasBooking() bool {
	return s == OfferStatusAccepted || s == OfferStatusFulfilled
}

func (s OfferStatus) Valid() bool {
	switch s {
	case OfferStatusRequested, OfferStatusPending, OfferStatusAccepted, OfferStatusDenied, OfferStatusFulfilled:
		return true
	}
	return false
}

// Offer is a request for a donation event, initiated by either a donor or a
// hospital. The counterparty fields stay empty until the offer is decided.
type Offer struct {
	ID               uuid.UUID   `json:"id" db:"id"`
	InitiatorRole    Role        `json:"initiatorRole" db:"initiator_role"`
	DonorID          *uuid.UUID  `json:"donorId" db:"donor_id"`
	DonorName        string      `json:"donorName,omitempty" db:"donor_name"`
	HospitalID       *uuid.UUID  `json:"hospitalId" db:"hospital_id"`
	HospitalName     string      `json:"hospitalName,omitempty" db:"hospital_name"`
	BloodType        string      `json:"bloodType" db:"blood_type"`
	Quantity         int         `json:"quantity" db:"quantity"`
	RequestedDate    Date        `json:"requestedDate" db:"requested_date"`
	RequestedSlot    string      `json:"requestedSlot,omitempty" db:"requested_slot"`
	Location         *Location   `json:"location,omitempty" db:"location"`
	Notes            string      `json:"notes,omitempty" db:"notes"`
	Phone            string      `json:"phone,omitempty" db:"phone"`
	WeightKg         *float64    `json:"weightKg,omitempty" db:"weight_kg"`
	DateOfBirth      Date        `json:"dob" db:"date_of_birth"`
	LastDonationDate Date        `json:"lastDonationDate" db:"last_donation_date"`
	Status           OfferStatus `json:"status" db:"status"`
	DecidedByID      *uuid.UUID  `json:"decidedById,omitempty" db:"decided_by_id"`
	DecidedByName    string      `json:"decidedByName,omitempty" db:"decided_by_name"`
	AcceptedAt       *time.Time  `json:"acceptedAt" db:"accepted_at"`
	DeniedAt         *time.Time  `json:"deniedAt" db:"denied_at"`
	FulfilledAt      *time.Time  `json:"fulfilledAt" db:"fulfilled_at"`
	BookingID        *uuid.UUID  `json:"bookingId" db:"booking_id"`
	CreatedAt        time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time   `json:"updatedAt" db:"updated_at"`
}

// Initiator returns the id of the party that created the offer.
func (o *Offer) Initiator() *uuid.UUID {
	if o.InitiatorRole == RoleHospital {
		return o.HospitalID
	}
	return o.DonorID
}

// CounterpartyRole is the role allowed to accept or deny the offer.
func (o *Offer) CounterpartyRole() Role {
	if o.InitiatorRole == RoleHospital {
		return RoleDonor
	}
	return RoleHospital
}

// CheckInvariants verifies the status, decision timestamps and booking link
// agree with each other. Once the offer leaves requested exactly one decision
// timestamp is set, and a booking is linked iff the status is accepted or
// fulfilled.
func (o *Offer) CheckInvariants() error {
	set := 0
	for _, ts := range []*time.Time{o.AcceptedAt, o.DeniedAt, o.FulfilledAt} {
		if ts != nil {
			set++
		}
	}

	switch {
	case o.Status.IsOpen():
		if set != 0 {
			return fmt.Errorf("open offer %s has a decision timestamp", o.ID)
		}
	case o.Status.Valid():
		if set != 1 {
			return fmt.Errorf("offer %s in %s has %d decision timestamps", o.ID, o.Status, set)
		}
		var want *time.Time
		switch o.Status {
		case OfferStatusAccepted:
			want = o.AcceptedAt
		case OfferStatusDenied:
			want = o.DeniedAt
		case OfferStatusFulfilled:
			want = o.FulfilledAt
		}
		if want == nil {
			return fmt.Errorf("offer %s in %s is missing its timestamp", o.ID, o.Status)
		}
	default:
		return fmt.Errorf("offer %s has unknown status %q", o.ID, o.Status)
	}

	if o.Status.HasBooking() != (o.BookingID != nil) {
		return fmt.Errorf("offer %s in %s has inconsistent booking link", o.ID, o.Status)
	}
	return nil
}

// Clone returns a deep copy so callers never alias stored state.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	out := *o
	out.DonorID = cloneUUID(o.DonorID)
	out.HospitalID = cloneUUID(o.HospitalID)
	out.DecidedByID = cloneUUID(o.DecidedByID)
	out.BookingID = cloneUUID(o.BookingID)
	out.AcceptedAt = cloneTime(o.AcceptedAt)
	out.DeniedAt = cloneTime(o.DeniedAt)
	out.FulfilledAt = cloneTime(o.FulfilledAt)
	out.Location = o.Location.Clone()
	if o.WeightKg != nil {
		w := *o.WeightKg
		out.WeightKg = &w
	}
	return &out
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Party identifies an actor on an offer.
type Party struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Role Role      `json:"role"`
}

type OfferFilters struct {
	InitiatorRole Role
	DonorID       *uuid.UUID
	HospitalID    *uuid.UUID
	Statuses      []OfferStatus
	Limit         int
}

// Matches applies the filters to a single offer.
func (f OfferFilters) Matches(o *Offer) bool {
	if f.InitiatorRole != "" && o.InitiatorRole != f.InitiatorRole {
		return false
	}
	if f.DonorID != nil && (o.DonorID == nil || *o.DonorID != *f.DonorID) {
		return false
	}
	if f.HospitalID != nil && (o.HospitalID == nil || *o.HospitalID != *f.HospitalID) {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if o.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// OpenStatuses lists the statuses a counterparty may still decide on.
var OpenStatuses = []OfferStatus{OfferStatusRequested, OfferStatusPending}

// CreateDonorOfferRequest is submitted by a donor offering to give blood.
type CreateDonorOfferRequest struct {
	BloodType        string    `json:"bloodType" validate:"required,bloodtype"`
	Quantity         int       `json:"quantity" validate:"min=1"`
	RequestedDate    Date      `json:"requestedDate"`
	RequestedSlot    string    `json:"requestedSlot" validate:"max=32"`
	DateOfBirth      Date      `json:"dob"`
	WeightKg         float64   `json:"weightKg" validate:"gte=50"`
	Phone            string    `json:"phone" validate:"required,phone"`
	LastDonationDate Date      `json:"lastDonationDate"`
	AttachLocation   bool      `json:"attachLocation"`
	Location         *Location `json:"location"`
	Notes            string    `json:"notes" validate:"max=2000"`
}

// CreateHospitalRequest is submitted by a hospital asking donors for blood.
type CreateHospitalRequest struct {
	BloodType     string    `json:"bloodType" validate:"required,bloodtype"`
	Quantity      int       `json:"quantity" validate:"min=1"`
	RequestedDate Date      `json:"requestedDate"`
	RequestedSlot string    `json:"requestedSlot" validate:"max=32"`
	Location      *Location `json:"location"`
	Notes         string    `json:"notes" validate:"max=2000"`
}
