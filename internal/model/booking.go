package model

import (
	"time"

	"github.com/google/uuid"
)

type BookingStatus string

const (
	BookingStatusBooked    BookingStatus = "booked"
	BookingStatusFulfilled BookingStatus = "fulfilled"
)

// Booking is the appointment created when an offer is accepted.
type Booking struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	OfferID      uuid.UUID     `json:"offerId" db:"offer_id"`
	DonorID      uuid.UUID     `json:"donorId" db:"donor_id"`
	DonorName    string        `json:"donorName,omitempty" db:"donor_name"`
	HospitalID   uuid.UUID     `json:"hospitalId" db:"hospital_id"`
	HospitalName string        `json:"hospitalName,omitempty" db:"hospital_name"`
	Date         Date          `json:"date" db:"date"`
	Slot         string        `json:"slot,omitempty" db:"slot"`
	Quantity     int           `json:"quantity" db:"quantity"`
	BloodType    string        `json:"bloodType" db:"blood_type"`
	Status       BookingStatus `json:"status" db:"status"`
	Location     *Location     `json:"location,omitempty" db:"location"`
	CreatedAt    time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time     `json:"updatedAt" db:"updated_at"`
}

// NewBookingFromOffer derives the booking for an offer that has just been
// decided in favour of both parties.
func NewBookingFromOffer(o *Offer, at time.Time) *Booking {
	b := &Booking{
		ID:           uuid.New(),
		OfferID:      o.ID,
		DonorName:    o.DonorName,
		HospitalName: o.HospitalName,
		Date:         o.RequestedDate,
		Slot:         o.RequestedSlot,
		Quantity:     o.Quantity,
		BloodType:    o.BloodType,
		Status:       BookingStatusBooked,
		Location:     o.Location.Clone(),
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	if b.Quantity < 1 {
		b.Quantity = 1
	}
	if o.DonorID != nil {
		b.DonorID = *o.DonorID
	}
	if o.HospitalID != nil {
		b.HospitalID = *o.HospitalID
	}
	return b
}

func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	out := *b
	out.Location = b.Location.Clone()
	return &out
}

type BookingFilters struct {
	DonorID    *uuid.UUID
	HospitalID *uuid.UUID
	Status     BookingStatus
}

func (f BookingFilters) Matches(b *Booking) bool {
	if f.DonorID != nil && b.DonorID != *f.DonorID {
		return false
	}
	if f.HospitalID != nil && b.HospitalID != *f.HospitalID {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	return true
}
