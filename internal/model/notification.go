package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationDonorRequest            NotificationType = "donor_request"
	NotificationHospitalRequestAccepted NotificationType = "hospital_request_accepted"
	NotificationHospitalRequestDenied   NotificationType = "hospital_request_denied"
	NotificationOfferAccepted           NotificationType = "offer_accepted"
	NotificationOfferDenied             NotificationType = "offer_denied"
)

// Notification is a per-recipient message created when an offer changes state.
type Notification struct {
	ID          uuid.UUID        `json:"id" db:"id"`
	RecipientID uuid.UUID        `json:"recipientId" db:"recipient_id"`
	Type        NotificationType `json:"type" db:"type"`
	RefID       uuid.UUID        `json:"refId" db:"ref_id"`
	BookingID   *uuid.UUID       `json:"bookingId,omitempty" db:"booking_id"`
	Message     string           `json:"message" db:"message"`
	Read        bool             `json:"read" db:"read"`
	CreatedAt   time.Time        `json:"createdAt" db:"created_at"`
}

func (n *Notification) Clone() *Notification {
	if n == nil {
		return nil
	}
	out := *n
	out.BookingID = cloneUUID(n.BookingID)
	return &out
}

type NotificationFilters struct {
	RecipientID uuid.UUID
	UnreadOnly  bool
	Limit       int
}

func (f NotificationFilters) Matches(n *Notification) bool {
	if f.RecipientID != uuid.Nil && n.RecipientID != f.RecipientID {
		return false
	}
	if f.UnreadOnly && n.Read {
		return false
	}
	return true
}
