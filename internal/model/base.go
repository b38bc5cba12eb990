package model

import "time"

// Collection names of the document store
const (
	CollectionUsers         = "users"
	CollectionHospitals     = "hospitals"
	CollectionOffers        = "offers"
	CollectionBookings      = "bookings"
	CollectionNotifications = "notifications"
	CollectionAdminMeta     = "admin_meta"
)

type ChangeOp string

const (
	ChangeCreate ChangeOp = "create"
	ChangeUpdate ChangeOp = "update"
	ChangeDelete ChangeOp = "delete"
)

// ChangeEvent is published on the change feed after a document write commits.
type ChangeEvent struct {
	Collection string    `json:"collection"`
	DocumentID string    `json:"documentId"`
	Op         ChangeOp  `json:"op"`
	At         time.Time `json:"at"`
}

// ChangeChannel is the broker channel carrying change events for a collection.
func ChangeChannel(collection string) string {
	return "changes." + collection
}
