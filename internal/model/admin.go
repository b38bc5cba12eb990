package model

import "time"

// AdminMetaNotifications is the id of the admin_meta document holding the
// admin's notification read marker.
const AdminMetaNotifications = "notifications"

type AdminMeta struct {
	ID       string     `json:"id" db:"id"`
	LastRead *time.Time `json:"lastRead" db:"last_read"`
}

// AdminNotification is derived from hospitals still awaiting verification.
type AdminNotification struct {
	HospitalID   string    `json:"hospitalId"`
	HospitalName string    `json:"hospitalName"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"createdAt"`
}

type SetVerificationRequest struct {
	Verified VerificationStatus `json:"verified" validate:"required,oneof=pending accepted denied"`
}

type SetEligibilityRequest struct {
	Eligible Eligibility `json:"eligible" validate:"required,oneof=pending accepted denied"`
}
