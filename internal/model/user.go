package model

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleDonor    Role = "donor"
	RoleHospital Role = "hospital"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleDonor, RoleHospital, RoleAdmin:
		return true
	}
	return false
}

// Eligibility is the admin's decision on a donor account.
type Eligibility string

const (
	EligibilityPending  Eligibility = "pending"
	EligibilityAccepted Eligibility = "accepted"
	EligibilityDenied   Eligibility = "denied"
)

func (e Eligibility) Valid() bool {
	switch e {
	case EligibilityPending, EligibilityAccepted, EligibilityDenied:
		return true
	}
	return false
}

// User represents a registered account of any role
type User struct {
	ID              uuid.UUID   `json:"id" db:"id"`
	Email           string      `json:"email" db:"email"`
	Role            Role        `json:"role" db:"role"`
	PasswordHash    string      `json:"-" db:"password_hash"`
	Name            string      `json:"name,omitempty" db:"name"`
	Phone           string      `json:"phone,omitempty" db:"phone"`
	BloodType       string      `json:"bloodType,omitempty" db:"blood_type"`
	HospitalName    string      `json:"hospitalName,omitempty" db:"hospital_name"`
	HospitalAddress string      `json:"hospitalAddress,omitempty" db:"hospital_address"`
	Verified        bool        `json:"verified" db:"verified"`
	Eligible        Eligibility `json:"eligible,omitempty" db:"eligible"`
	SMSEnabled      bool        `json:"smsEnabled" db:"sms_enabled"`
	EmailEnabled    bool        `json:"emailEnabled" db:"email_enabled"`
	CreatedAt       time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time   `json:"updatedAt" db:"updated_at"`
}

// DisplayName is what counterparties see in messages and bookings.
func (u *User) DisplayName() string {
	if u.Role == RoleHospital && u.HospitalName != "" {
		return u.HospitalName
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// UserProfile holds the role-specific registration fields.
type UserProfile struct {
	Name            string `json:"name"`
	Phone           string `json:"phone" validate:"omitempty,phone"`
	BloodType       string `json:"bloodType" validate:"omitempty,bloodtype"`
	HospitalName    string `json:"hospitalName"`
	HospitalAddress string `json:"hospitalAddress"`
}

type SignUpRequest struct {
	Email    string      `json:"email" validate:"required,email"`
	Password string      `json:"password" validate:"required,min=8"`
	Role     Role        `json:"role" validate:"required,oneof=donor hospital"`
	Profile  UserProfile `json:"profile"`
}

type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UpdatePreferencesRequest struct {
	SMSEnabled   *bool `json:"smsEnabled"`
	EmailEnabled *bool `json:"emailEnabled"`
}

type UserFilters struct {
	Role Role
}

// Session is the resolved identity of the caller. It is passed explicitly to
// every service call instead of living on a process-wide handle.
type Session struct {
	UserID uuid.UUID `json:"userId"`
	Email  string    `json:"email"`
	Role   Role      `json:"role"`
}

func (s Session) IsZero() bool {
	return s.UserID == uuid.Nil
}

type TokenResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	User        *User     `json:"user"`
}
