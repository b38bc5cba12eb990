package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jwalitptl/lifeblood-api/pkg/errors"
)

type profile struct {
	Phone     string `json:"phone" validate:"omitempty,phone"`
	BloodType string `json:"bloodType" validate:"omitempty,bloodtype"`
}

type request struct {
	Email    string  `json:"email" validate:"required,email"`
	WeightKg float64 `json:"weightKg" validate:"gte=50"`
	Profile  profile `json:"profile"`
}

func TestBloodTypeAndPhone(t *testing.T) {
	for _, bt := range []string{"A+", "a-", "AB+", "ab-", "O+", " o- "} {
		assert.True(t, IsBloodType(bt), bt)
	}
	for _, bt := range []string{"", "C+", "AB", "O", "A++", "BA+"} {
		assert.False(t, IsBloodType(bt), bt)
	}
	assert.Equal(t, "AB-", NormalizeBloodType(" ab- "))

	assert.True(t, IsPhone("+1 555-123-4567"))
	assert.True(t, IsPhone("5551234"))
	assert.False(t, IsPhone("555"))
	assert.False(t, IsPhone("call me"))
}

func TestFields(t *testing.T) {
	v := New()

	fields, err := v.Fields(&request{Email: "a@b.co", WeightKg: 50})
	require.NoError(t, err)
	assert.Nil(t, fields)

	fields, err = v.Fields(&request{
		WeightKg: 49.9,
		Profile:  profile{Phone: "x", BloodType: "Z+"},
	})
	require.NoError(t, err)
	assert.Equal(t, "email is required", fields["email"])
	assert.Equal(t, "Minimum weight to donate is 50 kg.", fields["weightKg"])
	assert.Contains(t, fields, "profile.phone")
	assert.Contains(t, fields, "profile.bloodType")
}

func TestValidateReturnsAppError(t *testing.T) {
	err := New().Validate(&request{Email: "nope", WeightKg: 60})
	require.Error(t, err)

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrValidation, appErr.Code)
	assert.Contains(t, appErr.Fields, "email")
}
