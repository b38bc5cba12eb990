package user

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/repository/memory"
	apperrors "github.com/jwalitptl/lifeblood-api/pkg/errors"
	"github.com/jwalitptl/lifeblood-api/pkg/logger"
	"github.com/jwalitptl/lifeblood-api/pkg/validator"
)

func setup(t *testing.T, role model.Role) (*Service, model.Session) {
	t.Helper()
	store := memory.New(nil, logger.Nop())
	u := &model.User{ID: uuid.New(), Email: "u@example.com", Role: role, Name: "Uma", HospitalName: "Old Name"}
	require.NoError(t, store.Users().Register(context.Background(), u, nil))
	return NewService(store.Users(), validator.New(), logger.Nop()), model.Session{UserID: u.ID, Email: u.Email, Role: role}
}

func TestUpdatePreferences(t *testing.T) {
	svc, session := setup(t, model.RoleDonor)
	ctx := context.Background()

	on := true
	u, err := svc.UpdatePreferences(ctx, session, &model.UpdatePreferencesRequest{EmailEnabled: &on})
	require.NoError(t, err)
	assert.True(t, u.EmailEnabled)
	assert.False(t, u.SMSEnabled)

	off := false
	u, err = svc.UpdatePreferences(ctx, session, &model.UpdatePreferencesRequest{SMSEnabled: &off})
	require.NoError(t, err)
	assert.True(t, u.EmailEnabled, "untouched toggle keeps its value")

	stored, err := svc.GetUser(ctx, session)
	require.NoError(t, err)
	assert.True(t, stored.EmailEnabled)
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("donor", func(t *testing.T) {
		svc, session := setup(t, model.RoleDonor)
		u, err := svc.UpdateProfile(ctx, session, &model.UserProfile{
			Phone:        "+1 555 0100",
			BloodType:    "ab-",
			HospitalName: "ignored",
		})
		require.NoError(t, err)
		assert.Equal(t, "Uma", u.Name)
		assert.Equal(t, "AB-", u.BloodType)
		assert.Equal(t, "Old Name", u.HospitalName)
	})

	t.Run("hospital", func(t *testing.T) {
		svc, session := setup(t, model.RoleHospital)
		u, err := svc.UpdateProfile(ctx, session, &model.UserProfile{HospitalName: " St. Mary "})
		require.NoError(t, err)
		assert.Equal(t, "St. Mary", u.HospitalName)
	})

	t.Run("invalid", func(t *testing.T) {
		svc, session := setup(t, model.RoleDonor)
		_, err := svc.UpdateProfile(ctx, session, &model.UserProfile{BloodType: "C+"})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrValidation))
	})
}

func TestUnknownUser(t *testing.T) {
	svc, _ := setup(t, model.RoleDonor)
	_, err := svc.GetUser(context.Background(), model.Session{UserID: uuid.New(), Role: model.RoleDonor})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
}
