package admin

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/repository/memory"
	apperrors "github.com/jwalitptl/lifeblood-api/pkg/errors"
	"github.com/jwalitptl/lifeblood-api/pkg/logger"
)

type gateSpy struct {
	invalidated []uuid.UUID
}

func (g *gateSpy) Invalidate(id uuid.UUID) { g.invalidated = append(g.invalidated, id) }

var adminSession = model.Session{UserID: uuid.New(), Role: model.RoleAdmin}

func addHospital(t *testing.T, store *memory.Store, name string, created time.Time) *model.User {
	t.Helper()
	u := &model.User{ID: uuid.New(), Email: name + "@example.com", Role: model.RoleHospital, HospitalName: name}
	require.NoError(t, store.Users().Register(context.Background(), u, &model.HospitalRecord{
		Name:      name,
		Verified:  model.VerificationPending,
		CreatedAt: created,
	}))
	return u
}

func TestVerificationFlow(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil, logger.Nop())
	gate := &gateSpy{}
	svc := NewService(store, gate, logger.Nop())

	h := addHospital(t, store, "mercy", time.Now().UTC())

	pending, err := svc.ListHospitals(ctx, adminSession, model.VerificationPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	record, err := svc.SetVerification(ctx, adminSession, h.ID, model.VerificationAccepted)
	require.NoError(t, err)
	assert.Equal(t, model.VerificationAccepted, record.Verified)
	assert.Equal(t, []uuid.UUID{h.ID}, gate.invalidated)

	u, err := store.Users().Get(ctx, h.ID)
	require.NoError(t, err)
	assert.True(t, u.Verified)

	_, err = svc.SetVerification(ctx, adminSession, uuid.New(), model.VerificationDenied)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))

	_, err = svc.SetVerification(ctx, model.Session{UserID: h.ID, Role: model.RoleHospital}, h.ID, model.VerificationAccepted)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))
}

func TestDerivedNotifications(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil, logger.Nop())
	svc := NewService(store, &gateSpy{}, logger.Nop())

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	addHospital(t, store, "early", base)
	addHospital(t, store, "late", base.Add(2*time.Hour))

	items, err := svc.Notifications(ctx, adminSession)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	svc.now = func() time.Time { return base.Add(time.Hour) }
	require.NoError(t, svc.ClearNotifications(ctx, adminSession))

	items, err = svc.Notifications(ctx, adminSession)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "late", items[0].HospitalName)
	assert.Equal(t, "late registered and is awaiting verification", items[0].Message)
}

func TestRemoveUserAndEligibility(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil, logger.Nop())
	svc := NewService(store, &gateSpy{}, logger.Nop())

	donor := &model.User{ID: uuid.New(), Email: "d@example.com", Role: model.RoleDonor, Eligible: model.EligibilityPending}
	require.NoError(t, store.Users().Register(ctx, donor, nil))

	updated, err := svc.SetEligibility(ctx, adminSession, donor.ID, model.EligibilityAccepted)
	require.NoError(t, err)
	assert.Equal(t, model.EligibilityAccepted, updated.Eligible)

	h := addHospital(t, store, "gone", time.Now().UTC())
	_, err = svc.SetEligibility(ctx, adminSession, h.ID, model.EligibilityAccepted)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrBadRequest))

	require.NoError(t, svc.RemoveUser(ctx, adminSession, h.ID))
	_, err = store.Hospitals().Get(ctx, h.ID)
	assert.Error(t, err)

	assert.True(t, apperrors.HasCode(svc.RemoveUser(ctx, adminSession, h.ID), apperrors.ErrNotFound))
	assert.True(t, apperrors.HasCode(svc.RemoveUser(ctx, adminSession, adminSession.UserID), apperrors.ErrBadRequest))
}
