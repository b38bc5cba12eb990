package notification

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/repository/memory"
	apperrors "github.com/jwalitptl/lifeblood-api/pkg/errors"
	"github.com/jwalitptl/lifeblood-api/pkg/logger"
	"github.com/jwalitptl/lifeblood-api/pkg/metrics"
)

type recordingMailer struct {
	sent []string
}

func (m *recordingMailer) SendNotification(ctx context.Context, to, subject, body string) error {
	m.sent = append(m.sent, to)
	return nil
}

func setup(t *testing.T, hospitals int) (*Service, *memory.Store, *recordingMailer, []*model.User) {
	t.Helper()
	store := memory.New(nil, logger.Nop())
	mailer := &recordingMailer{}
	svc := NewService(store, mailer, logger.Nop(), metrics.NewNop())

	var users []*model.User
	for i := 0; i < hospitals; i++ {
		u := &model.User{
			ID:           uuid.New(),
			Email:        fmt.Sprintf("h%d@example.com", i),
			Role:         model.RoleHospital,
			HospitalName: fmt.Sprintf("H%d", i),
			EmailEnabled: i == 0,
		}
		require.NoError(t, store.Users().Register(context.Background(), u, &model.HospitalRecord{Verified: model.VerificationAccepted}))
		users = append(users, u)
	}
	return svc, store, mailer, users
}

func donorOffer() *model.Offer {
	donor := uuid.New()
	return &model.Offer{
		ID:            uuid.New(),
		InitiatorRole: model.RoleDonor,
		DonorID:       &donor,
		DonorName:     "Sam",
		Status:        model.OfferStatusRequested,
	}
}

func TestNotifyDonorRequestPartialFailure(t *testing.T) {
	ctx := context.Background()
	svc, store, mailer, hospitals := setup(t, 3)
	failing := hospitals[2].ID

	store.SetFault(func(op memory.Op) error {
		if n, ok := op.Doc.(*model.Notification); ok && n.RecipientID == failing {
			return errors.New("quota exceeded")
		}
		return nil
	})

	err := svc.NotifyDonorRequest(ctx, donorOffer())
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrPartialFanout, appErr.Code)
	assert.Equal(t, "1 of 3 notifications failed", appErr.Message)

	store.SetFault(nil)
	for _, h := range hospitals[:2] {
		got, err := svc.List(ctx, model.Session{UserID: h.ID, Role: model.RoleHospital}, false, 0)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "New donor request from Sam", got[0].Message)
	}

	// only the first hospital opted into email
	assert.Equal(t, []string{"h0@example.com"}, mailer.sent)
}

func TestNotifyDecisionWritesOneNotification(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := setup(t, 0)

	offer := donorOffer()
	booking := uuid.New()
	offer.Status = model.OfferStatusAccepted
	offer.BookingID = &booking
	offer.DecidedByName = "General"

	require.NoError(t, svc.NotifyDecision(ctx, offer))

	donor := model.Session{UserID: *offer.DonorID, Role: model.RoleDonor}
	got, err := svc.List(ctx, donor, false, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.NotificationOfferAccepted, got[0].Type)
	assert.Equal(t, "General accepted your request", got[0].Message)
	assert.Equal(t, booking, *got[0].BookingID)

	offer.Status = model.OfferStatusRequested
	assert.Error(t, svc.NotifyDecision(ctx, offer))
}

func TestReadState(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := setup(t, 0)

	times := []time.Time{
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC),
	}
	offer := donorOffer()
	offer.Status = model.OfferStatusDenied
	for _, at := range times {
		at := at
		svc.now = func() time.Time { return at }
		require.NoError(t, svc.NotifyDecision(ctx, offer))
	}

	me := model.Session{UserID: *offer.DonorID, Role: model.RoleDonor}
	items, err := svc.List(ctx, me, false, 0)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, times[2], items[0].CreatedAt)
	assert.Equal(t, times[0], items[2].CreatedAt)

	count, err := svc.UnreadCount(ctx, me)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	stranger := model.Session{UserID: uuid.New(), Role: model.RoleDonor}
	err = svc.MarkRead(ctx, stranger, items[0].ID)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrForbidden))

	require.NoError(t, svc.MarkRead(ctx, me, items[0].ID))
	count, err = svc.UnreadCount(ctx, me)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	n, err := svc.MarkAllRead(ctx, me)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	unread, err := svc.List(ctx, me, true, 0)
	require.NoError(t, err)
	assert.Empty(t, unread)

	err = svc.MarkRead(ctx, me, uuid.New())
	assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
}
