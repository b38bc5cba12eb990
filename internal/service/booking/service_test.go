package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/repository"
	"github.com/jwalitptl/lifeblood-api/internal/repository/memory"
	apperrors "github.com/jwalitptl/lifeblood-api/pkg/errors"
	"github.com/jwalitptl/lifeblood-api/pkg/logger"
)

// seedBooking accepts a fresh offer so the booking is written the only way
// bookings are ever created.
func seedBooking(t *testing.T, store *memory.Store, donor, hospital uuid.UUID) *model.Booking {
	t.Helper()
	ctx := context.Background()
	offer := &model.Offer{
		ID:            uuid.New(),
		InitiatorRole: model.RoleDonor,
		DonorID:       &donor,
		BloodType:     "A+",
		Quantity:      1,
		RequestedDate: model.NewDate(2030, time.June, 1),
		Status:        model.OfferStatusRequested,
	}
	require.NoError(t, store.Offers().Create(ctx, offer))

	var booking *model.Booking
	_, err := store.Offers().Mutate(ctx, offer.ID, func(ctx context.Context, tx repository.OfferTx, o *model.Offer) error {
		o.HospitalID = &hospital
		booking = model.NewBookingFromOffer(o, time.Now().UTC())
		return tx.CreateBooking(ctx, booking)
	})
	require.NoError(t, err)
	return booking
}

func TestVisibility(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil, logger.Nop())
	svc := NewService(store.Bookings())

	donor, hospital, other := uuid.New(), uuid.New(), uuid.New()
	b := seedBooking(t, store, donor, hospital)
	seedBooking(t, store, other, hospital)

	tests := []struct {
		name    string
		session model.Session
		list    int
		canGet  bool
	}{
		{"donor", model.Session{UserID: donor, Role: model.RoleDonor}, 1, true},
		{"hospital", model.Session{UserID: hospital, Role: model.RoleHospital}, 2, true},
		{"stranger", model.Session{UserID: other, Role: model.RoleDonor}, 1, false},
		{"admin", model.Session{UserID: uuid.New(), Role: model.RoleAdmin}, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := svc.List(ctx, tt.session, "")
			require.NoError(t, err)
			assert.Len(t, items, tt.list)

			got, err := svc.Get(ctx, tt.session, b.ID)
			if tt.canGet {
				require.NoError(t, err)
				assert.Equal(t, b.ID, got.ID)
			} else {
				assert.True(t, apperrors.HasCode(err, apperrors.ErrNotFound))
			}
		})
	}
}

func TestListByStatus(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil, logger.Nop())
	svc := NewService(store.Bookings())
	donor, hospital := uuid.New(), uuid.New()
	seedBooking(t, store, donor, hospital)

	session := model.Session{UserID: donor, Role: model.RoleDonor}
	items, err := svc.List(ctx, session, model.BookingStatusFulfilled)
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = svc.List(ctx, session, model.BookingStatusBooked)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
