package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/repository/memory"
	jwtauth "github.com/jwalitptl/lifeblood-api/pkg/auth"
	apperrors "github.com/jwalitptl/lifeblood-api/pkg/errors"
	"github.com/jwalitptl/lifeblood-api/pkg/logger"
	"github.com/jwalitptl/lifeblood-api/pkg/security"
	"github.com/jwalitptl/lifeblood-api/pkg/validator"
)

func newService(store *memory.Store) *Service {
	return newServiceWithCost(store, bcrypt.MinCost)
}

func newServiceWithCost(store *memory.Store, cost int) *Service {
	return NewService(
		store.Users(),
		jwtauth.NewJWTService("test-secret", "lifeblood-api", time.Hour),
		security.NewBcryptHasher(cost, security.DefaultPolicy),
		validator.New(),
		"admin@lifeblood.local",
		logger.Nop(),
	)
}

func TestSignUpSignInSignOut(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil, logger.Nop())
	svc := newService(store)

	resp, err := svc.SignUp(ctx, &model.SignUpRequest{
		Email:    "  Donor@Example.com ",
		Password: "password123",
		Role:     model.RoleDonor,
		Profile:  model.UserProfile{Name: "Dee", BloodType: "b-"},
	})
	require.NoError(t, err)
	assert.Equal(t, "donor@example.com", resp.User.Email)
	assert.Equal(t, "B-", resp.User.BloodType)
	assert.Equal(t, model.EligibilityPending, resp.User.Eligible)

	session, err := svc.Authenticate(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, session.UserID)
	assert.Equal(t, model.RoleDonor, session.Role)

	_, err = svc.SignIn(ctx, &model.SignInRequest{Email: "donor@example.com", Password: "wrong-password"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrUnauthorized))
	_, err = svc.SignIn(ctx, &model.SignInRequest{Email: "nobody@example.com", Password: "password123"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrUnauthorized))

	signedIn, err := svc.SignIn(ctx, &model.SignInRequest{Email: "DONOR@example.com", Password: "password123"})
	require.NoError(t, err)

	require.NoError(t, svc.SignOut(ctx, signedIn.AccessToken))
	_, err = svc.Authenticate(ctx, signedIn.AccessToken)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrUnauthorized))

	// other sessions stay valid
	_, err = svc.Authenticate(ctx, resp.AccessToken)
	assert.NoError(t, err)
}

func TestSignUpHospitalCreatesPendingRecord(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil, logger.Nop())
	svc := newService(store)

	resp, err := svc.SignUp(ctx, &model.SignUpRequest{
		Email:    "er@cityhospital.org",
		Password: "password123",
		Role:     model.RoleHospital,
		Profile:  model.UserProfile{HospitalName: "City Hospital", HospitalAddress: "1 Main St"},
	})
	require.NoError(t, err)

	record, err := store.Hospitals().Get(ctx, resp.User.ID)
	require.NoError(t, err)
	assert.Equal(t, model.VerificationPending, record.Verified)
	assert.Equal(t, "City Hospital", record.Name)
}

func TestSignUpValidation(t *testing.T) {
	ctx := context.Background()
	svc := newService(memory.New(nil, logger.Nop()))

	fieldsOf := func(err error) map[string]string {
		appErr, ok := apperrors.As(err)
		require.True(t, ok, "%v", err)
		require.Equal(t, apperrors.ErrValidation, appErr.Code)
		return appErr.Fields
	}

	_, err := svc.SignUp(ctx, &model.SignUpRequest{Email: "x@example.com", Password: "short", Role: model.RoleDonor})
	assert.Contains(t, fieldsOf(err), "password")

	_, err = svc.SignUp(ctx, &model.SignUpRequest{Email: "long@example.com", Password: strings.Repeat("p", 80), Role: model.RoleDonor})
	assert.Equal(t, "Password is too long.", fieldsOf(err)["password"])

	_, err = svc.SignUp(ctx, &model.SignUpRequest{Email: "x@example.com", Password: "password123", Role: model.RoleAdmin})
	assert.Contains(t, fieldsOf(err), "role")

	_, err = svc.SignUp(ctx, &model.SignUpRequest{Email: "admin@lifeblood.local", Password: "password123", Role: model.RoleDonor})
	assert.Contains(t, fieldsOf(err), "email")

	_, err = svc.SignUp(ctx, &model.SignUpRequest{Email: "h@example.com", Password: "password123", Role: model.RoleHospital})
	assert.Contains(t, fieldsOf(err), "profile.hospitalName")

	req := &model.SignUpRequest{Email: "dup@example.com", Password: "password123", Role: model.RoleDonor}
	_, err = svc.SignUp(ctx, req)
	require.NoError(t, err)
	_, err = svc.SignUp(ctx, &model.SignUpRequest{Email: "DUP@example.com", Password: "password123", Role: model.RoleDonor})
	assert.Contains(t, fieldsOf(err), "email")
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil, logger.Nop())
	svc := newService(store)

	require.NoError(t, svc.EnsureAdmin(ctx, "admin-password"))
	require.NoError(t, svc.EnsureAdmin(ctx, "admin-password"))

	admins, err := store.Users().List(ctx, &model.UserFilters{Role: model.RoleAdmin})
	require.NoError(t, err)
	require.Len(t, admins, 1)

	resp, err := svc.SignIn(ctx, &model.SignInRequest{Email: "admin@lifeblood.local", Password: "admin-password"})
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, resp.User.Role)
}

func TestSignInUpgradesHashCost(t *testing.T) {
	ctx := context.Background()
	store := memory.New(nil, logger.Nop())

	_, err := newServiceWithCost(store, bcrypt.MinCost).SignUp(ctx, &model.SignUpRequest{
		Email:    "donor@example.com",
		Password: "password123",
		Role:     model.RoleDonor,
	})
	require.NoError(t, err)

	upgraded := newServiceWithCost(store, bcrypt.MinCost+1)
	_, err = upgraded.SignIn(ctx, &model.SignInRequest{Email: "donor@example.com", Password: "password123"})
	require.NoError(t, err)

	stored, err := store.Users().GetByEmail(ctx, "donor@example.com")
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(stored.PasswordHash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost+1, cost)

	_, err = upgraded.SignIn(ctx, &model.SignInRequest{Email: "donor@example.com", Password: "password123"})
	assert.NoError(t, err)
}
