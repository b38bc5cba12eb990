// Package verification resolves whether a hospital account may use its
// dashboard.
package verification

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/lifeblood-api/internal/config"
	"github.com/jwalitptl/lifeblood-api/internal/model"
	"github.com/jwalitptl/lifeblood-api/internal/repository"
	"github.com/jwalitptl/lifeblood-api/internal/service"
	apperrors "github.com/jwalitptl/lifeblood-api/pkg/errors"
	"github.com/jwalitptl/lifeblood-api/pkg/logger"
	"github.com/jwalitptl/lifeblood-api/pkg/metrics"
)

type Gate struct {
	hospitals    repository.HospitalRepository
	cache        *cache.Cache
	allowMissing bool
	logger       *logger.Logger
	metrics      *metrics.Metrics
}

func NewGate(hospitals repository.HospitalRepository, cfg config.VerificationConfig, log *logger.Logger, m *metrics.Metrics) *Gate {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Gate{
		hospitals:    hospitals,
		cache:        cache.New(ttl, 2*ttl),
		allowMissing: cfg.AllowMissing,
		logger:       log,
		metrics:      m,
	}
}

// Resolve returns the gate decision for the caller. Only hospital sessions
// are gated; every other role is allowed.
func (g *Gate) Resolve(ctx context.Context, session model.Session) (*model.GateResult, error) {
	if session.Role != model.RoleHospital {
		return &model.GateResult{Decision: model.GateAllow, Allowed: true}, nil
	}

	key := session.UserID.String()
	if cached, found := g.cache.Get(key); found {
		res := *cached.(*model.GateResult)
		return &res, nil
	}

	record, err := g.hospitals.Get(ctx, session.UserID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		res := &model.GateResult{Decision: model.GateMissing, Allowed: g.allowMissing}
		g.metrics.GateDecisions.WithLabelValues(string(res.Decision)).Inc()
		g.logger.Warn(err, "Hospital record missing", "user_id", session.UserID, "allowed", res.Allowed)
		return res, nil
	case err != nil:
		return nil, service.StoreError(err, "hospital")
	}

	res := Decide(record.Verified)
	// Only refusals are cached. An allow is read from the store on every
	// request so a revocation made through any replica applies at once.
	if !res.Allowed {
		g.cache.Set(key, res, cache.DefaultExpiration)
	}
	g.metrics.GateDecisions.WithLabelValues(string(res.Decision)).Inc()

	out := *res
	return &out, nil
}

// Decide maps a stored verification state onto a gate decision.
func Decide(status model.VerificationStatus) *model.GateResult {
	switch status {
	case model.VerificationAccepted:
		return &model.GateResult{Decision: model.GateAllow, Verified: status, Allowed: true}
	case model.VerificationDenied:
		return &model.GateResult{Decision: model.GateDenied, Verified: status}
	default:
		return &model.GateResult{Decision: model.GateWaiting, Verified: model.VerificationPending}
	}
}

// Check returns a Forbidden error when the caller may not proceed.
func (g *Gate) Check(ctx context.Context, session model.Session) error {
	res, err := g.Resolve(ctx, session)
	if err != nil {
		return err
	}
	if res.Allowed {
		return nil
	}
	switch res.Decision {
	case model.GateWaiting:
		return apperrors.Forbidden("hospital verification is pending admin approval")
	case model.GateDenied:
		return apperrors.Forbidden("hospital verification was denied")
	default:
		return apperrors.Forbidden("hospital record not found")
	}
}

// Invalidate drops the cached refusal after an admin changes the record, so
// an approval made on this replica is visible immediately.
func (g *Gate) Invalidate(hospitalID uuid.UUID) {
	g.cache.Delete(hospitalID.String())
}
