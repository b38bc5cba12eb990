package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/lifeblood-api/internal/repository"
	apperrors "github.com/jwalitptl/lifeblood-api/pkg/errors"
)

func TestStoreError(t *testing.T) {
	assert.NoError(t, StoreError(nil, "offer"))

	tests := []struct {
		err  error
		code apperrors.ErrorCode
	}{
		{fmt.Errorf("get: %w", repository.ErrNotFound), apperrors.ErrNotFound},
		{repository.ErrUnavailable, apperrors.ErrStoreUnavailable},
		{repository.ErrDuplicate, apperrors.ErrConflict},
		{errors.New("boom"), apperrors.ErrInternal},
		{apperrors.NewAlreadyProcessed("accepted"), apperrors.ErrAlreadyProcessed},
	}
	for _, tt := range tests {
		assert.True(t, apperrors.HasCode(StoreError(tt.err, "offer"), tt.code), tt.err.Error())
	}
}
