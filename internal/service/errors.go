// Package service holds helpers shared by the domain services.
package service

import (
	"errors"
	"fmt"

	"github.com/jwalitptl/lifeblood-api/internal/repository"
	apperrors "github.com/jwalitptl/lifeblood-api/pkg/errors"
)

// StoreError maps repository sentinels onto the application error taxonomy.
// Errors that are already AppErrors pass through unchanged.
func StoreError(err error, resource string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, err)
	case errors.Is(err, repository.ErrUnavailable):
		return apperrors.NewStoreUnavailable(err)
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewConflict(fmt.Sprintf("%s already exists", resource))
	default:
		return apperrors.NewInternal(fmt.Errorf("%s: %w", resource, err))
	}
}
