package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/lifeblood-api/internal/repository"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "no rows", err: fmt.Errorf("failed to get offer: %w", sql.ErrNoRows), want: repository.ErrNotFound},
		{name: "bad conn", err: driver.ErrBadConn, want: repository.ErrUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, want: repository.ErrUnavailable},
		{name: "connection failure", err: &pq.Error{Code: "08006"}, want: repository.ErrUnavailable},
		{name: "admin shutdown", err: &pq.Error{Code: "57P01"}, want: repository.ErrUnavailable},
		{name: "unique violation", err: &pq.Error{Code: "23505", Constraint: "users_email_lower_idx"}, want: repository.ErrDuplicate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.err), tt.want)
		})
	}

	assert.Nil(t, classify(nil))

	other := errors.New("syntax error")
	assert.Equal(t, other, classify(other))
}

func TestSchemaEmbedded(t *testing.T) {
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS offers")
	assert.Contains(t, schema, "offer_id      UUID NOT NULL UNIQUE")
}
