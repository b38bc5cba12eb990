package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusProcessed OutboxStatus = "PROCESSED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
	// OutboxStatusDead marks an event that exhausted its failure budget. It
	// is never claimed again and is pruned with processed events.
	OutboxStatusDead OutboxStatus = "DEAD"
)

// OutboxEvent is a change event persisted in the same transaction as the
// document write and later relayed to the broker.
type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	Channel      string          `db:"channel" json:"channel"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// NewChangeOutboxEvent wraps a change event for the outbox table.
func NewChangeOutboxEvent(ev ChangeEvent) (*OutboxEvent, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return &OutboxEvent{
		ID:        uuid.New(),
		Channel:   ChangeChannel(ev.Collection),
		Payload:   payload,
		Status:    OutboxStatusPending,
		CreatedAt: ev.At,
		UpdatedAt: ev.At,
	}, nil
}
