package domain

import (
	"time"

	"github.com/google/uuid"
)

// SpooledBatch is an event batch that exhausted its delivery retries
// and was journaled for later replay. DeliveredAt is terminal: once
// set it is never cleared.
type SpooledBatch struct {
	ID       uuid.UUID
	Events   []Event
	Attempts int

	LastStatus int
	LastError  string

	SpooledAt   time.Time
	DeliveredAt *time.Time
}
