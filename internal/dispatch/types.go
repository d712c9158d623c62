package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mailsched/internal/schedule"
)

// Config controls the delivery dispatcher.
type Config struct {
	Enabled        bool          `json:"enabled"`
	Workers        int           `json:"workers"`
	QueueSize      int           `json:"queue_size"`
	DefaultTimeout time.Duration `json:"default_timeout"`
	// Timezone for sweep bookkeeping and log timestamps. Recurrence math
	// uses the schedule package default when empty.
	Timezone string `json:"timezone"`
	// SweepEvery is the catch-up interval: a periodic scan for items whose
	// next_send slipped past while the process was down or a timer was lost.
	SweepEvery time.Duration `json:"sweep_every"`
}

// FireFunc delivers one scheduled item. Implemented by deliver.Handler.
type FireFunc func(ctx context.Context, id uuid.UUID) error

// DueLister is the slice of the store the sweep needs.
type DueLister interface {
	DueEmails(ctx context.Context, now time.Time) ([]schedule.Email, error)
}

// FireEvent is the bus payload for dispatch.* events.
type FireEvent struct {
	ID       uuid.UUID     `json:"id"`
	At       time.Time     `json:"at"`
	Duration time.Duration `json:"duration,omitempty"`
	Error    string        `json:"error,omitempty"`
}

type job struct {
	id         uuid.UUID
	enqueuedAt time.Time
}
