package storage

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no matching record exists.
	ErrNotFound = errors.New("not found")
	// ErrOwnerMismatch is returned when a record exists but belongs to a
	// different owner than the caller.
	ErrOwnerMismatch = errors.New("owner mismatch")
	// ErrConflict is returned when a uniqueness constraint is violated
	// (e.g. registering an email address twice).
	ErrConflict = errors.New("already exists")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (production default)
//   - "memory": dependency-free in-process backend
//
// An empty Driver selects "memory".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// User is a registered account. Scheduled emails reference the owner by id.
type User struct {
	ID           uuid.UUID
	Email        string
	Username     string
	PasswordHash []byte
	CreatedAt    time.Time
}

// FireUpdate carries the Fire Handler's persisted fields.
// The store applies it as a single per-item update.
type FireUpdate struct {
	LastSentAt time.Time
	NextSendAt *time.Time // nil leaves the column untouched
	Active     bool
}

// AuditEntry records a delivery attempt or an operator action.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At     time.Time
	Actor  string
	Action string
	Target string
	OK     bool
	Error  string
	TookMS int64
}
