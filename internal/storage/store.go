package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"mailsched/internal/schedule"
	logx "mailsched/pkg/logx"
)

// Store is the persistence API used by the delivery pipeline and the web
// surface. Per-item updates are atomic; no cross-item transactions exist.
type Store interface {
	// Users.
	CreateUser(ctx context.Context, u User) error
	UserByEmail(ctx context.Context, email string) (User, error)
	// EnsureUser returns the user for email, creating one when absent.
	EnsureUser(ctx context.Context, email string) (User, error)

	// Scheduled emails.
	CreateEmail(ctx context.Context, e schedule.Email) error
	Email(ctx context.Context, id uuid.UUID) (schedule.Email, error)
	// ActiveByOwner lists active items for owner ordered by ScheduledAt ascending.
	ActiveByOwner(ctx context.Context, owner uuid.UUID) ([]schedule.Email, error)
	// DueEmails lists active items whose NextSendAt is at or before now.
	DueEmails(ctx context.Context, now time.Time) ([]schedule.Email, error)
	// Deactivate cancels an active item. ErrNotFound when no such active item
	// exists, ErrOwnerMismatch when it belongs to someone else.
	Deactivate(ctx context.Context, id, owner uuid.UUID) error
	// MarkFired applies the Fire Handler's mutations as one update.
	MarkFired(ctx context.Context, id uuid.UUID, up FireUpdate) error

	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
