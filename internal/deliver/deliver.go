// Package deliver executes a single scheduled delivery: load the item,
// send it, record the send, and either re-arm the next occurrence or
// retire the item. It is the only writer of last_sent/next_send.
package deliver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"mailsched/internal/schedule"
	"mailsched/internal/storage"
	logx "mailsched/pkg/logx"
)

// ErrDeliveryFailed wraps transport errors from the notifier. The item is
// left untouched on failure: last_sent does not advance and the recurrence
// does not move, so a later manual fire retries the same occurrence.
var ErrDeliveryFailed = errors.New("delivery failed")

// Outcome says what a Fire call did.
type Outcome int

const (
	// OutcomeNotFound: the item vanished between arming and firing.
	OutcomeNotFound Outcome = iota
	// OutcomeSkippedInactive: the item was cancelled or already completed.
	// Duplicate fires land here and are absorbed.
	OutcomeSkippedInactive
	// OutcomeFailed: the send failed; nothing was recorded.
	OutcomeFailed
	// OutcomeCompleted: a one-shot item was sent and retired.
	OutcomeCompleted
	// OutcomeRearmed: a recurring item was sent and its next occurrence armed.
	OutcomeRearmed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotFound:
		return "not_found"
	case OutcomeSkippedInactive:
		return "skipped_inactive"
	case OutcomeFailed:
		return "failed"
	case OutcomeCompleted:
		return "completed"
	case OutcomeRearmed:
		return "rearmed"
	}
	return "unknown"
}

// Store is the slice of the storage layer Fire needs.
type Store interface {
	Email(ctx context.Context, id uuid.UUID) (schedule.Email, error)
	MarkFired(ctx context.Context, id uuid.UUID, up storage.FireUpdate) error
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

// Notifier sends one message to one recipient.
type Notifier interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// Armer schedules the next fire. Implemented by dispatch.Service.
type Armer interface {
	Arm(id uuid.UUID, at time.Time)
}

type Handler struct {
	store    Store
	notifier Notifier
	armer    Armer
	loc      *time.Location
	log      logx.Logger

	// now is swappable for tests.
	now func() time.Time
}

func New(store Store, notifier Notifier, armer Armer, loc *time.Location, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = schedule.DefaultLocation()
	}
	return &Handler{
		store:    store,
		notifier: notifier,
		armer:    armer,
		loc:      loc,
		log:      log,
		now:      time.Now,
	}
}

// Fire delivers the item with the given id.
//
// The sequence is deliberate: the send happens before any state change, so
// a transport failure leaves the item exactly as it was. On success the
// item is recorded as sent exactly once, and a recurring item gets exactly
// one new timer.
func (h *Handler) Fire(ctx context.Context, id uuid.UUID) (Outcome, error) {
	started := h.now()
	log := h.log.With(logx.String("id", id.String()))

	e, err := h.store.Email(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Warn("fire for missing item")
			return OutcomeNotFound, nil
		}
		return OutcomeFailed, err
	}
	if !e.Active {
		// Cancelled after arming, or a duplicate fire. Absorb quietly.
		log.Debug("fire for inactive item skipped")
		return OutcomeSkippedInactive, nil
	}

	if err := h.notifier.Send(ctx, e.Recipient, e.Subject, e.ComposedBody()); err != nil {
		h.audit(ctx, started, e, false, err)
		return OutcomeFailed, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	sentAt := h.now()

	if !e.Recurrence.Recurring() {
		up := storage.FireUpdate{LastSentAt: sentAt, Active: false}
		if err := h.store.MarkFired(ctx, id, up); err != nil {
			return OutcomeFailed, err
		}
		h.audit(ctx, started, e, true, nil)
		log.Info("delivered", logx.String("recipient", e.Recipient), logx.String("outcome", OutcomeCompleted.String()))
		return OutcomeCompleted, nil
	}

	// The next occurrence advances from the slot that just fired, not from
	// the wall clock, so late deliveries do not drift the schedule.
	base := e.ScheduledAt
	if e.NextSendAt != nil {
		base = *e.NextSendAt
	}
	next, err := schedule.Next(base, e.Recurrence, h.loc)
	if err != nil {
		return OutcomeFailed, err
	}

	up := storage.FireUpdate{LastSentAt: sentAt, NextSendAt: &next, Active: true}
	if err := h.store.MarkFired(ctx, id, up); err != nil {
		return OutcomeFailed, err
	}
	if h.armer != nil {
		h.armer.Arm(id, next)
	}
	h.audit(ctx, started, e, true, nil)
	log.Info("delivered",
		logx.String("recipient", e.Recipient),
		logx.String("outcome", OutcomeRearmed.String()),
		logx.Time("next", next),
	)
	return OutcomeRearmed, nil
}

func (h *Handler) audit(ctx context.Context, started time.Time, e schedule.Email, ok bool, sendErr error) {
	entry := storage.AuditEntry{
		At:     started,
		Actor:  e.OwnerID.String(),
		Action: "deliver",
		Target: e.ID.String(),
		OK:     ok,
		TookMS: h.now().Sub(started).Milliseconds(),
	}
	if sendErr != nil {
		entry.Error = sendErr.Error()
	}
	if err := h.store.AppendAudit(ctx, entry); err != nil {
		h.log.Warn("audit append failed", logx.Err(err))
	}
}
