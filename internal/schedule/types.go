package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidRecurrence = errors.New("invalid recurrence")

// Recurrence determines whether and how an email's due time advances after
// each successful send.
type Recurrence int

const (
	// Once fires at most one time; the item is deactivated after delivery.
	Once Recurrence = iota
	Daily
	Weekly
	Monthly
	Yearly
	Birthday
	Anniversary
	Employment
)

var recurrenceNames = map[Recurrence]string{
	Once:        "once",
	Daily:       "daily",
	Weekly:      "weekly",
	Monthly:     "monthly",
	Yearly:      "yearly",
	Birthday:    "birthday",
	Anniversary: "anniversary",
	Employment:  "employment",
}

// ParseRecurrence maps a wire-level string onto the enumeration.
// The empty string defaults to Once.
func ParseRecurrence(s string) (Recurrence, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return Once, nil
	}
	for r, name := range recurrenceNames {
		if name == v {
			return r, nil
		}
	}
	return Once, fmt.Errorf("%w: %q", ErrInvalidRecurrence, s)
}

func (r Recurrence) String() string {
	if name, ok := recurrenceNames[r]; ok {
		return name
	}
	return fmt.Sprintf("recurrence(%d)", int(r))
}

// Valid reports whether r is one of the defined enumeration values.
func (r Recurrence) Valid() bool {
	_, ok := recurrenceNames[r]
	return ok
}

// Recurring reports whether the item should be re-armed after a send.
func (r Recurrence) Recurring() bool { return r != Once && r.Valid() }

func (r Recurrence) MarshalJSON() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRecurrence, int(r))
	}
	return json.Marshal(r.String())
}

func (r *Recurrence) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseRecurrence(s)
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Email is a scheduled email record.
//
// Everything except the fire-state fields (Active, LastSentAt, NextSendAt)
// is immutable after creation; there is no edit operation.
type Email struct {
	ID        uuid.UUID  `json:"id"`
	OwnerID   uuid.UUID  `json:"owner_id"`
	Recipient string     `json:"recipient_email"`
	Subject   string     `json:"subject"`
	Body      string     `json:"content"`
	Header    string     `json:"email_header,omitempty"`
	// ScheduledAt is the originally requested civil time in the reference zone.
	ScheduledAt time.Time  `json:"scheduled_time"`
	Recurrence  Recurrence `json:"recurrence_type"`
	Active      bool       `json:"is_active"`
	LastSentAt  *time.Time `json:"last_sent,omitempty"`
	NextSendAt  *time.Time `json:"next_send,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ComposedBody renders the outbound message body: header, blank line, content.
// The header is omitted entirely when blank.
func (e Email) ComposedBody() string {
	h := strings.TrimSpace(e.Header)
	if h == "" {
		return e.Body
	}
	return h + "\n\n" + e.Body
}
