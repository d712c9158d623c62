package deliver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"mailsched/internal/schedule"
	"mailsched/internal/storage"
	logx "mailsched/pkg/logx"
)

var wat = time.FixedZone("WAT", 3600)

type fakeNotifier struct {
	err   error
	sent  []string // recipient
	body  string
	subj  string
	calls int
}

func (f *fakeNotifier) Send(_ context.Context, recipient, subject, body string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, recipient)
	f.subj = subject
	f.body = body
	return nil
}

type fakeArmer struct {
	armed []time.Time
}

func (f *fakeArmer) Arm(_ uuid.UUID, at time.Time) { f.armed = append(f.armed, at) }

func newHandler(t *testing.T, st Store, n Notifier, a Armer, now time.Time) *Handler {
	t.Helper()
	h := New(st, n, a, wat, logx.Nop())
	h.now = func() time.Time { return now }
	return h
}

func seed(t *testing.T, st storage.Store, e schedule.Email) schedule.Email {
	t.Helper()
	if err := st.CreateEmail(context.Background(), e); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return e
}

func baseEmail(r schedule.Recurrence, at time.Time) schedule.Email {
	next := at
	return schedule.Email{
		ID:          uuid.New(),
		OwnerID:     uuid.New(),
		Recipient:   "to@example.com",
		Subject:     "subject",
		Body:        "body",
		Header:      "Dear friend",
		ScheduledAt: at,
		Recurrence:  r,
		Active:      true,
		NextSendAt:  &next,
	}
}

func TestFireOnceCompletes(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, wat)
	e := seed(t, st, baseEmail(schedule.Once, now))

	n := &fakeNotifier{}
	a := &fakeArmer{}
	h := newHandler(t, st, n, a, now)

	out, err := h.Fire(ctx, e.ID)
	if err != nil {
		t.Fatalf("Fire: %v", err)
	}
	if out != OutcomeCompleted {
		t.Fatalf("outcome = %s, want completed", out)
	}
	if len(n.sent) != 1 || n.sent[0] != "to@example.com" {
		t.Fatalf("sent = %v", n.sent)
	}
	if n.body != "Dear friend\n\nbody" {
		t.Fatalf("body = %q", n.body)
	}
	if len(a.armed) != 0 {
		t.Fatalf("one-shot item re-armed: %v", a.armed)
	}

	got, _ := st.Email(ctx, e.ID)
	if got.Active {
		t.Fatal("one-shot item still active")
	}
	if got.LastSentAt == nil || !got.LastSentAt.Equal(now) {
		t.Fatalf("last_sent = %v, want %v", got.LastSentAt, now)
	}
}

func TestFireMonthlyRearms(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, wat)
	e := seed(t, st, baseEmail(schedule.Monthly, now))

	n := &fakeNotifier{}
	a := &fakeArmer{}
	h := newHandler(t, st, n, a, now)

	out, err := h.Fire(ctx, e.ID)
	if err != nil {
		t.Fatalf("Fire: %v", err)
	}
	if out != OutcomeRearmed {
		t.Fatalf("outcome = %s, want rearmed", out)
	}

	want := time.Date(2025, 4, 1, 9, 0, 0, 0, wat)
	if len(a.armed) != 1 || !a.armed[0].Equal(want) {
		t.Fatalf("armed = %v, want [%v]", a.armed, want)
	}
	got, _ := st.Email(ctx, e.ID)
	if !got.Active {
		t.Fatal("recurring item deactivated")
	}
	if got.NextSendAt == nil || !got.NextSendAt.Equal(want) {
		t.Fatalf("next_send = %v, want %v", got.NextSendAt, want)
	}
}

// A monthly chain must advance from the slot that fired, not from the
// original scheduled time. Firing eleven times from March 2025 has to walk
// one month per fire, through the December carry, and land on February
// 2026; advancing from ScheduledAt would produce April 2025 forever.
func TestFireMonthlyChainAdvancesEachSlot(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	start := time.Date(2025, 3, 1, 14, 0, 0, 0, wat)
	e := seed(t, st, baseEmail(schedule.Monthly, start))

	n := &fakeNotifier{}
	a := &fakeArmer{}
	h := newHandler(t, st, n, a, start)

	slot := start
	for i := 0; i < 11; i++ {
		h.now = func() time.Time { return slot }
		out, err := h.Fire(ctx, e.ID)
		if err != nil {
			t.Fatalf("fire %d: %v", i+1, err)
		}
		if out != OutcomeRearmed {
			t.Fatalf("fire %d: outcome = %s, want rearmed", i+1, out)
		}
		got, _ := st.Email(ctx, e.ID)
		if got.NextSendAt == nil {
			t.Fatalf("fire %d: next_send cleared", i+1)
		}
		want := slot.AddDate(0, 1, 0)
		if !got.NextSendAt.Equal(want) {
			t.Fatalf("fire %d: next_send = %v, want %v", i+1, got.NextSendAt, want)
		}
		slot = *got.NextSendAt
	}

	final := time.Date(2026, 2, 1, 14, 0, 0, 0, wat)
	if !slot.Equal(final) {
		t.Fatalf("after 11 fires next_send = %v, want %v", slot, final)
	}
	if n.calls != 11 {
		t.Fatalf("sends = %d, want 11", n.calls)
	}
	if len(a.armed) != 11 || !a.armed[10].Equal(final) {
		t.Fatalf("armed = %v, want last re-arm at %v", a.armed, final)
	}
}

// A December slot must advance into January of the next year, and the
// chain must keep each subsequent occurrence exactly one month apart.
func TestFireMonthlyYearRollover(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	now := time.Date(2025, 12, 15, 18, 30, 0, 0, wat)
	e := seed(t, st, baseEmail(schedule.Monthly, now))

	n := &fakeNotifier{}
	a := &fakeArmer{}
	h := newHandler(t, st, n, a, now)

	if _, err := h.Fire(ctx, e.ID); err != nil {
		t.Fatalf("Fire: %v", err)
	}
	want := time.Date(2026, 1, 15, 18, 30, 0, 0, wat)
	got, _ := st.Email(ctx, e.ID)
	if got.NextSendAt == nil || !got.NextSendAt.Equal(want) {
		t.Fatalf("next_send = %v, want %v", got.NextSendAt, want)
	}
}

func TestFireSendFailureLeavesStateAlone(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, wat)
	e := seed(t, st, baseEmail(schedule.Daily, now))

	n := &fakeNotifier{err: errors.New("smtp: connection refused")}
	a := &fakeArmer{}
	h := newHandler(t, st, n, a, now)

	out, err := h.Fire(ctx, e.ID)
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("err = %v, want ErrDeliveryFailed", err)
	}
	if out != OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", out)
	}
	if len(a.armed) != 0 {
		t.Fatal("failed delivery re-armed")
	}
	got, _ := st.Email(ctx, e.ID)
	if got.LastSentAt != nil {
		t.Fatal("last_sent advanced on failure")
	}
	if !got.NextSendAt.Equal(now) {
		t.Fatalf("next_send moved on failure: %v", got.NextSendAt)
	}
	if !got.Active {
		t.Fatal("item deactivated on failure")
	}
}

func TestFireInactiveAbsorbed(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, wat)
	e := baseEmail(schedule.Daily, now)
	e.Active = false
	seed(t, st, e)

	n := &fakeNotifier{}
	h := newHandler(t, st, n, &fakeArmer{}, now)

	out, err := h.Fire(ctx, e.ID)
	if err != nil {
		t.Fatalf("Fire: %v", err)
	}
	if out != OutcomeSkippedInactive {
		t.Fatalf("outcome = %s, want skipped_inactive", out)
	}
	if n.calls != 0 {
		t.Fatal("inactive item was sent")
	}
}

func TestFireMissingAbsorbed(t *testing.T) {
	st := storage.NewMemory()
	h := newHandler(t, st, &fakeNotifier{}, &fakeArmer{}, time.Now())

	out, err := h.Fire(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Fire: %v", err)
	}
	if out != OutcomeNotFound {
		t.Fatalf("outcome = %s, want not_found", out)
	}
}

func TestFireBlankHeaderBody(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, wat)
	e := baseEmail(schedule.Once, now)
	e.Header = ""
	seed(t, st, e)

	n := &fakeNotifier{}
	h := newHandler(t, st, n, &fakeArmer{}, now)
	if _, err := h.Fire(ctx, e.ID); err != nil {
		t.Fatalf("Fire: %v", err)
	}
	if n.body != "body" {
		t.Fatalf("body = %q, want bare body when header is blank", n.body)
	}
}
