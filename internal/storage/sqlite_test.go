package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "mailsched/pkg/logx"
)

func openTestSQLite(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// Stored timestamps are compared as strings in SQL, so the layout must be
// fixed-width: a whole-second next_send has to be judged due by a
// fractional now inside the same second.
func TestSQLiteDueSubsecondBoundary(t *testing.T) {
	ctx := context.Background()
	st := openTestSQLite(t)

	owner, err := st.EnsureUser(ctx, "owner@example.com")
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e := mkEmail(owner.ID, at)
	if err := st.CreateEmail(ctx, e); err != nil {
		t.Fatalf("CreateEmail: %v", err)
	}

	due, err := st.DueEmails(ctx, at.Add(500*time.Millisecond))
	if err != nil {
		t.Fatalf("DueEmails: %v", err)
	}
	if len(due) != 1 || due[0].ID != e.ID {
		t.Fatalf("due = %v, want the stored item", due)
	}

	due, err = st.DueEmails(ctx, at.Add(-500*time.Millisecond))
	if err != nil {
		t.Fatalf("DueEmails: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("item due before its slot: %v", due)
	}
}

func TestSQLiteFireRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := openTestSQLite(t)

	owner, err := st.EnsureUser(ctx, "owner@example.com")
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	at := time.Date(2025, 6, 1, 12, 0, 0, 123456789, time.UTC)
	e := mkEmail(owner.ID, at)
	if err := st.CreateEmail(ctx, e); err != nil {
		t.Fatalf("CreateEmail: %v", err)
	}

	next := at.AddDate(0, 0, 1)
	if err := st.MarkFired(ctx, e.ID, FireUpdate{LastSentAt: at, NextSendAt: &next, Active: true}); err != nil {
		t.Fatalf("MarkFired: %v", err)
	}
	got, err := st.Email(ctx, e.ID)
	if err != nil {
		t.Fatalf("Email: %v", err)
	}
	if got.LastSentAt == nil || !got.LastSentAt.Equal(at) {
		t.Fatalf("last_sent = %v, want %v (nanoseconds preserved)", got.LastSentAt, at)
	}
	if got.NextSendAt == nil || !got.NextSendAt.Equal(next) {
		t.Fatalf("next_send = %v, want %v", got.NextSendAt, next)
	}
}

func TestTimeLayoutFixedWidth(t *testing.T) {
	whole := fmtTime(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	frac := fmtTime(time.Date(2025, 6, 1, 12, 0, 0, 500000000, time.UTC))
	if len(whole) != len(frac) {
		t.Fatalf("layout not fixed-width: %q vs %q", whole, frac)
	}
	if !(strings.Compare(whole, frac) < 0) {
		t.Fatalf("lexical order broken: %q !< %q", whole, frac)
	}
	if parsed := parseTime(whole); !parsed.Equal(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("round trip: %v", parsed)
	}
}
