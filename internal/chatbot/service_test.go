package chatbot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"mailsched/internal/storage"
	logx "mailsched/pkg/logx"
)

type fakeArmer struct {
	armed    []uuid.UUID
	disarmed []uuid.UUID
}

func (f *fakeArmer) Arm(id uuid.UUID, _ time.Time) { f.armed = append(f.armed, id) }
func (f *fakeArmer) Disarm(id uuid.UUID)           { f.disarmed = append(f.disarmed, id) }

func newTestService(t *testing.T) (*Service, storage.Store, *fakeArmer) {
	t.Helper()
	st := storage.NewMemory()
	armer := &fakeArmer{}
	svc := New(Config{}, st, armer, logx.Nop())
	svc.now = func() time.Time { return time.Date(2025, 6, 2, 8, 0, 0, 0, wat) }
	svc.loc = wat
	return svc, st, armer
}

func TestHandleScheduleCreatesAndArms(t *testing.T) {
	ctx := context.Background()
	svc, st, armer := newTestService(t)

	reply := svc.Handle(ctx, "sender@example.com", `/schedule "Hello world" to john@example.com at 2pm with header "Birthday"`)
	if !strings.Contains(reply, "✅ Email scheduled!") {
		t.Fatalf("reply = %q", reply)
	}
	if !strings.Contains(reply, "john@example.com") || !strings.Contains(reply, "Birthday") {
		t.Errorf("reply missing details: %q", reply)
	}

	user, err := st.UserByEmail(ctx, "sender@example.com")
	if err != nil {
		t.Fatalf("sender not registered: %v", err)
	}
	emails, _ := st.ActiveByOwner(ctx, user.ID)
	if len(emails) != 1 {
		t.Fatalf("stored emails = %d, want 1", len(emails))
	}
	e := emails[0]
	if e.Recipient != "john@example.com" || e.Body != "Hello world" || e.Header != "Birthday" {
		t.Errorf("stored email = %+v", e)
	}
	want := time.Date(2025, 6, 2, 14, 0, 0, 0, wat)
	if !e.ScheduledAt.Equal(want) {
		t.Errorf("scheduled_at = %v, want %v", e.ScheduledAt, want)
	}
	if len(armer.armed) != 1 || armer.armed[0] != e.ID {
		t.Errorf("armed = %v", armer.armed)
	}
}

func TestHandleScheduleDefaultHeader(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	svc.Handle(ctx, "s@example.com", `/schedule "msg" to a@b.co at 3pm`)
	user, _ := st.UserByEmail(ctx, "s@example.com")
	emails, _ := st.ActiveByOwner(ctx, user.ID)
	if len(emails) != 1 || emails[0].Header != "Scheduled Message" {
		t.Fatalf("emails = %+v", emails)
	}
}

func TestHandleScheduleBadFormat(t *testing.T) {
	svc, _, _ := newTestService(t)

	reply := svc.Handle(context.Background(), "s@example.com", `/schedule no quotes at all`)
	if !strings.Contains(reply, "❌ Invalid format") {
		t.Fatalf("reply = %q", reply)
	}
	reply = svc.Handle(context.Background(), "s@example.com", `/schedule "msg" to a@b.co whenever`)
	if !strings.Contains(reply, "❌ Could not parse time") {
		t.Fatalf("reply = %q", reply)
	}
}

func TestHandleListAndCancel(t *testing.T) {
	ctx := context.Background()
	svc, st, armer := newTestService(t)

	if reply := svc.Handle(ctx, "s@example.com", "/list"); !strings.Contains(reply, "📭 No scheduled emails yet.") {
		t.Fatalf("empty list reply = %q", reply)
	}

	svc.Handle(ctx, "s@example.com", `/schedule "msg" to a@b.co at 3pm weekly`)
	reply := svc.Handle(ctx, "s@example.com", "/list")
	if !strings.Contains(reply, "a@b.co") || !strings.Contains(reply, "weekly") {
		t.Fatalf("list reply = %q", reply)
	}

	user, _ := st.UserByEmail(ctx, "s@example.com")
	emails, _ := st.ActiveByOwner(ctx, user.ID)
	id := emails[0].ID

	reply = svc.Handle(ctx, "s@example.com", "/cancel "+id.String())
	if !strings.Contains(reply, "✅ Email has been cancelled.") {
		t.Fatalf("cancel reply = %q", reply)
	}
	if len(armer.disarmed) != 1 || armer.disarmed[0] != id {
		t.Errorf("disarmed = %v", armer.disarmed)
	}
	if left, _ := st.ActiveByOwner(ctx, user.ID); len(left) != 0 {
		t.Errorf("emails left after cancel: %v", left)
	}
}

func TestHandleCancelForeignLooksMissing(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)

	svc.Handle(ctx, "owner@example.com", `/schedule "msg" to a@b.co at 3pm`)
	user, _ := st.UserByEmail(ctx, "owner@example.com")
	emails, _ := st.ActiveByOwner(ctx, user.ID)

	reply := svc.Handle(ctx, "other@example.com", "/cancel "+emails[0].ID.String())
	if !strings.Contains(reply, "❌ Email not found.") {
		t.Fatalf("foreign cancel reply = %q", reply)
	}
	if left, _ := st.ActiveByOwner(ctx, user.ID); len(left) != 1 {
		t.Error("foreign cancel deactivated the item")
	}
}

func TestHandleCancelBadArg(t *testing.T) {
	svc, _, _ := newTestService(t)
	reply := svc.Handle(context.Background(), "s@example.com", "/cancel not-an-id")
	if !strings.Contains(reply, "❌ Use format: /cancel EMAIL_ID") {
		t.Fatalf("reply = %q", reply)
	}
}

func TestHandleSmallTalkAndFallback(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if reply := svc.Handle(ctx, "s@example.com", "hello"); reply == fallbackReply {
		t.Error("greeting fell through to fallback")
	}
	if reply := svc.Handle(ctx, "s@example.com", "/help"); reply != helpReply {
		t.Errorf("help reply = %q", reply)
	}
	if reply := svc.Handle(ctx, "s@example.com", "qwzzt blorp"); reply != fallbackReply {
		t.Errorf("fallback reply = %q", reply)
	}
	if reply := svc.Handle(ctx, "s@example.com", "   "); reply != "" {
		t.Errorf("blank input reply = %q", reply)
	}
}
