// Package chatbot turns chat messages into scheduling operations. The
// Service is transport-neutral: the HTTP webhook and the Telegram bot both
// feed it raw text and relay the reply string it returns.
package chatbot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"mailsched/internal/schedule"
	"mailsched/internal/storage"
	logx "mailsched/pkg/logx"
)

// Store is the slice of the storage layer the bot needs.
type Store interface {
	EnsureUser(ctx context.Context, email string) (storage.User, error)
	CreateEmail(ctx context.Context, e schedule.Email) error
	ActiveByOwner(ctx context.Context, owner uuid.UUID) ([]schedule.Email, error)
	Deactivate(ctx context.Context, id, owner uuid.UUID) error
}

// Armer mirrors dispatch.Service for arming/cancelling timers.
type Armer interface {
	Arm(id uuid.UUID, at time.Time)
	Disarm(id uuid.UUID)
}

type Config struct {
	// Timezone for interpreting clock times in messages.
	Timezone string `json:"timezone"`
}

type Service struct {
	store Store
	armer Armer
	loc   *time.Location
	log   logx.Logger

	now func() time.Time
}

func New(cfg Config, store Store, armer Armer, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	loc := schedule.DefaultLocation()
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		} else {
			log.Warn("invalid chat timezone; using default", logx.String("tz", tz), logx.Err(err))
		}
	}
	return &Service{store: store, armer: armer, loc: loc, log: log, now: time.Now}
}

// Handle processes one inbound message from the given sender and returns
// the reply text. The sender is identified by email address; unknown
// senders get an account on first contact.
func (s *Service) Handle(ctx context.Context, senderEmail, text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	user, err := s.store.EnsureUser(ctx, senderEmail)
	if err != nil {
		s.log.Error("chat user lookup failed", logx.String("sender", senderEmail), logx.Err(err))
		return "❌ Something went wrong on my side. Please try again."
	}

	lower := strings.ToLower(text)
	switch {
	case strings.HasPrefix(lower, "/schedule"):
		return s.handleSchedule(ctx, user, text)
	case strings.HasPrefix(lower, "/list"):
		return s.handleList(ctx, user)
	case strings.HasPrefix(lower, "/cancel"):
		return s.handleCancel(ctx, user, text)
	case strings.HasPrefix(lower, "/help"), strings.HasPrefix(lower, "/start"):
		return helpReply
	}

	if kind := classifySmallTalk(text); kind != talkNone {
		return smallTalkReply(kind, user.Username, s.now().In(s.loc))
	}
	return fallbackReply
}

func (s *Service) handleSchedule(ctx context.Context, user storage.User, text string) string {
	req, err := Parse(text, s.now(), s.loc)
	switch {
	case errors.Is(err, ErrNoContent), errors.Is(err, ErrNoEmail):
		return "❌ Invalid format. Use: /schedule \"message\" to email@domain.com at TIME with header \"Header\""
	case errors.Is(err, ErrNoTime):
		return "❌ Could not parse time. Use format: 2pm, 14:00, 2:30pm"
	case err != nil:
		s.log.Error("schedule parse failed", logx.Err(err))
		return "❌ Could not understand that request."
	}

	header := req.Header
	if header == "" {
		header = "Scheduled Message"
	}
	next := req.At
	e := schedule.Email{
		ID:          uuid.New(),
		OwnerID:     user.ID,
		Recipient:   req.Recipient,
		Subject:     "Scheduled Message",
		Body:        req.Content,
		Header:      header,
		ScheduledAt: req.At,
		Recurrence:  req.Recurrence,
		Active:      true,
		NextSendAt:  &next,
	}
	if err := s.store.CreateEmail(ctx, e); err != nil {
		s.log.Error("chat schedule failed", logx.Err(err))
		return "❌ Could not save that schedule. Please try again."
	}
	if s.armer != nil {
		s.armer.Arm(e.ID, req.At)
	}

	var b strings.Builder
	b.WriteString("✅ Email scheduled!\n")
	b.WriteString("📧 To: " + req.Recipient + "\n")
	b.WriteString("📝 Message: " + req.Content + "\n")
	b.WriteString("⏰ Time: " + req.At.Format("Monday, January 02 at 03:04 PM MST"))
	if req.Recurrence != schedule.Once {
		b.WriteString(" (" + req.Recurrence.String() + ")")
	}
	b.WriteString("\n🎯 Header: " + header)
	return b.String()
}

func (s *Service) handleList(ctx context.Context, user storage.User) string {
	emails, err := s.store.ActiveByOwner(ctx, user.ID)
	if err != nil {
		s.log.Error("chat list failed", logx.Err(err))
		return "❌ Could not load your schedules right now."
	}
	if len(emails) == 0 {
		return "📭 No scheduled emails yet."
	}

	var b strings.Builder
	b.WriteString("📋 Your Scheduled Emails:\n\n")
	for i, e := range emails {
		next := e.ScheduledAt
		if e.NextSendAt != nil {
			next = *e.NextSendAt
		}
		b.WriteString(strconv.Itoa(i+1) + ". " + e.Subject + "\n")
		b.WriteString("   To: " + e.Recipient + "\n")
		b.WriteString("   Next: " + next.In(s.loc).Format("Monday, January 02 at 03:04 PM") + "\n")
		b.WriteString("   Recurrence: " + e.Recurrence.String() + "\n")
		b.WriteString("   ID: " + e.ID.String() + "\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *Service) handleCancel(ctx context.Context, user storage.User, text string) string {
	arg := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "/cancel"))
	id, err := uuid.Parse(arg)
	if err != nil {
		return "❌ Use format: /cancel EMAIL_ID"
	}

	err = s.store.Deactivate(ctx, id, user.ID)
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrOwnerMismatch):
		// Someone else's schedule looks exactly like a missing one.
		return "❌ Email not found."
	case err != nil:
		s.log.Error("chat cancel failed", logx.Err(err))
		return "❌ Could not cancel that email right now."
	}
	if s.armer != nil {
		s.armer.Disarm(id)
	}
	return "✅ Email has been cancelled."
}
