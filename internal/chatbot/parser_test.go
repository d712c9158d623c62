package chatbot

import (
	"errors"
	"testing"
	"time"

	"mailsched/internal/schedule"
)

var wat = time.FixedZone("WAT", 3600)

func TestParseScheduleCommand(t *testing.T) {
	now := time.Date(2025, 6, 2, 8, 0, 0, 0, wat) // Monday morning

	req, err := Parse(`/schedule "Don't forget the meeting" to me@email.com at 9am daily with header "Reminder"`, now, wat)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if req.Content != "Don't forget the meeting" {
		t.Errorf("content = %q", req.Content)
	}
	if req.Recipient != "me@email.com" {
		t.Errorf("recipient = %q", req.Recipient)
	}
	if req.Header != "Reminder" {
		t.Errorf("header = %q", req.Header)
	}
	if req.Recurrence != schedule.Daily {
		t.Errorf("recurrence = %s", req.Recurrence)
	}
	want := time.Date(2025, 6, 2, 9, 0, 0, 0, wat)
	if !req.At.Equal(want) {
		t.Errorf("at = %v, want %v", req.At, want)
	}
}

func TestParseClockForms(t *testing.T) {
	now := time.Date(2025, 6, 2, 8, 0, 0, 0, wat)
	cases := []struct {
		text string
		want time.Time
	}{
		{`"m" to a@b.co at 2pm`, time.Date(2025, 6, 2, 14, 0, 0, 0, wat)},
		{`"m" to a@b.co at 2:30pm`, time.Date(2025, 6, 2, 14, 30, 0, 0, wat)},
		{`"m" to a@b.co at 14:00`, time.Date(2025, 6, 2, 14, 0, 0, 0, wat)},
		{`"m" to a@b.co at 12am`, time.Date(2025, 6, 3, 0, 0, 0, 0, wat)},  // past -> tomorrow
		{`"m" to a@b.co at 12pm`, time.Date(2025, 6, 2, 12, 0, 0, 0, wat)}, // noon stays noon
		{`"m" to a@b.co at 7am`, time.Date(2025, 6, 3, 7, 0, 0, 0, wat)},   // past -> tomorrow
	}
	for _, tc := range cases {
		req, err := Parse(tc.text, now, wat)
		if err != nil {
			t.Errorf("%q: %v", tc.text, err)
			continue
		}
		if !req.At.Equal(tc.want) {
			t.Errorf("%q: at = %v, want %v", tc.text, req.At, tc.want)
		}
	}
}

func TestParseRecurrencePhrases(t *testing.T) {
	now := time.Date(2025, 6, 2, 8, 0, 0, 0, wat)
	cases := []struct {
		text string
		want schedule.Recurrence
	}{
		{`"m" to a@b.co at 9am`, schedule.Once},
		{`"m" to a@b.co at 9am every week`, schedule.Weekly},
		{`"m" to a@b.co at 9am monthly`, schedule.Monthly},
		{`"m" to a@b.co at 9am every birthday`, schedule.Birthday},
		{`"m" to a@b.co at 9am job anniversary`, schedule.Employment},
		{`"m" to a@b.co at 9am anniversary`, schedule.Anniversary},
	}
	for _, tc := range cases {
		req, err := Parse(tc.text, now, wat)
		if err != nil {
			t.Errorf("%q: %v", tc.text, err)
			continue
		}
		if req.Recurrence != tc.want {
			t.Errorf("%q: recurrence = %s, want %s", tc.text, req.Recurrence, tc.want)
		}
	}
}

func TestParseErrors(t *testing.T) {
	now := time.Now()
	if _, err := Parse(`no quotes here to a@b.co at 2pm`, now, wat); !errors.Is(err, ErrNoContent) {
		t.Errorf("missing content: %v", err)
	}
	if _, err := Parse(`"msg" at 2pm`, now, wat); !errors.Is(err, ErrNoEmail) {
		t.Errorf("missing email: %v", err)
	}
	if _, err := Parse(`"msg" to a@b.co someday`, now, wat); !errors.Is(err, ErrNoTime) {
		t.Errorf("missing time: %v", err)
	}
}

// Digits inside the recipient address must not be read as a send time.
func TestParseEmailDigitsNotTime(t *testing.T) {
	now := time.Date(2025, 6, 2, 8, 0, 0, 0, wat)
	if _, err := Parse(`"msg" to user2025@b.co tomorrow`, now, wat); !errors.Is(err, ErrNoTime) {
		t.Errorf("digits in address parsed as time: %v", err)
	}
}

func TestSubjectFrom(t *testing.T) {
	if got := subjectFrom("one two three four five six seven"); got != "one two three four five" {
		t.Errorf("subject = %q", got)
	}
	if got := subjectFrom(""); got != "Scheduled Message" {
		t.Errorf("empty subject = %q", got)
	}
}

func TestClassifySmallTalk(t *testing.T) {
	cases := []struct {
		text string
		want smallTalkKind
	}{
		{"hey there", talkGreeting},
		{"Hello!", talkGreeting},
		{"how are you doing", talkHowAreYou},
		{"how is your day going", talkDay},
		{"what can you do", talkCapabilities},
		{"give me a quote", talkQuote},
		{"thanks a lot", talkThanks},
		{"this is unrelated", talkNone}, // "this" must not match "hi"
	}
	for _, tc := range cases {
		if got := classifySmallTalk(tc.text); got != tc.want {
			t.Errorf("classify(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}
