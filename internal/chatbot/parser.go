package chatbot

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"mailsched/internal/schedule"
)

var (
	ErrNoContent = errors.New("no message content found")
	ErrNoEmail   = errors.New("no recipient address found")
	ErrNoTime    = errors.New("no send time found")
)

var (
	// Double quotes first: apostrophes inside "Don't forget" must not end
	// a single-quoted string early.
	doubleQuotedRe = regexp.MustCompile(`"([^"]+)"`)
	singleQuotedRe = regexp.MustCompile(`'([^']+)'`)
	emailRe        = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	headerRe       = regexp.MustCompile(`(?i)header\s+["']([^"']+)["']`)
	timeRe         = regexp.MustCompile(`(?i)\b(\d{1,2}):?(\d{2})?\s*(am|pm)?\b`)
)

func firstQuoted(text string) string {
	if m := doubleQuotedRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := singleQuotedRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// orderless contains-matching, checked in this order so that compound
// phrases win over their substrings ("job anniversary" before "anniversary").
var recurrenceKeywords = []struct {
	phrase string
	r      schedule.Recurrence
}{
	{"every day", schedule.Daily},
	{"daily", schedule.Daily},
	{"every week", schedule.Weekly},
	{"weekly", schedule.Weekly},
	{"every month", schedule.Monthly},
	{"monthly", schedule.Monthly},
	{"every year", schedule.Yearly},
	{"yearly", schedule.Yearly},
	{"birthday", schedule.Birthday},
	{"job anniversary", schedule.Employment},
	{"employment", schedule.Employment},
	{"anniversary", schedule.Anniversary},
}

// Request is the outcome of parsing one scheduling message.
type Request struct {
	Content    string
	Recipient  string
	Header     string
	Subject    string
	At         time.Time
	Recurrence schedule.Recurrence
}

// Parse extracts a scheduling request from free-form text like:
//
//	/schedule "Don't forget the meeting" to me@email.com at 9am daily with header "Reminder"
//	Send me 'Hello world' at 2:30pm every week
//
// The send time is today at the given clock time in loc; a time already in
// the past rolls to tomorrow. Content and recipient are mandatory.
func Parse(text string, now time.Time, loc *time.Location) (Request, error) {
	if loc == nil {
		loc = schedule.DefaultLocation()
	}
	req := Request{Recurrence: schedule.Once}

	req.Content = firstQuoted(text)
	if req.Content == "" {
		return req, ErrNoContent
	}

	// The header clause also contains a quoted string; make sure the email
	// and time scans don't look inside the content either.
	rest := strings.Replace(text, req.Content, "", 1)
	if m := headerRe.FindStringSubmatch(rest); m != nil {
		req.Header = m[1]
		rest = strings.Replace(rest, m[0], "", 1)
	}

	if m := emailRe.FindString(rest); m != "" {
		req.Recipient = m
	} else {
		return req, ErrNoEmail
	}
	// Digits in the address must not be mistaken for a clock time.
	rest = strings.Replace(rest, req.Recipient, "", 1)

	at, ok := parseClock(rest, now.In(loc))
	if !ok {
		return req, ErrNoTime
	}
	req.At = at

	lower := strings.ToLower(text)
	for _, kw := range recurrenceKeywords {
		if strings.Contains(lower, kw.phrase) {
			req.Recurrence = kw.r
			break
		}
	}

	// Subject defaults to the start of the content.
	req.Subject = subjectFrom(req.Content)
	return req, nil
}

// parseClock finds the first "2pm" / "14:00" / "2:30pm" style token and
// resolves it against now's date. Past times roll to tomorrow.
func parseClock(text string, now time.Time) (time.Time, bool) {
	m := timeRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	period := strings.ToLower(m[3])

	// A bare number with no minutes and no am/pm is too ambiguous to accept.
	if m[2] == "" && period == "" {
		return time.Time{}, false
	}
	if period == "pm" && hour != 12 {
		hour += 12
	} else if period == "am" && hour == 12 {
		hour = 0
	}
	if hour > 23 || minute > 59 {
		return time.Time{}, false
	}

	at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if at.Before(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at, true
}

func subjectFrom(content string) string {
	words := strings.Fields(content)
	if len(words) > 5 {
		words = words[:5]
	}
	s := strings.Join(words, " ")
	if len(s) > 255 {
		s = s[:255]
	}
	if s == "" {
		s = "Scheduled Message"
	}
	return s
}
