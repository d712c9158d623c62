package schedule

import (
	"testing"
	"time"
)

var wat = time.FixedZone("WAT", 3600)

func mustTime(t *testing.T, y int, m time.Month, d, hh, mm int) time.Time {
	t.Helper()
	return time.Date(y, m, d, hh, mm, 0, 0, wat)
}

func TestNextByPolicy(t *testing.T) {
	t.Parallel()
	base := mustTime(t, 2025, time.March, 10, 14, 0)
	tests := []struct {
		name string
		rec  Recurrence
		want time.Time
	}{
		{name: "daily", rec: Daily, want: mustTime(t, 2025, time.March, 11, 14, 0)},
		{name: "weekly", rec: Weekly, want: mustTime(t, 2025, time.March, 17, 14, 0)},
		{name: "monthly", rec: Monthly, want: mustTime(t, 2025, time.April, 10, 14, 0)},
		{name: "yearly", rec: Yearly, want: mustTime(t, 2026, time.March, 10, 14, 0)},
		{name: "birthday", rec: Birthday, want: mustTime(t, 2026, time.March, 10, 14, 0)},
		{name: "anniversary", rec: Anniversary, want: mustTime(t, 2026, time.March, 10, 14, 0)},
		{name: "employment", rec: Employment, want: mustTime(t, 2026, time.March, 10, 14, 0)},
		{name: "once is identity", rec: Once, want: base},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(base, tt.rec, wat)
			if err != nil {
				t.Fatalf("Next error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("Next = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextMonthlyDecemberCarry(t *testing.T) {
	t.Parallel()
	got, err := Next(mustTime(t, 2025, time.December, 15, 9, 30), Monthly, wat)
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	want := mustTime(t, 2026, time.January, 15, 9, 30)
	if !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}

func TestNextClampsMonthEnd(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   time.Time
		rec  Recurrence
		want time.Time
	}{
		{name: "jan 31 monthly clamps to feb 28", in: mustTime(t, 2025, time.January, 31, 8, 0), rec: Monthly, want: mustTime(t, 2025, time.February, 28, 8, 0)},
		{name: "jan 31 monthly leap year", in: mustTime(t, 2024, time.January, 31, 8, 0), rec: Monthly, want: mustTime(t, 2024, time.February, 29, 8, 0)},
		{name: "mar 31 monthly clamps to apr 30", in: mustTime(t, 2025, time.March, 31, 8, 0), rec: Monthly, want: mustTime(t, 2025, time.April, 30, 8, 0)},
		{name: "feb 29 yearly clamps to feb 28", in: mustTime(t, 2024, time.February, 29, 8, 0), rec: Yearly, want: mustTime(t, 2025, time.February, 28, 8, 0)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(tt.in, tt.rec, wat)
			if err != nil {
				t.Fatalf("Next error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("Next = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextIsPeriodic(t *testing.T) {
	t.Parallel()
	// Applying Next twice equals applying it once to the once-advanced time.
	base := mustTime(t, 2025, time.June, 5, 12, 0)
	for _, rec := range []Recurrence{Daily, Weekly, Monthly, Yearly} {
		one, err := Next(base, rec, wat)
		if err != nil {
			t.Fatalf("Next(%v) error: %v", rec, err)
		}
		two, err := Next(one, rec, wat)
		if err != nil {
			t.Fatalf("Next(%v) error: %v", rec, err)
		}
		again, err := Next(one, rec, wat)
		if err != nil {
			t.Fatalf("Next(%v) error: %v", rec, err)
		}
		if !two.Equal(again) {
			t.Fatalf("%v: repeated application not stable: %v vs %v", rec, two, again)
		}
		if !two.After(one) || !one.After(base) {
			t.Fatalf("%v: sequence not strictly increasing: %v %v %v", rec, base, one, two)
		}
	}
}

func TestNextConvertsIntoReferenceZone(t *testing.T) {
	t.Parallel()
	// 13:00 UTC is 14:00 WAT; the result must be in the reference zone.
	in := time.Date(2025, time.May, 1, 13, 0, 0, 0, time.UTC)
	got, err := Next(in, Daily, wat)
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	want := mustTime(t, 2025, time.May, 2, 14, 0)
	if !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
	if got.Location() != wat {
		t.Fatalf("result zone = %v, want %v", got.Location(), wat)
	}
}

func TestNextInvalidRecurrence(t *testing.T) {
	t.Parallel()
	if _, err := Next(time.Now(), Recurrence(42), wat); err == nil {
		t.Fatal("expected error for out-of-range recurrence")
	}
}

func TestParseRecurrence(t *testing.T) {
	t.Parallel()
	for rec, name := range map[Recurrence]string{
		Once: "once", Daily: "daily", Weekly: "weekly", Monthly: "monthly",
		Yearly: "yearly", Birthday: "birthday", Anniversary: "anniversary", Employment: "employment",
	} {
		got, err := ParseRecurrence(name)
		if err != nil {
			t.Fatalf("ParseRecurrence(%q) error: %v", name, err)
		}
		if got != rec {
			t.Fatalf("ParseRecurrence(%q) = %v, want %v", name, got, rec)
		}
		if got.String() != name {
			t.Fatalf("String() = %q, want %q", got.String(), name)
		}
	}

	if got, err := ParseRecurrence(""); err != nil || got != Once {
		t.Fatalf("empty string should default to once, got %v err %v", got, err)
	}
	if _, err := ParseRecurrence("fortnightly"); err == nil {
		t.Fatal("expected error for unknown recurrence")
	}
}

func TestComposedBody(t *testing.T) {
	t.Parallel()
	e := Email{Header: "Reminder", Body: "Standup at 9."}
	if got, want := e.ComposedBody(), "Reminder\n\nStandup at 9."; got != want {
		t.Fatalf("ComposedBody = %q, want %q", got, want)
	}

	e.Header = "  "
	if got := e.ComposedBody(); got != "Standup at 9." {
		t.Fatalf("blank header should be omitted, got %q", got)
	}
}
