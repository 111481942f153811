package calendar

import (
	"errors"
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func tr(start, end string) TimeRange {
	s, err := ParseTimeOfDay(start)
	if err != nil {
		panic(err)
	}
	e, err := ParseTimeOfDay(end)
	if err != nil {
		panic(err)
	}
	return TimeRange{Start: s, End: e}
}

var testNow = time.Date(2025, 7, 15, 10, 30, 0, 0, time.UTC)

func TestCanMarkUnavailable_PastDate(t *testing.T) {
	c := NewConflictChecker()
	snap := &Snapshot{ProviderID: "p1"}

	for _, d := range []time.Time{
		date(2025, 7, 14),
		date(2025, 6, 1),
		date(2024, 12, 31),
	} {
		err := c.CanMarkUnavailable(snap, testNow, MarkRequest{Date: d, FullDay: true})
		var pastErr *PastDateError
		if !errors.As(err, &pastErr) {
			t.Fatalf("date %s: expected PastDateError, got %v", d.Format(DateLayout), err)
		}
		if !pastErr.Date.Equal(d) {
			t.Fatalf("PastDateError carries %s, want %s", pastErr.Date, d)
		}
	}
}

func TestCanMarkUnavailable_TodayIsMutable(t *testing.T) {
	c := NewConflictChecker()
	snap := &Snapshot{ProviderID: "p1"}

	err := c.CanMarkUnavailable(snap, testNow, MarkRequest{Date: date(2025, 7, 15), FullDay: true})
	if err != nil {
		t.Fatalf("marking today unavailable should succeed, got %v", err)
	}
}

func TestCanMarkUnavailable_FullDayVsSessions(t *testing.T) {
	c := NewConflictChecker()
	sess := Session{
		ID: "s1", ClientName: "Amina Khan",
		Date: date(2025, 7, 20), Time: 14 * 60, Duration: 30,
		Status: StatusConfirmed,
	}
	snap := &Snapshot{ProviderID: "p1", Sessions: []Session{sess}}

	err := c.CanMarkUnavailable(snap, testNow, MarkRequest{Date: date(2025, 7, 20), FullDay: true})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if len(conflict.Sessions) != 1 || conflict.Sessions[0].ID != "s1" {
		t.Fatalf("conflict should name session s1, got %+v", conflict.Sessions)
	}
}

func TestCanMarkUnavailable_FullDayIgnoresCancelled(t *testing.T) {
	c := NewConflictChecker()
	snap := &Snapshot{ProviderID: "p1", Sessions: []Session{{
		ID: "s1", Date: date(2025, 7, 20), Time: 14 * 60, Duration: 30,
		Status: StatusCancelled,
	}}}

	if err := c.CanMarkUnavailable(snap, testNow, MarkRequest{Date: date(2025, 7, 20), FullDay: true}); err != nil {
		t.Fatalf("cancelled sessions must not block a full-day mark, got %v", err)
	}
}

func TestCanMarkUnavailable_DuplicateFullDay(t *testing.T) {
	c := NewConflictChecker()
	snap := &Snapshot{ProviderID: "p1", Unavailable: []UnavailableDate{{
		ID: "u1", Date: date(2025, 7, 20), FullDay: true,
	}}}

	err := c.CanMarkUnavailable(snap, testNow, MarkRequest{Date: date(2025, 7, 20), FullDay: true})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError for duplicate full-day record, got %v", err)
	}
	if len(conflict.Unavailable) != 1 || conflict.Unavailable[0].ID != "u1" {
		t.Fatalf("conflict should carry the existing record, got %+v", conflict.Unavailable)
	}
}

func TestCanMarkUnavailable_PartialOverlap(t *testing.T) {
	c := NewConflictChecker()
	existing := tr("09:00", "12:00")
	snap := &Snapshot{ProviderID: "p1", Unavailable: []UnavailableDate{{
		ID: "u1", Date: date(2025, 7, 21), Window: &existing,
	}}}

	cases := []struct {
		name     string
		window   TimeRange
		conflict bool
	}{
		{"overlap at 11:00", tr("11:00", "13:00"), true},
		{"contained", tr("10:00", "11:00"), true},
		{"covering", tr("08:00", "13:00"), true},
		{"touching end", tr("12:00", "14:00"), false},
		{"touching start", tr("07:00", "09:00"), false},
		{"disjoint", tr("14:00", "16:00"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := tc.window
			err := c.CanMarkUnavailable(snap, testNow, MarkRequest{Date: date(2025, 7, 21), Window: &w})
			var conflict *ConflictError
			got := errors.As(err, &conflict)
			if got != tc.conflict {
				t.Fatalf("window %s: conflict=%v, want %v (err=%v)", tc.window, got, tc.conflict, err)
			}
		})
	}
}

func TestCanMarkUnavailable_PartialVsSessionStart(t *testing.T) {
	c := NewConflictChecker()
	snap := &Snapshot{ProviderID: "p1", Sessions: []Session{{
		ID: "s1", Date: date(2025, 7, 21), Time: 10 * 60, Duration: 60,
		Status: StatusConfirmed,
	}}}

	w := tr("09:00", "11:00")
	err := c.CanMarkUnavailable(snap, testNow, MarkRequest{Date: date(2025, 7, 21), Window: &w})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError when session starts inside window, got %v", err)
	}

	// Session starting exactly at the window end is outside [start,end).
	w2 := tr("09:00", "10:00")
	if err := c.CanMarkUnavailable(snap, testNow, MarkRequest{Date: date(2025, 7, 21), Window: &w2}); err != nil {
		t.Fatalf("session at window end must not conflict, got %v", err)
	}
}

func TestCanMarkUnavailable_InvalidWindow(t *testing.T) {
	c := NewConflictChecker()
	snap := &Snapshot{ProviderID: "p1"}

	for _, w := range []TimeRange{tr("12:00", "09:00"), {Start: 600, End: 600}} {
		window := w
		err := c.CanMarkUnavailable(snap, testNow, MarkRequest{Date: date(2025, 7, 21), Window: &window})
		var validation *ValidationError
		if !errors.As(err, &validation) {
			t.Fatalf("window %s: expected ValidationError, got %v", w, err)
		}
	}

	err := c.CanMarkUnavailable(snap, testNow, MarkRequest{Date: date(2025, 7, 21)})
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("missing window: expected ValidationError, got %v", err)
	}
}

func TestCanMarkUnavailable_RecurrenceAllOrNothing(t *testing.T) {
	c := NewConflictChecker()
	// Monday 2025-07-28 + 4 weekly occurrences; a session sits on the
	// third one (2025-08-11).
	snap := &Snapshot{ProviderID: "p1", Sessions: []Session{{
		ID: "s1", Date: date(2025, 8, 11), Time: 9 * 60, Duration: 60,
		Status: StatusConfirmed,
	}}}

	err := c.CanMarkUnavailable(snap, testNow, MarkRequest{
		Date: date(2025, 7, 28), FullDay: true, Repeat: 4,
	})
	var batch *BatchDateError
	if !errors.As(err, &batch) {
		t.Fatalf("expected BatchDateError, got %v", err)
	}
	if len(batch.Failures) != 1 {
		t.Fatalf("expected exactly one failing date, got %v", batch.Failures)
	}
	if _, ok := batch.Failures["2025-08-11"]; !ok {
		t.Fatalf("failing date should be 2025-08-11, got %v", batch.Failures)
	}
}

func TestCanMarkUnavailable_RecurrenceClean(t *testing.T) {
	c := NewConflictChecker()
	snap := &Snapshot{ProviderID: "p1"}

	err := c.CanMarkUnavailable(snap, testNow, MarkRequest{
		Date: date(2025, 7, 28), FullDay: true, Repeat: 4,
	})
	if err != nil {
		t.Fatalf("conflict-free recurrence should pass, got %v", err)
	}
}

func TestCanMarkAvailable_AlwaysPermitted(t *testing.T) {
	c := NewConflictChecker()
	snap := &Snapshot{ProviderID: "p1", Sessions: []Session{{
		ID: "s1", Date: date(2025, 7, 20), Time: 14 * 60, Duration: 30,
		Status: StatusConfirmed,
	}}}

	if err := c.CanMarkAvailable(snap, date(2025, 7, 20)); err != nil {
		t.Fatalf("mark available can never conflict, got %v", err)
	}
}

func TestWeeklyOccurrences(t *testing.T) {
	dates, err := WeeklyOccurrences(date(2025, 7, 28), 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []time.Time{
		date(2025, 7, 28), date(2025, 8, 4), date(2025, 8, 11), date(2025, 8, 18),
	}
	if len(dates) != len(want) {
		t.Fatalf("expected %d occurrences, got %d", len(want), len(dates))
	}
	for i := range want {
		if !dates[i].Equal(want[i]) {
			t.Fatalf("occurrence %d: got %s, want %s", i, dates[i].Format(DateLayout), want[i].Format(DateLayout))
		}
		if dates[i].Weekday() != time.Monday {
			t.Fatalf("occurrence %d is a %s, want Monday", i, dates[i].Weekday())
		}
	}
}

func TestWeeklyOccurrences_InvalidCount(t *testing.T) {
	_, err := WeeklyOccurrences(date(2025, 7, 28), 0)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError for count 0, got %v", err)
	}
}
