package calendar

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// MarkRequest describes a proposed unavailability declaration. Window is
// required when FullDay is false. Repeat > 1 asks for that many weekly
// occurrences (same weekday, 7 days apart), checked all-or-nothing.
type MarkRequest struct {
	Date    time.Time
	FullDay bool
	Window  *TimeRange
	Reason  string
	Repeat  int
}

// ConflictChecker validates proposed mutations against the current
// snapshot. It is the single implementation every entry point goes
// through; it has no side effects, the caller commits separately under
// the provider's lock.
type ConflictChecker interface {
	// CanMarkUnavailable returns nil when the request may be committed.
	// Otherwise it returns *ValidationError, *PastDateError,
	// *ConflictError (carrying the conflicting entities) or, for
	// recurring requests, *BatchDateError keyed by failing date.
	CanMarkUnavailable(snap *Snapshot, now time.Time, req MarkRequest) error

	// CanMarkAvailable never conflicts: removing a restriction cannot
	// contradict a session.
	CanMarkAvailable(snap *Snapshot, date time.Time) error
}

type checker struct{}

func NewConflictChecker() ConflictChecker { return checker{} }

func (c checker) CanMarkUnavailable(snap *Snapshot, now time.Time, req MarkRequest) error {
	if req.Repeat > 1 {
		dates, err := WeeklyOccurrences(req.Date, req.Repeat)
		if err != nil {
			return err
		}
		failures := make(map[string]error)
		for _, d := range dates {
			if err := c.checkOne(snap, now, d, req); err != nil {
				failures[d.Format(DateLayout)] = err
			}
		}
		if len(failures) > 0 {
			return &BatchDateError{Failures: failures}
		}
		return nil
	}
	return c.checkOne(snap, now, req.Date, req)
}

func (c checker) checkOne(snap *Snapshot, now time.Time, date time.Time, req MarkRequest) error {
	date = DateOf(date)
	if date.Before(DateOf(now)) {
		return &PastDateError{Date: date}
	}

	if full := snap.FullDayUnavailable(date); full != nil {
		return &ConflictError{Date: date, Unavailable: []UnavailableDate{*full}}
	}

	if req.FullDay {
		if sessions := snap.SessionsOn(date); len(sessions) > 0 {
			return &ConflictError{Date: date, Sessions: sessions}
		}
		return nil
	}

	if req.Window == nil {
		return validationf("partial unavailability requires a time window")
	}
	if !req.Window.Valid() {
		return validationf("time window %s must start before it ends", req.Window)
	}

	var clashes []UnavailableDate
	for _, u := range snap.UnavailableOn(date) {
		if !u.FullDay && u.Window.Overlaps(*req.Window) {
			clashes = append(clashes, u)
		}
	}
	if len(clashes) > 0 {
		return &ConflictError{Date: date, Unavailable: clashes}
	}

	var booked []Session
	for _, s := range snap.SessionsOn(date) {
		if req.Window.Contains(s.Time) {
			booked = append(booked, s)
		}
	}
	if len(booked) > 0 {
		return &ConflictError{Date: date, Sessions: booked}
	}

	return nil
}

func (c checker) CanMarkAvailable(snap *Snapshot, date time.Time) error {
	return nil
}

// WeeklyOccurrences expands a start date into count occurrences of the
// same weekday spaced 7 days apart, start included.
func WeeklyOccurrences(start time.Time, count int) ([]time.Time, error) {
	if count < 1 {
		return nil, validationf("occurrence count %d must be at least 1", count)
	}
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.WEEKLY,
		Count:   count,
		Dtstart: DateOf(start),
	})
	if err != nil {
		return nil, fmt.Errorf("build weekly rule: %w", err)
	}
	occ := r.All()
	dates := make([]time.Time, len(occ))
	for i, t := range occ {
		dates[i] = DateOf(t)
	}
	return dates, nil
}
