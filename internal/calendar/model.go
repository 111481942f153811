package calendar

import (
	"fmt"
	"sort"
	"time"
)

// DateLayout is the canonical wire format for calendar dates.
const DateLayout = "2006-01-02"

// TimeOfDay is minutes from midnight (e.g. 420 for 7:00 AM).
type TimeOfDay int

// ParseTimeOfDay parses "HH:MM" in 24h format.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("time of day must be a %q string", "HH:MM")
	}
	parsed, err := ParseTimeOfDay(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TimeRange is a half-open interval [Start, End) within a single day.
type TimeRange struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

func (r TimeRange) Valid() bool {
	return r.Start < r.End
}

// Overlaps reports whether two half-open ranges intersect. Touching
// endpoints (r.End == other.Start) do not overlap.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start < other.End && other.Start < r.End
}

// Contains reports whether t falls within [Start, End).
func (r TimeRange) Contains(t TimeOfDay) bool {
	return t >= r.Start && t < r.End
}

func (r TimeRange) String() string {
	return r.Start.String() + "-" + r.End.String()
}

// DateOf truncates t to midnight UTC, the normal form for all calendar
// dates held by the engine.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a canonical "2006-01-02" date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return d, nil
}

func SameDate(a, b time.Time) bool {
	return DateOf(a).Equal(DateOf(b))
}

type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"
	StatusConfirmed SessionStatus = "confirmed"
	StatusCompleted SessionStatus = "completed"
	StatusCancelled SessionStatus = "cancelled"
	StatusNoShow    SessionStatus = "no-show"
)

// Terminal reports whether a session in this status may never be mutated
// again.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Session is a booked or requested appointment between the provider and a
// client. Date is midnight UTC; Time and Duration position it within the day.
type Session struct {
	ID         string        `json:"id"`
	ClientName string        `json:"client_name"`
	Date       time.Time     `json:"date"`
	Time       TimeOfDay     `json:"time"`
	Duration   int           `json:"duration"` // minutes
	Status     SessionStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// End is the minute of day at which the session finishes.
func (s Session) End() TimeOfDay {
	return s.Time + TimeOfDay(s.Duration)
}

// ElapsedBy reports whether the session's end lies at or before now.
func (s Session) ElapsedBy(now time.Time) bool {
	end := s.Date.Add(time.Duration(s.Time) * time.Minute).
		Add(time.Duration(s.Duration) * time.Minute)
	return !end.After(now)
}

// UnavailableDate is a declared non-bookable period on a single date,
// either full-day or covering Window. Window is non-nil iff FullDay is
// false.
type UnavailableDate struct {
	ID        string     `json:"id"`
	Date      time.Time  `json:"date"`
	Reason    string     `json:"reason,omitempty"`
	FullDay   bool       `json:"full_day"`
	Window    *TimeRange `json:"window,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// DayAvailability is the explicit three-state availability of a calendar
// day. A day with only partial windows blocked is PartiallyAvailable, not
// Unavailable; callers must handle all three states.
type DayAvailability string

const (
	DayAvailable          DayAvailability = "available"
	DayUnavailable        DayAvailability = "unavailable"
	DayPartiallyAvailable DayAvailability = "partially-available"
)

// TimeSlot is a derived bookable unit within a day. It is computed from
// session and unavailability state and never persisted.
type TimeSlot struct {
	Time      TimeOfDay   `json:"time"`
	Booked    bool        `json:"booked"`
	Available bool        `json:"available"`
	Client    *SlotClient `json:"client,omitempty"`
}

type SlotClient struct {
	Name     string `json:"name"`
	Duration int    `json:"duration"`
}

// DayItem is one entry in a day's agenda: either a session or an
// unavailable window, ordered by start time.
type DayItem struct {
	Time        TimeOfDay        `json:"time"`
	Session     *Session         `json:"session,omitempty"`
	Unavailable *UnavailableDate `json:"unavailable,omitempty"`
}

// CalendarDay is the read-only per-date view composed from the stores.
// It owns no state and is recomputed on every read.
type CalendarDay struct {
	Date               time.Time        `json:"date"`
	Items              []DayItem        `json:"items"`
	Overflow           int              `json:"overflow"` // items truncated beyond the display threshold
	Sessions           []Session        `json:"sessions"`
	Slots              []TimeSlot       `json:"slots"`
	Today              bool             `json:"today"`
	Past               bool             `json:"past"`
	Availability       DayAvailability  `json:"availability"`
	UnavailableDetails *UnavailableDate `json:"unavailable_details,omitempty"`
}

// Snapshot is one provider's full calendar aggregate: the unit of load,
// check and save. All mutation happens on a snapshot under the provider's
// lock.
type Snapshot struct {
	ProviderID  string
	Sessions    []Session
	Unavailable []UnavailableDate
	Rules       []AvailabilityRule
}

// SessionsOn returns the provider's non-cancelled sessions on date,
// ordered by start time.
func (s *Snapshot) SessionsOn(date time.Time) []Session {
	var out []Session
	for _, sess := range s.Sessions {
		if sess.Status == StatusCancelled {
			continue
		}
		if SameDate(sess.Date, date) {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// UnavailableOn returns unavailability records declared for date. The
// full-day record, if any, sorts first.
func (s *Snapshot) UnavailableOn(date time.Time) []UnavailableDate {
	var out []UnavailableDate
	for _, u := range s.Unavailable {
		if SameDate(u.Date, date) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FullDay != out[j].FullDay {
			return out[i].FullDay
		}
		if out[i].FullDay {
			return false
		}
		return out[i].Window.Start < out[j].Window.Start
	})
	return out
}

// FullDayUnavailable returns the full-day record for date, if one exists.
func (s *Snapshot) FullDayUnavailable(date time.Time) *UnavailableDate {
	for i, u := range s.Unavailable {
		if u.FullDay && SameDate(u.Date, date) {
			return &s.Unavailable[i]
		}
	}
	return nil
}

// SessionByID returns the session with the given id, if present.
func (s *Snapshot) SessionByID(id string) *Session {
	for i := range s.Sessions {
		if s.Sessions[i].ID == id {
			return &s.Sessions[i]
		}
	}
	return nil
}
