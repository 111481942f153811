package calendar

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// The four error kinds below are expected, recoverable outcomes of calendar
// operations and are matched by callers with errors.As. Anything else
// surfacing from the engine (store or lock failures) is fatal and only
// wrapped.

// ValidationError reports malformed input: an inverted time range, a rule
// missing its type-required fields, an unparseable date.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Msg
}

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// PastDateError reports an attempted mutation of a date before "now".
// Today itself is still mutable.
type PastDateError struct {
	Date time.Time
}

func (e *PastDateError) Error() string {
	return fmt.Sprintf("date %s is in the past", e.Date.Format(DateLayout))
}

// ConflictError reports that a proposed mutation contradicts existing
// state, carrying the conflicting entities so callers can surface them.
type ConflictError struct {
	Date        time.Time
	Sessions    []Session
	Unavailable []UnavailableDate
}

func (e *ConflictError) Error() string {
	var parts []string
	for _, s := range e.Sessions {
		parts = append(parts, fmt.Sprintf("session %s at %s", s.ID, s.Time))
	}
	for _, u := range e.Unavailable {
		if u.FullDay {
			parts = append(parts, "full-day unavailability")
		} else {
			parts = append(parts, "unavailable "+u.Window.String())
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("conflict on %s", e.Date.Format(DateLayout))
	}
	return fmt.Sprintf("conflict on %s: %s", e.Date.Format(DateLayout), strings.Join(parts, ", "))
}

// NotFoundError reports an operation on an entity that does not exist or
// is no longer in the required state. A second accept of the same session
// id is an error, not a no-op.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// BatchDateError aggregates per-date failures from an all-or-nothing
// recurrence check. It reports every failing occurrence, not just the
// first.
type BatchDateError struct {
	Failures map[string]error // keyed by DateLayout-formatted date
}

func (e *BatchDateError) Error() string {
	dates := make([]string, 0, len(e.Failures))
	for d := range e.Failures {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return "recurrence rejected, conflicting dates: " + strings.Join(dates, ", ")
}
