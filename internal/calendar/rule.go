package calendar

import (
	"sort"
	"strings"
	"time"
)

type RuleKind string

const (
	RuleWeekdays     RuleKind = "weekdays"
	RuleWeekends     RuleKind = "weekends"
	RuleSpecificDays RuleKind = "specific-days"
	RuleDateRange    RuleKind = "date-range"
	RuleDailyTime    RuleKind = "daily-time"
)

// AvailabilityRule is a recurring unavailability declaration. The sealed
// implementations below carry only the fields their kind requires, so a
// half-formed rule is unrepresentable: construction goes through the
// validating New*Rule functions and fails eagerly.
type AvailabilityRule interface {
	RuleID() string
	Kind() RuleKind
	Reason() string

	// AppliesTo reports whether the rule restricts the given date.
	AppliesTo(date time.Time) bool

	// Window returns the time window the rule blocks on an applicable
	// date. ok is false for full-day kinds.
	Window() (window TimeRange, ok bool)

	sealedRule()
}

// WeekdayRule blocks dates whose weekday is in Days. Kind distinguishes
// the weekdays/weekends/specific-days flavors; all three match the same
// way.
type WeekdayRule struct {
	ID         string
	RuleKind   RuleKind
	Days       []time.Weekday
	RuleReason string
}

func NewWeekdayRule(id string, kind RuleKind, days []time.Weekday, reason string) (*WeekdayRule, error) {
	switch kind {
	case RuleWeekdays, RuleWeekends, RuleSpecificDays:
	default:
		return nil, validationf("kind %q is not a weekday-based rule kind", kind)
	}
	if len(days) == 0 {
		return nil, validationf("%s rule requires at least one day", kind)
	}
	seen := make(map[time.Weekday]bool, len(days))
	uniq := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		if d < time.Sunday || d > time.Saturday {
			return nil, validationf("invalid weekday %d", int(d))
		}
		if !seen[d] {
			seen[d] = true
			uniq = append(uniq, d)
		}
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })
	return &WeekdayRule{ID: id, RuleKind: kind, Days: uniq, RuleReason: reason}, nil
}

func (r *WeekdayRule) RuleID() string { return r.ID }
func (r *WeekdayRule) Kind() RuleKind { return r.RuleKind }
func (r *WeekdayRule) Reason() string { return r.RuleReason }
func (r *WeekdayRule) sealedRule()    {}

func (r *WeekdayRule) AppliesTo(date time.Time) bool {
	wd := date.Weekday()
	for _, d := range r.Days {
		if d == wd {
			return true
		}
	}
	return false
}

func (r *WeekdayRule) Window() (TimeRange, bool) { return TimeRange{}, false }

// DateRangeRule blocks every date in [StartDate, EndDate], inclusive both
// ends.
type DateRangeRule struct {
	ID         string
	StartDate  time.Time
	EndDate    time.Time
	RuleReason string
}

func NewDateRangeRule(id string, start, end time.Time, reason string) (*DateRangeRule, error) {
	if start.IsZero() || end.IsZero() {
		return nil, validationf("date-range rule requires both start and end dates")
	}
	start, end = DateOf(start), DateOf(end)
	if end.Before(start) {
		return nil, validationf("date-range rule end %s precedes start %s",
			end.Format(DateLayout), start.Format(DateLayout))
	}
	return &DateRangeRule{ID: id, StartDate: start, EndDate: end, RuleReason: reason}, nil
}

func (r *DateRangeRule) RuleID() string { return r.ID }
func (r *DateRangeRule) Kind() RuleKind { return RuleDateRange }
func (r *DateRangeRule) Reason() string { return r.RuleReason }
func (r *DateRangeRule) sealedRule()    {}

func (r *DateRangeRule) AppliesTo(date time.Time) bool {
	d := DateOf(date)
	return !d.Before(r.StartDate) && !d.After(r.EndDate)
}

func (r *DateRangeRule) Window() (TimeRange, bool) { return TimeRange{}, false }

// DailyTimeRule blocks the same time window [StartTime, EndTime) on every
// day.
type DailyTimeRule struct {
	ID         string
	TimeWindow TimeRange
	RuleReason string
}

func NewDailyTimeRule(id string, window TimeRange, reason string) (*DailyTimeRule, error) {
	if !window.Valid() {
		return nil, validationf("daily-time rule window %s must start before it ends", window)
	}
	return &DailyTimeRule{ID: id, TimeWindow: window, RuleReason: reason}, nil
}

func (r *DailyTimeRule) RuleID() string { return r.ID }
func (r *DailyTimeRule) Kind() RuleKind { return RuleDailyTime }
func (r *DailyTimeRule) Reason() string { return r.RuleReason }
func (r *DailyTimeRule) sealedRule()    {}

func (r *DailyTimeRule) AppliesTo(time.Time) bool  { return true }
func (r *DailyTimeRule) Window() (TimeRange, bool) { return r.TimeWindow, true }

// ParseWeekday maps a weekday name ("Monday", case-insensitive) to
// time.Weekday.
func ParseWeekday(name string) (time.Weekday, error) {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.EqualFold(wd.String(), name) {
			return wd, nil
		}
	}
	return 0, validationf("unknown weekday %q", name)
}

// RuleRecord is the flat storage form of a rule. Decoding goes back
// through the validating constructors so a corrupt row cannot produce a
// half-formed rule.
type RuleRecord struct {
	ID        string
	Kind      RuleKind
	Days      []time.Weekday
	StartDate time.Time
	EndDate   time.Time
	StartTime TimeOfDay
	EndTime   TimeOfDay
	Reason    string
}

func EncodeRule(r AvailabilityRule) RuleRecord {
	rec := RuleRecord{ID: r.RuleID(), Kind: r.Kind(), Reason: r.Reason()}
	switch rule := r.(type) {
	case *WeekdayRule:
		rec.Days = rule.Days
	case *DateRangeRule:
		rec.StartDate = rule.StartDate
		rec.EndDate = rule.EndDate
	case *DailyTimeRule:
		rec.StartTime = rule.TimeWindow.Start
		rec.EndTime = rule.TimeWindow.End
	}
	return rec
}

func DecodeRule(rec RuleRecord) (AvailabilityRule, error) {
	switch rec.Kind {
	case RuleWeekdays, RuleWeekends, RuleSpecificDays:
		return NewWeekdayRule(rec.ID, rec.Kind, rec.Days, rec.Reason)
	case RuleDateRange:
		return NewDateRangeRule(rec.ID, rec.StartDate, rec.EndDate, rec.Reason)
	case RuleDailyTime:
		return NewDailyTimeRule(rec.ID, TimeRange{Start: rec.StartTime, End: rec.EndTime}, rec.Reason)
	default:
		return nil, validationf("unknown rule kind %q", rec.Kind)
	}
}
