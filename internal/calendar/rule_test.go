package calendar

import (
	"errors"
	"testing"
	"time"
)

func TestNewWeekdayRule_Validation(t *testing.T) {
	if _, err := NewWeekdayRule("r1", RuleWeekdays, nil, ""); !isValidation(err) {
		t.Fatalf("empty day set must be rejected, got %v", err)
	}
	if _, err := NewWeekdayRule("r1", RuleDateRange, []time.Weekday{time.Monday}, ""); !isValidation(err) {
		t.Fatalf("non-weekday kind must be rejected, got %v", err)
	}
	if _, err := NewWeekdayRule("r1", RuleWeekdays, []time.Weekday{time.Weekday(9)}, ""); !isValidation(err) {
		t.Fatalf("out-of-range weekday must be rejected, got %v", err)
	}

	rule, err := NewWeekdayRule("r1", RuleWeekdays, []time.Weekday{time.Friday, time.Monday, time.Monday}, "Admin day")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rule.Days) != 2 {
		t.Fatalf("days should be deduplicated, got %v", rule.Days)
	}
}

func TestWeekdayRuleAppliesTo(t *testing.T) {
	rule, err := NewWeekdayRule("r1", RuleWeekends, []time.Weekday{time.Saturday, time.Sunday}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rule.AppliesTo(date(2025, 7, 19)) { // Saturday
		t.Fatal("rule should apply on Saturday")
	}
	if rule.AppliesTo(date(2025, 7, 21)) { // Monday
		t.Fatal("rule should not apply on Monday")
	}
	if _, ok := rule.Window(); ok {
		t.Fatal("weekday rules block the full day, not a window")
	}
}

func TestNewDateRangeRule(t *testing.T) {
	if _, err := NewDateRangeRule("r1", time.Time{}, date(2025, 8, 1), ""); !isValidation(err) {
		t.Fatalf("missing start must be rejected, got %v", err)
	}
	if _, err := NewDateRangeRule("r1", date(2025, 8, 1), time.Time{}, ""); !isValidation(err) {
		t.Fatalf("missing end must be rejected, got %v", err)
	}
	if _, err := NewDateRangeRule("r1", date(2025, 8, 10), date(2025, 8, 1), ""); !isValidation(err) {
		t.Fatalf("inverted range must be rejected, got %v", err)
	}

	rule, err := NewDateRangeRule("r1", date(2025, 8, 1), date(2025, 8, 10), "Vacation")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Inclusive on both ends.
	if !rule.AppliesTo(date(2025, 8, 1)) || !rule.AppliesTo(date(2025, 8, 10)) {
		t.Fatal("range bounds are inclusive")
	}
	if rule.AppliesTo(date(2025, 7, 31)) || rule.AppliesTo(date(2025, 8, 11)) {
		t.Fatal("dates outside the range must not match")
	}
}

func TestNewDailyTimeRule(t *testing.T) {
	if _, err := NewDailyTimeRule("r1", tr("13:00", "12:00"), ""); !isValidation(err) {
		t.Fatalf("inverted window must be rejected, got %v", err)
	}

	rule, err := NewDailyTimeRule("r1", tr("12:00", "13:00"), "Lunch")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rule.AppliesTo(date(2025, 7, 19)) || !rule.AppliesTo(date(2026, 1, 1)) {
		t.Fatal("daily-time rules apply every day")
	}
	window, ok := rule.Window()
	if !ok {
		t.Fatal("daily-time rule must contribute a window")
	}
	if window != tr("12:00", "13:00") {
		t.Fatalf("window = %s, want 12:00-13:00", window)
	}
}

func TestRuleRecordRoundTrip(t *testing.T) {
	weekday, _ := NewWeekdayRule("w1", RuleSpecificDays, []time.Weekday{time.Tuesday}, "Clinic")
	dateRange, _ := NewDateRangeRule("d1", date(2025, 8, 1), date(2025, 8, 10), "Vacation")
	daily, _ := NewDailyTimeRule("t1", tr("12:00", "13:00"), "Lunch")

	for _, rule := range []AvailabilityRule{weekday, dateRange, daily} {
		decoded, err := DecodeRule(EncodeRule(rule))
		if err != nil {
			t.Fatalf("decode %s: %v", rule.RuleID(), err)
		}
		if decoded.RuleID() != rule.RuleID() || decoded.Kind() != rule.Kind() || decoded.Reason() != rule.Reason() {
			t.Fatalf("round trip changed identity: %+v vs %+v", decoded, rule)
		}
	}
}

func TestDecodeRule_Invalid(t *testing.T) {
	if _, err := DecodeRule(RuleRecord{ID: "x", Kind: "lunar"}); !isValidation(err) {
		t.Fatalf("unknown kind must be rejected, got %v", err)
	}
	// A corrupt row missing its required fields must not decode.
	if _, err := DecodeRule(RuleRecord{ID: "x", Kind: RuleWeekdays}); !isValidation(err) {
		t.Fatalf("weekday record without days must be rejected, got %v", err)
	}
}

func TestParseWeekday(t *testing.T) {
	wd, err := ParseWeekday("monday")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wd != time.Monday {
		t.Fatalf("got %s, want Monday", wd)
	}
	if _, err := ParseWeekday("Funday"); !isValidation(err) {
		t.Fatalf("unknown weekday must be rejected, got %v", err)
	}
}

func isValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
