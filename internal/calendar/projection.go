package calendar

import (
	"sort"
	"time"
)

// DisplayThreshold is the per-day item count beyond which the projection
// truncates, so every renderer shares one deterministic policy.
const DisplayThreshold = 4

// Bookable-day slot grid. Slots are derived views; the grid bounds are a
// presentation default, not a booking constraint.
const (
	dayStart    TimeOfDay = 8 * 60  // 08:00
	dayEnd      TimeOfDay = 20 * 60 // 20:00
	slotMinutes           = 60
)

// MonthGrid projects one calendar month onto a 7-column week grid.
// Entries outside the month are nil padding cells; weeks start on
// Sunday. The grid is recomputed from the snapshot on every call and
// holds no state of its own.
func MonthGrid(snap *Snapshot, year int, month time.Month, now time.Time) []*CalendarDay {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	daysInMonth := first.AddDate(0, 1, -1).Day()

	cells := make([]*CalendarDay, 0, 42)
	for i := 0; i < int(first.Weekday()); i++ {
		cells = append(cells, nil)
	}
	for day := 1; day <= daysInMonth; day++ {
		date := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		cells = append(cells, ProjectDay(snap, date, now))
	}
	for len(cells)%7 != 0 {
		cells = append(cells, nil)
	}
	return cells
}

// ProjectDay composes the read-only view of a single date from the
// session store, the unavailability store and the expanded availability
// rules.
func ProjectDay(snap *Snapshot, date, now time.Time) *CalendarDay {
	date = DateOf(date)
	today := DateOf(now)

	sessions := snap.SessionsOn(date)
	unavailable := snap.UnavailableOn(date)
	unavailable = append(unavailable, expandRules(snap.Rules, date)...)

	day := &CalendarDay{
		Date:     date,
		Sessions: sessions,
		Today:    date.Equal(today),
		Past:     date.Before(today),
	}

	day.Availability = resolveAvailability(sessions, unavailable)
	if full := snap.FullDayUnavailable(date); full != nil {
		day.UnavailableDetails = full
	}

	day.Items, day.Overflow = dayItems(sessions, unavailable)
	day.Slots = daySlots(sessions, unavailable, date, now)
	return day
}

// expandRules materializes each applicable rule as a derived
// unavailability record for the date. Daily-time rules block their
// window; the full-day kinds block the whole date.
func expandRules(rules []AvailabilityRule, date time.Time) []UnavailableDate {
	var out []UnavailableDate
	for _, r := range rules {
		if !r.AppliesTo(date) {
			continue
		}
		derived := UnavailableDate{
			ID:     "rule:" + r.RuleID(),
			Date:   date,
			Reason: r.Reason(),
		}
		if window, ok := r.Window(); ok {
			w := window
			derived.Window = &w
		} else {
			derived.FullDay = true
		}
		out = append(out, derived)
	}
	return out
}

func resolveAvailability(sessions []Session, unavailable []UnavailableDate) DayAvailability {
	for _, u := range unavailable {
		if u.FullDay {
			return DayUnavailable
		}
	}
	if len(unavailable) > 0 {
		return DayPartiallyAvailable
	}
	return DayAvailable
}

// dayItems merges sessions and unavailability into one agenda ordered by
// start time (full-day entries first), truncated at DisplayThreshold
// with the remainder counted.
func dayItems(sessions []Session, unavailable []UnavailableDate) ([]DayItem, int) {
	items := make([]DayItem, 0, len(sessions)+len(unavailable))
	for i := range sessions {
		items = append(items, DayItem{Time: sessions[i].Time, Session: &sessions[i]})
	}
	for i := range unavailable {
		it := DayItem{Unavailable: &unavailable[i]}
		if !unavailable[i].FullDay {
			it.Time = unavailable[i].Window.Start
		}
		items = append(items, it)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Time < items[j].Time })

	if len(items) <= DisplayThreshold {
		return items, 0
	}
	return items[:DisplayThreshold], len(items) - DisplayThreshold
}

// daySlots derives the bookable slot grid for a date. A slot is booked
// when a confirmed or completed session starts within it, and available
// only when it is neither booked, blocked by unavailability, nor already
// behind "now" on the current day.
func daySlots(sessions []Session, unavailable []UnavailableDate, date, now time.Time) []TimeSlot {
	fullDay := false
	for _, u := range unavailable {
		if u.FullDay {
			fullDay = true
			break
		}
	}

	nowMinute := TimeOfDay(-1)
	if SameDate(date, now) {
		nowMinute = TimeOfDay(now.Hour()*60 + now.Minute())
	}
	past := DateOf(date).Before(DateOf(now))

	var slots []TimeSlot
	for t := dayStart; t < dayEnd; t += slotMinutes {
		slot := TimeSlot{Time: t}
		window := TimeRange{Start: t, End: t + slotMinutes}

		occupied := false
		for i := range sessions {
			s := &sessions[i]
			if !window.Contains(s.Time) {
				continue
			}
			occupied = true
			if s.Status == StatusConfirmed || s.Status == StatusCompleted {
				slot.Booked = true
				slot.Client = &SlotClient{Name: s.ClientName, Duration: s.Duration}
			}
		}

		blocked := fullDay
		for _, u := range unavailable {
			if !u.FullDay && u.Window.Overlaps(window) {
				blocked = true
				break
			}
		}

		elapsed := past || (nowMinute >= 0 && t < nowMinute)
		slot.Available = !occupied && !blocked && !elapsed
		slots = append(slots, slot)
	}
	return slots
}
