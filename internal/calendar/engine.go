package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine owns provider calendar aggregates. Every mutation runs
// lock -> load -> check -> commit -> save -> publish, so the conflict
// checker always sees the state it is validating against and two
// concurrent writers can never both pass.
type Engine struct {
	store   Store
	locker  Locker
	clock   Clock
	checker ConflictChecker
	bus     *Bus
	log     *zap.Logger
}

func NewEngine(store Store, locker Locker, clock Clock, bus *Bus, logger *zap.Logger) *Engine {
	if clock == nil {
		clock = SystemClock()
	}
	if bus == nil {
		bus = NewBus()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:   store,
		locker:  locker,
		clock:   clock,
		checker: NewConflictChecker(),
		bus:     bus,
		log:     logger,
	}
}

// Bus exposes the engine's event bus so collaborators (notification
// senders, dashboards) can subscribe to committed mutations.
func (e *Engine) Bus() *Bus { return e.bus }

// mutate runs fn on the provider's snapshot inside its lock and, when fn
// succeeds, saves the snapshot and publishes the returned events in
// order. Publishing happens strictly after the save; a subscriber
// cannot observe an uncommitted mutation.
func (e *Engine) mutate(ctx context.Context, providerID string, fn func(snap *Snapshot, now time.Time) ([]Event, error)) error {
	return e.locker.WithProviderLock(ctx, providerID, func(ctx context.Context) error {
		snap, err := e.store.Load(ctx, providerID)
		if err != nil {
			return fmt.Errorf("load calendar %s: %w", providerID, err)
		}

		events, err := fn(snap, e.clock.Now())
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		if err := e.store.Save(ctx, snap); err != nil {
			return fmt.Errorf("save calendar %s: %w", providerID, err)
		}
		for _, ev := range events {
			e.bus.Publish(ev)
		}
		return nil
	})
}

// MarkUnavailable declares one-off or weekly-recurring unavailability.
// Recurring requests are all-or-nothing: if any occurrence conflicts,
// no record is committed and the failing dates are reported.
func (e *Engine) MarkUnavailable(ctx context.Context, providerID string, req MarkRequest) ([]UnavailableDate, error) {
	if req.Date.IsZero() {
		return nil, validationf("date is required")
	}
	req.Date = DateOf(req.Date)

	var created []UnavailableDate
	err := e.mutate(ctx, providerID, func(snap *Snapshot, now time.Time) ([]Event, error) {
		if err := e.checker.CanMarkUnavailable(snap, now, req); err != nil {
			return nil, err
		}

		dates := []time.Time{req.Date}
		if req.Repeat > 1 {
			var err error
			dates, err = WeeklyOccurrences(req.Date, req.Repeat)
			if err != nil {
				return nil, err
			}
		}

		var events []Event
		for _, d := range dates {
			rec := UnavailableDate{
				ID:        uuid.NewString(),
				Date:      d,
				Reason:    req.Reason,
				FullDay:   req.FullDay,
				CreatedAt: now,
			}
			if !req.FullDay {
				w := *req.Window
				rec.Window = &w
			}
			snap.Unavailable = append(snap.Unavailable, rec)
			created = append(created, rec)
			events = append(events, Event{
				Type:       EventUnavailabilityMarked,
				ProviderID: providerID,
				Date:       d.Format(DateLayout),
				OccurredAt: now,
			})
		}
		return events, nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("unavailability marked",
		zap.String("provider_id", providerID),
		zap.String("date", req.Date.Format(DateLayout)),
		zap.Bool("full_day", req.FullDay),
		zap.Int("occurrences", len(created)))
	return created, nil
}

// MarkAvailable removes every unavailability record on the date. It is
// always permitted: clearing a restriction cannot conflict with a
// session. Clearing an unmarked date is a no-op.
func (e *Engine) MarkAvailable(ctx context.Context, providerID string, date time.Time) error {
	date = DateOf(date)
	return e.mutate(ctx, providerID, func(snap *Snapshot, now time.Time) ([]Event, error) {
		if err := e.checker.CanMarkAvailable(snap, date); err != nil {
			return nil, err
		}

		kept := snap.Unavailable[:0]
		removed := 0
		for _, u := range snap.Unavailable {
			if SameDate(u.Date, date) {
				removed++
				continue
			}
			kept = append(kept, u)
		}
		snap.Unavailable = kept
		if removed == 0 {
			return nil, nil
		}
		return []Event{{
			Type:       EventUnavailabilityCleared,
			ProviderID: providerID,
			Date:       date.Format(DateLayout),
			OccurredAt: now,
		}}, nil
	})
}

// AddRule validates and stores a recurring availability rule. Validation
// is eager: a malformed record never reaches the store.
func (e *Engine) AddRule(ctx context.Context, providerID string, rec RuleRecord) (AvailabilityRule, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rule, err := DecodeRule(rec)
	if err != nil {
		return nil, err
	}

	err = e.mutate(ctx, providerID, func(snap *Snapshot, now time.Time) ([]Event, error) {
		snap.Rules = append(snap.Rules, rule)
		return []Event{{
			Type:       EventRuleAdded,
			ProviderID: providerID,
			RuleID:     rule.RuleID(),
			OccurredAt: now,
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return rule, nil
}

func (e *Engine) RemoveRule(ctx context.Context, providerID, ruleID string) error {
	return e.mutate(ctx, providerID, func(snap *Snapshot, now time.Time) ([]Event, error) {
		for i, r := range snap.Rules {
			if r.RuleID() == ruleID {
				snap.Rules = append(snap.Rules[:i], snap.Rules[i+1:]...)
				return []Event{{
					Type:       EventRuleRemoved,
					ProviderID: providerID,
					RuleID:     ruleID,
					OccurredAt: now,
				}}, nil
			}
		}
		return nil, &NotFoundError{Kind: "rule", ID: ruleID}
	})
}

// RequestSession records an incoming booking request as a pending
// session, provided the requested time is in the future and not blocked
// by existing sessions or unavailability.
func (e *Engine) RequestSession(ctx context.Context, providerID, clientName string, date time.Time, at TimeOfDay, duration int) (*Session, error) {
	if clientName == "" {
		return nil, validationf("client name is required")
	}
	if duration <= 0 {
		return nil, validationf("duration %d must be positive", duration)
	}
	date = DateOf(date)

	var created *Session
	err := e.mutate(ctx, providerID, func(snap *Snapshot, now time.Time) ([]Event, error) {
		if date.Before(DateOf(now)) {
			return nil, &PastDateError{Date: date}
		}
		if full := snap.FullDayUnavailable(date); full != nil {
			return nil, &ConflictError{Date: date, Unavailable: []UnavailableDate{*full}}
		}
		window := TimeRange{Start: at, End: at + TimeOfDay(duration)}
		for _, u := range snap.UnavailableOn(date) {
			if !u.FullDay && u.Window.Overlaps(window) {
				return nil, &ConflictError{Date: date, Unavailable: []UnavailableDate{u}}
			}
		}
		for _, s := range snap.SessionsOn(date) {
			if s.Status.Terminal() {
				continue
			}
			if window.Overlaps(TimeRange{Start: s.Time, End: s.End()}) {
				return nil, &ConflictError{Date: date, Sessions: []Session{s}}
			}
		}

		sess := Session{
			ID:         uuid.NewString(),
			ClientName: clientName,
			Date:       date,
			Time:       at,
			Duration:   duration,
			Status:     StatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		snap.Sessions = append(snap.Sessions, sess)
		created = &sess
		return []Event{{
			Type:       EventSessionRequested,
			ProviderID: providerID,
			SessionID:  sess.ID,
			Date:       date.Format(DateLayout),
			OccurredAt: now,
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CompleteElapsedSessions transitions confirmed sessions whose end time
// has passed to completed. Called periodically by the completion
// worker; safe to re-run.
func (e *Engine) CompleteElapsedSessions(ctx context.Context, providerID string) (int, error) {
	completed := 0
	err := e.mutate(ctx, providerID, func(snap *Snapshot, now time.Time) ([]Event, error) {
		var events []Event
		for i := range snap.Sessions {
			s := &snap.Sessions[i]
			if s.Status != StatusConfirmed || !s.ElapsedBy(now) {
				continue
			}
			s.Status = StatusCompleted
			s.UpdatedAt = now
			completed++
			events = append(events, Event{
				Type:       EventSessionCompleted,
				ProviderID: providerID,
				SessionID:  s.ID,
				Date:       s.Date.Format(DateLayout),
				OccurredAt: now,
			})
		}
		return events, nil
	})
	if err != nil {
		return 0, err
	}
	if completed > 0 {
		e.log.Info("sessions completed by elapsed time",
			zap.String("provider_id", providerID), zap.Int("count", completed))
	}
	return completed, nil
}

// Reads. Projections are computed from a fresh load on every call and
// are never cached across mutations.

func (e *Engine) MonthView(ctx context.Context, providerID string, year int, month time.Month) ([]*CalendarDay, error) {
	snap, err := e.store.Load(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load calendar %s: %w", providerID, err)
	}
	return MonthGrid(snap, year, month, e.clock.Now()), nil
}

func (e *Engine) DayView(ctx context.Context, providerID string, date time.Time) (*CalendarDay, error) {
	snap, err := e.store.Load(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load calendar %s: %w", providerID, err)
	}
	return ProjectDay(snap, date, e.clock.Now()), nil
}

func (e *Engine) PendingSessions(ctx context.Context, providerID string) ([]Session, error) {
	snap, err := e.store.Load(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load calendar %s: %w", providerID, err)
	}
	var out []Session
	for _, s := range snap.Sessions {
		if s.Status == StatusPending {
			out = append(out, s)
		}
	}
	return out, nil
}

func (e *Engine) Rules(ctx context.Context, providerID string) ([]AvailabilityRule, error) {
	snap, err := e.store.Load(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("load calendar %s: %w", providerID, err)
	}
	return snap.Rules, nil
}
