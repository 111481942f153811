package calendar

import (
	"context"
	"errors"
	"testing"
	"time"
)

type engineFixture struct {
	engine *Engine
	store  *MemStore
	events *[]Event
}

func newFixture(t *testing.T, now time.Time) engineFixture {
	t.Helper()
	store := NewMemStore()
	var events []Event
	bus := NewBus()
	bus.Subscribe(func(ev Event) { events = append(events, ev) })
	engine := NewEngine(store, NewLocalLocker(), FixedClock{T: now}, bus, nil)
	return engineFixture{engine: engine, store: store, events: &events}
}

func (f engineFixture) seed(t *testing.T, snap *Snapshot) {
	t.Helper()
	if err := f.store.Save(context.Background(), snap); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}
}

func (f engineFixture) load(t *testing.T, providerID string) *Snapshot {
	t.Helper()
	snap, err := f.store.Load(context.Background(), providerID)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	return snap
}

func TestMarkUnavailable_FullDay(t *testing.T) {
	f := newFixture(t, testNow)
	ctx := context.Background()

	created, err := f.engine.MarkUnavailable(ctx, "p1", MarkRequest{
		Date: date(2025, 7, 20), FullDay: true, Reason: "Conference",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 1 || !created[0].FullDay || created[0].Reason != "Conference" {
		t.Fatalf("unexpected created records: %+v", created)
	}

	snap := f.load(t, "p1")
	if len(snap.Unavailable) != 1 {
		t.Fatalf("expected 1 stored record, got %d", len(snap.Unavailable))
	}

	if len(*f.events) != 1 || (*f.events)[0].Type != EventUnavailabilityMarked {
		t.Fatalf("expected one UnavailabilityMarked event, got %+v", *f.events)
	}
}

func TestMarkUnavailable_RejectedByConfirmedSession(t *testing.T) {
	f := newFixture(t, testNow)
	sess := Session{
		ID: "s1", ClientName: "Amina Khan",
		Date: date(2025, 7, 20), Time: 14 * 60, Duration: 30,
		Status: StatusConfirmed,
	}
	f.seed(t, &Snapshot{ProviderID: "p1", Sessions: []Session{sess}})

	_, err := f.engine.MarkUnavailable(context.Background(), "p1", MarkRequest{
		Date: date(2025, 7, 20), FullDay: true,
	})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if len(conflict.Sessions) != 1 || conflict.Sessions[0].ID != "s1" {
		t.Fatalf("conflict should carry session s1: %+v", conflict.Sessions)
	}

	if n := len(f.load(t, "p1").Unavailable); n != 0 {
		t.Fatalf("rejected mark must not be committed, found %d records", n)
	}
	if len(*f.events) != 0 {
		t.Fatalf("no events on rejection, got %+v", *f.events)
	}
}

func TestMarkUnavailable_PartialThenOverlap(t *testing.T) {
	f := newFixture(t, testNow)
	ctx := context.Background()

	w1 := tr("09:00", "12:00")
	if _, err := f.engine.MarkUnavailable(ctx, "p1", MarkRequest{
		Date: date(2025, 7, 21), Window: &w1, Reason: "Conference",
	}); err != nil {
		t.Fatalf("first partial mark should succeed: %v", err)
	}

	w2 := tr("11:00", "13:00")
	_, err := f.engine.MarkUnavailable(ctx, "p1", MarkRequest{
		Date: date(2025, 7, 21), Window: &w2,
	})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("overlapping mark must be rejected, got %v", err)
	}

	if n := len(f.load(t, "p1").Unavailable); n != 1 {
		t.Fatalf("expected 1 record after rejected overlap, got %d", n)
	}
}

func TestMarkUnavailable_RecurrenceCommitsAll(t *testing.T) {
	f := newFixture(t, testNow)

	created, err := f.engine.MarkUnavailable(context.Background(), "p1", MarkRequest{
		Date: date(2025, 7, 28), FullDay: true, Repeat: 4, Reason: "Closed Mondays",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created) != 4 {
		t.Fatalf("expected 4 records, got %d", len(created))
	}

	want := []time.Time{date(2025, 7, 28), date(2025, 8, 4), date(2025, 8, 11), date(2025, 8, 18)}
	for i, rec := range created {
		if !rec.Date.Equal(want[i]) {
			t.Fatalf("record %d on %s, want %s", i, rec.Date.Format(DateLayout), want[i].Format(DateLayout))
		}
		if !rec.FullDay {
			t.Fatalf("record %d should be full-day", i)
		}
	}
	if len(*f.events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(*f.events))
	}
}

func TestMarkUnavailable_RecurrenceAllOrNothing(t *testing.T) {
	f := newFixture(t, testNow)
	// Conflicting session on the third Monday.
	f.seed(t, &Snapshot{ProviderID: "p1", Sessions: []Session{{
		ID: "s1", Date: date(2025, 8, 11), Time: 9 * 60, Duration: 60,
		Status: StatusConfirmed,
	}}})

	_, err := f.engine.MarkUnavailable(context.Background(), "p1", MarkRequest{
		Date: date(2025, 7, 28), FullDay: true, Repeat: 4,
	})
	var batch *BatchDateError
	if !errors.As(err, &batch) {
		t.Fatalf("expected BatchDateError, got %v", err)
	}

	if n := len(f.load(t, "p1").Unavailable); n != 0 {
		t.Fatalf("all-or-nothing: expected 0 committed records, got %d", n)
	}
}

func TestMarkAvailable_RoundTrip(t *testing.T) {
	f := newFixture(t, testNow)
	ctx := context.Background()
	d := date(2025, 7, 20)

	pristine, err := f.engine.DayView(ctx, "p1", d)
	if err != nil {
		t.Fatalf("day view: %v", err)
	}

	if _, err := f.engine.MarkUnavailable(ctx, "p1", MarkRequest{Date: d, FullDay: true}); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := f.engine.MarkAvailable(ctx, "p1", d); err != nil {
		t.Fatalf("clear: %v", err)
	}

	cleared, err := f.engine.DayView(ctx, "p1", d)
	if err != nil {
		t.Fatalf("day view: %v", err)
	}
	if cleared.Availability != pristine.Availability || cleared.UnavailableDetails != nil {
		t.Fatalf("cleared day differs from pristine: %+v", cleared)
	}

	types := []string{}
	for _, ev := range *f.events {
		types = append(types, ev.Type)
	}
	if len(types) != 2 || types[0] != EventUnavailabilityMarked || types[1] != EventUnavailabilityCleared {
		t.Fatalf("unexpected event sequence %v", types)
	}
}

func TestMarkAvailable_NoopOnUnmarkedDay(t *testing.T) {
	f := newFixture(t, testNow)
	if err := f.engine.MarkAvailable(context.Background(), "p1", date(2025, 7, 20)); err != nil {
		t.Fatalf("clearing an unmarked day must succeed: %v", err)
	}
	if len(*f.events) != 0 {
		t.Fatalf("no event for a no-op clear, got %+v", *f.events)
	}
}

func TestAcceptSession(t *testing.T) {
	f := newFixture(t, testNow)
	f.seed(t, &Snapshot{ProviderID: "p1", Sessions: []Session{{
		ID: "42", ClientName: "Ben Okafor",
		Date: date(2025, 7, 22), Time: 10 * 60, Duration: 60,
		Status: StatusPending,
	}}})
	ctx := context.Background()

	sess, err := f.engine.AcceptSession(ctx, "p1", "42")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if sess.Status != StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", sess.Status)
	}

	day, err := f.engine.DayView(ctx, "p1", date(2025, 7, 22))
	if err != nil {
		t.Fatalf("day view: %v", err)
	}
	var found bool
	for _, slot := range day.Slots {
		if slot.Time == 10*60 {
			found = true
			if !slot.Booked {
				t.Fatal("accepted session's slot should be booked")
			}
		}
	}
	if !found {
		t.Fatal("10:00 slot missing from day view")
	}

	// Second accept of the same id is an error, not a no-op.
	_, err = f.engine.AcceptSession(ctx, "p1", "42")
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("double accept should yield NotFoundError, got %v", err)
	}

	if len(*f.events) != 1 || (*f.events)[0].Type != EventSessionAccepted {
		t.Fatalf("expected one SessionAccepted event, got %+v", *f.events)
	}
}

func TestRejectSession(t *testing.T) {
	f := newFixture(t, testNow)
	f.seed(t, &Snapshot{ProviderID: "p1", Sessions: []Session{{
		ID: "42", Date: date(2025, 7, 22), Time: 10 * 60, Duration: 60,
		Status: StatusPending,
	}}})

	sess, err := f.engine.RejectSession(context.Background(), "p1", "42")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if sess.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", sess.Status)
	}
	if (*f.events)[0].Type != EventSessionRejected {
		t.Fatalf("expected SessionRejected event, got %+v", *f.events)
	}
}

func TestMarkNoShow(t *testing.T) {
	f := newFixture(t, testNow) // 2025-07-15 10:30 UTC
	f.seed(t, &Snapshot{ProviderID: "p1", Sessions: []Session{
		{ID: "missed", Date: date(2025, 7, 15), Time: 9 * 60, Duration: 60, Status: StatusConfirmed},
		{ID: "upcoming", Date: date(2025, 7, 15), Time: 14 * 60, Duration: 60, Status: StatusConfirmed},
		{ID: "pend", Date: date(2025, 7, 14), Time: 9 * 60, Duration: 60, Status: StatusPending},
	}})
	ctx := context.Background()

	sess, err := f.engine.MarkNoShow(ctx, "p1", "missed")
	if err != nil {
		t.Fatalf("no-show: %v", err)
	}
	if sess.Status != StatusNoShow {
		t.Fatalf("status = %s, want no-show", sess.Status)
	}
	if (*f.events)[0].Type != EventSessionNoShow {
		t.Fatalf("expected SessionNoShow event, got %+v", *f.events)
	}

	if _, err := f.engine.MarkNoShow(ctx, "p1", "upcoming"); !isValidation(err) {
		t.Fatalf("session that has not started must be rejected, got %v", err)
	}
	var notFound *NotFoundError
	if _, err := f.engine.MarkNoShow(ctx, "p1", "pend"); !errors.As(err, &notFound) {
		t.Fatalf("pending session cannot be a no-show, got %v", err)
	}

	// Terminal: the sweep must leave a no-show alone.
	if _, err := f.engine.CompleteElapsedSessions(ctx, "p1"); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if f.load(t, "p1").SessionByID("missed").Status != StatusNoShow {
		t.Fatal("no-show must survive the completion sweep")
	}
}

func TestBatchAccept_IndependentPerItem(t *testing.T) {
	f := newFixture(t, testNow)
	f.seed(t, &Snapshot{ProviderID: "p1", Sessions: []Session{
		{ID: "a", Date: date(2025, 7, 22), Time: 9 * 60, Duration: 60, Status: StatusPending},
		{ID: "b", Date: date(2025, 7, 22), Time: 11 * 60, Duration: 60, Status: StatusConfirmed},
		{ID: "c", Date: date(2025, 7, 23), Time: 9 * 60, Duration: 60, Status: StatusPending},
	}})

	results, err := f.engine.BatchAccept(context.Background(), "p1", []string{"a", "b", "missing", "c"})
	if err != nil {
		t.Fatalf("batch accept: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}

	byID := map[string]BatchItemResult{}
	for _, r := range results {
		byID[r.SessionID] = r
	}
	if !byID["a"].OK || !byID["c"].OK {
		t.Fatalf("a and c should succeed: %+v", results)
	}
	if byID["b"].OK || byID["missing"].OK {
		t.Fatalf("b (already confirmed) and missing should fail: %+v", results)
	}

	snap := f.load(t, "p1")
	if snap.SessionByID("a").Status != StatusConfirmed || snap.SessionByID("c").Status != StatusConfirmed {
		t.Fatal("successful batch items must be committed")
	}
	if len(*f.events) != 2 {
		t.Fatalf("expected 2 events for the 2 successes, got %d", len(*f.events))
	}
}

func TestRequestSession(t *testing.T) {
	f := newFixture(t, testNow)
	ctx := context.Background()

	if _, err := f.engine.RequestSession(ctx, "p1", "Ben Okafor", date(2025, 7, 1), 10*60, 60); err == nil {
		t.Fatal("past-date request must be rejected")
	}

	if _, err := f.engine.MarkUnavailable(ctx, "p1", MarkRequest{Date: date(2025, 7, 20), FullDay: true}); err != nil {
		t.Fatalf("mark: %v", err)
	}
	_, err := f.engine.RequestSession(ctx, "p1", "Ben Okafor", date(2025, 7, 20), 10*60, 60)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("request on an unavailable day must conflict, got %v", err)
	}

	sess, err := f.engine.RequestSession(ctx, "p1", "Ben Okafor", date(2025, 7, 21), 10*60, 60)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if sess.Status != StatusPending {
		t.Fatalf("status = %s, want pending", sess.Status)
	}

	// Overlapping second request is refused.
	_, err = f.engine.RequestSession(ctx, "p1", "Cara Lindt", date(2025, 7, 21), 10*60+30, 60)
	if !errors.As(err, &conflict) {
		t.Fatalf("overlapping request must conflict, got %v", err)
	}
}

func TestCompleteElapsedSessions(t *testing.T) {
	f := newFixture(t, testNow) // 2025-07-15 10:30 UTC
	f.seed(t, &Snapshot{ProviderID: "p1", Sessions: []Session{
		{ID: "done", Date: date(2025, 7, 14), Time: 9 * 60, Duration: 60, Status: StatusConfirmed},
		{ID: "edge", Date: date(2025, 7, 15), Time: 10 * 60, Duration: 30, Status: StatusConfirmed},
		{ID: "running", Date: date(2025, 7, 15), Time: 10 * 60, Duration: 45, Status: StatusConfirmed},
		{ID: "future", Date: date(2025, 7, 16), Time: 9 * 60, Duration: 60, Status: StatusConfirmed},
		{ID: "pending", Date: date(2025, 7, 14), Time: 9 * 60, Duration: 60, Status: StatusPending},
	}})

	n, err := f.engine.CompleteElapsedSessions(context.Background(), "p1")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 completions, got %d", n)
	}

	snap := f.load(t, "p1")
	if snap.SessionByID("done").Status != StatusCompleted {
		t.Fatal("elapsed session should be completed")
	}
	if snap.SessionByID("edge").Status != StatusCompleted {
		t.Fatal("session ending exactly now should be completed")
	}
	if snap.SessionByID("running").Status != StatusConfirmed {
		t.Fatal("session still in progress must stay confirmed")
	}
	if snap.SessionByID("future").Status != StatusConfirmed {
		t.Fatal("future session must stay confirmed")
	}
	if snap.SessionByID("pending").Status != StatusPending {
		t.Fatal("pending sessions are not the sweep's business")
	}
}

func TestAddRule_ValidationAndRemoval(t *testing.T) {
	f := newFixture(t, testNow)
	ctx := context.Background()

	_, err := f.engine.AddRule(ctx, "p1", RuleRecord{Kind: RuleWeekdays})
	if !isValidation(err) {
		t.Fatalf("half-formed rule must be rejected, got %v", err)
	}
	if n := len(f.load(t, "p1").Rules); n != 0 {
		t.Fatalf("rejected rule must not be persisted, got %d rules", n)
	}

	rule, err := f.engine.AddRule(ctx, "p1", RuleRecord{
		Kind: RuleWeekends, Days: []time.Weekday{time.Saturday, time.Sunday},
	})
	if err != nil {
		t.Fatalf("add rule: %v", err)
	}
	if rule.RuleID() == "" {
		t.Fatal("engine should assign a rule id")
	}

	if err := f.engine.RemoveRule(ctx, "p1", rule.RuleID()); err != nil {
		t.Fatalf("remove rule: %v", err)
	}
	var notFound *NotFoundError
	if err := f.engine.RemoveRule(ctx, "p1", rule.RuleID()); !errors.As(err, &notFound) {
		t.Fatalf("removing a removed rule should yield NotFoundError, got %v", err)
	}
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	store := NewMemStore()
	bus := NewBus()
	var observed int
	engine := NewEngine(store, NewLocalLocker(), FixedClock{T: testNow}, bus, nil)

	// The subscriber reloads the store: the mutation must already be
	// visible when the event arrives.
	bus.Subscribe(func(ev Event) {
		snap, err := store.Load(context.Background(), ev.ProviderID)
		if err != nil {
			t.Fatalf("load from subscriber: %v", err)
		}
		if len(snap.Unavailable) == 0 {
			t.Fatal("event published before the mutation was committed")
		}
		observed++
	})

	if _, err := engine.MarkUnavailable(context.Background(), "p1", MarkRequest{
		Date: date(2025, 7, 20), FullDay: true,
	}); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if observed != 1 {
		t.Fatalf("subscriber invoked %d times, want 1", observed)
	}
}
