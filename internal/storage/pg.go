package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mindhaven/provider-calendar/internal/calendar"
)

// PgStore persists provider calendar aggregates in Postgres. Save
// rewrites the provider's rows inside one transaction, which is what
// makes the Store contract's per-provider atomicity hold: a concurrent
// Load sees the previous snapshot or the new one, never a mix.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Load(ctx context.Context, providerID string) (*calendar.Snapshot, error) {
	snap := &calendar.Snapshot{ProviderID: providerID}

	if err := s.loadSessions(ctx, snap); err != nil {
		return nil, err
	}
	if err := s.loadUnavailable(ctx, snap); err != nil {
		return nil, err
	}
	if err := s.loadRules(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *PgStore) loadSessions(ctx context.Context, snap *calendar.Snapshot) error {
	rows, err := s.pool.Query(ctx, `
		SELECT id, client_name, date, start_minute, duration, status, created_at, updated_at
		FROM sessions
		WHERE provider_id = $1
		ORDER BY date, start_minute
	`, snap.ProviderID)
	if err != nil {
		return fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sess calendar.Session
		var startMinute int
		var status string
		err := rows.Scan(&sess.ID, &sess.ClientName, &sess.Date, &startMinute,
			&sess.Duration, &status, &sess.CreatedAt, &sess.UpdatedAt)
		if err != nil {
			return fmt.Errorf("scan session: %w", err)
		}
		sess.Date = calendar.DateOf(sess.Date)
		sess.Time = calendar.TimeOfDay(startMinute)
		sess.Status = calendar.SessionStatus(status)
		snap.Sessions = append(snap.Sessions, sess)
	}
	return rows.Err()
}

func (s *PgStore) loadUnavailable(ctx context.Context, snap *calendar.Snapshot) error {
	rows, err := s.pool.Query(ctx, `
		SELECT id, date, reason, full_day, start_minute, end_minute, created_at
		FROM unavailable_dates
		WHERE provider_id = $1
		ORDER BY date
	`, snap.ProviderID)
	if err != nil {
		return fmt.Errorf("query unavailable dates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u calendar.UnavailableDate
		var startMinute, endMinute *int
		err := rows.Scan(&u.ID, &u.Date, &u.Reason, &u.FullDay, &startMinute, &endMinute, &u.CreatedAt)
		if err != nil {
			return fmt.Errorf("scan unavailable date: %w", err)
		}
		u.Date = calendar.DateOf(u.Date)
		if !u.FullDay && startMinute != nil && endMinute != nil {
			u.Window = &calendar.TimeRange{
				Start: calendar.TimeOfDay(*startMinute),
				End:   calendar.TimeOfDay(*endMinute),
			}
		}
		snap.Unavailable = append(snap.Unavailable, u)
	}
	return rows.Err()
}

func (s *PgStore) loadRules(ctx context.Context, snap *calendar.Snapshot) error {
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, days, start_date, end_date, start_minute, end_minute, reason
		FROM availability_rules
		WHERE provider_id = $1
		ORDER BY created_at
	`, snap.ProviderID)
	if err != nil {
		return fmt.Errorf("query availability rules: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec calendar.RuleRecord
		var kind string
		var days []int32
		var startDate, endDate *time.Time
		var startMinute, endMinute *int
		err := rows.Scan(&rec.ID, &kind, &days, &startDate, &endDate, &startMinute, &endMinute, &rec.Reason)
		if err != nil {
			return fmt.Errorf("scan availability rule: %w", err)
		}
		rec.Kind = calendar.RuleKind(kind)
		for _, d := range days {
			rec.Days = append(rec.Days, time.Weekday(d))
		}
		if startDate != nil {
			rec.StartDate = *startDate
		}
		if endDate != nil {
			rec.EndDate = *endDate
		}
		if startMinute != nil {
			rec.StartTime = calendar.TimeOfDay(*startMinute)
		}
		if endMinute != nil {
			rec.EndTime = calendar.TimeOfDay(*endMinute)
		}

		rule, err := calendar.DecodeRule(rec)
		if err != nil {
			return fmt.Errorf("decode rule %s: %w", rec.ID, err)
		}
		snap.Rules = append(snap.Rules, rule)
	}
	return rows.Err()
}

func (s *PgStore) Save(ctx context.Context, snap *calendar.Snapshot) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"sessions", "unavailable_dates", "availability_rules"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE provider_id = $1", snap.ProviderID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, sess := range snap.Sessions {
		_, err := tx.Exec(ctx, `
			INSERT INTO sessions (id, provider_id, client_name, date, start_minute, duration, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, sess.ID, snap.ProviderID, sess.ClientName, sess.Date, int(sess.Time),
			sess.Duration, string(sess.Status), sess.CreatedAt, sess.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert session %s: %w", sess.ID, err)
		}
	}

	for _, u := range snap.Unavailable {
		var startMinute, endMinute *int
		if u.Window != nil {
			sm, em := int(u.Window.Start), int(u.Window.End)
			startMinute, endMinute = &sm, &em
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO unavailable_dates (id, provider_id, date, reason, full_day, start_minute, end_minute, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, u.ID, snap.ProviderID, u.Date, u.Reason, u.FullDay, startMinute, endMinute, u.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert unavailable date %s: %w", u.ID, err)
		}
	}

	for _, rule := range snap.Rules {
		rec := calendar.EncodeRule(rule)
		var days []int32
		for _, d := range rec.Days {
			days = append(days, int32(d))
		}
		var startDate, endDate *time.Time
		if !rec.StartDate.IsZero() {
			sd := rec.StartDate
			startDate = &sd
		}
		if !rec.EndDate.IsZero() {
			ed := rec.EndDate
			endDate = &ed
		}
		var startMinute, endMinute *int
		if rec.Kind == calendar.RuleDailyTime {
			sm, em := int(rec.StartTime), int(rec.EndTime)
			startMinute, endMinute = &sm, &em
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO availability_rules (id, provider_id, kind, days, start_date, end_date, start_minute, end_minute, reason, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		`, rec.ID, snap.ProviderID, string(rec.Kind), days, startDate, endDate, startMinute, endMinute, rec.Reason)
		if err != nil {
			return fmt.Errorf("insert availability rule %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save tx: %w", err)
	}
	return nil
}

// ProviderIDs lists every provider with calendar state, for workers
// that sweep all aggregates.
func (s *PgStore) ProviderIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT provider_id FROM sessions
		UNION
		SELECT DISTINCT provider_id FROM unavailable_dates
	`)
	if err != nil {
		return nil, fmt.Errorf("query provider ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan provider id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertEvent appends a committed calendar event to the event log. It
// runs outside the save transaction: a logging failure must not undo a
// committed mutation.
func (s *PgStore) InsertEvent(ctx context.Context, ev calendar.Event, payload []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO event_log (event_type, provider_id, session_id, payload, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
	`, ev.Type, ev.ProviderID, ev.SessionID, payload, ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}
