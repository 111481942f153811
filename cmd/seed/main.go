package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"github.com/mindhaven/provider-calendar/internal/calendar"
	"github.com/mindhaven/provider-calendar/internal/db"
	"github.com/mindhaven/provider-calendar/internal/storage"
)

const providerCount = 25

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	store := storage.NewPgStore(pool)
	now := time.Now()

	for i := 0; i < providerCount; i++ {
		providerID := uuid.NewString()
		snap := buildSnapshot(providerID, now)
		if err := store.Save(context.Background(), snap); err != nil {
			log.Fatalf("save provider %s: %v", providerID, err)
		}
	}

	log.Printf("seeded %d provider calendars", providerCount)
}

func buildSnapshot(providerID string, now time.Time) *calendar.Snapshot {
	snap := &calendar.Snapshot{ProviderID: providerID}
	today := calendar.DateOf(now)

	// Sessions scattered over the next three weeks, in hourly slots
	// between 09:00 and 17:00. Track occupancy so seeded data never
	// violates the engine's own conflict invariants.
	taken := make(map[string]bool)
	statuses := []calendar.SessionStatus{
		calendar.StatusPending, calendar.StatusPending,
		calendar.StatusConfirmed, calendar.StatusConfirmed, calendar.StatusConfirmed,
		calendar.StatusCompleted, calendar.StatusCancelled,
	}

	for i := 0; i < gofakeit.Number(8, 20); i++ {
		date := today.AddDate(0, 0, gofakeit.Number(0, 20))
		at := calendar.TimeOfDay(gofakeit.Number(9, 16) * 60)
		key := date.Format(calendar.DateLayout) + at.String()
		if taken[key] {
			continue
		}
		taken[key] = true

		status := statuses[gofakeit.Number(0, len(statuses)-1)]
		snap.Sessions = append(snap.Sessions, calendar.Session{
			ID:         uuid.NewString(),
			ClientName: gofakeit.Name(),
			Date:       date,
			Time:       at,
			Duration:   []int{30, 45, 60}[gofakeit.Number(0, 2)],
			Status:     status,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	// One or two full-day blocks on session-free days, one per date.
	reasons := []string{"Conference", "Vacation", "Training", "Personal"}
	blocked := make(map[string]bool)
	for i := 0; i < gofakeit.Number(1, 2); i++ {
		date := today.AddDate(0, 0, gofakeit.Number(21, 35))
		if blocked[date.Format(calendar.DateLayout)] {
			continue
		}
		blocked[date.Format(calendar.DateLayout)] = true
		snap.Unavailable = append(snap.Unavailable, calendar.UnavailableDate{
			ID:        uuid.NewString(),
			Date:      date,
			Reason:    reasons[gofakeit.Number(0, len(reasons)-1)],
			FullDay:   true,
			CreatedAt: now,
		})
	}

	// Roughly half the providers keep a weekend rule, a few block a
	// daily lunch window.
	if gofakeit.Bool() {
		rule, err := calendar.NewWeekdayRule(uuid.NewString(), calendar.RuleWeekends,
			[]time.Weekday{time.Saturday, time.Sunday}, "Weekends off")
		if err == nil {
			snap.Rules = append(snap.Rules, rule)
		}
	}
	if gofakeit.Number(0, 3) == 0 {
		rule, err := calendar.NewDailyTimeRule(uuid.NewString(),
			calendar.TimeRange{Start: 12 * 60, End: 13 * 60}, "Lunch")
		if err == nil {
			snap.Rules = append(snap.Rules, rule)
		}
	}

	return snap
}
