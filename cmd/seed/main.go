package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glowdesk/salon-capacity/internal/db"
)

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

	if err := seedSettings(context.Background(), pool); err != nil {
		log.Fatalf("seed settings: %v", err)
	}
	if err := seedAppointments(context.Background(), pool, 14, 12); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

func seedSettings(ctx context.Context, pool *pgxpool.Pool) error {
	log.Println("seeding settings")

	defaults := []struct {
		key, value, valueType string
	}{
		{"max_concurrent_appointments", "5", "integer"},
		{"max_daily_appointments", "30", "integer"},
		{"working_hours_start", "09:00", "string"},
		{"working_hours_end", "18:00", "string"},
		{"slot_granularity_minutes", "30", "integer"},
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, s := range defaults {
		_, err := tx.Exec(ctx, `
			INSERT INTO salon_settings (key, value, value_type, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (key) DO NOTHING
		`, s.key, s.value, s.valueType)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("settings seeded")
	return nil
}

func seedAppointments(ctx context.Context, pool *pgxpool.Pool, days, perDay int) error {
	log.Printf("seeding %d days with up to %d appointments each", days, perDay)

	services := []string{
		"Haircut",
		"Coloring",
		"Blowout",
		"Manicure",
		"Pedicure",
		"Facial",
		"Waxing",
		"Beard Trim",
	}
	durations := []int{30, 60, 90}

	const maxConcurrent = 5

	type interval struct {
		start, end time.Time
	}

	today := time.Now()

	for d := 0; d < days; d++ {
		day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location()).AddDate(0, 0, d+1)

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		var seeded []interval

		for i := 0; i < perDay; i++ {
			// Start somewhere on the half-hour grid inside 09:00-18:00.
			startMin := 9*60 + 30*gofakeit.Number(0, 16)
			duration := durations[gofakeit.Number(0, len(durations)-1)]
			if startMin+duration > 18*60 {
				continue
			}

			start := day.Add(time.Duration(startMin) * time.Minute)
			end := start.Add(time.Duration(duration) * time.Minute)

			// Keep the seed data inside the capacity invariant the
			// engine enforces for real bookings.
			overlapping := 0
			for _, iv := range seeded {
				if iv.start.Before(end) && start.Before(iv.end) {
					overlapping++
				}
			}
			if overlapping >= maxConcurrent {
				continue
			}
			seeded = append(seeded, interval{start: start, end: end})

			status := "confirmed"
			if gofakeit.Number(0, 3) == 0 {
				status = "pending"
			}

			customer := gofakeit.Name()
			service := services[gofakeit.Number(0, len(services)-1)]

			_, err := tx.Exec(ctx, `
				INSERT INTO appointments (id, start_time, end_time, status, customer_name, service_name, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			`, uuid.New(), start, end, status, customer, service)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("appointments seeded for %s", day.Format("2006-01-02"))
	}

	log.Println("appointments seeded")
	return nil
}
