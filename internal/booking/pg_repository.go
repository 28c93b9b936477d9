package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var rawStatus string
	var customerName, serviceName, notes *string

	err := row.Scan(
		&a.ID,
		&a.StartTime,
		&a.EndTime,
		&rawStatus,
		&customerName,
		&serviceName,
		&notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	// The CHECK constraint should make this impossible, but a row edited
	// out of band must not leak an open-ended status into the engine.
	a.Status, err = ParseStatus(rawStatus)
	if err != nil {
		return nil, err
	}

	a.CustomerName = customerName
	a.ServiceName = serviceName
	a.Notes = notes
	return &a, nil
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// Interface methods

func (r *PgRepository) Insert(ctx context.Context, a *Appointment) (*Appointment, error) {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, start_time, end_time, status, customer_name, service_name, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING id, start_time, end_time, status, customer_name, service_name, notes, created_at, updated_at
	`, id, a.StartTime, a.EndTime, a.Status, a.CustomerName, a.ServiceName, a.Notes)

	return scanAppointment(row)
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, start_time, end_time, status, customer_name, service_name, notes, created_at, updated_at
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListByDate(ctx context.Context, day time.Time) ([]Appointment, error) {
	dayStart := DayOf(day)
	dayEnd := dayStart.AddDate(0, 0, 1)

	rows, err := r.pool.Query(ctx, `
		SELECT id, start_time, end_time, status, customer_name, service_name, notes, created_at, updated_at
		FROM appointments
		WHERE start_time >= $1 AND start_time < $2
		ORDER BY start_time
	`, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CountOnDate(ctx context.Context, day time.Time, statuses []Status) (int, error) {
	dayStart := DayOf(day)
	dayEnd := dayStart.AddDate(0, 0, 1)

	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE start_time >= $1 AND start_time < $2
		  AND status = ANY($3)
	`, dayStart, dayEnd, statusStrings(statuses)).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// CountOverlapping counts ledger rows whose half-open interval intersects
// [windowStart, windowEnd). Touching endpoints do not count; the strict
// inequalities below are the overlap definition the whole engine relies on.
func (r *PgRepository) CountOverlapping(ctx context.Context, windowStart, windowEnd time.Time, statuses []Status) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE start_time < $2 AND end_time > $1
		  AND status = ANY($3)
	`, windowStart, windowEnd, statusStrings(statuses)).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING id, start_time, end_time, status, customer_name, service_name, notes, created_at, updated_at
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) FindFinishedConfirmed(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, start_time, end_time, status, customer_name, service_name, notes, created_at, updated_at
		FROM appointments
		WHERE status = 'confirmed'
		  AND end_time < $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
