package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/glowdesk/salon-capacity/internal/redis"
)

var (
	ErrInvalidTimeRange = errors.New("proposed time range is invalid or outside working hours")

	// ErrDailyLimitExceeded means the calendar date's quota is exhausted.
	// Not retryable for that date.
	ErrDailyLimitExceeded = errors.New("daily appointment limit exceeded")

	// ErrCapacityExceeded means no station is free for the exact window.
	// The caller should look for another slot.
	ErrCapacityExceeded = errors.New("no free station for the requested window")

	// ErrConcurrencyConflict means the date lock stayed contended past the
	// acquire budget. Retryable with backoff.
	ErrConcurrencyConflict = errors.New("admission lock contended, please retry")

	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// SettingsReader is the slice of the configuration store the engine needs.
type SettingsReader interface {
	MaxConcurrent(ctx context.Context) (int, error)
	MaxDaily(ctx context.Context) (int, error)
	WorkingHours(ctx context.Context) (startMin, endMin int, err error)
	SlotGranularity(ctx context.Context) (int, error)
}

// Service owns the capacity invariants: at any instant the number of
// pending/confirmed appointments never exceeds max_concurrent, and the
// per-date count never exceeds max_daily. Every capacity-consuming insert
// and every status flip on a date goes through the same date lock.
type Service struct {
	repo     Repository
	locker   redisclient.Locker
	settings SettingsReader
	loc      *time.Location
	log      zerolog.Logger
}

// NewService wires the engine. loc is the salon's zone; every timestamp is
// normalized into it before a calendar date, a working-hours bound or a
// date-lock key is derived from it, so two representations of the same
// instant can never land on different dates or take different locks.
func NewService(repo Repository, locker redisclient.Locker, settings SettingsReader, loc *time.Location, log zerolog.Logger) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		repo:     repo,
		locker:   locker,
		settings: settings,
		loc:      loc,
		log:      log,
	}
}

// TryAdmit decides whether the proposed appointment may be created and, if
// so, inserts it as pending. The quota check, the overlap check and the
// insert execute inside one date-lock critical section so two concurrent
// requests cannot both observe spare capacity and both insert.
func (s *Service) TryAdmit(ctx context.Context, start, end time.Time, d Details) (*Appointment, error) {
	start, end = start.In(s.loc), end.In(s.loc)

	if err := s.validateWindow(ctx, start, end); err != nil {
		return nil, err
	}

	day := DayOf(start)

	var created *Appointment

	err := s.locker.WithDateLock(ctx, day, func(lockCtx context.Context) error {
		if err := s.checkCapacityLocked(lockCtx, day, start, end); err != nil {
			return err
		}

		appt := &Appointment{
			ID:           uuid.New(),
			StartTime:    start,
			EndTime:      end,
			Status:       StatusPending,
			CustomerName: d.CustomerName,
			ServiceName:  d.ServiceName,
			Notes:        d.Notes,
		}

		inserted, err := s.repo.Insert(lockCtx, appt)
		if err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}

		created = inserted
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrConcurrencyConflict
		}
		return nil, err
	}

	s.log.Info().
		Stringer("appointment_id", created.ID).
		Time("start", created.StartTime).
		Time("end", created.EndTime).
		Msg("appointment admitted")

	return created, nil
}

// CheckCapacity runs the admission checks without inserting and without the
// lock. Advisory only: state can change between this check and TryAdmit.
func (s *Service) CheckCapacity(ctx context.Context, start, end time.Time) error {
	start, end = start.In(s.loc), end.In(s.loc)

	if err := s.validateWindow(ctx, start, end); err != nil {
		return err
	}
	return s.checkCapacityLocked(ctx, DayOf(start), start, end)
}

// checkCapacityLocked runs the daily-quota and overlap checks. Callers on
// the write path hold the date lock; read-only callers may call it bare.
func (s *Service) checkCapacityLocked(ctx context.Context, day time.Time, start, end time.Time) error {
	maxDaily, err := s.settings.MaxDaily(ctx)
	if err != nil {
		return err
	}

	dailyCount, err := s.repo.CountOnDate(ctx, day, CapacityStatuses)
	if err != nil {
		return fmt.Errorf("count daily appointments: %w", err)
	}
	if dailyCount >= maxDaily {
		return ErrDailyLimitExceeded
	}

	maxConcurrent, err := s.settings.MaxConcurrent(ctx)
	if err != nil {
		return err
	}

	occupied, err := s.repo.CountOverlapping(ctx, start, end, CapacityStatuses)
	if err != nil {
		return fmt.Errorf("count overlapping appointments: %w", err)
	}
	if occupied >= maxConcurrent {
		return ErrCapacityExceeded
	}

	return nil
}

// validateWindow rejects malformed windows and windows outside the working
// day. Start and end must fall on the same calendar date.
func (s *Service) validateWindow(ctx context.Context, start, end time.Time) error {
	if !end.After(start) {
		return ErrInvalidTimeRange
	}

	day := DayOf(start)
	if !DayOf(end).Equal(day) && !end.Equal(day.AddDate(0, 0, 1)) {
		return ErrInvalidTimeRange
	}

	whStart, whEnd, err := s.settings.WorkingHours(ctx)
	if err != nil {
		return err
	}

	opensAt := day.Add(time.Duration(whStart) * time.Minute)
	closesAt := day.Add(time.Duration(whEnd) * time.Minute)

	if start.Before(opensAt) || end.After(closesAt) {
		return ErrInvalidTimeRange
	}

	return nil
}

// Confirm moves a pending appointment to confirmed.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusConfirmed)
}

// Cancel moves a pending or confirmed appointment to cancelled, freeing its
// station for concurrent admissions as soon as the transition commits.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCancelled)
}

// Complete moves a confirmed appointment to completed.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCompleted)
}

var allowedTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

func transitionAllowed(from, to Status) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// transition flips an appointment's status under the same date lock the
// admission path uses, because pending/confirmed rows consume capacity and
// a flip concurrent with an admission changes the counts it reads.
func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if !transitionAllowed(appt.Status, to) {
		return nil, ErrInvalidStatusTransition
	}

	from := appt.Status
	day := DayOf(appt.StartTime.In(s.loc))

	var updated *Appointment

	err = s.locker.WithDateLock(ctx, day, func(lockCtx context.Context) error {
		u, err := s.repo.UpdateStatus(lockCtx, id, from, to)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				// Status moved under us between the read and the lock.
				return ErrInvalidStatusTransition
			}
			return fmt.Errorf("update status: %w", err)
		}
		updated = u
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrConcurrencyConflict
		}
		return nil, err
	}

	s.log.Info().
		Stringer("appointment_id", id).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("appointment status changed")

	return updated, nil
}

// CompleteFinished is called periodically by the completion worker. It
// moves confirmed appointments whose end time has passed to completed.
func (s *Service) CompleteFinished(ctx context.Context) error {
	now := time.Now()
	finished, err := s.repo.FindFinishedConfirmed(ctx, now)
	if err != nil {
		return fmt.Errorf("find finished appointments: %w", err)
	}

	for _, appt := range finished {
		day := DayOf(appt.StartTime.In(s.loc))
		err := s.locker.WithDateLock(ctx, day, func(lockCtx context.Context) error {
			_, err := s.repo.UpdateStatus(lockCtx, appt.ID, StatusConfirmed, StatusCompleted)
			return err
		})
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			s.log.Error().Err(err).Stringer("appointment_id", appt.ID).Msg("failed to complete appointment")
			continue
		}
	}

	return nil
}

// GetAppointment retrieves one ledger entry by ID.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// ListAppointmentsByDate retrieves every ledger entry on a calendar date,
// chronologically, regardless of status.
func (s *Service) ListAppointmentsByDate(ctx context.Context, day time.Time) ([]Appointment, error) {
	appts, err := s.repo.ListByDate(ctx, day.In(s.loc))
	if err != nil {
		return nil, fmt.Errorf("list appointments by date: %w", err)
	}
	return appts, nil
}
