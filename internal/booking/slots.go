package booking

import (
	"context"
	"fmt"
	"time"
)

// Slot is one bookable start time at the configured granularity.
type Slot struct {
	StartTime         time.Time
	DurationMinutes   int
	AvailableStations int
	MaxStations       int
}

// SlotOccupancy is one granularity window's occupied-station count, used by
// the capacity dashboard.
type SlotOccupancy struct {
	StartTime time.Time
	Occupied  int
}

// Dashboard is the read-only capacity view for one date.
type Dashboard struct {
	Date          time.Time
	MaxConcurrent int
	MaxDaily      int
	DailyCount    int
	Slots         []SlotOccupancy
}

// AvailableSlots enumerates the start times on the given date where an
// appointment of durationMinutes still fits. Results are chronological and
// recomputed fresh on every call; a slot it reports must be accepted by
// TryAdmit absent a concurrent change, because both use the same overlap
// query and the same limits.
func (s *Service) AvailableSlots(ctx context.Context, date time.Time, durationMinutes int) ([]Slot, error) {
	if durationMinutes <= 0 {
		return nil, ErrInvalidTimeRange
	}

	whStart, whEnd, err := s.settings.WorkingHours(ctx)
	if err != nil {
		return nil, err
	}

	granularity, err := s.settings.SlotGranularity(ctx)
	if err != nil {
		return nil, err
	}

	maxConcurrent, err := s.settings.MaxConcurrent(ctx)
	if err != nil {
		return nil, err
	}

	maxDaily, err := s.settings.MaxDaily(ctx)
	if err != nil {
		return nil, err
	}

	day := DayOf(date.In(s.loc))

	// A full day means no slot is bookable, whatever the overlap counts
	// say. Mirrors the daily check in TryAdmit so the two never disagree.
	dailyCount, err := s.repo.CountOnDate(ctx, day, CapacityStatuses)
	if err != nil {
		return nil, fmt.Errorf("count daily appointments: %w", err)
	}
	if dailyCount >= maxDaily {
		return []Slot{}, nil
	}

	slots := make([]Slot, 0)

	for startMin := whStart; startMin+durationMinutes <= whEnd; startMin += granularity {
		windowStart := day.Add(time.Duration(startMin) * time.Minute)
		windowEnd := windowStart.Add(time.Duration(durationMinutes) * time.Minute)

		occupied, err := s.repo.CountOverlapping(ctx, windowStart, windowEnd, CapacityStatuses)
		if err != nil {
			return nil, fmt.Errorf("count overlapping appointments: %w", err)
		}

		available := maxConcurrent - occupied
		if available <= 0 {
			continue
		}

		slots = append(slots, Slot{
			StartTime:         windowStart,
			DurationMinutes:   durationMinutes,
			AvailableStations: available,
			MaxStations:       maxConcurrent,
		})
	}

	return slots, nil
}

// CapacityDashboard reports the date's limits, its current daily count and
// per-granularity-window occupancy. Read-only, no side effects.
func (s *Service) CapacityDashboard(ctx context.Context, date time.Time) (*Dashboard, error) {
	whStart, whEnd, err := s.settings.WorkingHours(ctx)
	if err != nil {
		return nil, err
	}

	granularity, err := s.settings.SlotGranularity(ctx)
	if err != nil {
		return nil, err
	}

	maxConcurrent, err := s.settings.MaxConcurrent(ctx)
	if err != nil {
		return nil, err
	}

	maxDaily, err := s.settings.MaxDaily(ctx)
	if err != nil {
		return nil, err
	}

	day := DayOf(date.In(s.loc))

	dailyCount, err := s.repo.CountOnDate(ctx, day, CapacityStatuses)
	if err != nil {
		return nil, fmt.Errorf("count daily appointments: %w", err)
	}

	occupancy := make([]SlotOccupancy, 0)

	for startMin := whStart; startMin+granularity <= whEnd; startMin += granularity {
		windowStart := day.Add(time.Duration(startMin) * time.Minute)
		windowEnd := windowStart.Add(time.Duration(granularity) * time.Minute)

		occupied, err := s.repo.CountOverlapping(ctx, windowStart, windowEnd, CapacityStatuses)
		if err != nil {
			return nil, fmt.Errorf("count overlapping appointments: %w", err)
		}

		occupancy = append(occupancy, SlotOccupancy{
			StartTime: windowStart,
			Occupied:  occupied,
		})
	}

	return &Dashboard{
		Date:          day,
		MaxConcurrent: maxConcurrent,
		MaxDaily:      maxDaily,
		DailyCount:    dailyCount,
		Slots:         occupancy,
	}, nil
}
