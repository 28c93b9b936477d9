package booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slotStarts(slots []Slot) []time.Time {
	starts := make([]time.Time, len(slots))
	for i, s := range slots {
		starts[i] = s.StartTime
	}
	return starts
}

func TestAvailableSlotsEmptyDay(t *testing.T) {
	svc := newTestService(newMemoryRepo(), newFakeSettings())

	slots, err := svc.AvailableSlots(context.Background(), testDay, 30)
	require.NoError(t, err)

	// 09:00 through 17:30 at 30-minute steps.
	require.Len(t, slots, 18)
	assert.True(t, slots[0].StartTime.Equal(at(9, 0)))
	assert.True(t, slots[17].StartTime.Equal(at(17, 30)))
	for _, s := range slots {
		assert.Equal(t, 5, s.AvailableStations)
		assert.Equal(t, 5, s.MaxStations)
		assert.Equal(t, 30, s.DurationMinutes)
	}
}

func TestAvailableSlotsScenario(t *testing.T) {
	repo := newMemoryRepo()
	cfg := newFakeSettings() // 5 stations, 30/day, 09:00-18:00, 30 min
	svc := newTestService(repo, cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seed(t, repo, at(9, 0), at(9, 30), StatusConfirmed)
	}

	slots, err := svc.AvailableSlots(ctx, testDay, 30)
	require.NoError(t, err)

	starts := slotStarts(slots)
	assert.NotContains(t, starts, at(9, 0), "fully occupied window is not offered")
	require.Len(t, slots, 17)
	assert.True(t, slots[0].StartTime.Equal(at(9, 30)))

	// The admission path agrees with the listing.
	_, err = svc.TryAdmit(ctx, at(9, 0), at(9, 30), Details{})
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	_, err = svc.TryAdmit(ctx, at(9, 30), at(10, 0), Details{})
	assert.NoError(t, err)
}

func TestAvailableSlotsLongerDuration(t *testing.T) {
	repo := newMemoryRepo()
	cfg := newFakeSettings()
	cfg.maxConcurrent = 1
	svc := newTestService(repo, cfg)

	// One booking at 10:00-10:30 blocks every 60-minute window touching it.
	seed(t, repo, at(10, 0), at(10, 30), StatusPending)

	slots, err := svc.AvailableSlots(context.Background(), testDay, 60)
	require.NoError(t, err)

	starts := slotStarts(slots)
	assert.NotContains(t, starts, at(9, 30))
	assert.NotContains(t, starts, at(10, 0))
	assert.Contains(t, starts, at(9, 0), "a window ending exactly at 10:00 does not overlap")
	assert.Contains(t, starts, at(10, 30))

	// 60-minute appointments cannot start after 17:00.
	last := slots[len(slots)-1]
	assert.True(t, last.StartTime.Equal(at(17, 0)))
}

func TestAvailableSlotsDailyQuotaShortCircuit(t *testing.T) {
	repo := newMemoryRepo()
	cfg := newFakeSettings()
	cfg.maxDaily = 2
	svc := newTestService(repo, cfg)

	seed(t, repo, at(9, 0), at(9, 30), StatusPending)
	seed(t, repo, at(13, 0), at(13, 30), StatusConfirmed)

	slots, err := svc.AvailableSlots(context.Background(), testDay, 30)
	require.NoError(t, err)
	assert.Empty(t, slots, "a full day offers nothing even with free stations")
	assert.NotNil(t, slots)
}

func TestAvailableSlotsIgnoresNonCapacityStatuses(t *testing.T) {
	repo := newMemoryRepo()
	cfg := newFakeSettings()
	cfg.maxConcurrent = 1
	svc := newTestService(repo, cfg)

	seed(t, repo, at(9, 0), at(9, 30), StatusCancelled)
	seed(t, repo, at(9, 30), at(10, 0), StatusCompleted)

	slots, err := svc.AvailableSlots(context.Background(), testDay, 30)
	require.NoError(t, err)
	assert.Len(t, slots, 18)
}

func TestAvailableSlotsInvalidDuration(t *testing.T) {
	svc := newTestService(newMemoryRepo(), newFakeSettings())

	_, err := svc.AvailableSlots(context.Background(), testDay, 0)
	assert.ErrorIs(t, err, ErrInvalidTimeRange)

	_, err = svc.AvailableSlots(context.Background(), testDay, -15)
	assert.ErrorIs(t, err, ErrInvalidTimeRange)
}

// Every offered slot must be admissible against the state it was computed
// from, and every omitted grid start must be rejected.
func TestSlotListingMatchesAdmission(t *testing.T) {
	cfg := newFakeSettings()
	cfg.maxConcurrent = 2

	type fixture struct {
		start, end time.Time
		status     Status
	}
	fixtures := []fixture{
		{at(9, 0), at(10, 0), StatusConfirmed},
		{at(9, 30), at(10, 30), StatusPending},
		{at(11, 0), at(11, 30), StatusConfirmed},
		{at(11, 0), at(12, 0), StatusPending},
		{at(16, 0), at(18, 0), StatusConfirmed},
		{at(16, 30), at(17, 30), StatusConfirmed},
		{at(13, 0), at(14, 0), StatusCancelled},
	}

	buildRepo := func(t *testing.T) *memoryRepo {
		repo := newMemoryRepo()
		for _, f := range fixtures {
			seed(t, repo, f.start, f.end, f.status)
		}
		return repo
	}

	listed := map[time.Time]bool{}
	{
		svc := newTestService(buildRepo(t), cfg)
		slots, err := svc.AvailableSlots(context.Background(), testDay, 30)
		require.NoError(t, err)
		for _, s := range slots {
			listed[s.StartTime] = true
		}
	}

	for min := 9 * 60; min+30 <= 18*60; min += 30 {
		start := testDay.Add(time.Duration(min) * time.Minute)

		// Fresh state per probe so admissions don't accumulate.
		svc := newTestService(buildRepo(t), cfg)
		_, err := svc.TryAdmit(context.Background(), start, start.Add(30*time.Minute), Details{})

		if listed[start] {
			assert.NoError(t, err, "listed slot %s must admit", start.Format("15:04"))
		} else {
			assert.ErrorIs(t, err, ErrCapacityExceeded, "omitted slot %s must reject", start.Format("15:04"))
		}
	}
}

func TestCapacityDashboard(t *testing.T) {
	repo := newMemoryRepo()
	cfg := newFakeSettings()
	svc := newTestService(repo, cfg)

	seed(t, repo, at(9, 0), at(10, 0), StatusConfirmed)
	seed(t, repo, at(9, 30), at(10, 0), StatusPending)
	seed(t, repo, at(9, 0), at(9, 30), StatusCancelled)

	dash, err := svc.CapacityDashboard(context.Background(), at(15, 45))
	require.NoError(t, err)

	assert.True(t, dash.Date.Equal(testDay))
	assert.Equal(t, 5, dash.MaxConcurrent)
	assert.Equal(t, 30, dash.MaxDaily)
	assert.Equal(t, 2, dash.DailyCount)

	require.Len(t, dash.Slots, 18)
	byStart := map[time.Time]int{}
	for _, w := range dash.Slots {
		byStart[w.StartTime] = w.Occupied
	}
	assert.Equal(t, 1, byStart[at(9, 0)])
	assert.Equal(t, 2, byStart[at(9, 30)])
	assert.Equal(t, 0, byStart[at(10, 0)])
}
