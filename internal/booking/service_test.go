package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/glowdesk/salon-capacity/internal/redis"
	"github.com/glowdesk/salon-capacity/internal/settings"
)

// -- In-memory fakes --

type memoryRepo struct {
	mu    sync.Mutex
	appts map[uuid.UUID]Appointment
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{appts: make(map[uuid.UUID]Appointment)}
}

func statusIn(s Status, set []Status) bool {
	for _, x := range set {
		if s == x {
			return true
		}
	}
	return false
}

func (m *memoryRepo) Insert(_ context.Context, a *Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *a
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	m.appts[stored.ID] = stored

	out := stored
	return &out, nil
}

func (m *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := a
	return &out, nil
}

func (m *memoryRepo) ListByDate(_ context.Context, day time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dayStart := DayOf(day)
	var result []Appointment
	for _, a := range m.appts {
		if DayOf(a.StartTime).Equal(dayStart) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartTime.Before(result[j].StartTime)
	})
	return result, nil
}

func (m *memoryRepo) CountOnDate(_ context.Context, day time.Time, statuses []Status) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	dayStart := DayOf(day)
	count := 0
	for _, a := range m.appts {
		if DayOf(a.StartTime).Equal(dayStart) && statusIn(a.Status, statuses) {
			count++
		}
	}
	return count, nil
}

func (m *memoryRepo) CountOverlapping(_ context.Context, windowStart, windowEnd time.Time, statuses []Status) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, a := range m.appts {
		if statusIn(a.Status, statuses) && Overlaps(a.StartTime, a.EndTime, windowStart, windowEnd) {
			count++
		}
	}
	return count, nil
}

func (m *memoryRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appts[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	m.appts[id] = a

	out := a
	return &out, nil
}

func (m *memoryRepo) FindFinishedConfirmed(_ context.Context, now time.Time) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []Appointment
	for _, a := range m.appts {
		if a.Status == StatusConfirmed && a.EndTime.Before(now) {
			result = append(result, a)
		}
	}
	return result, nil
}

// memoryLocker serializes critical sections per date key the way the Redis
// date lock does, but blocks instead of retrying.
type memoryLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newMemoryLocker() *memoryLocker {
	return &memoryLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *memoryLocker) WithDateLock(ctx context.Context, day time.Time, fn func(ctx context.Context) error) error {
	key := day.Format("2006-01-02")

	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()

	return fn(ctx)
}

// contendedLocker simulates a date lock that never frees up in time.
type contendedLocker struct{}

func (contendedLocker) WithDateLock(context.Context, time.Time, func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

type fakeSettings struct {
	maxConcurrent int
	maxDaily      int
	whStart       int
	whEnd         int
	granularity   int
	missing       map[string]bool
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{
		maxConcurrent: 5,
		maxDaily:      30,
		whStart:       9 * 60,
		whEnd:         18 * 60,
		granularity:   30,
		missing:       make(map[string]bool),
	}
}

func (f *fakeSettings) MaxConcurrent(context.Context) (int, error) {
	if f.missing[settings.KeyMaxConcurrent] {
		return 0, fmt.Errorf("%w: %s", settings.ErrSettingMissing, settings.KeyMaxConcurrent)
	}
	return f.maxConcurrent, nil
}

func (f *fakeSettings) MaxDaily(context.Context) (int, error) {
	if f.missing[settings.KeyMaxDaily] {
		return 0, fmt.Errorf("%w: %s", settings.ErrSettingMissing, settings.KeyMaxDaily)
	}
	return f.maxDaily, nil
}

func (f *fakeSettings) WorkingHours(context.Context) (int, int, error) {
	return f.whStart, f.whEnd, nil
}

func (f *fakeSettings) SlotGranularity(context.Context) (int, error) {
	return f.granularity, nil
}

// -- Test fixtures --

var testDay = time.Date(2026, time.September, 14, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return testDay.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func newTestService(repo Repository, cfg *fakeSettings) *Service {
	return NewService(repo, newMemoryLocker(), cfg, time.UTC, zerolog.Nop())
}

func seed(t *testing.T, repo *memoryRepo, start, end time.Time, status Status) *Appointment {
	t.Helper()
	a, err := repo.Insert(context.Background(), &Appointment{
		ID:        uuid.New(),
		StartTime: start,
		EndTime:   end,
		Status:    status,
	})
	require.NoError(t, err)
	return a
}

// -- TryAdmit validation --

func TestTryAdmitRejectsMalformedWindows(t *testing.T) {
	svc := newTestService(newMemoryRepo(), newFakeSettings())
	ctx := context.Background()

	cases := []struct {
		name       string
		start, end time.Time
	}{
		{"end equals start", at(10, 0), at(10, 0)},
		{"end before start", at(11, 0), at(10, 0)},
		{"before opening", at(8, 0), at(8, 30)},
		{"after closing", at(17, 45), at(18, 15)},
		{"straddles opening", at(8, 45), at(9, 15)},
		{"crosses midnight", at(17, 0), at(25, 0)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.TryAdmit(ctx, tc.start, tc.end, Details{})
			assert.ErrorIs(t, err, ErrInvalidTimeRange)
		})
	}
}

func TestTryAdmitAcceptsWindowAtWorkingHourBounds(t *testing.T) {
	svc := newTestService(newMemoryRepo(), newFakeSettings())
	ctx := context.Background()

	first, err := svc.TryAdmit(ctx, at(9, 0), at(9, 30), Details{})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, first.Status)

	last, err := svc.TryAdmit(ctx, at(17, 30), at(18, 0), Details{})
	require.NoError(t, err)
	assert.True(t, last.EndTime.Equal(at(18, 0)))
}

// -- Capacity properties --

func TestNoOverbookingUnderConcurrency(t *testing.T) {
	repo := newMemoryRepo()
	cfg := newFakeSettings()
	cfg.maxConcurrent = 3
	svc := newTestService(repo, cfg)

	for i := 0; i < 3; i++ {
		seed(t, repo, at(10, 0), at(11, 0), StatusConfirmed)
	}

	const k = 20
	var wg sync.WaitGroup
	errs := make([]error, k)

	for i := 0; i < k; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.TryAdmit(context.Background(), at(10, 0), at(11, 0), Details{})
		}(i)
	}
	wg.Wait()

	for i := 0; i < k; i++ {
		assert.ErrorIs(t, errs[i], ErrCapacityExceeded)
	}

	count, err := repo.CountOverlapping(context.Background(), at(10, 0), at(11, 0), CapacityStatuses)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestExactBoundaryAdmission(t *testing.T) {
	repo := newMemoryRepo()
	cfg := newFakeSettings()
	cfg.maxConcurrent = 3
	svc := newTestService(repo, cfg)

	for i := 0; i < 2; i++ {
		seed(t, repo, at(10, 0), at(11, 0), StatusConfirmed)
	}

	const k = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	var admitted int
	var rejected int

	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.TryAdmit(context.Background(), at(10, 0), at(11, 0), Details{})

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				admitted++
			} else if errors.Is(err, ErrCapacityExceeded) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted, "exactly one contender wins the last station")
	assert.Equal(t, k-1, rejected)
}

func TestDailyQuotaIndependentOfOverlap(t *testing.T) {
	repo := newMemoryRepo()
	cfg := newFakeSettings()
	cfg.maxDaily = 30
	cfg.granularity = 15
	svc := newTestService(repo, cfg)

	// 30 back-to-back non-overlapping entries starting 09:00.
	for i := 0; i < 30; i++ {
		start := at(9, 0).Add(time.Duration(i*15) * time.Minute)
		seed(t, repo, start, start.Add(15*time.Minute), StatusPending)
	}

	// 17:00-17:30 is completely free, but the day is full.
	_, err := svc.TryAdmit(context.Background(), at(17, 0), at(17, 30), Details{})
	assert.ErrorIs(t, err, ErrDailyLimitExceeded)
}

func TestTouchingIntervalsDoNotOverlap(t *testing.T) {
	repo := newMemoryRepo()
	cfg := newFakeSettings()
	cfg.maxConcurrent = 5
	svc := newTestService(repo, cfg)

	for i := 0; i < 5; i++ {
		seed(t, repo, at(9, 0), at(9, 30), StatusConfirmed)
	}

	// [09:00,09:30) is exhausted but [09:30,10:00) only touches it.
	_, err := svc.TryAdmit(context.Background(), at(9, 30), at(10, 0), Details{})
	require.NoError(t, err)

	_, err = svc.TryAdmit(context.Background(), at(9, 0), at(9, 30), Details{})
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestCancellationFreesCapacity(t *testing.T) {
	repo := newMemoryRepo()
	cfg := newFakeSettings()
	cfg.maxConcurrent = 2
	svc := newTestService(repo, cfg)
	ctx := context.Background()

	seed(t, repo, at(14, 0), at(15, 0), StatusConfirmed)
	victim := seed(t, repo, at(14, 0), at(15, 0), StatusPending)

	_, err := svc.TryAdmit(ctx, at(14, 0), at(15, 0), Details{})
	require.ErrorIs(t, err, ErrCapacityExceeded)

	_, err = svc.Cancel(ctx, victim.ID)
	require.NoError(t, err)

	_, err = svc.TryAdmit(ctx, at(14, 0), at(15, 0), Details{})
	require.NoError(t, err)

	// The freed station is spent again.
	_, err = svc.TryAdmit(ctx, at(14, 0), at(15, 0), Details{})
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestCancellationRacingAdmissions(t *testing.T) {
	repo := newMemoryRepo()
	cfg := newFakeSettings()
	cfg.maxConcurrent = 2
	svc := newTestService(repo, cfg)
	ctx := context.Background()

	seed(t, repo, at(14, 0), at(15, 0), StatusConfirmed)
	victim := seed(t, repo, at(14, 0), at(15, 0), StatusPending)

	const k = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	var admitted int

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := svc.Cancel(ctx, victim.ID)
		assert.NoError(t, err)
	}()

	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.TryAdmit(ctx, at(14, 0), at(15, 0), Details{})

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				admitted++
			} else {
				assert.ErrorIs(t, err, ErrCapacityExceeded)
			}
		}()
	}
	wg.Wait()

	// The cancellation freed exactly one station: whichever contenders ran
	// after it committed competed for one unit, so at most one won.
	assert.LessOrEqual(t, admitted, 1)

	if admitted == 0 {
		_, err := svc.TryAdmit(ctx, at(14, 0), at(15, 0), Details{})
		require.NoError(t, err, "the freed station must be admittable once the race settles")
	} else {
		_, err := svc.TryAdmit(ctx, at(14, 0), at(15, 0), Details{})
		assert.ErrorIs(t, err, ErrCapacityExceeded)
	}

	count, err := repo.CountOverlapping(ctx, at(14, 0), at(15, 0), CapacityStatuses)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

// rendezvousRepo holds each overlap count until a second concurrent reader
// arrives or a grace period passes. Two admissions whose critical sections
// actually interleave both read their pre-insert counts; properly serialized
// admissions just wait out the grace period one after the other.
type rendezvousRepo struct {
	*memoryRepo
	gate chan struct{}
}

func (r *rendezvousRepo) CountOverlapping(ctx context.Context, windowStart, windowEnd time.Time, statuses []Status) (int, error) {
	count, err := r.memoryRepo.CountOverlapping(ctx, windowStart, windowEnd, statuses)
	select {
	case r.gate <- struct{}{}:
	case <-r.gate:
	case <-time.After(100 * time.Millisecond):
	}
	return count, err
}

func TestMixedOffsetAdmissionsShareOneDate(t *testing.T) {
	inner := newMemoryRepo()
	repo := &rendezvousRepo{memoryRepo: inner, gate: make(chan struct{})}
	cfg := newFakeSettings()
	cfg.maxConcurrent = 1

	salonZone := time.FixedZone("salon", 8*60*60)
	svc := NewService(repo, newMemoryLocker(), cfg, salonZone, zerolog.Nop())

	// One instant, 13:00 salon time, spelled on two different calendar
	// dates by the callers' own offsets.
	instant := time.Date(2026, time.September, 15, 5, 0, 0, 0, time.UTC)
	startA := instant.In(time.FixedZone("UTC-12", -12*60*60))
	startB := instant.In(time.FixedZone("UTC+4", 4*60*60))
	require.Equal(t, "2026-09-14", startA.Format("2006-01-02"))
	require.Equal(t, "2026-09-15", startB.Format("2006-01-02"))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, s := range []time.Time{startA, startB} {
		wg.Add(1)
		go func(i int, s time.Time) {
			defer wg.Done()
			_, errs[i] = svc.TryAdmit(context.Background(), s, s.Add(30*time.Minute), Details{})
		}(i, s)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		if err == nil {
			admitted++
		} else {
			assert.ErrorIs(t, err, ErrCapacityExceeded)
		}
	}
	assert.Equal(t, 1, admitted, "one station, one instant, one winner")

	count, err := inner.CountOverlapping(context.Background(), instant, instant.Add(30*time.Minute), CapacityStatuses)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Both spellings landed on the same salon date and consumed its quota.
	dayCount, err := inner.CountOnDate(context.Background(), DayOf(instant.In(salonZone)), CapacityStatuses)
	require.NoError(t, err)
	assert.Equal(t, 1, dayCount)
}

func TestConcurrencyConflictSurfaced(t *testing.T) {
	svc := NewService(newMemoryRepo(), contendedLocker{}, newFakeSettings(), time.UTC, zerolog.Nop())

	_, err := svc.TryAdmit(context.Background(), at(10, 0), at(10, 30), Details{})
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
}

func TestMissingLimitIsConfigurationError(t *testing.T) {
	cfg := newFakeSettings()
	cfg.missing[settings.KeyMaxConcurrent] = true
	svc := newTestService(newMemoryRepo(), cfg)

	_, err := svc.TryAdmit(context.Background(), at(10, 0), at(10, 30), Details{})
	assert.ErrorIs(t, err, settings.ErrSettingMissing)
}

// -- CheckCapacity --

func TestCheckCapacityMirrorsTryAdmit(t *testing.T) {
	repo := newMemoryRepo()
	cfg := newFakeSettings()
	cfg.maxConcurrent = 1
	svc := newTestService(repo, cfg)
	ctx := context.Background()

	require.NoError(t, svc.CheckCapacity(ctx, at(10, 0), at(10, 30)))

	seed(t, repo, at(10, 0), at(10, 30), StatusConfirmed)

	assert.ErrorIs(t, svc.CheckCapacity(ctx, at(10, 0), at(10, 30)), ErrCapacityExceeded)
	assert.ErrorIs(t, svc.CheckCapacity(ctx, at(8, 0), at(8, 30)), ErrInvalidTimeRange)

	// The pre-check writes nothing.
	count, err := repo.CountOnDate(ctx, testDay, CapacityStatuses)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// -- Status transitions --

func TestStatusTransitions(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, newFakeSettings())
	ctx := context.Background()

	appt := seed(t, repo, at(11, 0), at(11, 30), StatusPending)

	confirmed, err := svc.Confirm(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	completed, err := svc.Complete(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)

	// Terminal states stay terminal.
	_, err = svc.Cancel(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	_, err = svc.Confirm(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestCancelFromPendingAndConfirmed(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, newFakeSettings())
	ctx := context.Background()

	pending := seed(t, repo, at(11, 0), at(11, 30), StatusPending)
	confirmed := seed(t, repo, at(12, 0), at(12, 30), StatusConfirmed)

	cancelled, err := svc.Cancel(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	cancelled, err = svc.Cancel(ctx, confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	// Cancelled rows no longer consume capacity.
	count, err := repo.CountOnDate(ctx, testDay, CapacityStatuses)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestTransitionUnknownAppointment(t *testing.T) {
	svc := newTestService(newMemoryRepo(), newFakeSettings())

	_, err := svc.Confirm(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

// -- Completion worker --

func TestCompleteFinished(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo, newFakeSettings())
	ctx := context.Background()

	past := time.Now().Add(-2 * time.Hour)
	done := seed(t, repo, past, past.Add(30*time.Minute), StatusConfirmed)
	stillPending := seed(t, repo, past, past.Add(30*time.Minute), StatusPending)
	future := seed(t, repo, time.Now().Add(time.Hour), time.Now().Add(2*time.Hour), StatusConfirmed)

	require.NoError(t, svc.CompleteFinished(ctx))

	got, err := repo.GetByID(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	got, err = repo.GetByID(ctx, stillPending.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	got, err = repo.GetByID(ctx, future.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
}
