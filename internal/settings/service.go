package settings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Service is the process-wide configuration store the engine reads through.
// Reads go through a time-boxed cache; Set writes the backing row and drops
// the cached copy (and the all-settings aggregate) before returning, so a
// read that starts after a completed write never sees the prior value from
// this process. Cross-process staleness is bounded by the cache TTL.
type Service struct {
	repo Repository
	ttl  time.Duration
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	all     *allEntry
}

type cacheEntry struct {
	setting   Setting
	found     bool
	refreshed time.Time
}

type allEntry struct {
	settings  map[string]Setting
	refreshed time.Time
}

func NewService(repo Repository, cacheTTL time.Duration) *Service {
	return &Service{
		repo:    repo,
		ttl:     cacheTTL,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the setting for key and whether it exists.
func (s *Service) Get(ctx context.Context, key string) (Setting, bool, error) {
	s.mu.Lock()
	if e, ok := s.entries[key]; ok && s.now().Sub(e.refreshed) < s.ttl {
		s.mu.Unlock()
		return e.setting, e.found, nil
	}
	s.mu.Unlock()

	stored, err := s.repo.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrSettingNotFound) {
		return Setting{}, false, fmt.Errorf("load setting %s: %w", key, err)
	}

	e := cacheEntry{refreshed: s.now()}
	if stored != nil {
		e.setting = *stored
		e.found = true
	}

	s.mu.Lock()
	s.entries[key] = e
	s.mu.Unlock()

	return e.setting, e.found, nil
}

// Set stores the value and invalidates every cached copy of it. The cache is
// dropped after the write commits and before Set returns.
func (s *Service) Set(ctx context.Context, key, value string, typ ValueType) error {
	if key == "" {
		return fmt.Errorf("setting key must not be empty")
	}
	if !KnownType(typ) {
		// Stored as declared; reads fall back to the raw string.
		typ = TypeString
	}

	err := s.repo.Upsert(ctx, Setting{Key: key, Value: value, Type: typ})
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.entries, key)
	s.all = nil
	s.mu.Unlock()

	return nil
}

// GetAll returns every stored setting keyed by name.
func (s *Service) GetAll(ctx context.Context) (map[string]Setting, error) {
	s.mu.Lock()
	if s.all != nil && s.now().Sub(s.all.refreshed) < s.ttl {
		out := make(map[string]Setting, len(s.all.settings))
		for k, v := range s.all.settings {
			out[k] = v
		}
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}

	m := make(map[string]Setting, len(list))
	for _, st := range list {
		m[st.Key] = st
	}

	s.mu.Lock()
	s.all = &allEntry{settings: m, refreshed: s.now()}
	s.mu.Unlock()

	out := make(map[string]Setting, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out, nil
}

// MaxConcurrent returns max_concurrent_appointments. There is no sane
// default; absence is ErrSettingMissing.
func (s *Service) MaxConcurrent(ctx context.Context) (int, error) {
	return s.requiredInt(ctx, KeyMaxConcurrent)
}

// MaxDaily returns max_daily_appointments. Absence is ErrSettingMissing.
func (s *Service) MaxDaily(ctx context.Context) (int, error) {
	return s.requiredInt(ctx, KeyMaxDaily)
}

// WorkingHours returns the working day as minutes since midnight.
func (s *Service) WorkingHours(ctx context.Context) (startMin, endMin int, err error) {
	startRaw, err := s.stringOrDefault(ctx, KeyWorkingHoursStart, DefaultWorkingHoursStart)
	if err != nil {
		return 0, 0, err
	}
	endRaw, err := s.stringOrDefault(ctx, KeyWorkingHoursEnd, DefaultWorkingHoursEnd)
	if err != nil {
		return 0, 0, err
	}

	startMin, err = ParseMinuteOfDay(startRaw)
	if err != nil {
		return 0, 0, fmt.Errorf("setting %s: %w", KeyWorkingHoursStart, err)
	}
	endMin, err = ParseMinuteOfDay(endRaw)
	if err != nil {
		return 0, 0, fmt.Errorf("setting %s: %w", KeyWorkingHoursEnd, err)
	}
	if endMin <= startMin {
		return 0, 0, fmt.Errorf("working hours %s..%s are empty", startRaw, endRaw)
	}

	return startMin, endMin, nil
}

// SlotGranularity returns slot_granularity_minutes, defaulting to 30.
func (s *Service) SlotGranularity(ctx context.Context) (int, error) {
	st, found, err := s.Get(ctx, KeySlotGranularity)
	if err != nil {
		return 0, err
	}
	if !found {
		return DefaultSlotGranularity, nil
	}

	n, err := st.Int()
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("setting %s: %d is not a valid granularity", KeySlotGranularity, n)
	}
	return n, nil
}

func (s *Service) requiredInt(ctx context.Context, key string) (int, error) {
	st, found, err := s.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("%w: %s", ErrSettingMissing, key)
	}

	n, err := st.Int()
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("setting %s: %d must be positive", key, n)
	}
	return n, nil
}

func (s *Service) stringOrDefault(ctx context.Context, key, def string) (string, error) {
	st, found, err := s.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !found {
		return def, nil
	}
	return st.Value, nil
}
