package settings

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValueType is how a setting value was declared at write time.
type ValueType string

const (
	TypeString  ValueType = "string"
	TypeInteger ValueType = "integer"
	TypeBoolean ValueType = "boolean"
	TypeJSON    ValueType = "json"
	TypeFloat   ValueType = "float"
)

// Keys the engine reads. The two limits have no sane default; their absence
// is a configuration error, never a silent zero.
const (
	KeyMaxConcurrent     = "max_concurrent_appointments"
	KeyMaxDaily          = "max_daily_appointments"
	KeyWorkingHoursStart = "working_hours_start"
	KeyWorkingHoursEnd   = "working_hours_end"
	KeySlotGranularity   = "slot_granularity_minutes"
)

const (
	DefaultWorkingHoursStart = "09:00"
	DefaultWorkingHoursEnd   = "18:00"
	DefaultSlotGranularity   = 30
)

// Setting is one stored key/value entry. Value holds the raw stored text;
// Coerce interprets it according to Type.
type Setting struct {
	Key       string
	Value     string
	Type      ValueType
	UpdatedAt time.Time
}

// Coerce returns the value converted to its declared type. An unrecognized
// type, or a value that does not parse as its declared type, falls back to
// the raw string.
func (s Setting) Coerce() any {
	switch s.Type {
	case TypeInteger:
		if n, err := strconv.Atoi(strings.TrimSpace(s.Value)); err == nil {
			return n
		}
	case TypeBoolean:
		if b, err := strconv.ParseBool(strings.TrimSpace(s.Value)); err == nil {
			return b
		}
	case TypeFloat:
		if f, err := strconv.ParseFloat(strings.TrimSpace(s.Value), 64); err == nil {
			return f
		}
	case TypeJSON:
		var v any
		if err := json.Unmarshal([]byte(s.Value), &v); err == nil {
			return v
		}
	}
	return s.Value
}

// Int coerces the value to an integer regardless of the declared type.
func (s Setting) Int() (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s.Value))
	if err != nil {
		return 0, fmt.Errorf("setting %s: value %q is not an integer", s.Key, s.Value)
	}
	return n, nil
}

// MinuteOfDay parses an HH:MM value into minutes since midnight.
func (s Setting) MinuteOfDay() (int, error) {
	return ParseMinuteOfDay(s.Value)
}

// ParseMinuteOfDay converts an HH:MM string to minutes since midnight.
func ParseMinuteOfDay(v string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid HH:MM value %q", v)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// KnownType reports whether t is one of the declared value types.
func KnownType(t ValueType) bool {
	switch t {
	case TypeString, TypeInteger, TypeBoolean, TypeJSON, TypeFloat:
		return true
	}
	return false
}
