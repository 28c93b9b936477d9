package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// CapacityStatuses are the statuses that consume a station. Completed and
// cancelled rows stay in the ledger for history but are inert for admission.
var CapacityStatuses = []Status{StatusPending, StatusConfirmed}

// ParseStatus normalizes a raw status string and rejects anything outside
// the closed set at the boundary.
func ParseStatus(raw string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusPending:
		return StatusPending, nil
	case StatusConfirmed:
		return StatusConfirmed, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusCancelled:
		return StatusCancelled, nil
	}
	return "", fmt.Errorf("unrecognized appointment status %q", raw)
}

// ConsumesCapacity reports whether an appointment in this status occupies a
// station for overlap and daily-quota purposes.
func (s Status) ConsumesCapacity() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Appointment is one ledger entry. StartTime/EndTime form a half-open
// interval [StartTime, EndTime); EndTime is always after StartTime.
type Appointment struct {
	ID           uuid.UUID
	StartTime    time.Time
	EndTime      time.Time
	Status       Status
	CustomerName *string
	ServiceName  *string
	Notes        *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Details carries the caller-supplied fields the engine stores but does not
// interpret.
type Details struct {
	CustomerName *string
	ServiceName  *string
	Notes        *string
}

// Overlaps reports whether two half-open intervals intersect. Touching
// endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// DayOf truncates t to midnight in its own location.
func DayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
