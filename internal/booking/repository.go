package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository contains all ledger interactions needed by the service. Only
// the admission path inserts capacity-consuming rows; status flips go
// through the compare-and-set UpdateStatus.
type Repository interface {
	Insert(ctx context.Context, a *Appointment) (*Appointment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListByDate(ctx context.Context, day time.Time) ([]Appointment, error)

	// Capacity queries
	CountOnDate(ctx context.Context, day time.Time, statuses []Status) (int, error)
	CountOverlapping(ctx context.Context, windowStart, windowEnd time.Time, statuses []Status) (int, error)

	// Status transitions
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// Completion worker
	FindFinishedConfirmed(ctx context.Context, now time.Time) ([]Appointment, error)
}
