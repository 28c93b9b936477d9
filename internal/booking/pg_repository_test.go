package booking

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRow feeds canned column values through the pgx.Row interface.
type fakeRow struct {
	values []any
}

func (r fakeRow) Scan(dest ...any) error {
	for i, d := range dest {
		switch out := d.(type) {
		case *uuid.UUID:
			*out = r.values[i].(uuid.UUID)
		case *time.Time:
			*out = r.values[i].(time.Time)
		case *string:
			*out = r.values[i].(string)
		case **string:
			if r.values[i] == nil {
				*out = nil
			} else {
				s := r.values[i].(string)
				*out = &s
			}
		}
	}
	return nil
}

func rowWithStatus(status string) fakeRow {
	id := uuid.New()
	start := time.Date(2026, time.September, 14, 10, 0, 0, 0, time.UTC)
	return fakeRow{values: []any{
		id,
		start,
		start.Add(30 * time.Minute),
		status,
		"Ada",
		nil,
		nil,
		start,
		start,
	}}
}

func TestScanAppointmentNormalizesStatus(t *testing.T) {
	a, err := scanAppointment(rowWithStatus("CONFIRMED"))
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, a.Status)
	require.NotNil(t, a.CustomerName)
	assert.Equal(t, "Ada", *a.CustomerName)
	assert.Nil(t, a.Notes)
}

func TestScanAppointmentRejectsUnknownStatus(t *testing.T) {
	// A row edited past the CHECK constraint must not reach the engine.
	_, err := scanAppointment(rowWithStatus("booked"))
	assert.Error(t, err)
}
