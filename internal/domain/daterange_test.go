package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestDateRangeOverlaps(t *testing.T) {
	a := DateRange{CheckIn: day("2025-06-01"), CheckOut: day("2025-06-05")}

	tests := []struct {
		name string
		b    DateRange
		want bool
	}{
		{"overlaps last night", DateRange{day("2025-06-04"), day("2025-06-06")}, true},
		{"touches end", DateRange{day("2025-06-05"), day("2025-06-07")}, false},
		{"touches start", DateRange{day("2025-05-28"), day("2025-06-01")}, false},
		{"contained", DateRange{day("2025-06-02"), day("2025-06-03")}, true},
		{"contains", DateRange{day("2025-05-01"), day("2025-07-01")}, true},
		{"identical", a, true},
		{"disjoint", DateRange{day("2025-07-01"), day("2025-07-03")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Overlaps(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(a))
		})
	}
}

func TestNights(t *testing.T) {
	r := DateRange{CheckIn: day("2025-06-01"), CheckOut: day("2025-06-05")}
	assert.Equal(t, 4, r.Nights())

	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	// Spans the spring DST switch; still three calendar days.
	in := time.Date(2025, 3, 29, 0, 0, 0, 0, loc)
	out := time.Date(2025, 4, 1, 0, 0, 0, 0, loc)
	assert.Equal(t, 3, DaysBetween(in, out))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-06-01")
	require.NoError(t, err)
	assert.Equal(t, day("2025-06-01"), d)

	d, err = ParseDate("2025-06-01T23:30:00-05:00")
	require.NoError(t, err)
	assert.Equal(t, day("2025-06-01"), d)

	_, err = ParseDate("01/06/2025")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestCalendarDate(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	now := time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC) // already June 2 in Tokyo
	assert.Equal(t, day("2025-06-02"), CalendarDate(now, loc))
	assert.Equal(t, day("2025-06-01"), CalendarDate(now, time.UTC))
}

func TestAsRejection(t *testing.T) {
	err := wrap(ErrGuestLimitExceeded)
	r, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, "GuestLimitExceeded", r.Code)
	assert.Equal(t, ClassValidation, r.Class)

	_, ok = AsRejection(assert.AnError)
	assert.False(t, ok)
}

func wrap(err error) error {
	return &wrapped{err}
}

type wrapped struct{ err error }

func (w *wrapped) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrapped) Unwrap() error { return w.err }
