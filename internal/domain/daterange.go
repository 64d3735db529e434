package domain

import (
	"strings"
	"time"

	"stayfinder/internal/models"
)

// DateRange is a half-open stay [CheckIn, CheckOut) with date-only semantics.
type DateRange struct {
	CheckIn  time.Time
	CheckOut time.Time
}

// Overlaps reports whether two half-open ranges share at least one night.
// A stay ending on the day another starts does not overlap it.
func (r DateRange) Overlaps(o DateRange) bool {
	return r.CheckIn.Before(o.CheckOut) && r.CheckOut.After(o.CheckIn)
}

// Nights is the number of calendar days between check-in and check-out.
func (r DateRange) Nights() int {
	return DaysBetween(r.CheckIn, r.CheckOut)
}

// DaysBetween counts whole calendar days from a to b, ignoring time of day and DST shifts.
func DaysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// StartOfDay drops the time of day of t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// ParseDate accepts YYYY-MM-DD or RFC3339 and returns midnight UTC of that calendar date.
// RFC3339 inputs keep the calendar date written by the client, not the UTC-shifted one.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(models.DateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// CalendarDate maps t onto midnight UTC of its calendar date in loc.
func CalendarDate(t time.Time, loc *time.Location) time.Time {
	d := StartOfDay(t, loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}
