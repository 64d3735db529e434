package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"stayfinder/internal/config"
	"stayfinder/internal/database"
	"stayfinder/internal/events"
	"stayfinder/internal/models"
	"stayfinder/internal/worker"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmBooking(t *testing.T) {
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "worker.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()

	listing := &models.Listing{
		HostID:    1,
		Title:     "Harbour loft",
		Location:  "Lisbon",
		Price:     100,
		MaxGuests: 2,
		Type:      models.PropertyApartment,
	}
	require.NoError(t, db.CreateListing(ctx, listing))
	in := time.Date(2030, 7, 1, 0, 0, 0, 0, time.UTC)
	booking := &models.Booking{
		UserID:      2,
		ListingID:   listing.ID,
		CheckIn:     in,
		CheckOut:    in.AddDate(0, 0, 2),
		Guests:      2,
		TotalNights: 2,
		BasePrice:   200,
		TotalPrice:  200,
		Status:      models.StatusPending,
	}
	require.NoError(t, db.CreateBookingWithLock(ctx, booking, nil))

	bus := events.NewEventBus()
	var confirmed int
	bus.Subscribe(events.EventBookingConfirmed, func(*events.Event) error {
		confirmed++
		return nil
	})
	bookings := newBookingService(&config.Config{}, db, bus, worker.NewSheetsEnqueuer(db, nil, &logger), &logger)

	require.NoError(t, confirmBooking(ctx, bookings, booking.ID, &logger))

	stored, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, stored.Status)
	assert.Equal(t, 1, confirmed)

	tasks, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, models.SyncTaskUpdateStatus, tasks[0].TaskType)
	assert.Equal(t, booking.ID, tasks[0].BookingID)

	_, err = bookings.Cancel(ctx, 2, booking.ID)
	require.NoError(t, err)
	assert.Error(t, confirmBooking(ctx, bookings, booking.ID, &logger), "a cancelled booking stays cancelled")
	assert.Error(t, confirmBooking(ctx, bookings, 999, &logger))
}
