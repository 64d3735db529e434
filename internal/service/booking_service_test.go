package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"stayfinder/internal/database"
	"stayfinder/internal/domain"
	"stayfinder/internal/events"
	"stayfinder/internal/models"
	"stayfinder/internal/pricing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockWorker struct {
	mock.Mock
}

func (m *mockWorker) EnqueueTask(ctx context.Context, taskType string, b *models.Booking) error {
	return m.Called(ctx, taskType, b).Error(0)
}

// eventRecorder collects the types published on a real bus.
type eventRecorder struct {
	mu    sync.Mutex
	types []string
}

func (r *eventRecorder) handle(e *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, e.Type)
	return nil
}

func (r *eventRecorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.types {
		if t == eventType {
			n++
		}
	}
	return n
}

type bookingFixture struct {
	db      *database.DB
	svc     *BookingService
	worker  *mockWorker
	events  *eventRecorder
	listing *models.Listing
	now     time.Time
}

const (
	hostID  int64 = 100
	guestID int64 = 200
	otherID int64 = 300
)

// newBookingFixture builds a service over a file database with "now" at 2025-05-20 noon UTC
// and one listing: max 4 guests, 100 per night.
func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "bookings.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	listing := &models.Listing{
		HostID:      hostID,
		Title:       "Harbour loft",
		Description: "Two rooms over the water",
		Location:    "Lisbon",
		Price:       100,
		MaxGuests:   4,
		Bedrooms:    2,
		HasBathroom: true,
		Type:        models.PropertyApartment,
	}
	require.NoError(t, db.CreateListing(context.Background(), listing))

	f := &bookingFixture{
		db:      db,
		worker:  new(mockWorker),
		events:  &eventRecorder{},
		listing: listing,
		now:     time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC),
	}
	f.worker.On("EnqueueTask", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	bus := events.NewEventBus()
	bus.SubscribeAll(f.events.handle)

	f.svc = NewBookingService(db, db, bus, f.worker, BookingOptions{
		Clock: func() time.Time { return f.now },
	}, &logger)
	return f
}

func (f *bookingFixture) book(t *testing.T, in, out string, guests int) (*models.Booking, error) {
	t.Helper()
	return f.svc.CreateBooking(context.Background(), guestID, BookingRequest{
		ListingID: f.listing.ID,
		CheckIn:   in,
		CheckOut:  out,
		Guests:    guests,
	})
}

func assertRejected(t *testing.T, err error, want *domain.Rejection) {
	t.Helper()
	require.Error(t, err)
	r, ok := domain.AsRejection(err)
	require.True(t, ok, "expected a rejection, got %v", err)
	assert.Equal(t, want.Code, r.Code)
}

func TestCreateBooking_Scenarios(t *testing.T) {
	f := newBookingFixture(t)

	a, err := f.book(t, "2025-06-01", "2025-06-05", 2)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, a.Status)
	assert.Equal(t, 4, a.TotalNights)
	assert.Equal(t, 400.0, a.TotalPrice)
	assert.Equal(t, int64(1), a.Version)

	_, err = f.book(t, "2025-06-04", "2025-06-06", 2)
	assertRejected(t, err, domain.ErrDatesUnavailable)

	c, err := f.book(t, "2025-06-05", "2025-06-07", 2)
	require.NoError(t, err, "stays touching at check-out do not overlap")
	assert.Equal(t, 2, c.TotalNights)

	_, err = f.book(t, "2025-07-01", "2025-07-03", 5)
	assertRejected(t, err, domain.ErrGuestLimitExceeded)

	_, err = f.book(t, "2025-05-19", "2025-05-22", 2)
	assertRejected(t, err, domain.ErrPastCheckIn)

	assert.Equal(t, 2, f.events.count(events.EventBookingCreated))
	f.worker.AssertNumberOfCalls(t, "EnqueueTask", 2)
}

func TestCreateBooking_AdmissionOrder(t *testing.T) {
	f := newBookingFixture(t)
	_, err := f.book(t, "2025-06-01", "2025-06-05", 2)
	require.NoError(t, err)

	tests := []struct {
		name string
		req  BookingRequest
		want *domain.Rejection
	}{
		{"missing guests", BookingRequest{ListingID: f.listing.ID, CheckIn: "2025-06-10", CheckOut: "2025-06-12"}, domain.ErrMissingFields},
		{"missing listing", BookingRequest{CheckIn: "2025-06-10", CheckOut: "2025-06-12", Guests: 1}, domain.ErrMissingFields},
		{"bad date", BookingRequest{ListingID: f.listing.ID, CheckIn: "June 10", CheckOut: "2025-06-12", Guests: 1}, domain.ErrInvalidDate},
		{"past wins over guest limit", BookingRequest{ListingID: f.listing.ID, CheckIn: "2025-05-01", CheckOut: "2025-05-03", Guests: 9}, domain.ErrPastCheckIn},
		{"past wins over missing listing", BookingRequest{ListingID: 999, CheckIn: "2025-05-01", CheckOut: "2025-05-03", Guests: 1}, domain.ErrPastCheckIn},
		{"same day", BookingRequest{ListingID: f.listing.ID, CheckIn: "2025-06-10", CheckOut: "2025-06-10", Guests: 1}, domain.ErrInvalidRange},
		{"reversed", BookingRequest{ListingID: f.listing.ID, CheckIn: "2025-06-12", CheckOut: "2025-06-10", Guests: 1}, domain.ErrInvalidRange},
		{"too far", BookingRequest{ListingID: f.listing.ID, CheckIn: "2026-06-01", CheckOut: "2026-06-03", Guests: 1}, domain.ErrDateTooFar},
		{"unknown listing", BookingRequest{ListingID: 999, CheckIn: "2025-06-10", CheckOut: "2025-06-12", Guests: 1}, domain.ErrListingNotFound},
		{"guest limit wins over overlap", BookingRequest{ListingID: f.listing.ID, CheckIn: "2025-06-02", CheckOut: "2025-06-03", Guests: 5}, domain.ErrGuestLimitExceeded},
		{"overlap", BookingRequest{ListingID: f.listing.ID, CheckIn: "2025-05-30", CheckOut: "2025-06-02", Guests: 1}, domain.ErrDatesUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateBooking(context.Background(), guestID, tt.req)
			assertRejected(t, err, tt.want)
		})
	}
}

func TestCreateBooking_TodayIsAllowed(t *testing.T) {
	f := newBookingFixture(t)
	b, err := f.book(t, "2025-05-20", "2025-05-21", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, b.TotalNights)
}

func TestCreateBooking_UsesReferenceTimeZone(t *testing.T) {
	f := newBookingFixture(t)
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	logger := zerolog.Nop()
	// 2025-05-20 20:00 UTC is already 2025-05-21 in Tokyo.
	now := time.Date(2025, 5, 20, 20, 0, 0, 0, time.UTC)
	svc := NewBookingService(f.db, f.db, nil, nil, BookingOptions{
		Location: tokyo,
		Clock:    func() time.Time { return now },
	}, &logger)

	_, err = svc.CreateBooking(context.Background(), guestID, BookingRequest{
		ListingID: f.listing.ID, CheckIn: "2025-05-20", CheckOut: "2025-05-22", Guests: 1,
	})
	assertRejected(t, err, domain.ErrPastCheckIn)
}

func TestCreateBooking_IgnoresClientTotals(t *testing.T) {
	f := newBookingFixture(t)
	price := 1.0
	nights := 10
	b, err := f.svc.CreateBooking(context.Background(), guestID, BookingRequest{
		ListingID:   f.listing.ID,
		CheckIn:     "2025-06-01",
		CheckOut:    "2025-06-03",
		Guests:      2,
		TotalPrice:  &price,
		TotalNights: &nights,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, b.TotalNights)
	assert.Equal(t, 200.0, b.TotalPrice)

	stored, err := f.db.GetBooking(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, 200.0, stored.TotalPrice)
}

func TestCreateBooking_AddOnPricing(t *testing.T) {
	f := newBookingFixture(t)
	logger := zerolog.Nop()
	svc := NewBookingService(f.db, f.db, nil, nil, BookingOptions{
		Pricing: pricing.AddOnFees{Fees: map[string]float64{models.AddOnBreakfast: 15}, PerNight: true},
		Clock:   func() time.Time { return f.now },
	}, &logger)

	b, err := svc.CreateBooking(context.Background(), guestID, BookingRequest{
		ListingID: f.listing.ID,
		CheckIn:   "2025-06-01",
		CheckOut:  "2025-06-04",
		Guests:    2,
		AddOns:    models.AddOns{Breakfast: true, Parking: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 300.0, b.BasePrice)
	assert.Equal(t, 45.0, b.AddOnsPrice)
	assert.Equal(t, 345.0, b.TotalPrice)
	assert.True(t, b.AddOns.Parking)
}

func TestCreateBooking_Concurrent(t *testing.T) {
	f := newBookingFixture(t)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := time.Date(2025, 6, 1+i%3, 0, 0, 0, 0, time.UTC)
			_, err := f.svc.CreateBooking(context.Background(), int64(1000+i), BookingRequest{
				ListingID: f.listing.ID,
				CheckIn:   in.Format(models.DateLayout),
				CheckOut:  in.AddDate(0, 0, 3).Format(models.DateLayout),
				Guests:    1,
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var ok, unavailable int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrDatesUnavailable):
			unavailable++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, unavailable)
}

func TestCheckAvailability(t *testing.T) {
	f := newBookingFixture(t)
	_, err := f.book(t, "2025-06-01", "2025-06-05", 2)
	require.NoError(t, err)

	q, err := f.svc.CheckAvailability(context.Background(), BookingRequest{
		ListingID: f.listing.ID, CheckIn: "2025-06-05", CheckOut: "2025-06-08", Guests: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, q.Price.Nights)
	assert.Equal(t, 300.0, q.Price.TotalPrice)

	_, err = f.svc.CheckAvailability(context.Background(), BookingRequest{
		ListingID: f.listing.ID, CheckIn: "2025-06-04", CheckOut: "2025-06-08", Guests: 3,
	})
	assertRejected(t, err, domain.ErrDatesUnavailable)

	ranges, err := f.svc.BookedRanges(context.Background(), f.listing.ID, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, ranges, 1, "a dry run never stores a booking")
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("HostConfirmsIdempotently", func(t *testing.T) {
		f := newBookingFixture(t)
		b, err := f.book(t, "2025-06-01", "2025-06-05", 2)
		require.NoError(t, err)

		confirmed, err := f.svc.UpdateStatus(ctx, hostID, b.ID, models.StatusConfirmed)
		require.NoError(t, err)
		assert.Equal(t, models.StatusConfirmed, confirmed.Status)
		assert.Equal(t, int64(2), confirmed.Version)

		again, err := f.svc.UpdateStatus(ctx, hostID, b.ID, models.StatusConfirmed)
		require.NoError(t, err)
		assert.Equal(t, confirmed.Version, again.Version)
		assert.Equal(t, 1, f.events.count(events.EventBookingConfirmed))
	})

	t.Run("GuestCannotConfirm", func(t *testing.T) {
		f := newBookingFixture(t)
		b, err := f.book(t, "2025-06-01", "2025-06-05", 2)
		require.NoError(t, err)

		_, err = f.svc.UpdateStatus(ctx, guestID, b.ID, models.StatusConfirmed)
		assertRejected(t, err, domain.ErrNotAuthorized)
	})

	t.Run("StrangerIsRejected", func(t *testing.T) {
		f := newBookingFixture(t)
		b, err := f.book(t, "2025-06-01", "2025-06-05", 2)
		require.NoError(t, err)

		_, err = f.svc.UpdateStatus(ctx, otherID, b.ID, models.StatusCancelled)
		assertRejected(t, err, domain.ErrBookingNotFound)
		_, err = f.svc.Cancel(ctx, otherID, b.ID)
		assertRejected(t, err, domain.ErrBookingNotFound)
		_, err = f.svc.UpdateStatus(ctx, otherID, b.ID+100, models.StatusCancelled)
		assertRejected(t, err, domain.ErrBookingNotFound)
		_, err = f.svc.GetBooking(ctx, otherID, b.ID)
		assertRejected(t, err, domain.ErrNotAuthorized)

		unchanged, err := f.svc.GetBooking(ctx, guestID, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, unchanged.Status)
	})

	t.Run("HostConfirmsOwnStay", func(t *testing.T) {
		f := newBookingFixture(t)
		b, err := f.svc.CreateBooking(ctx, hostID, BookingRequest{
			ListingID: f.listing.ID,
			CheckIn:   "2025-06-01",
			CheckOut:  "2025-06-03",
			Guests:    1,
		})
		require.NoError(t, err)

		confirmed, err := f.svc.UpdateStatus(ctx, hostID, b.ID, models.StatusConfirmed)
		require.NoError(t, err)
		assert.Equal(t, models.StatusConfirmed, confirmed.Status)

		cancelled, err := f.svc.Cancel(ctx, hostID, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, cancelled.Status)
	})

	t.Run("GuestCancelsAndTerminalStays", func(t *testing.T) {
		f := newBookingFixture(t)
		b, err := f.book(t, "2025-06-01", "2025-06-05", 2)
		require.NoError(t, err)

		cancelled, err := f.svc.Cancel(ctx, guestID, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, cancelled.Status)

		_, err = f.svc.UpdateStatus(ctx, hostID, b.ID, models.StatusConfirmed)
		assertRejected(t, err, domain.ErrInvalidTransition)

		// The freed dates can be booked again.
		_, err = f.book(t, "2025-06-02", "2025-06-04", 2)
		assert.NoError(t, err)
	})

	t.Run("NoCancelOnceStarted", func(t *testing.T) {
		f := newBookingFixture(t)
		b, err := f.book(t, "2025-06-01", "2025-06-05", 2)
		require.NoError(t, err)

		f.now = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
		_, err = f.svc.Cancel(ctx, guestID, b.ID)
		assertRejected(t, err, domain.ErrStayStarted)
		_, err = f.svc.Cancel(ctx, hostID, b.ID)
		assertRejected(t, err, domain.ErrStayStarted)
	})

	t.Run("CompletionIsAutomatic", func(t *testing.T) {
		f := newBookingFixture(t)
		b, err := f.book(t, "2025-06-01", "2025-06-05", 2)
		require.NoError(t, err)
		_, err = f.svc.UpdateStatus(ctx, hostID, b.ID, models.StatusConfirmed)
		require.NoError(t, err)

		_, err = f.svc.UpdateStatus(ctx, hostID, b.ID, models.StatusCompleted)
		assertRejected(t, err, domain.ErrInvalidTransition)
	})

	t.Run("UnknownStatus", func(t *testing.T) {
		f := newBookingFixture(t)
		_, err := f.svc.UpdateStatus(ctx, hostID, 1, "archived")
		assertRejected(t, err, domain.ErrInvalidStatus)
	})

	t.Run("UnknownBooking", func(t *testing.T) {
		f := newBookingFixture(t)
		_, err := f.svc.UpdateStatus(ctx, hostID, 42, models.StatusConfirmed)
		assertRejected(t, err, domain.ErrBookingNotFound)
	})
}

func TestCompleteFinished(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)

	stay, err := f.book(t, "2025-06-01", "2025-06-05", 2)
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, stay.ID)
	require.NoError(t, err)
	pending, err := f.book(t, "2025-06-05", "2025-06-07", 2)
	require.NoError(t, err)

	f.now = time.Date(2025, 6, 5, 8, 0, 0, 0, time.UTC)
	n, err := f.svc.CompleteFinished(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.GetBooking(ctx, guestID, stay.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)

	got, err = f.svc.GetBooking(ctx, hostID, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)

	n, err = f.svc.CompleteFinished(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, f.events.count(events.EventBookingCompleted))
}

func TestBookingLists(t *testing.T) {
	ctx := context.Background()
	f := newBookingFixture(t)
	_, err := f.book(t, "2025-06-01", "2025-06-05", 2)
	require.NoError(t, err)

	list, err := f.svc.ListListingBookings(ctx, hostID, f.listing.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.ListListingBookings(ctx, guestID, f.listing.ID)
	assertRejected(t, err, domain.ErrNotAuthorized)

	mine, err := f.svc.ListUserBookings(ctx, guestID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	host, err := f.svc.HostBookings(ctx, hostID)
	require.NoError(t, err)
	require.Len(t, host, 1)
	assert.Equal(t, "Harbour loft", host[0].ListingTitle)

	_, err = f.svc.BookedRanges(ctx, 999, time.Time{}, time.Time{})
	assertRejected(t, err, domain.ErrListingNotFound)
}

type mockBookingRepo struct {
	mock.Mock
	domain.BookingRepository
}

func (m *mockBookingRepo) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockBookingRepo) UpdateBookingStatusWithVersion(ctx context.Context, id, version int64, status string) error {
	return m.Called(ctx, id, version, status).Error(0)
}

type mockListingRepo struct {
	mock.Mock
	domain.ListingRepository
}

func (m *mockListingRepo) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

func pendingBooking(version int64, status string) *models.Booking {
	return &models.Booking{
		ID:        7,
		UserID:    guestID,
		ListingID: 1,
		CheckIn:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		CheckOut:  time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
		Status:    status,
		Version:   version,
	}
}

func newMockedService(bookings *mockBookingRepo, listings *mockListingRepo) *BookingService {
	logger := zerolog.Nop()
	now := time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)
	return NewBookingService(bookings, listings, nil, nil, BookingOptions{
		Clock: func() time.Time { return now },
	}, &logger)
}

func TestUpdateStatus_VersionConflict(t *testing.T) {
	ctx := context.Background()
	listing := &models.Listing{ID: 1, HostID: hostID, Title: "Loft"}

	t.Run("RetriesOnceAfterReread", func(t *testing.T) {
		bookings := new(mockBookingRepo)
		listings := new(mockListingRepo)
		listings.On("GetListing", mock.Anything, int64(1)).Return(listing, nil)

		bookings.On("GetBooking", mock.Anything, int64(7)).Return(pendingBooking(1, models.StatusPending), nil).Once()
		bookings.On("UpdateBookingStatusWithVersion", mock.Anything, int64(7), int64(1), models.StatusConfirmed).
			Return(database.ErrConcurrentModification).Once()
		bookings.On("GetBooking", mock.Anything, int64(7)).Return(pendingBooking(2, models.StatusPending), nil).Once()
		bookings.On("UpdateBookingStatusWithVersion", mock.Anything, int64(7), int64(2), models.StatusConfirmed).
			Return(nil).Once()
		bookings.On("GetBooking", mock.Anything, int64(7)).Return(pendingBooking(3, models.StatusConfirmed), nil).Once()

		got, err := newMockedService(bookings, listings).UpdateStatus(ctx, hostID, 7, models.StatusConfirmed)
		require.NoError(t, err)
		assert.Equal(t, int64(3), got.Version)
		bookings.AssertExpectations(t)
	})

	t.Run("RereadSeesTargetStatus", func(t *testing.T) {
		bookings := new(mockBookingRepo)
		listings := new(mockListingRepo)
		listings.On("GetListing", mock.Anything, int64(1)).Return(listing, nil)

		bookings.On("GetBooking", mock.Anything, int64(7)).Return(pendingBooking(1, models.StatusPending), nil).Once()
		bookings.On("UpdateBookingStatusWithVersion", mock.Anything, int64(7), int64(1), models.StatusCancelled).
			Return(database.ErrConcurrentModification).Once()
		bookings.On("GetBooking", mock.Anything, int64(7)).Return(pendingBooking(2, models.StatusCancelled), nil).Once()

		got, err := newMockedService(bookings, listings).UpdateStatus(ctx, guestID, 7, models.StatusCancelled)
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelled, got.Status)
		bookings.AssertExpectations(t)
	})

	t.Run("GivesUpAfterSecondConflict", func(t *testing.T) {
		bookings := new(mockBookingRepo)
		listings := new(mockListingRepo)
		listings.On("GetListing", mock.Anything, int64(1)).Return(listing, nil)

		bookings.On("GetBooking", mock.Anything, int64(7)).Return(pendingBooking(1, models.StatusPending), nil)
		bookings.On("UpdateBookingStatusWithVersion", mock.Anything, int64(7), int64(1), models.StatusConfirmed).
			Return(database.ErrConcurrentModification)

		_, err := newMockedService(bookings, listings).UpdateStatus(ctx, hostID, 7, models.StatusConfirmed)
		assertRejected(t, err, domain.ErrBookingModified)
		bookings.AssertNumberOfCalls(t, "UpdateBookingStatusWithVersion", 2)
	})
}

func TestReadWithRetry(t *testing.T) {
	ctx := context.Background()

	calls := 0
	v, err := readWithRetry(ctx, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("database is locked")
		}
		return 5, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	assert.Equal(t, 2, calls)

	calls = 0
	_, err = readWithRetry(ctx, func(context.Context) (int, error) {
		calls++
		return 0, database.ErrNotFound
	})
	assert.ErrorIs(t, err, database.ErrNotFound)
	assert.Equal(t, 1, calls)

	calls = 0
	_, err = readWithRetry(ctx, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("disk I/O error")
	})
	assert.Error(t, err)
	assert.Equal(t, 2, calls, "a read is retried exactly once")
}
