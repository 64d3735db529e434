package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"stayfinder/internal/database"
	"stayfinder/internal/domain"
	"stayfinder/internal/events"
	"stayfinder/internal/metrics"
	"stayfinder/internal/models"
	"stayfinder/internal/pricing"

	"github.com/rs/zerolog"
)

// roleSystem marks transitions made by background jobs rather than a user.
const roleSystem = "system"

// BookingRequest is the create-booking input. TotalPrice and TotalNights are client hints
// and never stored.
type BookingRequest struct {
	ListingID       int64         `json:"listing_id"`
	CheckIn         string        `json:"check_in"`
	CheckOut        string        `json:"check_out"`
	Guests          int           `json:"guests"`
	AddOns          models.AddOns `json:"add_ons"`
	SpecialRequests string        `json:"special_requests"`
	TotalPrice      *float64      `json:"total_price,omitempty"`
	TotalNights     *int          `json:"total_nights,omitempty"`
}

// Quote is the outcome of a dry-run admission.
type Quote struct {
	Listing *models.Listing
	Stay    domain.DateRange
	Price   models.PriceBreakdown
}

type BookingOptions struct {
	MaxAdvanceDays int
	Location       *time.Location
	Pricing        domain.PricingStrategy
	Clock          domain.Clock
}

type BookingService struct {
	bookings       domain.BookingRepository
	listings       domain.ListingRepository
	eventBus       domain.EventPublisher
	sheetsWorker   domain.SyncWorker
	pricing        domain.PricingStrategy
	maxAdvanceDays int
	loc            *time.Location
	now            domain.Clock
	logger         *zerolog.Logger
}

func NewBookingService(
	bookings domain.BookingRepository,
	listings domain.ListingRepository,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	opts BookingOptions,
	logger *zerolog.Logger,
) *BookingService {
	if opts.MaxAdvanceDays <= 0 {
		opts.MaxAdvanceDays = models.DefaultMaxAdvanceDays
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Pricing == nil {
		opts.Pricing = pricing.NoSurcharge{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &BookingService{
		bookings:       bookings,
		listings:       listings,
		eventBus:       eventBus,
		sheetsWorker:   sheetsWorker,
		pricing:        opts.Pricing,
		maxAdvanceDays: opts.MaxAdvanceDays,
		loc:            opts.Location,
		now:            opts.Clock,
		logger:         logger,
	}
}

// Today is the current calendar date in the configured time zone, as midnight UTC.
func (s *BookingService) Today() time.Time {
	return domain.CalendarDate(s.now(), s.loc)
}

// CreateBooking admits req for userID and stores it as pending.
func (s *BookingService) CreateBooking(ctx context.Context, userID int64, req BookingRequest) (*models.Booking, error) {
	if userID == 0 {
		s.recordAdmission(domain.ErrMissingFields)
		return nil, domain.ErrMissingFields
	}

	quote, err := s.precheck(ctx, req)
	if err != nil {
		s.recordAdmission(err)
		return nil, err
	}
	s.compareHints(req, quote.Price)

	booking := &models.Booking{
		UserID:          userID,
		ListingID:       quote.Listing.ID,
		CheckIn:         quote.Stay.CheckIn,
		CheckOut:        quote.Stay.CheckOut,
		Guests:          req.Guests,
		TotalNights:     quote.Price.Nights,
		BasePrice:       quote.Price.BasePrice,
		AddOnsPrice:     quote.Price.AddOnsPrice,
		TotalPrice:      quote.Price.TotalPrice,
		AddOns:          req.AddOns,
		SpecialRequests: req.SpecialRequests,
		Status:          models.StatusPending,
	}

	err = s.bookings.CreateBookingWithLock(ctx, booking, func(active []models.BookedRange) error {
		return checkOverlap(quote.Stay, active)
	})
	if err != nil {
		s.recordAdmission(err)
		if _, ok := domain.AsRejection(err); ok {
			return nil, err
		}
		return nil, fmt.Errorf("store booking: %w", err)
	}

	s.recordAdmission(nil)
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("listing_id", booking.ListingID).
		Int64("user_id", userID).
		Str("check_in", booking.CheckIn.Format(models.DateLayout)).
		Str("check_out", booking.CheckOut.Format(models.DateLayout)).
		Msg("booking created")

	s.publishEvent(events.EventBookingCreated, booking, quote.Listing, userID)
	s.enqueueSync(ctx, booking, models.SyncTaskUpsert)
	return booking, nil
}

// CheckAvailability runs the whole admission check without storing anything.
func (s *BookingService) CheckAvailability(ctx context.Context, req BookingRequest) (*Quote, error) {
	quote, err := s.precheck(ctx, req)
	if err != nil {
		return nil, err
	}
	active, err := readWithRetry(ctx, func(ctx context.Context) ([]models.BookedRange, error) {
		return s.bookings.GetActiveBookingRanges(ctx, quote.Listing.ID, quote.Stay.CheckIn, quote.Stay.CheckOut)
	})
	if err != nil {
		return nil, fmt.Errorf("load booked ranges: %w", err)
	}
	if err := checkOverlap(quote.Stay, active); err != nil {
		return nil, err
	}
	return quote, nil
}

// precheck runs every admission step that does not need the booking transaction.
func (s *BookingService) precheck(ctx context.Context, req BookingRequest) (*Quote, error) {
	if req.ListingID == 0 || req.CheckIn == "" || req.CheckOut == "" || req.Guests <= 0 {
		return nil, domain.ErrMissingFields
	}

	checkIn, err := domain.ParseDate(req.CheckIn)
	if err != nil {
		return nil, err
	}
	checkOut, err := domain.ParseDate(req.CheckOut)
	if err != nil {
		return nil, err
	}

	today := s.Today()
	if checkIn.Before(today) {
		return nil, domain.ErrPastCheckIn
	}
	if !checkOut.After(checkIn) {
		return nil, domain.ErrInvalidRange
	}
	if checkIn.After(today.AddDate(0, 0, s.maxAdvanceDays)) {
		return nil, domain.ErrDateTooFar
	}

	listing, err := s.getListing(ctx, req.ListingID)
	if err != nil {
		return nil, err
	}
	if req.Guests > listing.MaxGuests {
		return nil, domain.ErrGuestLimitExceeded
	}

	stay := domain.DateRange{CheckIn: checkIn, CheckOut: checkOut}
	return &Quote{
		Listing: listing,
		Stay:    stay,
		Price:   s.pricing.Quote(listing, stay.Nights(), req.Guests, req.AddOns),
	}, nil
}

func checkOverlap(stay domain.DateRange, active []models.BookedRange) error {
	for _, r := range active {
		if stay.Overlaps(domain.DateRange{CheckIn: r.CheckIn, CheckOut: r.CheckOut}) {
			return fmt.Errorf("%w: booking %d holds %s to %s", domain.ErrDatesUnavailable,
				r.BookingID, r.CheckIn.Format(models.DateLayout), r.CheckOut.Format(models.DateLayout))
		}
	}
	return nil
}

func (s *BookingService) compareHints(req BookingRequest, price models.PriceBreakdown) {
	if req.TotalPrice != nil && math.Abs(*req.TotalPrice-price.TotalPrice) > 0.005 {
		s.logger.Debug().
			Float64("client_total", *req.TotalPrice).
			Float64("server_total", price.TotalPrice).
			Msg("ignoring client total price")
	}
	if req.TotalNights != nil && *req.TotalNights != price.Nights {
		s.logger.Debug().
			Int("client_nights", *req.TotalNights).
			Int("server_nights", price.Nights).
			Msg("ignoring client total nights")
	}
}

func (s *BookingService) recordAdmission(err error) {
	if err == nil {
		metrics.IncAdmission("admitted")
		return
	}
	if r, ok := domain.AsRejection(err); ok {
		metrics.IncAdmission(r.Code)
		s.logger.Debug().Str("code", r.Code).Err(err).Msg("booking rejected")
		return
	}
	metrics.IncAdmission("error")
	s.logger.Error().Err(err).Msg("booking admission failed")
}

// GetBooking returns the booking if actorID is its guest or the host of its listing.
func (s *BookingService) GetBooking(ctx context.Context, actorID, id int64) (*models.Booking, error) {
	booking, listing, err := s.loadBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := roleOf(actorID, booking, listing); err != nil {
		return nil, err
	}
	return booking, nil
}

// ListUserBookings returns the stays booked by userID, latest check-in first.
func (s *BookingService) ListUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error) {
	return readWithRetry(ctx, func(ctx context.Context) ([]*models.Booking, error) {
		return s.bookings.GetUserBookings(ctx, userID)
	})
}

// ListListingBookings returns every booking of a listing to its host.
func (s *BookingService) ListListingBookings(ctx context.Context, actorID, listingID int64) ([]*models.Booking, error) {
	listing, err := s.getListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.HostID != actorID {
		return nil, domain.ErrNotAuthorized
	}
	return readWithRetry(ctx, func(ctx context.Context) ([]*models.Booking, error) {
		return s.bookings.GetListingBookings(ctx, listingID)
	})
}

// HostBookings returns the bookings on every listing of hostID with guest details.
func (s *BookingService) HostBookings(ctx context.Context, hostID int64) ([]*models.HostBooking, error) {
	return readWithRetry(ctx, func(ctx context.Context) ([]*models.HostBooking, error) {
		return s.bookings.GetHostBookings(ctx, hostID)
	})
}

// BookedRanges lists the active stays of a listing, optionally limited to [from, to).
func (s *BookingService) BookedRanges(ctx context.Context, listingID int64, from, to time.Time) ([]models.BookedRange, error) {
	if _, err := s.getListing(ctx, listingID); err != nil {
		return nil, err
	}
	return readWithRetry(ctx, func(ctx context.Context) ([]models.BookedRange, error) {
		return s.bookings.GetActiveBookingRanges(ctx, listingID, from, to)
	})
}

// UpdateStatus moves a booking to status on behalf of actorID. Asking for the current
// status returns the booking unchanged.
func (s *BookingService) UpdateStatus(ctx context.Context, actorID, id int64, status string) (*models.Booking, error) {
	if !models.ValidStatus(status) {
		return nil, domain.ErrInvalidStatus
	}
	booking, listing, err := s.loadBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	role, err := roleOf(actorID, booking, listing)
	if err != nil {
		// A stranger cannot tell an existing booking from a missing one.
		return nil, domain.ErrBookingNotFound
	}
	return s.transition(ctx, booking, listing, status, role, actorID)
}

// Cancel is UpdateStatus to cancelled.
func (s *BookingService) Cancel(ctx context.Context, actorID, id int64) (*models.Booking, error) {
	return s.UpdateStatus(ctx, actorID, id, models.StatusCancelled)
}

// Confirm lets the system accept a pending booking.
func (s *BookingService) Confirm(ctx context.Context, id int64) (*models.Booking, error) {
	booking, listing, err := s.loadBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, booking, listing, models.StatusConfirmed, roleSystem, 0)
}

// CompleteFinished marks confirmed stays whose check-out has arrived as completed and
// returns how many changed.
func (s *BookingService) CompleteFinished(ctx context.Context) (int, error) {
	finished, err := readWithRetry(ctx, func(ctx context.Context) ([]*models.Booking, error) {
		return s.bookings.GetFinishedConfirmedBookings(ctx, s.Today())
	})
	if err != nil {
		return 0, fmt.Errorf("load finished bookings: %w", err)
	}

	var (
		done int
		errs []error
	)
	for _, b := range finished {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		listing, err := s.getListing(ctx, b.ListingID)
		if err != nil && !errors.Is(err, domain.ErrListingNotFound) {
			errs = append(errs, err)
			continue
		}
		updated, err := s.transition(ctx, b, listing, models.StatusCompleted, roleSystem, 0)
		if err != nil {
			errs = append(errs, fmt.Errorf("complete booking %d: %w", b.ID, err))
			continue
		}
		if updated.Status == models.StatusCompleted {
			done++
		}
	}
	return done, errors.Join(errs...)
}

// transition applies the state machine with one re-read if the version moved underneath.
func (s *BookingService) transition(ctx context.Context, booking *models.Booking, listing *models.Listing, status, role string, actorID int64) (*models.Booking, error) {
	for attempt := 0; ; attempt++ {
		if booking.Status == status {
			return booking, nil
		}
		if err := checkTransition(booking, status, role, s.Today()); err != nil {
			return nil, err
		}

		err := s.bookings.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version, status)
		if err == nil {
			break
		}
		if !errors.Is(err, database.ErrConcurrentModification) {
			return nil, fmt.Errorf("update booking %d: %w", booking.ID, err)
		}
		if attempt > 0 {
			return nil, domain.ErrBookingModified
		}
		s.logger.Debug().Int64("booking_id", booking.ID).Msg("booking version moved, re-reading")
		if booking, _, err = s.loadBooking(ctx, booking.ID); err != nil {
			return nil, err
		}
	}

	from := booking.Status
	metrics.IncTransition(from, status)
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Str("from", from).
		Str("to", status).
		Str("role", role).
		Msg("booking status changed")

	updated, err := readWithRetry(ctx, func(ctx context.Context) (*models.Booking, error) {
		return s.bookings.GetBooking(ctx, booking.ID)
	})
	if err != nil {
		// The change is committed; report what we know.
		s.logger.Warn().Err(err).Int64("booking_id", booking.ID).Msg("reload after status change failed")
		updated = booking
		updated.Status = status
		updated.Version++
	}

	s.publishEvent(statusEvent(status), updated, listing, actorID)
	s.enqueueSync(ctx, updated, models.SyncTaskUpdateStatus)
	return updated, nil
}

func checkTransition(b *models.Booking, to, role string, today time.Time) error {
	switch {
	case b.Status == models.StatusPending && to == models.StatusConfirmed:
		if role != models.RoleHost && role != roleSystem {
			return domain.ErrNotAuthorized
		}
		return nil
	case b.IsActive() && to == models.StatusCancelled:
		if role == roleSystem {
			return nil
		}
		if !b.CheckIn.After(today) {
			return domain.ErrStayStarted
		}
		return nil
	case b.Status == models.StatusConfirmed && to == models.StatusCompleted:
		if role != roleSystem {
			return fmt.Errorf("%w: bookings complete automatically after check-out", domain.ErrInvalidTransition)
		}
		return nil
	}
	return fmt.Errorf("%w: %s to %s", domain.ErrInvalidTransition, b.Status, to)
}

// roleOf decides whether actorID acts on the booking as the listing host or as its guest.
// A host who booked their own listing acts as host, which can do everything a guest can.
func roleOf(actorID int64, b *models.Booking, listing *models.Listing) (string, error) {
	switch {
	case actorID != 0 && listing != nil && actorID == listing.HostID:
		return models.RoleHost, nil
	case actorID != 0 && actorID == b.UserID:
		return models.RoleGuest, nil
	}
	return "", domain.ErrNotAuthorized
}

func statusEvent(status string) string {
	switch status {
	case models.StatusConfirmed:
		return events.EventBookingConfirmed
	case models.StatusCancelled:
		return events.EventBookingCancelled
	case models.StatusCompleted:
		return events.EventBookingCompleted
	}
	return events.EventBookingCreated
}

// loadBooking reads a booking and, when it still exists, its listing.
func (s *BookingService) loadBooking(ctx context.Context, id int64) (*models.Booking, *models.Listing, error) {
	booking, err := readWithRetry(ctx, func(ctx context.Context) (*models.Booking, error) {
		return s.bookings.GetBooking(ctx, id)
	})
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load booking %d: %w", id, err)
	}

	listing, err := s.getListing(ctx, booking.ListingID)
	if errors.Is(err, domain.ErrListingNotFound) {
		return booking, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return booking, listing, nil
}

func (s *BookingService) getListing(ctx context.Context, id int64) (*models.Listing, error) {
	listing, err := readWithRetry(ctx, func(ctx context.Context) (*models.Listing, error) {
		return s.listings.GetListing(ctx, id)
	})
	if errors.Is(err, database.ErrNotFound) {
		return nil, domain.ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load listing %d: %w", id, err)
	}
	return listing, nil
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking, listing *models.Listing, changedByID int64) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:   booking.ID,
		ListingID:   booking.ListingID,
		GuestID:     booking.UserID,
		CheckIn:     booking.CheckIn.Format(models.DateLayout),
		CheckOut:    booking.CheckOut.Format(models.DateLayout),
		Guests:      booking.Guests,
		TotalPrice:  booking.TotalPrice,
		Status:      booking.Status,
		ChangedByID: changedByID,
	}
	if listing != nil {
		payload.ListingTitle = listing.Title
		payload.HostID = listing.HostID
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, booking *models.Booking, taskType string) {
	if s.sheetsWorker == nil {
		return
	}
	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, booking); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}
