package domain

import (
	"context"
	"time"

	"stayfinder/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// AdmitFunc runs inside the booking insert transaction with the active ranges of the listing.
// Returning an error aborts the insert.
type AdmitFunc func(active []models.BookedRange) error

type ListingRepository interface {
	GetListing(ctx context.Context, id int64) (*models.Listing, error)
	CreateListing(ctx context.Context, listing *models.Listing) error
	UpdateListing(ctx context.Context, listing *models.Listing) error
	DeleteListing(ctx context.Context, id int64) error
	SearchListings(ctx context.Context, filter models.ListingFilter) ([]*models.Listing, error)
	CountActiveBookings(ctx context.Context, listingID int64) (int, error)
}

type BookingRepository interface {
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	CreateBookingWithLock(ctx context.Context, booking *models.Booking, admit AdmitFunc) error
	GetActiveBookingRanges(ctx context.Context, listingID int64, from, to time.Time) ([]models.BookedRange, error)
	UpdateBookingStatusWithVersion(ctx context.Context, id, version int64, status string) error
	GetUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error)
	GetListingBookings(ctx context.Context, listingID int64) ([]*models.Booking, error)
	GetHostBookings(ctx context.Context, hostID int64) ([]*models.HostBooking, error)
	GetFinishedConfirmedBookings(ctx context.Context, today time.Time) ([]*models.Booking, error)
}

type UserRepository interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	UpsertUser(ctx context.Context, user *models.User) error
}

// ListingCache keeps recently read listings close to the API.
type ListingCache interface {
	GetListing(ctx context.Context, id int64) (*models.Listing, error)
	SetListing(ctx context.Context, listing *models.Listing) error
	Invalidate(ctx context.Context, id int64) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, booking *models.Booking) error
}

// PricingStrategy turns a stay into its price breakdown.
type PricingStrategy interface {
	Quote(listing *models.Listing, nights int, guests int, addOns models.AddOns) models.PriceBreakdown
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Clock returns the current instant; services take one so tests can pin "today".
type Clock func() time.Time
