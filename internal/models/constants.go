package models

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

const (
	PropertyHotel     = "hotel"
	PropertyApartment = "apartment"
	PropertyHouse     = "house"
)

const (
	RoleGuest = "guest"
	RoleHost  = "host"
)

const (
	AddOnBreakfast    = "breakfast"
	AddOnParking      = "parking"
	AddOnExtraBed     = "extra_bed"
	AddOnEarlyCheckIn = "early_check_in"
	AddOnLateCheckOut = "late_check_out"
)

// DateLayout is the storage and wire format of stay dates.
const DateLayout = "2006-01-02"

const (
	// DefaultMaxAdvanceDays limits how far ahead a stay may start.
	DefaultMaxAdvanceDays = 365

	// DefaultMaxImageBytes mirrors the document size ceiling of the listing image payload.
	DefaultMaxImageBytes = 16 * 1024 * 1024

	// ListingCacheTTL is how long a listing snapshot stays in the cache, in seconds.
	ListingCacheTTL = 10 * 60

	// WorkerQueueSize is the in-memory buffer of the sync worker.
	WorkerQueueSize = 128
)

// ValidStatus reports whether s is a known booking status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// ValidPropertyType reports whether t is one of the supported property types.
func ValidPropertyType(t string) bool {
	switch t {
	case PropertyHotel, PropertyApartment, PropertyHouse:
		return true
	}
	return false
}
