package domain

import "errors"

// Class groups rejections by how a caller is expected to react.
type Class string

const (
	ClassValidation Class = "validation"
	ClassNotFound   Class = "not_found"
	ClassConflict   Class = "conflict"
	ClassForbidden  Class = "forbidden"
)

// Rejection is a client-correctable refusal of an operation.
type Rejection struct {
	Code    string
	Class   Class
	Message string
}

func (r *Rejection) Error() string {
	return r.Message
}

func newRejection(code string, class Class, msg string) *Rejection {
	return &Rejection{Code: code, Class: class, Message: msg}
}

var (
	ErrMissingFields      = newRejection("MissingFields", ClassValidation, "please provide all required fields")
	ErrInvalidDate        = newRejection("InvalidDate", ClassValidation, "dates must be formatted as YYYY-MM-DD")
	ErrPastCheckIn        = newRejection("PastCheckIn", ClassValidation, "check-in date cannot be in the past")
	ErrInvalidRange       = newRejection("InvalidRange", ClassValidation, "check-out date must be after check-in date")
	ErrDateTooFar         = newRejection("DateTooFar", ClassValidation, "check-in date is too far in the future")
	ErrGuestLimitExceeded = newRejection("GuestLimitExceeded", ClassValidation, "too many guests for this listing")
	ErrInvalidListing     = newRejection("InvalidListing", ClassValidation, "listing validation failed")
	ErrInvalidStatus      = newRejection("InvalidStatus", ClassValidation, "invalid booking status")
	ErrInvalidTransition  = newRejection("InvalidTransition", ClassConflict, "booking status cannot be changed")
	ErrStayStarted        = newRejection("StayStarted", ClassConflict, "cannot cancel a booking that has already started")
	ErrBookingModified    = newRejection("BookingModified", ClassConflict, "booking was changed by someone else, reload and retry")
	ErrListingNotFound    = newRejection("ListingNotFound", ClassNotFound, "listing not found")
	ErrBookingNotFound    = newRejection("BookingNotFound", ClassNotFound, "booking not found")
	ErrUserNotFound       = newRejection("UserNotFound", ClassNotFound, "user not found")
	ErrDatesUnavailable   = newRejection("DatesUnavailable", ClassConflict, "these dates are not available")
	ErrListingHasBookings = newRejection("ListingHasBookings", ClassConflict, "listing has active bookings")
	ErrNotAuthorized      = newRejection("NotAuthorized", ClassForbidden, "not authorized")
)

// AsRejection unwraps err into a Rejection when it carries one.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}
