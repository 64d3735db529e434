package models

import "time"

type Booking struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	ListingID       int64     `json:"listing_id"`
	CheckIn         time.Time `json:"check_in"`
	CheckOut        time.Time `json:"check_out"`
	Guests          int       `json:"guests"`
	TotalNights     int       `json:"total_nights"`
	BasePrice       float64   `json:"base_price"`
	AddOnsPrice     float64   `json:"add_ons_price"`
	TotalPrice      float64   `json:"total_price"`
	AddOns          AddOns    `json:"add_ons"`
	SpecialRequests string    `json:"special_requests,omitempty"`
	Status          string    `json:"status"` // pending, confirmed, cancelled, completed
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Version         int64     `json:"version"`
}

// AddOns are optional extras a guest may request with a stay.
type AddOns struct {
	Breakfast    bool `json:"breakfast"`
	Parking      bool `json:"parking"`
	ExtraBed     bool `json:"extra_bed"`
	EarlyCheckIn bool `json:"early_check_in"`
	LateCheckOut bool `json:"late_check_out"`
}

// Selected returns the names of the requested add-ons in a stable order.
func (a AddOns) Selected() []string {
	var out []string
	if a.Breakfast {
		out = append(out, AddOnBreakfast)
	}
	if a.Parking {
		out = append(out, AddOnParking)
	}
	if a.ExtraBed {
		out = append(out, AddOnExtraBed)
	}
	if a.EarlyCheckIn {
		out = append(out, AddOnEarlyCheckIn)
	}
	if a.LateCheckOut {
		out = append(out, AddOnLateCheckOut)
	}
	return out
}

// IsActive reports whether the booking still holds its dates.
func (b *Booking) IsActive() bool {
	return b.Status == StatusPending || b.Status == StatusConfirmed
}

// BookedRange is the calendar footprint of an active booking.
type BookedRange struct {
	BookingID int64     `json:"booking_id"`
	CheckIn   time.Time `json:"check_in"`
	CheckOut  time.Time `json:"check_out"`
	Status    string    `json:"status"`
}

// HostBooking is a booking joined with the listing it belongs to, used for host reports.
type HostBooking struct {
	Booking
	ListingTitle string `json:"listing_title"`
	GuestName    string `json:"guest_name"`
	GuestEmail   string `json:"guest_email"`
}

// PriceBreakdown is the server-computed price of a stay.
type PriceBreakdown struct {
	Nights      int     `json:"nights"`
	BasePrice   float64 `json:"base_price"`
	AddOnsPrice float64 `json:"add_ons_price"`
	TotalPrice  float64 `json:"total_price"`
}
