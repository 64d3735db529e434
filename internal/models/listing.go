package models

import "time"

type Listing struct {
	ID          int64     `json:"id" yaml:"id"`
	HostID      int64     `json:"host_id" yaml:"host_id"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description" yaml:"description"`
	Location    string    `json:"location" yaml:"location"`
	Price       float64   `json:"price" yaml:"price"`
	MaxGuests   int       `json:"max_guests" yaml:"max_guests"`
	Bedrooms    int       `json:"bedrooms" yaml:"bedrooms"`
	HasBathroom bool      `json:"has_bathroom" yaml:"has_bathroom"`
	Type        string    `json:"type" yaml:"type"`
	Amenities   []string  `json:"amenities" yaml:"amenities"`
	Image       string    `json:"image,omitempty" yaml:"image"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"-"`
}

// ListingFilter narrows a listing search. Zero values are ignored.
type ListingFilter struct {
	Location string
	MinPrice float64
	MaxPrice float64
	Type     string
	Bedrooms int
	Guests   int
	HostID   int64
	Limit    int
	Offset   int
}
