// Package pricing computes the price of a stay on the server side.
package pricing

import (
	"math"

	"stayfinder/internal/config"
	"stayfinder/internal/domain"
	"stayfinder/internal/models"
)

// NoSurcharge charges nights × nightly price and nothing for add-ons.
type NoSurcharge struct{}

func (NoSurcharge) Quote(listing *models.Listing, nights, _ int, _ models.AddOns) models.PriceBreakdown {
	base := Round(float64(nights) * listing.Price)
	return models.PriceBreakdown{
		Nights:      nights,
		BasePrice:   base,
		AddOnsPrice: 0,
		TotalPrice:  base,
	}
}

// AddOnFees adds a flat fee for every selected add-on, once per stay or once per night.
type AddOnFees struct {
	Fees     map[string]float64
	PerNight bool
}

func (p AddOnFees) Quote(listing *models.Listing, nights, _ int, addOns models.AddOns) models.PriceBreakdown {
	base := Round(float64(nights) * listing.Price)

	var extra float64
	for _, name := range addOns.Selected() {
		fee := p.Fees[name]
		if p.PerNight {
			fee *= float64(nights)
		}
		extra += fee
	}
	extra = Round(extra)

	return models.PriceBreakdown{
		Nights:      nights,
		BasePrice:   base,
		AddOnsPrice: extra,
		TotalPrice:  Round(base + extra),
	}
}

// FromConfig picks the strategy described by cfg.
func FromConfig(cfg config.AddOnFeesConfig) domain.PricingStrategy {
	if len(cfg.Fees) == 0 {
		return NoSurcharge{}
	}
	fees := make(map[string]float64, len(cfg.Fees))
	for k, v := range cfg.Fees {
		fees[k] = v
	}
	return AddOnFees{Fees: fees, PerNight: cfg.PerNight}
}

// Round rounds to cents.
func Round(v float64) float64 {
	return math.Round(v*100) / 100
}
