package database

import (
	"context"
	"testing"

	"stayfinder/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListingCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	l := createTestListing(t, db, 7)
	require.NotZero(t, l.ID)

	got, err := db.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "Harbour loft", got.Title)
	assert.Equal(t, []string{"wifi", "kitchen"}, got.Amenities)
	assert.Equal(t, int64(7), got.HostID)

	got.Price = 120
	got.Amenities = nil
	require.NoError(t, db.UpdateListing(ctx, got))

	got, err = db.GetListing(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 120.0, got.Price)
	assert.Equal(t, []string{}, got.Amenities)

	require.NoError(t, db.DeleteListing(ctx, l.ID))
	_, err = db.GetListing(ctx, l.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, db.DeleteListing(ctx, l.ID), ErrNotFound)
	assert.ErrorIs(t, db.UpdateListing(ctx, got), ErrNotFound)
}

func TestCreateListing_RejectsBadRows(t *testing.T) {
	db := setupTestDB(t)
	l := &models.Listing{HostID: 1, Title: "x", Description: "x", Location: "x", Price: 10, MaxGuests: 0, Type: models.PropertyHouse}
	assert.Error(t, db.CreateListing(context.Background(), l))

	l = &models.Listing{HostID: 1, Title: "x", Description: "x", Location: "x", Price: 10, MaxGuests: 1, Type: "castle"}
	assert.Error(t, db.CreateListing(context.Background(), l))
}

func TestSearchListings(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	seed := []*models.Listing{
		{HostID: 1, Title: "Alfama flat", Description: "d", Location: "Lisbon", Price: 80, MaxGuests: 2, Bedrooms: 1, Type: models.PropertyApartment},
		{HostID: 1, Title: "Cascais villa", Description: "d", Location: "Cascais near LISBON", Price: 300, MaxGuests: 8, Bedrooms: 4, Type: models.PropertyHouse},
		{HostID: 2, Title: "Porto hotel", Description: "d", Location: "Porto", Price: 150, MaxGuests: 3, Bedrooms: 1, Type: models.PropertyHotel},
		{HostID: 2, Title: "Odd name", Description: "d", Location: "100%_real", Price: 50, MaxGuests: 1, Bedrooms: 0, Type: models.PropertyHotel},
	}
	for _, l := range seed {
		require.NoError(t, db.CreateListing(ctx, l))
	}

	tests := []struct {
		name   string
		filter models.ListingFilter
		want   []string
	}{
		{"all", models.ListingFilter{}, []string{"Odd name", "Porto hotel", "Cascais villa", "Alfama flat"}},
		{"location substring case insensitive", models.ListingFilter{Location: "lisbon"}, []string{"Cascais villa", "Alfama flat"}},
		{"price window", models.ListingFilter{MinPrice: 100, MaxPrice: 200}, []string{"Porto hotel"}},
		{"type", models.ListingFilter{Type: models.PropertyHouse}, []string{"Cascais villa"}},
		{"bedrooms exact", models.ListingFilter{Bedrooms: 1}, []string{"Porto hotel", "Alfama flat"}},
		{"guests capacity", models.ListingFilter{Guests: 3}, []string{"Porto hotel", "Cascais villa"}},
		{"host", models.ListingFilter{HostID: 2}, []string{"Odd name", "Porto hotel"}},
		{"like wildcards are literal", models.ListingFilter{Location: "%_"}, []string{"Odd name"}},
		{"paged", models.ListingFilter{Limit: 2, Offset: 1}, []string{"Porto hotel", "Cascais villa"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.SearchListings(ctx, tt.filter)
			require.NoError(t, err)
			titles := make([]string, 0, len(got))
			for _, l := range got {
				titles = append(titles, l.Title)
			}
			assert.Equal(t, tt.want, titles)
		})
	}
}

func TestCountActiveBookings(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	l := createTestListing(t, db, 1)

	n, err := db.CountActiveBookings(ctx, l.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	b := newBooking(l.ID, 2, date(t, "2030-01-01"), date(t, "2030-01-03"))
	require.NoError(t, db.CreateBookingWithLock(ctx, b, nil))

	n, err = db.CountActiveBookings(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, db.UpdateBookingStatusWithVersion(ctx, b.ID, b.Version, models.StatusCancelled))
	n, err = db.CountActiveBookings(ctx, l.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}
