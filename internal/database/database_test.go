package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stayfinder/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse(models.DateLayout, s)
	require.NoError(t, err)
	return d
}

func createTestListing(t *testing.T, db *DB, hostID int64) *models.Listing {
	t.Helper()
	l := &models.Listing{
		HostID:      hostID,
		Title:       "Harbour loft",
		Description: "Two rooms over the water",
		Location:    "Lisbon, Portugal",
		Price:       100,
		MaxGuests:   4,
		Bedrooms:    2,
		HasBathroom: true,
		Type:        models.PropertyApartment,
		Amenities:   []string{"wifi", "kitchen"},
	}
	require.NoError(t, db.CreateListing(context.Background(), l))
	return l
}

func newBooking(listingID, userID int64, in, out time.Time) *models.Booking {
	return &models.Booking{
		UserID:      userID,
		ListingID:   listingID,
		CheckIn:     in,
		CheckOut:    out,
		Guests:      2,
		TotalNights: int(out.Sub(in).Hours() / 24),
		BasePrice:   100,
		TotalPrice:  100,
		Status:      models.StatusPending,
	}
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
	assert.Equal(t, dbPath, db.Path())
}

func TestNewDB_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	createTestListing(t, db, 1)
	require.NoError(t, db.Close())

	// Schema creation and column migration must be idempotent.
	db, err = NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	listings, err := db.SearchListings(context.Background(), models.ListingFilter{})
	require.NoError(t, err)
	assert.Len(t, listings, 1)
}

func TestEnsureColumn_Twice(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, db.ensureColumn("users", "telegram_chat_id", "INTEGER NOT NULL DEFAULT 0"))
}

func TestDB_Ready(t *testing.T) {
	db := setupTestDB(t)
	assert.NoError(t, db.Ready(context.Background()))
}

func TestNewDB_BadPath(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0o644))
	logger := zerolog.Nop()

	// Parent "directory" is a regular file.
	_, err := NewDB(filepath.Join(f, "db.sqlite"), &logger)
	assert.Error(t, err)
}
