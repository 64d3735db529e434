package database

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"stayfinder/internal/domain"
	"stayfinder/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentBooking(t *testing.T) {
	logger := zerolog.Nop()
	dbPath := filepath.Join(t.TempDir(), "concurrency.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	l := createTestListing(t, db, 1)

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make(chan error, numGoroutines)
	admit := func(active []models.BookedRange) error {
		if len(active) > 0 {
			return domain.ErrDatesUnavailable
		}
		return nil
	}

	base := date(t, "2030-06-01")
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			// Every request wants a stay sharing 2030-06-03 with all the others.
			in := base.AddDate(0, 0, id%3)
			b := newBooking(l.ID, int64(id), in, in.AddDate(0, 0, 3))
			results <- db.CreateBookingWithLock(ctx, b, admit)
		}(i)
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		if err == nil {
			successCount++
			continue
		}
		assert.True(t, errors.Is(err, domain.ErrDatesUnavailable), "unexpected error: %v", err)
	}

	assert.Equal(t, 1, successCount, "exactly one overlapping booking may be admitted")

	n, err := db.CountActiveBookings(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
