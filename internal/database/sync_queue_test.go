package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"stayfinder/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queueBookingTask stores a sheet task whose payload carries the booking, the way the
// sheets worker enqueues it.
func queueBookingTask(t *testing.T, db *DB, taskType string, b *models.Booking) *models.SyncTask {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"booking_id": b.ID, "booking": b, "status": b.Status})
	require.NoError(t, err)
	task := &models.SyncTask{TaskType: taskType, BookingID: b.ID, Payload: string(payload)}
	require.NoError(t, db.CreateSyncTask(context.Background(), task))
	return task
}

func TestSyncQueue_UpsertTaskCarriesBooking(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	l := createTestListing(t, db, 1)
	b := newBooking(l.ID, 4, date(t, "2030-08-10"), date(t, "2030-08-13"))
	b.AddOns = models.AddOns{Breakfast: true}
	require.NoError(t, db.CreateBookingWithLock(ctx, b, nil))

	task := queueBookingTask(t, db, models.SyncTaskUpsert, b)
	assert.Equal(t, models.SyncStatusPending, task.Status)

	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.SyncTaskUpsert, pending[0].TaskType)
	assert.Equal(t, b.ID, pending[0].BookingID)

	var payload struct {
		Booking models.Booking `json:"booking"`
	}
	require.NoError(t, json.Unmarshal([]byte(pending[0].Payload), &payload))
	assert.Equal(t, "2030-08-10", payload.Booking.CheckIn.Format(models.DateLayout))
	assert.Equal(t, 3, payload.Booking.TotalNights)
	assert.True(t, payload.Booking.AddOns.Breakfast)

	require.NoError(t, db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusCompleted, "", nil))
	pending, err = db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSyncQueue_StatusTaskRetrySchedule(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	l := createTestListing(t, db, 1)
	b := newBooking(l.ID, 4, date(t, "2030-09-01"), date(t, "2030-09-02"))
	require.NoError(t, db.CreateBookingWithLock(ctx, b, nil))
	require.NoError(t, db.UpdateBookingStatusWithVersion(ctx, b.ID, b.Version, models.StatusConfirmed))
	confirmed, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)

	task := queueBookingTask(t, db, models.SyncTaskUpdateStatus, confirmed)

	later := time.Now().Add(time.Hour)
	require.NoError(t, db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusRetry, "sheet quota exceeded", &later))
	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "a retry is not due before next_retry_at")

	due := time.Now().Add(-time.Minute)
	require.NoError(t, db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusRetry, "sheet quota exceeded", &due))
	pending, err = db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.SyncStatusRetry, pending[0].Status)
	assert.Equal(t, 2, pending[0].RetryCount)
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "sheet quota exceeded", *pending[0].LastError)
	assert.Contains(t, pending[0].Payload, `"status":"confirmed"`)
}

func TestSyncQueue_ResyncSupersedesFailedTasks(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	l := createTestListing(t, db, 1)

	var failedIDs []int64
	for i, in := range []string{"2030-10-01", "2030-10-05"} {
		checkIn := date(t, in)
		b := newBooking(l.ID, int64(i+1), checkIn, checkIn.AddDate(0, 0, 2))
		require.NoError(t, db.CreateBookingWithLock(ctx, b, nil))
		task := queueBookingTask(t, db, models.SyncTaskUpsert, b)
		require.NoError(t, db.UpdateSyncTaskStatus(ctx, task.ID, models.SyncStatusFailed, "spreadsheet not found", nil))
		failedIDs = append(failedIDs, task.ID)
	}
	open := newBooking(l.ID, 9, date(t, "2030-11-01"), date(t, "2030-11-03"))
	require.NoError(t, db.CreateBookingWithLock(ctx, open, nil))
	pendingTask := queueBookingTask(t, db, models.SyncTaskUpsert, open)

	failed, err := db.GetFailedSyncTasks(ctx)
	require.NoError(t, err)
	var ids []int64
	for _, task := range failed {
		ids = append(ids, task.ID)
		assert.NotNil(t, task.ProcessedAt)
	}
	assert.ElementsMatch(t, failedIDs, ids)

	n, err := db.SupersedeFailedSyncTasks(ctx, "superseded by resync")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	failed, err = db.GetFailedSyncTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, failed)

	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, pendingTask.ID, pending[0].ID)

	n, err = db.SupersedeFailedSyncTasks(ctx, "superseded by resync")
	require.NoError(t, err)
	assert.Zero(t, n)
}
