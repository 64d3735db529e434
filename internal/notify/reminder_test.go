package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"stayfinder/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeCheckIns struct {
	day      time.Time
	bookings []*models.HostBooking
	err      error
}

func (f *fakeCheckIns) GetConfirmedCheckIns(_ context.Context, day time.Time) ([]*models.HostBooking, error) {
	f.day = day
	return f.bookings, f.err
}

func arrival(id, guestID int64) *models.HostBooking {
	return &models.HostBooking{
		Booking: models.Booking{
			ID:        id,
			UserID:    guestID,
			ListingID: 3,
			CheckIn:   time.Date(2030, 6, 2, 0, 0, 0, 0, time.UTC),
			CheckOut:  time.Date(2030, 6, 5, 0, 0, 0, 0, time.UTC),
			Guests:    2,
			Status:    models.StatusConfirmed,
		},
		ListingTitle: "Harbour_loft",
	}
}

func newTestReminder(t *testing.T, bot *mockTelegramSender, users *mockUsers, src CheckInSource, loc *time.Location) *CheckInReminder {
	t.Helper()
	logger := zerolog.Nop()
	r, err := NewCheckInReminder(NewTelegramNotifier(bot, users, &logger), src, "09:30", loc, &logger)
	require.NoError(t, err)
	return r
}

func TestNewCheckInReminder_BadTime(t *testing.T) {
	logger := zerolog.Nop()
	_, err := NewCheckInReminder(nil, &fakeCheckIns{}, "25:00", time.UTC, &logger)
	assert.Error(t, err)
}

func TestCheckInReminder_SendTomorrow(t *testing.T) {
	bot := new(mockTelegramSender)
	users := new(mockUsers)
	src := &fakeCheckIns{bookings: []*models.HostBooking{arrival(1, 200), arrival(2, 300), arrival(3, 400)}}
	r := newTestReminder(t, bot, users, src, time.UTC)
	r.now = func() time.Time { return time.Date(2030, 6, 1, 9, 30, 0, 0, time.UTC) }

	users.On("GetUserByID", mock.Anything, int64(200)).Return(&models.User{ID: 200, TelegramChatID: 2000}, nil)
	users.On("GetUserByID", mock.Anything, int64(300)).Return(&models.User{ID: 300}, nil)
	users.On("GetUserByID", mock.Anything, int64(400)).Return(&models.User{ID: 400, TelegramChatID: 4000}, nil)
	bot.On("Send", toChat(2000, "Check-in tomorrow")).Return(tgbotapi.Message{}, nil).Once()
	bot.On("Send", toChat(4000, "Check-in tomorrow")).Return(tgbotapi.Message{}, errors.New("blocked")).Once()

	sent, err := r.SendTomorrow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, "2030-06-02", src.day.Format(models.DateLayout))
	bot.AssertExpectations(t)
}

func TestCheckInReminder_UsesLocalCalendar(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	src := &fakeCheckIns{}
	r := newTestReminder(t, new(mockTelegramSender), new(mockUsers), src, loc)
	// 20:00 UTC on June 1 is already June 2 at UTC+10.
	r.now = func() time.Time { return time.Date(2030, 6, 1, 20, 0, 0, 0, time.UTC) }

	sent, err := r.SendTomorrow(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Equal(t, "2030-06-03", src.day.Format(models.DateLayout))
}

func TestCheckInReminder_SourceError(t *testing.T) {
	src := &fakeCheckIns{err: errors.New("db down")}
	r := newTestReminder(t, new(mockTelegramSender), new(mockUsers), src, time.UTC)

	_, err := r.SendTomorrow(context.Background())
	assert.Error(t, err)
}

func TestCheckInReminder_UntilNext(t *testing.T) {
	r := newTestReminder(t, new(mockTelegramSender), new(mockUsers), &fakeCheckIns{}, time.UTC)

	before := time.Date(2030, 6, 1, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, 90*time.Minute, r.untilNext(before))

	at := time.Date(2030, 6, 1, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, 24*time.Hour, r.untilNext(at))
}

func TestReminderText(t *testing.T) {
	text := reminderText(arrival(7, 200))
	assert.Contains(t, text, "#7")
	assert.Contains(t, text, `Harbour\_loft`)
	assert.Contains(t, text, "2030-06-02 → 2030-06-05")
}
