package notify

import (
	"context"
	"fmt"
	"time"

	"stayfinder/internal/domain"
	"stayfinder/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// CheckInSource lists confirmed stays starting on a calendar date.
type CheckInSource interface {
	GetConfirmedCheckIns(ctx context.Context, day time.Time) ([]*models.HostBooking, error)
}

// CheckInReminder messages guests once a day about stays that start tomorrow.
type CheckInReminder struct {
	notifier *TelegramNotifier
	bookings CheckInSource
	hour     int
	minute   int
	loc      *time.Location
	now      domain.Clock
	logger   *zerolog.Logger
}

// NewCheckInReminder parses at as HH:MM in loc.
func NewCheckInReminder(notifier *TelegramNotifier, bookings CheckInSource, at string, loc *time.Location, logger *zerolog.Logger) (*CheckInReminder, error) {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return nil, fmt.Errorf("invalid reminder time %q: %w", at, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	l := logger.With().Str("component", "checkin_reminder").Logger()
	return &CheckInReminder{
		notifier: notifier,
		bookings: bookings,
		hour:     t.Hour(),
		minute:   t.Minute(),
		loc:      loc,
		now:      time.Now,
		logger:   &l,
	}, nil
}

// Start sends reminders at the configured time every day until ctx is done.
func (r *CheckInReminder) Start(ctx context.Context) {
	go func() {
		timer := time.NewTimer(r.untilNext(r.now()))
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				sent, err := r.SendTomorrow(ctx)
				if err != nil {
					r.logger.Error().Err(err).Msg("reminder run failed")
				} else {
					r.logger.Info().Int("sent", sent).Msg("check-in reminders sent")
				}
				timer.Reset(r.untilNext(r.now()))
			}
		}
	}()
}

// SendTomorrow reminds every guest whose confirmed stay starts tomorrow and returns how
// many messages went out.
func (r *CheckInReminder) SendTomorrow(ctx context.Context) (int, error) {
	tomorrow := domain.CalendarDate(r.now(), r.loc).AddDate(0, 0, 1)
	arrivals, err := r.bookings.GetConfirmedCheckIns(ctx, tomorrow)
	if err != nil {
		return 0, fmt.Errorf("load check-ins for %s: %w", tomorrow.Format(models.DateLayout), err)
	}

	sent := 0
	for _, b := range arrivals {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		delivered, err := r.notifier.send(ctx, b.UserID, reminderText(b))
		if err != nil {
			r.logger.Warn().Err(err).Int64("booking_id", b.ID).Msg("reminder not delivered")
			continue
		}
		if delivered {
			sent++
		}
	}
	return sent, nil
}

// untilNext is the wait from now to the next reminder time in r.loc.
func (r *CheckInReminder) untilNext(now time.Time) time.Duration {
	local := now.In(r.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), r.hour, r.minute, 0, 0, r.loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(local)
}

func reminderText(b *models.HostBooking) string {
	title := b.ListingTitle
	if title == "" {
		title = fmt.Sprintf("listing #%d", b.ListingID)
	}
	return fmt.Sprintf("*Check-in tomorrow* #%d\n%s\n%s → %s, %d guest(s)",
		b.ID, tgbotapi.EscapeText(tgbotapi.ModeMarkdown, title),
		b.CheckIn.Format(models.DateLayout), b.CheckOut.Format(models.DateLayout), b.Guests)
}
