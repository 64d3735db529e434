// Package notify tells hosts and guests about booking changes over Telegram.
package notify

import (
	"context"
	"fmt"
	"time"

	"stayfinder/internal/domain"
	"stayfinder/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

type TelegramNotifier struct {
	bot     domain.TelegramSender
	users   domain.UserRepository
	logger  *zerolog.Logger
	timeout time.Duration
}

func NewTelegramNotifier(bot domain.TelegramSender, users domain.UserRepository, logger *zerolog.Logger) *TelegramNotifier {
	l := logger.With().Str("component", "telegram_notifier").Logger()
	return &TelegramNotifier{
		bot:     bot,
		users:   users,
		logger:  &l,
		timeout: 5 * time.Second,
	}
}

// Attach subscribes the notifier to every booking event on bus.
func (n *TelegramNotifier) Attach(bus *events.EventBus) {
	bus.SubscribeAll(n.Handle)
}

// Handle is an events.EventHandler. Users without a chat id are skipped.
func (n *TelegramNotifier) Handle(event *events.Event) error {
	var p events.BookingEventPayload
	if err := event.Decode(&p); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Type, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	var firstErr error
	for _, userID := range recipients(event.Type, p) {
		if err := n.notify(ctx, userID, messageText(event.Type, p)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (n *TelegramNotifier) notify(ctx context.Context, userID int64, text string) error {
	_, err := n.send(ctx, userID, text)
	return err
}

// send reports whether a message went out; users without a profile or chat id are skipped.
func (n *TelegramNotifier) send(ctx context.Context, userID int64, text string) (bool, error) {
	user, err := n.users.GetUserByID(ctx, userID)
	if err != nil {
		n.logger.Debug().Err(err).Int64("user_id", userID).Msg("No profile to notify")
		return false, nil
	}
	if user.TelegramChatID == 0 {
		return false, nil
	}

	msg := tgbotapi.NewMessage(user.TelegramChatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error().Err(err).Int64("user_id", userID).Msg("Failed to send telegram notification")
		return false, fmt.Errorf("send telegram message to user %d: %w", userID, err)
	}
	return true, nil
}

// recipients decides who hears about an event. The actor is never told about their own change.
func recipients(eventType string, p events.BookingEventPayload) []int64 {
	var ids []int64
	switch eventType {
	case events.EventBookingCreated:
		ids = []int64{p.HostID}
	case events.EventBookingConfirmed, events.EventBookingCompleted:
		ids = []int64{p.GuestID}
	case events.EventBookingCancelled:
		ids = []int64{p.GuestID, p.HostID}
	}

	out := ids[:0]
	for _, id := range ids {
		if id != 0 && id != p.ChangedByID {
			out = append(out, id)
		}
	}
	return out
}

func messageText(eventType string, p events.BookingEventPayload) string {
	title := p.ListingTitle
	if title == "" {
		title = fmt.Sprintf("listing #%d", p.ListingID)
	}
	stay := fmt.Sprintf("%s → %s", p.CheckIn, p.CheckOut)

	switch eventType {
	case events.EventBookingCreated:
		return fmt.Sprintf("*New booking request* #%d\n%s\n%s, %d guest(s), total %.2f",
			p.BookingID, tgbotapi.EscapeText(tgbotapi.ModeMarkdown, title), stay, p.Guests, p.TotalPrice)
	case events.EventBookingConfirmed:
		return fmt.Sprintf("*Booking confirmed* #%d\n%s\n%s",
			p.BookingID, tgbotapi.EscapeText(tgbotapi.ModeMarkdown, title), stay)
	case events.EventBookingCancelled:
		return fmt.Sprintf("*Booking cancelled* #%d\n%s\n%s",
			p.BookingID, tgbotapi.EscapeText(tgbotapi.ModeMarkdown, title), stay)
	case events.EventBookingCompleted:
		return fmt.Sprintf("*Stay completed* #%d\nThanks for staying at %s",
			p.BookingID, tgbotapi.EscapeText(tgbotapi.ModeMarkdown, title))
	}
	return fmt.Sprintf("Booking #%d is now %s", p.BookingID, p.Status)
}
