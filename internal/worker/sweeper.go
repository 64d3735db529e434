package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Completer finishes confirmed stays whose check-out has arrived.
type Completer interface {
	CompleteFinished(ctx context.Context) (int, error)
}

// CompletionSweeper periodically moves finished confirmed bookings to completed.
type CompletionSweeper struct {
	completer Completer
	interval  time.Duration
	logger    zerolog.Logger
}

func NewCompletionSweeper(completer Completer, interval time.Duration, logger *zerolog.Logger) *CompletionSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "completion_sweeper").Logger()
	}
	return &CompletionSweeper{completer: completer, interval: interval, logger: l}
}

// Start sweeps once immediately and then on every tick until ctx is done.
func (s *CompletionSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *CompletionSweeper) Sweep(ctx context.Context) int {
	n, err := s.completer.CompleteFinished(ctx)
	if err != nil {
		s.logger.Error().Err(err).Int("completed", n).Msg("sweep finished with errors")
		return n
	}
	if n > 0 {
		s.logger.Info().Int("completed", n).Msg("bookings completed")
	}
	return n
}
