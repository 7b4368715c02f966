package sched

import (
	"context"
	"time"

	"telegram-knowledge-bot/internal/usecase"

	"github.com/rs/zerolog"
)

// SessionSweeper periodically evicts sessions that sat inactive past the TTL,
// cancelling whatever pipeline work they still had in flight.
type SessionSweeper struct {
	interval   time.Duration
	supervisor *usecase.JobSupervisor
	log        *zerolog.Logger
}

func NewSessionSweeper(interval time.Duration, supervisor *usecase.JobSupervisor, logger *zerolog.Logger) *SessionSweeper {
	swLog := logger.With().Str("component", "SessionSweeper").Logger()
	return &SessionSweeper{
		interval:   interval,
		supervisor: supervisor,
		log:        &swLog,
	}
}

func (w *SessionSweeper) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting session sweeper")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping session sweeper")
			return ctx.Err()
		case <-ticker.C:
			if n := w.supervisor.SweepExpired(time.Now()); n > 0 {
				w.log.Info().Int("count", n).Msg("expired sessions swept")
			}
		}
	}
}
