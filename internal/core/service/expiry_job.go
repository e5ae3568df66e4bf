package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultSweepInterval = time.Minute
	sweepTimeout         = 10 * time.Second
)

// RequestExpirer is the part of the approval queue the sweeper drives.
type RequestExpirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

// RunExpirySweeper expires stale session requests every interval until ctx
// is cancelled. Each sweep gets its own timeout.
func RunExpirySweeper(ctx context.Context, expirer RequestExpirer, interval time.Duration, log zerolog.Logger) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tickCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
			n, err := expirer.ExpireStale(tickCtx, time.Now().UTC())
			cancel()
			if err != nil {
				log.Error().Err(err).Msg("request expiry sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int("expired", n).Msg("expired stale session requests")
			}
		}
	}
}
