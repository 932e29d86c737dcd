package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron"
)

const purgeTimeout = time.Minute

// StartJanitor purges rows older than retention on a cron schedule such as
// "@every 15m" or "0 0 * * * *". Call the returned func to stop it.
func (s *Store) StartJanitor(spec string, retention time.Duration, logger *slog.Logger) (func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := cron.New()
	err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
		defer cancel()

		n, err := s.PurgeOlderThan(ctx, time.Now().Add(-retention))
		if err != nil {
			logger.Error("Failed to purge sessions", "err", err)
			return
		}
		if n > 0 {
			logger.Info("Purged stale sessions", "rows", n)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid purge schedule %q: %w", spec, err)
	}

	c.Start()
	return c.Stop, nil
}
