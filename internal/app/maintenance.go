package app

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// StartMaintenance schedules the background sweep: every minute, expired
// schema snapshots are evicted and pool stats logged. Returns the scheduler
// so main() can stop it on shutdown.
func (a *App) StartMaintenance(logger *slog.Logger) *cron.Cron {
	c := cron.New()
	_, err := c.AddFunc("* * * * *", func() {
		evicted := a.Schemas.EvictExpired()
		if evicted > 0 {
			logger.Debug("evicted expired schema snapshots", "count", evicted)
		}
		logger.Debug("router pool stats", "pools", a.Router.PoolCount())
	})
	if err != nil {
		// The expression is a constant; failure here is a programming error.
		panic(err)
	}
	c.Start()
	return c
}
