package crontab

import (
	"context"
	"time"

	"github.com/mileusna/crontab"
	"github.com/rs/zerolog"

	"chat-relay/internal/utils/platformerrors"
)

// CronJobTimeout bounds each scheduled execution.
const CronJobTimeout = 5 * time.Minute

// Purger removes stale pending uploads.
type Purger interface {
	PurgeStale(ctx context.Context) (int, error)
}

type Crontab struct {
	ctab     *crontab.Crontab
	purger   Purger
	schedule string
	log      zerolog.Logger
}

func NewCrontab(purger Purger, schedule string, log zerolog.Logger) *Crontab {
	return &Crontab{
		ctab:     crontab.New(),
		purger:   purger,
		schedule: schedule,
		log:      log.With().Str("component", "crontab").Logger(),
	}
}

// Run schedules the jobs and blocks until ctx is done.
func (c *Crontab) Run(ctx context.Context) error {
	// execute once on server start
	c.purgeStaleUploads(ctx)

	if err := c.ctab.AddJob(c.schedule, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), CronJobTimeout)
		defer cancel()
		c.purgeStaleUploads(jobCtx)
	}); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerInfrastructure, err, "failed to add upload purge job")
	}
	c.log.Info().Str("schedule", c.schedule).Msg("stale upload purge scheduled")

	<-ctx.Done()
	c.ctab.Shutdown()
	return nil
}

func (c *Crontab) purgeStaleUploads(ctx context.Context) {
	removed, err := c.purger.PurgeStale(ctx)
	if err != nil {
		c.log.Error().Err(err).Int("removed", removed).Msg("failed to purge stale uploads")
		return
	}
	c.log.Debug().Int("removed", removed).Msg("stale upload purge finished")
}
