// Package janitor periodically removes expired sessions and idempotency records.
package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// SessionRepo deletes sessions that expired before now.
type SessionRepo interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// IdempotencyRepo deletes committed idempotency records created before the given time.
type IdempotencyRepo interface {
	PurgeIdempotency(ctx context.Context, before time.Time) (int64, error)
}

// Janitor runs the cleanup on a cron schedule.
type Janitor struct {
	sessions    SessionRepo
	idempotency IdempotencyRepo
	ttl         time.Duration
	logger      zerolog.Logger
	now         func() time.Time
	cron        *cron.Cron
}

// New returns a Janitor. Idempotency records live for ttl.
func New(sessions SessionRepo, idempotency IdempotencyRepo, ttl time.Duration, logger zerolog.Logger) *Janitor {
	return &Janitor{
		sessions:    sessions,
		idempotency: idempotency,
		ttl:         ttl,
		logger:      logger.With().Str("component", "janitor").Logger(),
		now:         time.Now,
	}
}

// Start schedules RunOnce with the given cron spec, e.g. "@every 10m".
func (j *Janitor) Start(spec string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	_, err := c.AddFunc(spec, func() {
		ctx := j.logger.WithContext(context.Background())

		if err := j.RunOnce(ctx); err != nil {
			j.logger.Error().Err(err).Msg("cleanup failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", spec, err)
	}

	j.cron = c
	c.Start()

	j.logger.Info().Str("schedule", spec).Msg("janitor started")

	return nil
}

// Stop stops the schedule and waits for a running cleanup.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}

	<-j.cron.Stop().Done()
}

// RunOnce deletes expired sessions and outdated idempotency records.
func (j *Janitor) RunOnce(ctx context.Context) error {
	l := zerolog.Ctx(ctx)
	now := j.now()

	sessions, err := j.sessions.DeleteExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}

	records, err := j.idempotency.PurgeIdempotency(ctx, now.Add(-j.ttl))
	if err != nil {
		return fmt.Errorf("purge idempotency records: %w", err)
	}

	l.Info().Int64("sessions", sessions).Int64("idempotency_records", records).Msg("cleanup done")

	return nil
}
