// ABOUTME: Scheduled retention jobs: old deliveries, processed messages, stale counters
// ABOUTME: Runs on a gocron scheduler owned by the serve binary

package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/worldmates/bot-gateway/internal/store"
)

// Pruner drops idle rate-limiter entries. Satisfied by ratelimit.Limiter.
type Pruner interface {
	Prune(idleFor time.Duration) int
}

// Config sets retention windows and the sweep interval.
type Config struct {
	Interval          time.Duration // how often the sweep runs
	DeliveryRetention time.Duration // terminal webhook delivery records
	MessageRetention  time.Duration // processed incoming messages
	LimiterIdle       time.Duration // rate-limiter entries without traffic
}

// DefaultConfig mirrors the retention policy of the hosted platform:
// webhook logs for a week, processed messages for thirty days.
func DefaultConfig() Config {
	return Config{
		Interval:          time.Hour,
		DeliveryRetention: 7 * 24 * time.Hour,
		MessageRetention:  30 * 24 * time.Hour,
		LimiterIdle:       15 * time.Minute,
	}
}

// Janitor owns the background cleanup schedule.
type Janitor struct {
	store     store.Store
	limiter   Pruner
	cfg       Config
	logger    *slog.Logger
	scheduler gocron.Scheduler
}

// New creates a janitor with its own UTC scheduler. Zero config fields
// fall back to the defaults.
func New(s store.Store, limiter Pruner, cfg Config, logger *slog.Logger) (*Janitor, error) {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.DeliveryRetention <= 0 {
		cfg.DeliveryRetention = def.DeliveryRetention
	}
	if cfg.MessageRetention <= 0 {
		cfg.MessageRetention = def.MessageRetention
	}
	if cfg.LimiterIdle <= 0 {
		cfg.LimiterIdle = def.LimiterIdle
	}

	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}

	return &Janitor{
		store:     s,
		limiter:   limiter,
		cfg:       cfg,
		logger:    logger.With("component", "maintenance"),
		scheduler: scheduler,
	}, nil
}

// Start registers the sweep job and begins the schedule.
func (j *Janitor) Start() error {
	_, err := j.scheduler.NewJob(
		gocron.DurationJob(j.cfg.Interval),
		gocron.NewTask(j.Sweep),
		gocron.WithName("retention-sweep"),
	)
	if err != nil {
		return fmt.Errorf("scheduling retention sweep: %w", err)
	}

	j.scheduler.Start()
	j.logger.Info("maintenance schedule started", "interval", j.cfg.Interval)
	return nil
}

// Stop shuts the scheduler down, waiting for a running sweep to finish.
func (j *Janitor) Stop() error {
	if err := j.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("stopping scheduler: %w", err)
	}
	return nil
}

// Sweep runs one full cleanup pass. Each step is independent; a failing
// step is logged and the rest still run.
func (j *Janitor) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	now := time.Now().UTC()

	deliveries, err := j.store.PurgeDeliveriesBefore(ctx, now.Add(-j.cfg.DeliveryRetention))
	if err != nil {
		j.logger.Error("purging webhook deliveries", "error", err)
	}

	messages, err := j.store.PurgeProcessedBefore(ctx, now.Add(-j.cfg.MessageRetention))
	if err != nil {
		j.logger.Error("purging processed messages", "error", err)
	}

	if err := j.store.RefreshActiveUserCounts(ctx); err != nil {
		j.logger.Error("refreshing active user counts", "error", err)
	}

	pruned := 0
	if j.limiter != nil {
		pruned = j.limiter.Prune(j.cfg.LimiterIdle)
	}

	j.logger.Info("retention sweep complete",
		"deliveries_purged", deliveries,
		"messages_purged", messages,
		"limiter_pruned", pruned)
}
