// Package scheduler runs the periodic full-population badge recompute.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mgrobelny/badgeforge/internal/config"
	prommetrics "github.com/mgrobelny/badgeforge/internal/metrics"
	"github.com/mgrobelny/badgeforge/internal/service/engine"
	"github.com/mgrobelny/badgeforge/pkg/logger"
)

// RecomputeService is the engine surface the scheduler drives.
type RecomputeService interface {
	Recompute(ctx context.Context, opts engine.RecomputeOptions) (*engine.RecomputeResult, error)
}

// Service schedules periodic badge recomputes.
type Service struct {
	config *config.SchedulerConfig
	engine RecomputeService
	log    *logger.Logger
	cron   *cron.Cron
}

// NewService creates a new scheduler service.
func NewService(cfg *config.SchedulerConfig, eng RecomputeService, log *logger.Logger) *Service {
	return &Service{
		config: cfg,
		engine: eng,
		log:    log,
	}
}

// Start initializes and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := s.config.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Timezone, err)
	}

	s.cron = cron.New(cron.WithLocation(location))

	_, err = s.cron.AddFunc(s.config.RecomputeSchedule, func() {
		s.runRecompute(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to register badge recompute job: %w", err)
	}

	s.cron.Start()

	entries := s.cron.Entries()
	nextRun := ""
	if len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Str("schedule", s.config.RecomputeSchedule).
		Str("timezone", s.config.Timezone).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

// runRecompute executes the scheduled full-population recompute.
func (s *Service) runRecompute(ctx context.Context) {
	start := time.Now()

	defer func() {
		prommetrics.ObserveRecomputeDuration(time.Since(start).Seconds())
	}()

	s.log.Info().Msg("Running scheduled badge recompute")

	result, err := s.engine.Recompute(ctx, engine.RecomputeOptions{})
	if err != nil {
		s.log.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Scheduled badge recompute failed")
		prommetrics.RecordRecomputeRun("scheduler", "error")
		return
	}

	prommetrics.RecordRecomputeRun("scheduler", "success")

	changed := 0
	for _, summary := range result.Summaries {
		if summary.Change != engine.ChangeNoop {
			changed++
		}
	}

	s.log.Info().
		Int("assignments", len(result.Assignments)).
		Int("changed", changed).
		Int("revocations", len(result.Revocations)).
		Dur("duration", time.Since(start)).
		Msg("Scheduled badge recompute completed")
}
