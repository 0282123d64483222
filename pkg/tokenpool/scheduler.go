package tokenpool

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// SchedulerConfig configures the periodic usage sync.
type SchedulerConfig struct {
	// Manager is the token pool to sync. Required.
	Manager *Manager

	// Profiles are the profiles to refresh each run. Required,
	// non-empty.
	Profiles []string

	// Schedule is a cron expression. Default: every 15 minutes.
	Schedule string

	// SyncTimeout bounds one full sweep. Default: 5 minutes.
	SyncTimeout time.Duration

	// Logger receives scheduler events. Default: slog.Default().
	Logger *slog.Logger
}

// Scheduler periodically overwrites local token counters with upstream
// usage numbers.
type Scheduler struct {
	manager     *Manager
	profiles    []string
	schedule    string
	syncTimeout time.Duration
	logger      *slog.Logger
	cron        *cron.Cron
}

// NewScheduler creates a usage sync scheduler.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("manager is required")
	}
	if len(cfg.Profiles) == 0 {
		return nil, fmt.Errorf("at least one profile is required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "*/15 * * * *"
	}
	if cfg.SyncTimeout == 0 {
		cfg.SyncTimeout = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Scheduler{
		manager:     cfg.Manager,
		profiles:    cfg.Profiles,
		schedule:    cfg.Schedule,
		syncTimeout: cfg.SyncTimeout,
		logger:      cfg.Logger.With("component", "tokenpool-scheduler"),
	}, nil
}

// Start registers the cron job and begins running syncs in the
// background.
func (s *Scheduler) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.schedule, s.runSync); err != nil {
		return fmt.Errorf("failed to schedule usage sync: %w", err)
	}
	s.cron.Start()
	s.logger.Info("usage sync scheduled",
		"schedule", s.schedule, "profiles", s.profiles)
	return nil
}

// Stop halts the scheduler, waiting for a running sync to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("usage sync scheduler stopped")
}

func (s *Scheduler) runSync() {
	ctx, cancel := context.WithTimeout(context.Background(), s.syncTimeout)
	defer cancel()

	start := time.Now()
	for _, profile := range s.profiles {
		if err := s.manager.SyncProfile(ctx, profile); err != nil {
			s.logger.Warn("scheduled usage sync finished with errors",
				"profile", profile, "error", err)
		}
	}
	s.logger.Debug("scheduled usage sync completed",
		"duration_ms", time.Since(start).Milliseconds())
}
