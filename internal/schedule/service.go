package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/sentinelhq/sentinel/internal/config"
	"github.com/sentinelhq/sentinel/internal/mode"
	"github.com/sentinelhq/sentinel/internal/monitor"
)

// Runner executes one monitoring run for a trigger.
type Runner interface {
	Run(ctx context.Context, trigger monitor.Trigger) monitor.RunResult
}

// Service drives the periodic triggers: the core heartbeat and the
// lower-frequency statistical signals sweep.
type Service struct {
	logger *slog.Logger
	cron   *cron.Cron
	runner Runner
	cfg    config.ScheduleConfig
}

// NewService creates the scheduler. Nothing runs until Start.
func NewService(log *slog.Logger, runner Runner, cfg config.ScheduleConfig) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		logger: log.With(slog.String("service", "schedule")),
		cron:   cron.New(),
		runner: runner,
		cfg:    cfg,
	}
}

// Start registers both cron entries and starts the scheduler.
func (s *Service) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.HeartbeatSpec, s.heartbeat); err != nil {
		return fmt.Errorf("register heartbeat %q: %w", s.cfg.HeartbeatSpec, err)
	}
	if _, err := s.cron.AddFunc(s.cfg.SignalsSweepSpec, s.signalsSweep); err != nil {
		return fmt.Errorf("register signals sweep %q: %w", s.cfg.SignalsSweepSpec, err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started",
		slog.String("heartbeat", s.cfg.HeartbeatSpec),
		slog.String("signals_sweep", s.cfg.SignalsSweepSpec))
	return nil
}

// Stop halts the scheduler and waits for in-flight jobs, bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) heartbeat() {
	result := s.runner.Run(context.Background(), monitor.Trigger{
		Kind:    mode.TriggerHeartbeat,
		EventID: uuid.NewString(),
	})
	s.logger.Debug("heartbeat run finished",
		slog.String("run_id", result.RunID),
		slog.String("status", result.Status))
}

func (s *Service) signalsSweep() {
	result := s.runner.Run(context.Background(), monitor.Trigger{
		Kind:         mode.TriggerSignalsSweep,
		ModeOverride: mode.Signals.String(),
		EventID:      uuid.NewString(),
	})
	s.logger.Debug("signals sweep run finished",
		slog.String("run_id", result.RunID),
		slog.String("status", result.Status))
}
