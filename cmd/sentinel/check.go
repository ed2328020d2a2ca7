package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/sentinelhq/sentinel/internal/db"
	"github.com/sentinelhq/sentinel/internal/mode"
	"github.com/sentinelhq/sentinel/internal/monitor"
	"github.com/sentinelhq/sentinel/internal/notify"
)

var checkModeFlag string

// noopLifecycle satisfies fx.Lifecycle for one-shot runs where cleanup is
// handled with defers instead of hooks.
type noopLifecycle struct{}

func (noopLifecycle) Append(fx.Hook) {}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Execute one monitoring run and print the result as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(cmd.Context(), checkModeFlag)
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkModeFlag, "mode", "", "run mode override: core, signals or full")
}

func runCheck(ctx context.Context, modeOverride string) error {
	cfg, err := provideConfig()
	if err != nil {
		return err
	}
	log := provideLogger(cfg)

	var pool *pgxpool.Pool
	if p, dbErr := db.Open(ctx, cfg.Postgres); dbErr == nil {
		pool = p
		defer pool.Close()
	} else {
		log.Warn("db connect failed, signals will be unavailable", slog.Any("error", dbErr))
	}

	redisClient := provideRedisClient(noopLifecycle{}, cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	gate := provideGate(log, redisClient)
	gateway := provideGateway(log, cfg)
	// A one-shot run has no digest loop, so anything batched must be
	// delivered before the process exits.
	defer flushPending(ctx, gateway)
	registry, err := provideRegistry(cfg)
	if err != nil {
		return err
	}
	emitter := provideEmitter(log, pool)
	dispatcher := provideDispatcher(log, cfg, gateway, emitter, provideHealer(log, cfg), gate)
	mon := provideMonitor(log, cfg, registry, provideAnalyzer(log, pool),
		provideTaskSource(log, cfg), dispatcher, provideDashboardSink(log, cfg), emitter, gate, gateway)

	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	result := mon.Run(runCtx, monitor.Trigger{
		Kind:         mode.TriggerCheck,
		ModeOverride: modeOverride,
	})

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if result.Status == monitor.StatusSkipped {
		return fmt.Errorf("run skipped: %s", result.Reason)
	}
	return nil
}

// flushPending delivers notifications the digest batched during the run.
func flushPending(ctx context.Context, gateway notify.Gateway) {
	if digest, ok := gateway.(*notify.Digest); ok {
		digest.Flush(ctx)
	}
}
