package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/sentinelhq/sentinel/internal/config"
	"github.com/sentinelhq/sentinel/internal/cooldown"
	"github.com/sentinelhq/sentinel/internal/dashboard"
	"github.com/sentinelhq/sentinel/internal/db"
	"github.com/sentinelhq/sentinel/internal/escalate"
	"github.com/sentinelhq/sentinel/internal/handlers"
	"github.com/sentinelhq/sentinel/internal/logger"
	"github.com/sentinelhq/sentinel/internal/monitor"
	"github.com/sentinelhq/sentinel/internal/notify"
	"github.com/sentinelhq/sentinel/internal/probe"
	"github.com/sentinelhq/sentinel/internal/schedule"
	"github.com/sentinelhq/sentinel/internal/selfheal"
	"github.com/sentinelhq/sentinel/internal/server"
	"github.com/sentinelhq/sentinel/internal/signals"
	"github.com/sentinelhq/sentinel/internal/telemetry"
	"github.com/sentinelhq/sentinel/internal/tracker"
	"github.com/sentinelhq/sentinel/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitoring daemon with scheduler and HTTP API",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBPool,
			provideEmitter,
			provideAnalyzer,
			provideRedisClient,
			provideGate,
			provideGateway,
			provideTaskSource,
			provideDashboardSink,
			provideHealer,
			provideRegistry,
			provideDispatcher,
			provideMonitor,
			provideScheduleService,
			provideServer,
		),
		fx.Invoke(
			startDigest,
			startSchedule,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

// provideDBPool connects Postgres best-effort. The monitor keeps probing
// without it: telemetry writes fail (raising the gap alert) and signals go
// unavailable instead of the whole daemon refusing to start.
func provideDBPool(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) *pgxpool.Pool {
	if err := db.Migrate(cfg.Postgres); err != nil {
		log.Warn("migrations failed, continuing without telemetry store", slog.Any("error", err))
		return nil
	}
	pool, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		log.Warn("db connect failed, continuing without telemetry store", slog.Any("error", err))
		return nil
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { pool.Close(); return nil }})
	return pool
}

func provideEmitter(log *slog.Logger, pool *pgxpool.Pool) telemetry.Emitter {
	return telemetry.NewPGEmitter(log, pool)
}

func provideAnalyzer(log *slog.Logger, pool *pgxpool.Pool) *signals.Analyzer {
	return signals.NewAnalyzer(log, telemetry.NewPGStore(log, pool))
}

func provideRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return client.Close() }})
	return client
}

func provideGate(log *slog.Logger, client *redis.Client) *cooldown.Gate {
	if client == nil {
		log.Warn("redis not configured, cooldown windows are per-process only")
		return cooldown.NewGate(log, cooldown.NewMemoryStore())
	}
	return cooldown.NewGate(log, cooldown.NewRedisStore(client))
}

func provideGateway(log *slog.Logger, cfg config.Config) notify.Gateway {
	var inner notify.Gateway
	switch cfg.Gateway.Channel {
	case "discord":
		inner = notify.NewDiscordGateway(log, cfg.Gateway.Discord.BotToken, cfg.Gateway.Discord.ChannelID)
	default:
		inner = notify.NewTelegramGateway(log, cfg.Gateway.Telegram.BotToken, cfg.Gateway.Telegram.ChatID)
	}
	return notify.NewDigest(log, inner, 15*time.Minute)
}

func provideTaskSource(log *slog.Logger, cfg config.Config) tracker.TaskSource {
	if cfg.Tracker.Owner == "" || cfg.Tracker.Repo == "" {
		log.Warn("tracker not configured, every degraded service counts as new")
		return nil
	}
	return tracker.NewGitHubSource(log, cfg.Tracker.Token, cfg.Tracker.Owner, cfg.Tracker.Repo)
}

func provideDashboardSink(log *slog.Logger, cfg config.Config) dashboard.Sink {
	if cfg.Dashboard.BaseURL == "" {
		return nil
	}
	timeout := time.Duration(cfg.Dashboard.TimeoutMs) * time.Millisecond
	return dashboard.NewHTTPSink(log, cfg.Dashboard.BaseURL, timeout)
}

func provideHealer(log *slog.Logger, cfg config.Config) selfheal.Emitter {
	if cfg.SelfHeal.WebhookURL == "" {
		log.Warn("selfheal webhook not configured, escalations stop at notification")
		return nil
	}
	return selfheal.NewWebhookEmitter(log, cfg.SelfHeal.WebhookURL, 10*time.Second)
}

func provideRegistry(cfg config.Config) (*probe.Registry, error) {
	registry, err := probe.BuildRegistry(cfg.Probes)
	if err != nil {
		return nil, fmt.Errorf("build probe registry: %w", err)
	}
	return registry, nil
}

func provideDispatcher(log *slog.Logger, cfg config.Config, gateway notify.Gateway, emitter telemetry.Emitter, healer selfheal.Emitter, gate *cooldown.Gate) *escalate.Dispatcher {
	return escalate.NewDispatcher(log, escalate.Config{
		Gateway:      gateway,
		Emitter:      emitter,
		Healer:       healer,
		Gate:         gate,
		Domains:      cfg.SelfHeal.Domains,
		SignalWindow: time.Duration(cfg.Cooldown.SignalAlertSeconds) * time.Second,
		DownWindow:   time.Duration(cfg.Cooldown.DownClaimSeconds) * time.Second,
		Owner:        cfg.SelfHeal.Owner,
		DryRun:       cfg.SelfHeal.DryRun,
	})
}

func provideMonitor(log *slog.Logger, cfg config.Config, registry *probe.Registry, analyzer *signals.Analyzer, tasks tracker.TaskSource, dispatcher *escalate.Dispatcher, sink dashboard.Sink, emitter telemetry.Emitter, gate *cooldown.Gate, gateway notify.Gateway) *monitor.Monitor {
	return monitor.NewMonitor(log, monitor.Config{
		Registry:      registry,
		Analyzer:      analyzer,
		Tasks:         tasks,
		Dispatcher:    dispatcher,
		Sink:          sink,
		Emitter:       emitter,
		Gate:          gate,
		Gateway:       gateway,
		OtelGapWindow: time.Duration(cfg.Cooldown.OtelGapSeconds) * time.Second,
	})
}

func provideScheduleService(log *slog.Logger, cfg config.Config, mon *monitor.Monitor) *schedule.Service {
	return schedule.NewService(log, mon, cfg.Schedule)
}

func provideServer(log *slog.Logger, cfg config.Config, mon *monitor.Monitor) *server.Server {
	return server.NewServer(log, cfg.Server.Addr, cfg.Auth.JWTSecret,
		handlers.NewHealthHandler(log),
		handlers.NewRunsHandler(log, mon),
	)
}

func startDigest(lc fx.Lifecycle, gateway notify.Gateway) {
	digest, ok := gateway.(*notify.Digest)
	if !ok {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { go digest.Start(ctx); return nil },
		OnStop:  func(context.Context) error { cancel(); return nil },
	})
}

func startSchedule(lc fx.Lifecycle, svc *schedule.Service) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return svc.Start() },
		OnStop:  func(ctx context.Context) error { return svc.Stop(ctx) },
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting Sentinel %s\n", version.GetInfo())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
