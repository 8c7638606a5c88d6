package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/remotepilot/daemon/internal/agent"
	"github.com/remotepilot/daemon/internal/config"
	"github.com/remotepilot/daemon/internal/events"
	"github.com/remotepilot/daemon/internal/gateway"
	"github.com/remotepilot/daemon/internal/gateway/ws"
	"github.com/remotepilot/daemon/internal/inference"
	"github.com/remotepilot/daemon/internal/lifecycle"
	"github.com/remotepilot/daemon/internal/memory"
	"github.com/remotepilot/daemon/internal/metrics"
	"github.com/remotepilot/daemon/internal/platform"
	"github.com/remotepilot/daemon/internal/registry"
	"github.com/remotepilot/daemon/internal/scheduler"
	"github.com/remotepilot/daemon/internal/storage"
)

// NewServeCommand returns the serve subcommand, which runs the daemon in the
// foreground: lifecycle engine, scheduler, and submission surface.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the pilot daemon in the foreground",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on",
			},
		},
		Action: runServe,
	}
}

func runServe(_ context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Warn("config not found, using defaults", "path", configPath, "error", err)
		cfg = config.Defaults()
	}

	logLevel := slog.LevelInfo
	if cmd.Bool("debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if cmd.IsSet("host") {
		cfg.Gateway.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Gateway.Port = cmd.Int("port")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	bus := events.NewBus(cfg.Events.BufferSize)
	defer bus.Close()

	historyStore := storage.NewHistoryStore(config.HistoryDir(), bus)
	defer historyStore.Close()

	reg := registry.New(cfg.Gateway.SubscriberBacklog)
	reg.AttachBus(bus)

	client := inference.New(cfg.Inference.Endpoint, cfg.Inference.PlanCallTimeout.Duration())

	memStore, err := memory.NewStore(config.MemoryPath(), cfg.Inference.EmbeddingModel, client, float32(cfg.Inference.VerifyThreshold))
	if err != nil {
		slog.Warn("semantic memory disabled", "error", err)
		memStore = nil
	}

	var mem agent.Memory
	if memStore != nil {
		mem = memStore
	}

	planner := agent.NewInferencePlanner(client, cfg.Inference.PlannerModel, mem)
	capture := platform.NoopScreenCapturer{}
	vision := agent.NewInferenceVision(client, cfg.Inference.VisionModel, capture)
	verifier := agent.NewInferenceVerifier(vision)
	security := agent.NewTwoStageSecurity(client, cfg.Security.SecurityModel, cfg.Security.EnableModelScreen)
	research := agent.NewInferenceResearch(client, cfg.Inference.PlannerModel)
	dispatcher := agent.NewDispatcher(platform.NoopInput{}, platform.NoopBrowser{}, cfg.Task.BrowseTruncateChars)

	promReg := prometheus.NewRegistry()
	host := metrics.NewHost(promReg)
	host.Start()
	defer host.Stop()

	engine := lifecycle.New(lifecycle.Deps{
		Registry: reg,
		Planner:  planner,
		Vision:   vision,
		Action:   dispatcher,
		Verifier: verifier,
		Security: security,
		Research: research,
		Memory:   mem,
		Abort:    host,
	}, lifecycle.Config{
		MaxReplans:        cfg.Task.MaxReplans,
		PlanCallTimeout:   cfg.Inference.PlanCallTimeout.Duration(),
		StepVerifyTimeout: cfg.Inference.StepVerifyTimeout.Duration(),
	})

	scheduleStore := scheduler.NewStore(config.ScheduleDir())
	sched := scheduler.New(engine, scheduleStore)
	sched.Start()
	defer sched.Stop()

	hub := ws.NewHub(bus)

	addr := fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)
	server := gateway.New(addr, engine, sched, hub, host)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
