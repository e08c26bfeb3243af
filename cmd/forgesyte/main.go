// Command forgesyte runs the vision-analysis server: plugin registry,
// worker pool, REST/MCP/WebSocket surfaces, and the pipeline engine.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/forgesyte/forgesyte/pkg/api"
	"github.com/forgesyte/forgesyte/pkg/config"
	"github.com/forgesyte/forgesyte/pkg/events"
	"github.com/forgesyte/forgesyte/pkg/execution"
	"github.com/forgesyte/forgesyte/pkg/fetch"
	"github.com/forgesyte/forgesyte/pkg/jobs"
	"github.com/forgesyte/forgesyte/pkg/mcp"
	"github.com/forgesyte/forgesyte/pkg/pipeline"
	"github.com/forgesyte/forgesyte/pkg/plugin"
	"github.com/forgesyte/forgesyte/pkg/queue"
	"github.com/forgesyte/forgesyte/pkg/registry"
	"github.com/forgesyte/forgesyte/pkg/version"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	})))
	slog.Info("Starting", "app", version.Full(), "version", version.Semver)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	reg := registry.Default()
	supplied, err := registerPlugins(reg, cfg.PluginsDir)
	if err != nil {
		return err
	}
	strict := cfg.StrictAudit || registry.StrictAuditEnabled()
	if err := reg.SelfAudit(supplied, strict); err != nil {
		return err
	}

	store := jobs.NewStore(0)
	execSvc := execution.NewPluginExecutionService(reg)
	jobSvc := execution.NewJobExecutionService(store, execSvc, reg)
	fetcher := fetch.NewFetcher(0, 0)
	pool := queue.NewWorkerPool(store, execSvc, cfg.WorkerCount)
	analysis := execution.NewAnalysisExecutionService(jobSvc, pool, fetcher)

	manager := events.NewConnectionManager()
	heartbeat := queue.NewHeartbeatMonitor()
	video := execution.NewVideoPipelineService(execSvc, manager, heartbeat)
	frames := events.NewFrameHandler(manager, execSvc, fetcher)

	pipelines := pipeline.NewRegistry()
	if cfg.PipelinesDir != "" {
		if err := pipelines.LoadDir(cfg.PipelinesDir); err != nil {
			return err
		}
		if err := pipelines.Watch(); err != nil {
			return err
		}
		defer pipelines.Close()
	}
	pipelineExec := pipeline.NewExecutor(execSvc, nil)

	mcpServer, dispatcher := mcp.NewServer(reg, execSvc, fetcher, store)

	server := api.NewServer(api.Deps{
		Config:       cfg,
		Registry:     reg,
		Store:        store,
		Analysis:     analysis,
		Video:        video,
		Pool:         pool,
		Heartbeat:    heartbeat,
		Pipelines:    pipelines,
		PipelineExec: pipelineExec,
		Dispatcher:   dispatcher,
		Manifest:     mcpServer.Manifest(),
		Frames:       frames,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := pool.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	// Workers drain before the HTTP listener stops, so completion
	// notifications still have a server to flow through.
	pool.Stop()
	if err := server.Shutdown(context.Background()); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}
	slog.Info("Stopped")
	return nil
}

// registerPlugins loads descriptor-only plugins from dir. They register as
// UNAVAILABLE: visible in the catalog, failing every tool call with the
// configured reason.
func registerPlugins(reg *registry.Registry, dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	descs, err := plugin.LoadDescriptors(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Info("Plugins directory absent, no plugins registered", "dir", dir)
			return nil, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(descs))
	for _, d := range descs {
		inst := plugin.NewUnavailable(d.Metadata, d.Reason)
		reg.Register(d.Name, d.Description, d.Version, inst)
		reg.MarkUnavailable(d.Name, inst.Reason())
		names = append(names, d.Name)
	}
	slog.Info("Plugins registered from descriptors", "dir", dir, "count", len(names))
	return names, nil
}

func logLevel() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
