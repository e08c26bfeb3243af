// Package api exposes the REST, JSON-RPC, and WebSocket surfaces over the
// execution chain, worker pool, pipeline engine, and streaming manager.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/forgesyte/forgesyte/pkg/config"
	"github.com/forgesyte/forgesyte/pkg/events"
	"github.com/forgesyte/forgesyte/pkg/execution"
	"github.com/forgesyte/forgesyte/pkg/jobs"
	"github.com/forgesyte/forgesyte/pkg/mcp"
	"github.com/forgesyte/forgesyte/pkg/pipeline"
	"github.com/forgesyte/forgesyte/pkg/queue"
	"github.com/forgesyte/forgesyte/pkg/registry"
)

// shutdownTimeout bounds how long in-flight requests may run during a
// graceful stop.
const shutdownTimeout = 10 * time.Second

// Deps carries everything the server routes to.
type Deps struct {
	Config       *config.Config
	Registry     *registry.Registry
	Store        *jobs.Store
	Analysis     *execution.AnalysisExecutionService
	Video        *execution.VideoPipelineService
	Pool         *queue.WorkerPool
	Heartbeat    *queue.HeartbeatMonitor
	Pipelines    *pipeline.Registry
	PipelineExec *pipeline.Executor
	Dispatcher   *mcp.Dispatcher
	Manifest     *mcp.ManifestBuilder
	Frames       *events.FrameHandler
}

// Server is the HTTP front end.
type Server struct {
	deps Deps
	echo *echo.Echo
	http *http.Server
}

// NewServer wires the routes.
func NewServer(deps Deps) *Server {
	e := echo.New()

	s := &Server{
		deps: deps,
		echo: e,
		http: &http.Server{
			Addr:    deps.Config.Addr(),
			Handler: e,
		},
	}

	auth := NewAuthenticator(deps.Config.AdminKey, deps.Config.UserKey)
	e.Use(corsMiddleware(splitOrigins(deps.Config.CORSOrigins)))

	// Discovery documents are public.
	e.GET("/.well-known/mcp-manifest", s.handleMCPManifest)
	e.GET("/gemini-extension", s.handleGeminiExtension)

	v1 := e.Group("/v1", auth.Middleware())
	v1.GET("/health", s.handleHealth)
	v1.GET("/worker/health", s.handleWorkerHealth)

	v1.POST("/analyze", s.handleAnalyze, RequirePermission(PermAnalyze))
	v1.GET("/jobs", s.handleListJobs)
	v1.GET("/jobs/:id", s.handleGetJob)
	v1.DELETE("/jobs/:id", s.handleCancelJob, RequirePermission(PermAnalyze))

	v1.GET("/plugins", s.handleListPlugins)
	v1.GET("/plugins/:name", s.handleGetPlugin)
	v1.GET("/plugins/:name/manifest", s.handlePluginManifest)
	v1.POST("/plugins/:name/reload", s.handleReloadPlugin, RequirePermission(PermAdmin))
	v1.POST("/plugins/reload-all", s.handleReloadAll, RequirePermission(PermAdmin))

	v1.POST("/mcp", s.handleMCP)
	v1.POST("/video/pipeline", s.handleVideoPipeline, RequirePermission(PermAnalyze))

	v1.GET("/pipelines", s.handleListPipelines)
	v1.POST("/pipelines/:id/run", s.handleRunPipeline, RequirePermission(PermAnalyze))

	v1.GET("/stream", s.handleStream, RequirePermission(PermStream))
	e.GET("/ws/jobs/:job_id", s.handleJobSocket, auth.Middleware(), RequirePermission(PermStream))

	return s
}

// Start serves HTTP until the listener closes.
func (s *Server) Start() error {
	slog.Info("HTTP server starting", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the shutdown budget.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	slog.Info("HTTP server shutting down")
	return s.http.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.echo }

func splitOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = []string{"*"}
	}
	return out
}
