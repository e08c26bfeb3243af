package execution

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ProgressReporter receives per-step progress during a linear tool sequence.
// Implemented by the streaming channel; nil disables reporting.
type ProgressReporter interface {
	ReportToolProgress(jobID, currentTool string, toolsTotal, toolsCompleted int)
}

// Heartbeater records liveness of the video processing path. Implemented by
// the worker heartbeat monitor; nil disables it.
type Heartbeater interface {
	Beat()
}

// VideoPipelineService runs a single-plugin linear tool sequence on one
// payload, feeding each tool the previous tool's output overlaid on the
// original payload (last-wins).
type VideoPipelineService struct {
	exec      *PluginExecutionService
	progress  ProgressReporter
	heartbeat Heartbeater
	logger    *slog.Logger
}

// NewVideoPipelineService creates the video sequence runner. progress and
// heartbeat may be nil.
func NewVideoPipelineService(exec *PluginExecutionService, progress ProgressReporter, heartbeat Heartbeater) *VideoPipelineService {
	return &VideoPipelineService{
		exec:      exec,
		progress:  progress,
		heartbeat: heartbeat,
		logger:    slog.Default(),
	}
}

// Run executes tools in order against payload and returns the aggregated
// result: the payload overlaid with every tool's output, plus per-tool
// outputs under "steps". The run aborts on the first tool failure.
func (s *VideoPipelineService) Run(ctx context.Context, pluginName string, tools []string, payload map[string]any) (map[string]any, error) {
	if pluginName == "" {
		return nil, NewValidationError("plugin", "plugin name is required")
	}
	if len(tools) == 0 {
		return nil, NewValidationError("tools", "at least one tool is required")
	}

	runID := uuid.New().String()
	log := s.logger.With("run_id", runID, "plugin", pluginName)
	log.Info("Video pipeline started", "tools", len(tools))

	if s.heartbeat != nil {
		s.heartbeat.Beat()
	}

	current := make(map[string]any, len(payload))
	for k, v := range payload {
		current[k] = v
	}
	steps := make([]map[string]any, 0, len(tools))

	for i, tool := range tools {
		if s.progress != nil {
			s.progress.ReportToolProgress(runID, tool, len(tools), i)
		}

		started := time.Now()
		out, err := s.exec.ExecuteStep(ctx, pluginName, tool, current)
		if err != nil {
			log.Warn("Video pipeline tool failed", "tool", tool, "step", i, "error", err)
			return nil, err
		}
		log.Debug("Video pipeline tool completed",
			"tool", tool, "step", i, "duration_ms", time.Since(started).Milliseconds())

		for k, v := range out {
			current[k] = v
		}
		steps = append(steps, map[string]any{"tool": tool, "output": out})

		if s.heartbeat != nil {
			s.heartbeat.Beat()
		}
	}

	if s.progress != nil {
		s.progress.ReportToolProgress(runID, "", len(tools), len(tools))
	}

	current["steps"] = steps
	current["run_id"] = runID
	log.Info("Video pipeline completed", "tools", len(tools))
	return current, nil
}
