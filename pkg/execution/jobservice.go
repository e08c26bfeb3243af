package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgesyte/forgesyte/pkg/jobs"
	"github.com/forgesyte/forgesyte/pkg/plugin"
)

// JobExecutionService owns the lifecycle of directly-run jobs: QUEUED at
// creation, RUNNING around ExecuteTool, DONE or ERROR with a completed
// timestamp. State transitions are serialized by a mutex so observers see
// the ordered prefix QUEUED → RUNNING → (DONE | ERROR).
type JobExecutionService struct {
	store   *jobs.Store
	exec    *PluginExecutionService
	plugins PluginSource
	mu      sync.Mutex
	logger  *slog.Logger
	now     func() time.Time
}

// NewJobExecutionService creates the middle chain layer.
func NewJobExecutionService(store *jobs.Store, exec *PluginExecutionService, plugins PluginSource) *JobExecutionService {
	return &JobExecutionService{
		store:   store,
		exec:    exec,
		plugins: plugins,
		logger:  slog.Default(),
		now:     time.Now,
	}
}

// CreateJob writes a QUEUED record and returns its server-assigned id. A
// missing tool name resolves to the plugin's designated default tool; when
// no default exists the job is rejected with a ValidationError.
func (s *JobExecutionService) CreateJob(pluginName, toolName string, args map[string]any) (string, error) {
	if pluginName == "" {
		return "", NewValidationError("plugin", "plugin name is required")
	}

	if toolName == "" {
		p, ok := s.plugins.Get(pluginName)
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrPluginNotFound, pluginName)
		}
		resolved, ok := plugin.ResolveTool(p.Metadata(), "")
		if !ok {
			return "", NewValidationError("tool", fmt.Sprintf(
				"no tool name supplied and plugin %s declares no default tool", pluginName))
		}
		toolName = resolved
	}

	job := &jobs.Job{
		ID:     uuid.New().String(),
		Status: jobs.StatusQueued,
		Plugin: pluginName,
		Tool:   toolName,
		Args:   args,
		Track:  jobs.TrackDirect,
	}
	if err := s.store.Create(job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// RunJob drives one QUEUED job to a terminal state. Only QUEUED jobs may
// run; anything else is a lifecycle fault. Processing time is added to the
// result mapping under processing_time_ms.
func (s *JobExecutionService) RunJob(ctx context.Context, jobID string) (*jobs.Job, error) {
	s.mu.Lock()
	job, err := s.store.Claim(jobID)
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			return nil, err
		}
		return nil, &JobExecutionError{JobID: jobID, Phase: "claim", Err: err}
	}

	mime, _ := job.Args["mime_type"].(string)
	started := s.now()
	result, execErr := s.exec.ExecuteTool(ctx, job.Plugin, job.Tool, job.Args, mime)
	processingMs := s.now().Sub(started).Milliseconds()
	completed := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if execErr != nil {
		msg := execErr.Error()
		final, _ := s.store.Update(jobID, jobs.Patch{
			Status:      statusPtr(jobs.StatusError),
			Error:       &msg,
			CompletedAt: &completed,
		})
		s.logger.Warn("Job failed", "job_id", jobID, "plugin", job.Plugin, "error", execErr)
		return final, nil
	}

	result["processing_time_ms"] = processingMs
	progress := 1.0
	final, _ := s.store.Update(jobID, jobs.Patch{
		Status:      statusPtr(jobs.StatusDone),
		Result:      result,
		CompletedAt: &completed,
		Progress:    &progress,
	})
	s.logger.Info("Job completed", "job_id", jobID, "plugin", job.Plugin,
		"tool", job.Tool, "duration_ms", processingMs)
	return final, nil
}

// CancelJob cancels a QUEUED job. Identical policy to the worker pool:
// running or terminal jobs are never interrupted.
func (s *JobExecutionService) CancelJob(jobID string) (*jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Cancel(jobID, "Cancelled by user")
}

// GetJob returns the job snapshot.
func (s *JobExecutionService) GetJob(jobID string) (*jobs.Job, error) {
	job, ok := s.store.Get(jobID)
	if !ok {
		return nil, jobs.ErrJobNotFound
	}
	return job, nil
}

// ListJobs delegates to the store.
func (s *JobExecutionService) ListJobs(status jobs.Status, pluginName string, limit int) ([]*jobs.Job, error) {
	return s.store.List(status, pluginName, limit)
}

func statusPtr(s jobs.Status) *jobs.Status { return &s }
