package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/forgesyte/forgesyte/pkg/execution"
	"github.com/forgesyte/forgesyte/pkg/jobs"
)

// WorkerPool manages a fixed set of workers that process pool-managed jobs.
type WorkerPool struct {
	store       *jobs.Store
	exec        *execution.PluginExecutionService
	workerCount int
	workers     []*Worker
	stopCh      chan struct{}
	stopOnce    sync.Once
	started     bool

	// Completion notification handles, keyed by job id.
	mu     sync.Mutex
	notify map[string]chan<- *jobs.Job
}

// NewWorkerPool creates a worker pool. workerCount <= 0 selects the default.
func NewWorkerPool(store *jobs.Store, exec *execution.PluginExecutionService, workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	return &WorkerPool{
		store:       store,
		exec:        exec,
		workerCount: workerCount,
		workers:     make([]*Worker, 0, workerCount),
		stopCh:      make(chan struct{}),
		notify:      make(map[string]chan<- *jobs.Job),
	}
}

// Start spawns worker goroutines. It is safe to call multiple times;
// subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call")
		return nil
	}
	p.started = true

	slog.Info("Starting worker pool", "worker_count", p.workerCount)
	for i := 0; i < p.workerCount; i++ {
		worker := NewWorker(fmt.Sprintf("worker-%d", i), p.store, p.exec, p)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}
	slog.Info("Worker pool started")
	return nil
}

// Stop signals all workers to stop and waits for them to finish their
// current jobs (graceful shutdown).
func (p *WorkerPool) Stop() {
	slog.Info("Stopping worker pool gracefully")
	for _, worker := range p.workers {
		worker.Stop()
	}
	p.stopOnce.Do(func() { close(p.stopCh) })
	slog.Info("Worker pool stopped gracefully")
}

// SubmitJob writes a QUEUED record and schedules background processing. It
// returns immediately with the opaque job id. notify, when non-nil, receives
// the terminal job snapshot exactly once.
func (p *WorkerPool) SubmitJob(_ context.Context, image []byte, pluginName string, options map[string]any, device string, notify chan<- *jobs.Job) (string, error) {
	if len(image) == 0 {
		return "", execution.NewValidationError("image", "image bytes are required")
	}
	if pluginName == "" {
		return "", execution.NewValidationError("plugin", "plugin name is required")
	}

	args := make(map[string]any, len(options)+1)
	for k, v := range options {
		args[k] = v
	}
	args["image"] = image

	tool, _ := options["tool"].(string)
	job := &jobs.Job{
		ID:              uuid.New().String(),
		Status:          jobs.StatusQueued,
		Plugin:          pluginName,
		Tool:            tool,
		Args:            args,
		RequestedDevice: device,
		Track:           jobs.TrackPool,
	}
	if err := p.store.Create(job); err != nil {
		return "", err
	}
	if notify != nil {
		p.mu.Lock()
		p.notify[job.ID] = notify
		p.mu.Unlock()
	}

	slog.Info("Job submitted", "job_id", job.ID, "plugin", pluginName, "device", device)
	return job.ID, nil
}

// CancelJob cancels a QUEUED job and returns true. Running or terminal jobs
// are never interrupted; cancelling them returns false.
func (p *WorkerPool) CancelJob(jobID string) bool {
	final, err := p.store.Cancel(jobID, "Cancelled by user")
	if err != nil {
		return false
	}
	slog.Info("Job cancelled", "job_id", jobID)
	p.deliverNotification(jobID, final)
	return true
}

// GetJob returns the job snapshot.
func (p *WorkerPool) GetJob(jobID string) (*jobs.Job, error) {
	job, ok := p.store.Get(jobID)
	if !ok {
		return nil, jobs.ErrJobNotFound
	}
	return job, nil
}

// GetResult returns the result mapping of a DONE job, or a descriptive
// error when the job has not completed successfully.
func (p *WorkerPool) GetResult(jobID string) (map[string]any, error) {
	job, ok := p.store.Get(jobID)
	if !ok {
		return nil, jobs.ErrJobNotFound
	}
	if job.Status != jobs.StatusDone {
		return nil, fmt.Errorf("%w: job %s is %s", jobs.ErrNotDone, jobID, job.Status)
	}
	return job.Result, nil
}

// Health returns the current health status of the pool.
func (p *WorkerPool) Health() *PoolHealth {
	queued, err := p.store.List(jobs.StatusQueued, "", jobs.ListLimitMax)
	if err != nil {
		queued = nil
	}

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == WorkerStatusWorking {
			activeWorkers++
		}
	}

	return &PoolHealth{
		IsHealthy:     len(p.workers) > 0,
		ActiveWorkers: activeWorkers,
		TotalWorkers:  len(p.workers),
		QueueDepth:    len(queued),
		WorkerStats:   workerStats,
	}
}

// deliverNotification sends the terminal snapshot to the job's completion
// handle, if any. The handle is removed from the map before sending, so
// delivery happens exactly once; the send itself blocks on a goroutine until
// the receiver is ready, so a submitter that starts receiving late still gets
// the notification. Panics from closed channels are caught and logged without
// affecting the job record.
func (p *WorkerPool) deliverNotification(jobID string, job *jobs.Job) {
	p.mu.Lock()
	ch, ok := p.notify[jobID]
	delete(p.notify, jobID)
	p.mu.Unlock()
	if !ok {
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Completion notification delivery panicked",
					"job_id", jobID, "panic", r)
			}
		}()
		ch <- job
	}()
}
