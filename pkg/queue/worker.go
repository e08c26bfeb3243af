package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/forgesyte/forgesyte/pkg/execution"
	"github.com/forgesyte/forgesyte/pkg/jobs"
	"github.com/forgesyte/forgesyte/pkg/results"
)

// pollInterval is the base sleep between claim attempts when the queue is
// empty. Each sleep gets a random jitter so idle workers spread their polls.
const pollInterval = 200 * time.Millisecond

// Worker claims pool-managed jobs from the store and drives each one to a
// terminal state.
type Worker struct {
	id       string
	store    *jobs.Store
	exec     *execution.PluginExecutionService
	pool     *WorkerPool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.Mutex
	status        WorkerStatus
	currentJobID  string
	jobsProcessed int
	lastActivity  time.Time
}

// NewWorker creates a worker bound to the pool's store and execution layer.
func NewWorker(id string, store *jobs.Store, exec *execution.PluginExecutionService, pool *WorkerPool) *Worker {
	return &Worker{
		id:           id,
		store:        store,
		exec:         exec,
		pool:         pool,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// Start begins the worker's claim-and-process loop.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
	slog.Info("Worker started", "worker_id", w.id)
}

// Stop signals the worker to stop and waits for the current job to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	slog.Info("Worker stopped", "worker_id", w.id)
}

// Health returns a snapshot of this worker's state.
func (w *Worker) Health() WorkerHealth {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        w.status,
		CurrentJobID:  w.currentJobID,
		JobsProcessed: w.jobsProcessed,
		LastActivity:  w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.claimNext()
		if err != nil {
			if !errors.Is(err, ErrNoJobsAvailable) {
				slog.Error("Failed to claim job", "worker_id", w.id, "error", err)
			}
			w.sleep()
			continue
		}

		w.process(ctx, job)
	}
}

// claimNext pulls the oldest queued pool job, if any.
func (w *Worker) claimNext() (*jobs.Job, error) {
	job, ok := w.store.ClaimNext(jobs.TrackPool)
	if !ok {
		return nil, ErrNoJobsAvailable
	}
	return job, nil
}

// process runs a single job to a terminal state. Every exit path delivers
// the completion notification.
func (w *Worker) process(ctx context.Context, job *jobs.Job) {
	w.setWorking(job.ID)
	defer w.setIdle()

	log := slog.With("worker_id", w.id, "job_id", job.ID, "plugin", job.Plugin)
	log.Info("Processing job")

	mime, _ := job.Args["mime_type"].(string)
	started := time.Now()
	raw, err := w.exec.ExecuteTool(ctx, job.Plugin, job.Tool, job.Args, mime)
	if err != nil {
		w.fail(job, failureMessage(job.Plugin, err))
		log.Warn("Job failed", "error", err)
		return
	}
	processingMs := time.Since(started).Milliseconds()

	// Normalization is best effort: a shape the normalizer does not
	// recognize leaves the raw result untouched.
	result, normErr := results.Normalize(raw)
	if normErr != nil {
		log.Debug("Result normalization skipped", "reason", normErr)
		result = raw
	}
	result["processing_time_ms"] = processingMs

	device := job.RequestedDevice
	if device == "" {
		device = "cpu"
	}

	now := time.Now()
	progress := 1.0
	final, _ := w.store.Update(job.ID, jobs.Patch{
		Status:       statusPtr(jobs.StatusDone),
		Result:       result,
		CompletedAt:  &now,
		Progress:     &progress,
		ActualDevice: &device,
	})
	w.recordProcessed()
	log.Info("Job completed", "duration_ms", processingMs, "device", device)
	w.pool.deliverNotification(job.ID, final)
}

// fail records a terminal ERROR and notifies.
func (w *Worker) fail(job *jobs.Job, message string) {
	now := time.Now()
	final, _ := w.store.Update(job.ID, jobs.Patch{
		Status:      statusPtr(jobs.StatusError),
		Error:       &message,
		CompletedAt: &now,
	})
	w.recordProcessed()
	w.pool.deliverNotification(job.ID, final)
}

// failureMessage renders the stored error text. Unknown plugins get the
// stable message clients match on.
func failureMessage(pluginName string, err error) string {
	if errors.Is(err, execution.ErrPluginNotFound) {
		return fmt.Sprintf("Plugin '%s' not found", pluginName)
	}
	return err.Error()
}

func (w *Worker) setWorking(jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = WorkerStatusWorking
	w.currentJobID = jobID
	w.lastActivity = time.Now()
}

func (w *Worker) setIdle() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = WorkerStatusIdle
	w.currentJobID = ""
	w.lastActivity = time.Now()
}

func (w *Worker) recordProcessed() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.jobsProcessed++
	w.lastActivity = time.Now()
}

// sleep waits the jittered poll interval, waking early on stop.
func (w *Worker) sleep() {
	jitter := time.Duration(rand.Int64N(int64(pollInterval / 2)))
	timer := time.NewTimer(pollInterval + jitter)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-w.stopCh:
	}
}

func statusPtr(s jobs.Status) *jobs.Status { return &s }
