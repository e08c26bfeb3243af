// Package queue runs potentially blocking plugin invocations off the
// request path on a fixed-size pool of workers that claim QUEUED jobs from
// the in-memory store.
package queue

import (
	"errors"
	"time"
)

// DefaultWorkerCount is the pool size when none is configured.
const DefaultWorkerCount = 4

// ErrNoJobsAvailable signals an empty queue to the worker poll loop.
var ErrNoJobsAvailable = errors.New("no jobs available")

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth is a point-in-time snapshot of one worker.
type WorkerHealth struct {
	ID            string       `json:"id"`
	Status        WorkerStatus `json:"status"`
	CurrentJobID  string       `json:"current_job_id,omitempty"`
	JobsProcessed int          `json:"jobs_processed"`
	LastActivity  time.Time    `json:"last_activity"`
}

// PoolHealth is a point-in-time snapshot of the whole pool.
type PoolHealth struct {
	IsHealthy     bool           `json:"is_healthy"`
	ActiveWorkers int            `json:"active_workers"`
	TotalWorkers  int            `json:"total_workers"`
	QueueDepth    int            `json:"queue_depth"`
	WorkerStats   []WorkerHealth `json:"worker_stats"`
}
