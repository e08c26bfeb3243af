// Package jobs provides the in-memory job database: a bounded mapping from
// job identifier to job record with a deterministic eviction policy.
//
// Jobs do not survive process restarts by design; clients that need results
// must collect them before shutdown.
package jobs

import "time"

// Status is the lifecycle phase of a job. Observers see transitions as a
// prefix of QUEUED → RUNNING → (DONE | ERROR).
type Status string

// Job status values. Cancellation is represented as ERROR with an error
// text beginning "Cancelled".
const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

// Track distinguishes how a job is driven to completion.
type Track string

const (
	// TrackPool jobs are claimed and processed by the worker pool.
	TrackPool Track = "pool"
	// TrackDirect jobs are run synchronously by the execution chain.
	TrackDirect Track = "direct"
)

// Job is the server-side record tracking one submitted tool invocation.
type Job struct {
	ID              string         `json:"id"`
	Status          Status         `json:"status"`
	Plugin          string         `json:"plugin"`
	Tool            string         `json:"tool,omitempty"`
	Args            map[string]any `json:"args,omitempty"`
	Result          map[string]any `json:"result,omitempty"`
	Error           string         `json:"error,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	Progress        float64        `json:"progress"`
	RequestedDevice string         `json:"requested_device,omitempty"`
	ActualDevice    string         `json:"actual_device,omitempty"`
	Track           Track          `json:"-"`
}

// Terminal reports whether the job reached DONE or ERROR.
func (j *Job) Terminal() bool {
	return j.Status == StatusDone || j.Status == StatusError
}

// clone returns a copy safe to hand outside the store's lock. Args and
// Result maps are shared; callers treat records as read-only snapshots.
func (j *Job) clone() *Job {
	c := *j
	return &c
}

// Patch is a partial update merged into a job record. Nil fields are left
// untouched.
type Patch struct {
	Status       *Status
	Result       map[string]any
	Error        *string
	StartedAt    *time.Time
	CompletedAt  *time.Time
	Progress     *float64
	ActualDevice *string
}
