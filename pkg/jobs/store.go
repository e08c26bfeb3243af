package jobs

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultMaxJobs is the store's default capacity before eviction kicks in.
const DefaultMaxJobs = 1000

// evictFraction of capacity is reclaimed per eviction pass (minimum one).
const evictFraction = 5 // one fifth

// ListLimitMax caps the List limit parameter.
const ListLimitMax = 200

// Store is a bounded, concurrency-safe mapping from job id to job record.
// One mutex serializes all operations; critical sections are short and make
// no external calls.
type Store struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	maxJobs int
	now     func() time.Time
}

// NewStore creates a job store. maxJobs <= 0 selects DefaultMaxJobs.
func NewStore(maxJobs int) *Store {
	if maxJobs <= 0 {
		maxJobs = DefaultMaxJobs
	}
	return &Store{
		jobs:    make(map[string]*Job),
		maxJobs: maxJobs,
		now:     time.Now,
	}
}

// Create inserts a new record. When the store is at capacity it first evicts
// the oldest terminal records; if none are terminal the entry is accepted
// regardless — the cap is not a hard admission limit.
func (s *Store) Create(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return ErrJobExists
	}
	if len(s.jobs) >= s.maxJobs {
		s.evictLocked()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now()
	}
	s.jobs[job.ID] = job.clone()
	return nil
}

// Update merges a partial patch into the record and returns the updated
// snapshot, or false if the id is unknown.
func (s *Store) Update(id string, patch Patch) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	applyPatch(j, patch)
	return j.clone(), true
}

// Get returns a snapshot of the record, or false if the id is unknown.
func (s *Store) Get(id string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	return j.clone(), true
}

// List returns records matching the optional status and plugin filters,
// newest first, truncated to limit. Limit must satisfy 1 <= limit <= 200.
func (s *Store) List(status Status, pluginName string, limit int) ([]*Job, error) {
	if limit < 1 || limit > ListLimitMax {
		return nil, ErrInvalidLimit
	}

	s.mu.Lock()
	matched := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if status != "" && j.Status != status {
			continue
		}
		if pluginName != "" && j.Plugin != pluginName {
			continue
		}
		matched = append(matched, j.clone())
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, k int) bool {
		return matched[i].CreatedAt.After(matched[k].CreatedAt)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// ClaimNext atomically transitions the oldest QUEUED job on the given track
// to RUNNING (progress 0.1, started timestamp) and returns its snapshot.
// Returns false when no claimable job exists.
func (s *Store) ClaimNext(track Track) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *Job
	for _, j := range s.jobs {
		if j.Status != StatusQueued || j.Track != track {
			continue
		}
		if oldest == nil || j.CreatedAt.Before(oldest.CreatedAt) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, false
	}
	now := s.now()
	oldest.Status = StatusRunning
	oldest.StartedAt = &now
	oldest.Progress = 0.1
	return oldest.clone(), true
}

// Claim transitions the identified job from QUEUED to RUNNING. Returns
// ErrJobNotFound for unknown ids and ErrNotQueued for jobs past QUEUED.
func (s *Store) Claim(id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if j.Status != StatusQueued {
		return nil, ErrNotQueued
	}
	now := s.now()
	j.Status = StatusRunning
	j.StartedAt = &now
	j.Progress = 0.1
	return j.clone(), nil
}

// Cancel marks a QUEUED job as ERROR with the given text (which must begin
// "Cancelled" by convention). Returns the final snapshot, or an error when
// the job is unknown or past QUEUED.
func (s *Store) Cancel(id, errorText string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	if j.Status != StatusQueued {
		return nil, ErrNotCancellable
	}
	now := s.now()
	j.Status = StatusError
	j.Error = errorText
	j.CompletedAt = &now
	return j.clone(), nil
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// evictLocked removes the oldest fifth (minimum one) of terminal records,
// ordered by created timestamp ascending. Callers hold the lock.
func (s *Store) evictLocked() {
	terminal := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if j.Terminal() {
			terminal = append(terminal, j)
		}
	}
	if len(terminal) == 0 {
		slog.Warn("Job store over capacity with no terminal records; accepting entry anyway",
			"size", len(s.jobs), "max", s.maxJobs)
		return
	}
	sort.Slice(terminal, func(i, k int) bool {
		return terminal[i].CreatedAt.Before(terminal[k].CreatedAt)
	})
	n := s.maxJobs / evictFraction
	if n < 1 {
		n = 1
	}
	if n > len(terminal) {
		n = len(terminal)
	}
	for _, j := range terminal[:n] {
		delete(s.jobs, j.ID)
	}
	slog.Debug("Evicted terminal jobs", "evicted", n, "remaining", len(s.jobs))
}

func applyPatch(j *Job, p Patch) {
	if p.Status != nil {
		j.Status = *p.Status
	}
	if p.Result != nil {
		j.Result = p.Result
	}
	if p.Error != nil {
		j.Error = *p.Error
	}
	if p.StartedAt != nil {
		j.StartedAt = p.StartedAt
	}
	if p.CompletedAt != nil {
		j.CompletedAt = p.CompletedAt
	}
	if p.Progress != nil {
		j.Progress = *p.Progress
	}
	if p.ActualDevice != nil {
		j.ActualDevice = *p.ActualDevice
	}
}
