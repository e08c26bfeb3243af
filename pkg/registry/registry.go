// Package registry holds every discovered plugin for the lifetime of the
// process and tracks its lifecycle state and execution metrics.
//
// There is exactly one registry per process, reached via Default(). The
// registry owns the plugin instances; lookups hand out non-owning handles.
package registry

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/forgesyte/forgesyte/pkg/plugin"
)

// LifecycleState is the current phase of a plugin's lifecycle.
type LifecycleState string

// Lifecycle state values. Happy path: LOADED → INITIALIZED → RUNNING ↔
// INITIALIZED. FAILED and UNAVAILABLE are reachable from any earlier state
// and are retained rather than hidden.
const (
	StateLoaded      LifecycleState = "loaded"
	StateInitialized LifecycleState = "initialized"
	StateRunning     LifecycleState = "running"
	StateFailed      LifecycleState = "failed"
	StateUnavailable LifecycleState = "unavailable"
)

// durationRingSize bounds the FIFO of recent execution durations.
const durationRingSize = 10

// Status is a read-only snapshot of one plugin's registry entry.
type Status struct {
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Version        string         `json:"version"`
	State          LifecycleState `json:"state"`
	LastError      string         `json:"last_error,omitempty"`
	LoadedAt       time.Time      `json:"loaded_at"`
	LastUsedAt     time.Time      `json:"last_used_at,omitzero"`
	SuccessCount   int64          `json:"success_count"`
	ErrorCount     int64          `json:"error_count"`
	LastDurationMs int64          `json:"last_duration_ms"`
	AvgDurationMs  float64        `json:"avg_duration_ms"`
	UptimeSeconds  float64        `json:"uptime_seconds"`
}

// entry is the registry's owned record for one plugin.
type entry struct {
	instance    plugin.Plugin
	description string
	version     string
	state       LifecycleState
	lastError   string
	loadedAt    time.Time
	lastUsedAt  time.Time
	successes   int64
	errors      int64
	durations   []int64 // most recent last, capped at durationRingSize
}

// Registry is the process-wide plugin catalog. Readers (Get, Status, List*)
// take shared access; writers (Register, Mark*, RecordExecution) take
// exclusive access.
type Registry struct {
	mu         sync.RWMutex
	plugins    map[string]*entry
	generation uint64
	now        func() time.Time
}

var (
	defaultRegistry *Registry
	defaultOnce     sync.Once
)

// Default returns the process-wide registry, constructing it on first use.
// This is the only way to obtain a Registry outside this package.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = newRegistry()
	})
	return defaultRegistry
}

func newRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]*entry),
		now:     time.Now,
	}
}

// Register transitions the named plugin to LOADED and stores the instance.
// Re-registration overwrites the previous entry.
func (r *Registry) Register(name, description, version string, instance plugin.Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[name] = &entry{
		instance:    instance,
		description: description,
		version:     version,
		state:       StateLoaded,
		loadedAt:    r.now(),
		durations:   make([]int64, 0, durationRingSize),
	}
	r.generation++
	slog.Info("Plugin registered", "plugin", name, "version", version)
}

// MarkInitialized records that init (and optional self-validate) succeeded.
func (r *Registry) MarkInitialized(name string) {
	r.mutate(name, func(e *entry) {
		e.state = StateInitialized
		e.lastError = ""
	})
}

// MarkRunning records that the plugin began executing a tool at startedAt.
func (r *Registry) MarkRunning(name string, startedAt time.Time) {
	r.mutate(name, func(e *entry) {
		e.state = StateRunning
		e.lastUsedAt = startedAt
	})
}

// MarkFailed records a failed execution. All other fields are preserved.
func (r *Registry) MarkFailed(name, reason string) {
	r.mutate(name, func(e *entry) {
		e.state = StateFailed
		e.lastError = reason
	})
	slog.Warn("Plugin marked failed", "plugin", name, "reason", reason)
}

// MarkUnavailable records that the plugin never became ready. All other
// fields are preserved.
func (r *Registry) MarkUnavailable(name, reason string) {
	r.mutate(name, func(e *entry) {
		e.state = StateUnavailable
		e.lastError = reason
	})
	slog.Warn("Plugin marked unavailable", "plugin", name, "reason", reason)
}

// RecordExecution appends a duration sample, bumps the success or error
// counter, and updates the last-used timestamp.
func (r *Registry) RecordExecution(name string, durationMs int64, hadError bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.plugins[name]
	if !ok {
		return
	}
	if hadError {
		e.errors++
	} else {
		e.successes++
	}
	e.lastUsedAt = r.now()
	e.durations = append(e.durations, durationMs)
	if len(e.durations) > durationRingSize {
		e.durations = e.durations[len(e.durations)-durationRingSize:]
	}
}

// Get returns a non-owning handle to the plugin instance.
func (r *Registry) Get(name string) (plugin.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.plugins[name]
	if !ok {
		return nil, false
	}
	return e.instance, true
}

// Status returns a snapshot of one plugin's entry.
func (r *Registry) Status(name string) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.plugins[name]
	if !ok {
		return Status{}, false
	}
	return r.snapshot(name, e), true
}

// ListAll returns snapshots of every plugin, sorted by name.
func (r *Registry) ListAll() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.plugins))
	for name, e := range r.plugins {
		out = append(out, r.snapshot(name, e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ListAvailable returns the names of plugins in LOADED, INITIALIZED, or
// RUNNING, sorted by name.
func (r *Registry) ListAvailable() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, e := range r.plugins {
		switch e.state {
		case StateLoaded, StateInitialized, StateRunning:
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// AvailableMetadata returns the metadata of every available plugin, sorted
// by name. Manifest generation walks this.
func (r *Registry) AvailableMetadata() []plugin.Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var metas []plugin.Metadata
	for _, e := range r.plugins {
		switch e.state {
		case StateLoaded, StateInitialized, StateRunning:
			metas = append(metas, e.instance.Metadata())
		}
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Name < metas[j].Name })
	return metas
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// Generation returns a counter that increments on every mutation that could
// change the manifest. Caches compare it to detect staleness.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// Reload re-runs the plugin's init step: the entry drops back to LOADED,
// then moves to INITIALIZED (or UNAVAILABLE on init failure). Metrics and
// timestamps survive the reload.
func (r *Registry) Reload(name string) error {
	r.mu.RLock()
	e, ok := r.plugins[name]
	var state LifecycleState
	if ok {
		state = e.state
	}
	r.mu.RUnlock()
	if !ok {
		return &NotFoundError{Name: name}
	}

	init, canInit := e.instance.(plugin.Initializer)
	if !canInit && state == StateUnavailable {
		// Descriptor-only placeholders have no init step to re-run; they
		// stay unavailable rather than entering the catalog.
		slog.Info("Plugin reload skipped: no init step", "plugin", name)
		return nil
	}

	r.mutate(name, func(e *entry) { e.state = StateLoaded })

	if canInit {
		if err := init.Init(context.Background()); err != nil {
			r.MarkUnavailable(name, err.Error())
			return err
		}
	}
	r.MarkInitialized(name)
	return nil
}

// mutate applies fn to the named entry under the exclusive lock and bumps
// the manifest generation. Unknown names are ignored: state transitions on
// unregistered plugins have nothing to record.
func (r *Registry) mutate(name string, fn func(*entry)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.plugins[name]
	if !ok {
		return
	}
	fn(e)
	r.generation++
}

// snapshot builds a Status from an entry. Callers must hold at least the
// shared lock.
func (r *Registry) snapshot(name string, e *entry) Status {
	var last int64
	var avg float64
	if n := len(e.durations); n > 0 {
		last = e.durations[n-1]
		var sum int64
		for _, d := range e.durations {
			sum += d
		}
		avg = float64(sum) / float64(n)
	}
	return Status{
		Name:           name,
		Description:    e.description,
		Version:        e.version,
		State:          e.state,
		LastError:      e.lastError,
		LoadedAt:       e.loadedAt,
		LastUsedAt:     e.lastUsedAt,
		SuccessCount:   e.successes,
		ErrorCount:     e.errors,
		LastDurationMs: last,
		AvgDurationMs:  avg,
		UptimeSeconds:  r.now().Sub(e.loadedAt).Seconds(),
	}
}
