package pipeline

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Registry holds pipelines loaded from a directory of JSON descriptors, one
// pipeline per file. Invalid descriptors are logged and skipped; they never
// prevent the rest of the directory from loading.
type Registry struct {
	mu        sync.RWMutex
	pipelines map[string]*Pipeline
	dir       string
	watcher   *fsnotify.Watcher
	closeOnce sync.Once
}

// NewRegistry creates an empty pipeline registry.
func NewRegistry() *Registry {
	return &Registry{pipelines: make(map[string]*Pipeline)}
}

// LoadDir reads every *.json descriptor in dir. A missing directory is not
// an error; the registry simply stays empty.
func (r *Registry) LoadDir(dir string) error {
	r.mu.Lock()
	r.dir = dir
	r.mu.Unlock()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("Pipeline directory absent, no pipelines loaded", "dir", dir)
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		r.loadFile(filepath.Join(dir, entry.Name()))
	}

	r.mu.RLock()
	count := len(r.pipelines)
	r.mu.RUnlock()
	slog.Info("Pipelines loaded", "dir", dir, "count", count)
	return nil
}

// Watch reloads descriptors as files in the loaded directory change. It
// returns immediately; reloading happens on a background goroutine until
// Close is called.
func (r *Registry) Watch() error {
	r.mu.RLock()
	dir := r.dir
	r.mu.RUnlock()
	if dir == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		if os.IsNotExist(err) {
			slog.Info("Pipeline directory absent, hot reload disabled", "dir", dir)
			return nil
		}
		return err
	}
	r.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(event.Name, ".json") {
					continue
				}
				if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
					slog.Info("Pipeline descriptor changed, reloading", "file", event.Name)
					r.loadFile(event.Name)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Pipeline watcher error", "error", err)
			}
		}
	}()
	slog.Info("Watching pipeline directory", "dir", dir)
	return nil
}

// Close stops the descriptor watcher, if running.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		if r.watcher != nil {
			r.watcher.Close()
		}
	})
}

// Get returns the pipeline with the given id. Absence is a lookup miss, not
// an error.
func (r *Registry) Get(id string) (*Pipeline, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pipelines[id]
	return p, ok
}

// List returns every loaded pipeline.
func (r *Registry) List() []*Pipeline {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Pipeline, 0, len(r.pipelines))
	for _, p := range r.pipelines {
		out = append(out, p)
	}
	return out
}

// Put registers a pipeline directly, replacing any with the same id. It
// rejects structurally invalid pipelines.
func (r *Registry) Put(p *Pipeline) error {
	if problems := Validate(p); len(problems) > 0 {
		return &InvalidDescriptorError{ID: p.ID, Problems: problems}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pipelines[p.ID] = p
	return nil
}

func (r *Registry) loadFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("Skipping unreadable pipeline descriptor", "file", path, "error", err)
		return
	}
	var p Pipeline
	if err := json.Unmarshal(data, &p); err != nil {
		slog.Warn("Skipping malformed pipeline descriptor", "file", path, "error", err)
		return
	}
	if p.ID == "" {
		slog.Warn("Skipping pipeline descriptor without id", "file", path)
		return
	}
	if problems := Validate(&p); len(problems) > 0 {
		slog.Warn("Skipping invalid pipeline descriptor",
			"file", path, "pipeline_id", p.ID, "problems", problems)
		return
	}

	r.mu.Lock()
	r.pipelines[p.ID] = &p
	r.mu.Unlock()
	slog.Debug("Pipeline registered", "pipeline_id", p.ID, "nodes", len(p.Nodes))
}
